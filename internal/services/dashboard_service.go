package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/singleflight"

	"malariawatch/internal/config"
	"malariawatch/internal/dataset"
	"malariawatch/internal/exporter"
	"malariawatch/internal/infrastructure"
	"malariawatch/internal/metrics"
	"malariawatch/internal/viz"
	"malariawatch/pkg/contracts/domain"
)

// Notifier receives dataset lifecycle events, typically the websocket hub.
type Notifier interface {
	Broadcast(event string, payload interface{})
}

// noopNotifier keeps the service usable without a hub, e.g. in tests and
// the data check tool.
type noopNotifier struct{}

func (noopNotifier) Broadcast(string, interface{}) {}

// FilterOptions lists everything a client can select for a level.
type FilterOptions struct {
	Level        domain.Level    `json:"level"`
	Years        []int           `json:"years"`
	MonthsByYear map[int][]int   `json:"months_by_year"`
	Metrics      []domain.Metric `json:"metrics"`
	Units        []UnitOption    `json:"units"`
}

// UnitOption is one selectable unit.
type UnitOption struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
}

// ReloadResult reports the outcome of a dataset reload.
type ReloadResult struct {
	ReloadedAt    time.Time      `json:"reloaded_at"`
	UnmatchedRows map[string]int `json:"unmatched_rows"`
}

// DashboardService orchestrates datasets, calculators and renderers behind
// the HTTP API. Derived views are memoized per dataset generation, so a
// burst of identical requests computes once.
type DashboardService struct {
	store    *dataset.Store
	cfg      *config.Config
	logger   *slog.Logger
	notifier Notifier
	inst     *infrastructure.DashboardMetrics

	group singleflight.Group

	mu      sync.Mutex
	memo    map[string]interface{}
	version uint64
}

// NewDashboardService creates the dashboard service.
func NewDashboardService(store *dataset.Store, cfg *config.Config, logger *slog.Logger, notifier Notifier) *DashboardService {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &DashboardService{
		store:    store,
		cfg:      cfg,
		logger:   logger.With(slog.String("service", "dashboard")),
		notifier: notifier,
		memo:     make(map[string]interface{}),
	}
}

// WithInstruments attaches telemetry instruments. Optional; the service
// works without them.
func (s *DashboardService) WithInstruments(inst *infrastructure.DashboardMetrics) *DashboardService {
	s.inst = inst
	return s
}

// Reload revalidates the source files, re-parsing only when they changed
// on disk. An actual re-parse drops the memo cache and broadcasts a
// data_update event; an unchanged reload reports the current state.
func (s *DashboardService) Reload(ctx context.Context) (*ReloadResult, error) {
	start := time.Now()
	reloaded, err := s.store.Reload(ctx)
	if err != nil {
		return nil, fmt.Errorf("reload datasets: %w", err)
	}

	if reloaded {
		if s.inst != nil {
			s.inst.DatasetReloadsTotal.Add(ctx, 1)
			s.inst.DatasetLoadDuration.Record(ctx, time.Since(start).Seconds())
		}
		s.mu.Lock()
		s.version++
		s.memo = make(map[string]interface{})
		s.mu.Unlock()
	}

	result := &ReloadResult{
		ReloadedAt:    s.store.LoadedAt(),
		UnmatchedRows: make(map[string]int),
	}
	for _, level := range []domain.Level{domain.LevelDistrict, domain.LevelSector} {
		ds, err := s.store.Dataset(level)
		if err != nil {
			continue
		}
		result.UnmatchedRows[level.String()] = ds.DroppedRows
		if reloaded && ds.DroppedRows > 0 {
			s.logger.WarnContext(ctx, "attribute rows without matching boundary",
				slog.String("level", level.String()),
				slog.Int("rows", ds.DroppedRows))
			if s.inst != nil {
				s.inst.DatasetJoinWarnings.Add(ctx, int64(ds.DroppedRows),
					otelmetric.WithAttributes(attribute.String("level", level.String())))
			}
		}
	}

	if reloaded {
		s.notifier.Broadcast("data_update", result)
	}
	return result, nil
}

// Stale reports whether the source files changed since the last reload.
func (s *DashboardService) Stale() bool {
	return s.store.Stale()
}

// LoadedAt returns when the datasets were last loaded.
func (s *DashboardService) LoadedAt() time.Time {
	return s.store.LoadedAt()
}

// Filters returns the selectable years, months, metrics and units for a
// level.
func (s *DashboardService) Filters(ctx context.Context, level domain.Level) (*FilterOptions, error) {
	calc, err := s.calculator(level)
	if err != nil {
		return nil, err
	}
	ds := calc.Dataset()

	years := ds.Years()
	monthsByYear := make(map[int][]int, len(years))
	for _, y := range years {
		for _, m := range ds.MonthsIn(y) {
			monthsByYear[y] = append(monthsByYear[y], int(m))
		}
	}

	units := make([]UnitOption, 0, len(ds.Units))
	for _, u := range ds.Units {
		units = append(units, UnitOption{Key: u.Key, DisplayName: u.DisplayName})
	}
	sort.Slice(units, func(i, j int) bool { return units[i].DisplayName < units[j].DisplayName })

	return &FilterOptions{
		Level:        level,
		Years:        years,
		MonthsByYear: monthsByYear,
		Metrics:      domain.MetricsFor(level),
		Units:        units,
	}, nil
}

// Summary computes the headline figures for a selection's year, compared
// against the prior year when present.
func (s *DashboardService) Summary(ctx context.Context, sel metrics.Selection) (*metrics.Summary, error) {
	calc, metric, err := s.resolve(sel)
	if err != nil {
		return nil, err
	}

	key := s.memoKey("summary", sel)
	v, err := s.cached(ctx, "summary", key, func() (interface{}, error) {
		summary, err := calc.Summary(sel.Year, metric, sel.Year-1)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoData, err)
		}
		return &summary, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*metrics.Summary), nil
}

// Map renders the choropleth spec for a selection.
func (s *DashboardService) Map(ctx context.Context, sel metrics.Selection) (*viz.MapSpec, error) {
	calc, metric, err := s.resolve(sel)
	if err != nil {
		return nil, err
	}

	key := s.memoKey("map", sel)
	v, err := s.cached(ctx, "map", key, func() (interface{}, error) {
		spec, err := viz.NewMapRenderer(calc).Choropleth(sel.Year, sel.Month, metric)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoData, err)
		}
		return spec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*viz.MapSpec), nil
}

// Trends renders the monthly trend chart for the selection's units.
func (s *DashboardService) Trends(ctx context.Context, sel metrics.Selection) (*viz.TrendSpec, error) {
	calc, metric, err := s.resolve(sel)
	if err != nil {
		return nil, err
	}
	if len(sel.Units) == 0 {
		return nil, fmt.Errorf("%w: no units selected", ErrInvalidSelection)
	}
	for _, key := range sel.Units {
		if _, ok := calc.Dataset().Unit(key); !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnitNotFound, key)
		}
	}

	key := s.memoKey("trends", sel)
	v, err := s.cached(ctx, "trends", key, func() (interface{}, error) {
		return viz.NewChartRenderer(calc).Trend(metric, sel.Units)
	})
	if err != nil {
		return nil, err
	}
	return v.(*viz.TrendSpec), nil
}

// Scatter renders the quadrant scatter for a selection's period.
func (s *DashboardService) Scatter(ctx context.Context, sel metrics.Selection) (*viz.ScatterSpec, error) {
	calc, err := s.calculator(sel.Level)
	if err != nil {
		return nil, err
	}

	key := s.memoKey("scatter", sel)
	v, err := s.cached(ctx, "scatter", key, func() (interface{}, error) {
		spec, err := viz.NewChartRenderer(calc).Scatter(sel.Year, sel.Month, s.quadrantPolicy())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoData, err)
		}
		return spec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*viz.ScatterSpec), nil
}

// Top renders the ranking bar chart for a selection.
func (s *DashboardService) Top(ctx context.Context, sel metrics.Selection) (*viz.TopChartSpec, error) {
	calc, metric, err := s.resolve(sel)
	if err != nil {
		return nil, err
	}

	key := s.memoKey("top", sel)
	v, err := s.cached(ctx, "top", key, func() (interface{}, error) {
		spec, err := viz.NewChartRenderer(calc).TopUnits(sel.Year, sel.Month, metric, sel.TopN)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoData, err)
		}
		return spec, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*viz.TopChartSpec), nil
}

// Quadrants classifies every unit in a selection's period around the
// configured cutoffs.
func (s *DashboardService) Quadrants(ctx context.Context, sel metrics.Selection) (*metrics.QuadrantResult, error) {
	calc, err := s.calculator(sel.Level)
	if err != nil {
		return nil, err
	}

	key := s.memoKey("quadrants", sel)
	v, err := s.cached(ctx, "quadrants", key, func() (interface{}, error) {
		result, err := calc.Quadrants(sel.Year, sel.Month, s.quadrantPolicy())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNoData, err)
		}
		return result, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*metrics.QuadrantResult), nil
}

// Export serializes a level's observations for a year (zero means all
// years) as csv or xlsx and returns the suggested filename with the bytes.
func (s *DashboardService) Export(ctx context.Context, level domain.Level, year int, format string) (string, []byte, error) {
	calc, err := s.calculator(level)
	if err != nil {
		return "", nil, err
	}

	table := exportTable(calc.Dataset(), year)
	if len(table.Rows) == 0 {
		return "", nil, fmt.Errorf("%w: year %d", ErrNoData, year)
	}

	name := fmt.Sprintf("malaria_%s", level)
	if year > 0 {
		name = fmt.Sprintf("%s_%d", name, year)
	}

	var buf bytes.Buffer
	switch format {
	case "csv":
		if err := exporter.WriteCSV(&buf, table); err != nil {
			return "", nil, fmt.Errorf("export csv: %w", err)
		}
		return name + ".csv", buf.Bytes(), nil
	case "xlsx":
		if err := exporter.WriteExcel(&buf, table, "Malaria Data"); err != nil {
			return "", nil, fmt.Errorf("export xlsx: %w", err)
		}
		return name + ".xlsx", buf.Bytes(), nil
	default:
		return "", nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// exportTable flattens observations into a spreadsheet-shaped table.
func exportTable(ds *domain.Dataset, year int) exporter.Table {
	ms := domain.MetricsFor(ds.Level)

	headers := []string{"Date", "Name"}
	if ds.Level == domain.LevelSector {
		headers = append(headers, "District")
	}
	headers = append(headers, "Province", "Population")
	for _, m := range ms {
		headers = append(headers, m.Label)
	}

	var rows [][]string
	for _, o := range ds.Observations {
		if year > 0 && o.Year != year {
			continue
		}
		u, _ := ds.Unit(o.UnitKey)

		row := []string{o.Date().Format("2006-01-02"), u.Name}
		if ds.Level == domain.LevelSector {
			row = append(row, u.District)
		}
		row = append(row, u.Province, strconv.FormatFloat(o.Population, 'f', -1, 64))
		for _, m := range ms {
			v, _ := o.Value(m.ID)
			row = append(row, strconv.FormatFloat(v, 'f', -1, 64))
		}
		rows = append(rows, row)
	}

	return exporter.Table{Headers: headers, Rows: rows}
}

// resolve validates the selection's level and metric and returns the
// level's calculator.
func (s *DashboardService) resolve(sel metrics.Selection) (*metrics.Calculator, domain.Metric, error) {
	calc, err := s.calculator(sel.Level)
	if err != nil {
		return nil, domain.Metric{}, err
	}
	metric, ok := domain.LookupMetric(sel.Level, sel.MetricID)
	if !ok {
		return nil, domain.Metric{}, fmt.Errorf("%w: %q", ErrUnknownMetric, sel.MetricID)
	}
	return calc, metric, nil
}

func (s *DashboardService) calculator(level domain.Level) (*metrics.Calculator, error) {
	if !level.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownLevel, level)
	}
	ds, err := s.store.Dataset(level)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotLoaded, err)
	}
	return metrics.NewCalculator(ds), nil
}

func (s *DashboardService) quadrantPolicy() metrics.QuadrantPolicy {
	return metrics.QuadrantPolicy{
		Kind:       s.cfg.Metrics.QuadrantPolicy,
		Percentile: s.cfg.Metrics.QuadrantPercentile,
		FixedX:     s.cfg.Metrics.FixedCutoffX,
		FixedY:     s.cfg.Metrics.FixedCutoffY,
	}
}

// memoKey builds a cache key scoped to the current dataset generation.
func (s *DashboardService) memoKey(view string, sel metrics.Selection) string {
	s.mu.Lock()
	version := s.version
	s.mu.Unlock()

	key := fmt.Sprintf("%d|%s|%s|%s|%d|%d|%d", version, view, sel.Level, sel.MetricID, sel.Year, sel.Month, sel.TopN)
	for _, u := range sel.Units {
		key += "|" + u
	}
	return key
}

// cached returns the memoized value for key, computing it at most once
// even under concurrent identical requests.
func (s *DashboardService) cached(ctx context.Context, view, key string, compute func() (interface{}, error)) (interface{}, error) {
	viewAttr := otelmetric.WithAttributes(attribute.String("view", view))

	s.mu.Lock()
	if v, ok := s.memo[key]; ok {
		s.mu.Unlock()
		if s.inst != nil {
			s.inst.ViewCacheHits.Add(ctx, 1, viewAttr)
		}
		return v, nil
	}
	s.mu.Unlock()

	v, err, _ := s.group.Do(key, func() (interface{}, error) {
		start := time.Now()
		v, err := compute()
		if err != nil {
			return nil, err
		}
		if s.inst != nil {
			s.inst.ViewComputationsTotal.Add(ctx, 1, viewAttr)
			s.inst.ViewComputationDuration.Record(ctx, time.Since(start).Seconds(), viewAttr)
		}
		s.mu.Lock()
		s.memo[key] = v
		s.mu.Unlock()
		return v, nil
	})
	return v, err
}
