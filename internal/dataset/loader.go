package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"malariawatch/internal/config"
	apperrors "malariawatch/internal/errors"
	"malariawatch/pkg/contracts/domain"
)

// Loader parses attribute CSVs and boundary GeoJSON files into joined
// datasets. A loader is stateless and safe for concurrent use.
type Loader struct {
	paths  *config.Paths
	logger *slog.Logger
}

// NewLoader creates a dataset loader.
func NewLoader(paths *config.Paths, logger *slog.Logger) *Loader {
	return &Loader{
		paths:  paths,
		logger: logger.With(slog.String("component", "dataset_loader")),
	}
}

// Load parses and joins one administrative level.
func (l *Loader) Load(ctx context.Context, level domain.Level) (*domain.Dataset, error) {
	start := time.Now()

	units, err := loadBoundaries(l.paths.GeoJSONFor(level), level)
	if err != nil {
		return nil, fmt.Errorf("load %s boundaries: %w", level, err)
	}

	observations, csvUnits, dropped, err := l.loadObservations(ctx, level, units)
	if err != nil {
		return nil, fmt.Errorf("load %s observations: %w", level, err)
	}

	// Attribute rows without a boundary still chart; they only miss the map.
	units = append(units, csvUnits...)

	ds := &domain.Dataset{
		Level:        level,
		Units:        units,
		Observations: observations,
		DroppedRows:  dropped,
		LoadedAt:     time.Now(),
	}
	ds.BuildIndex()

	l.logger.InfoContext(ctx, "dataset loaded",
		slog.String("level", level.String()),
		slog.Int("units", len(units)),
		slog.Int("observations", len(observations)),
		slog.Int("unmatched_rows", dropped),
		slog.Duration("duration", time.Since(start)),
	)

	return ds, nil
}

// LoadAll loads both administrative levels concurrently.
func (l *Loader) LoadAll(ctx context.Context) (map[domain.Level]*domain.Dataset, error) {
	var district, sector *domain.Dataset

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		district, err = l.Load(gctx, domain.LevelDistrict)
		return err
	})
	g.Go(func() error {
		var err error
		sector, err = l.Load(gctx, domain.LevelSector)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return map[domain.Level]*domain.Dataset{
		domain.LevelDistrict: district,
		domain.LevelSector:   sector,
	}, nil
}

// loadObservations parses the attribute CSV for a level and joins rows to
// the boundary units. Returns the observations, units synthesized for rows
// with no matching boundary, and the count of such unmatched rows.
func (l *Loader) loadObservations(ctx context.Context, level domain.Level, boundaryUnits []domain.AdministrativeUnit) ([]domain.Observation, []domain.AdministrativeUnit, int, error) {
	path := l.paths.CSVFor(level)
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, 0, apperrors.NewStorageError("open attribute file", err).WithContext("path", path)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, nil, 0, apperrors.NewParsingError("read attribute header", err).WithContext("path", path)
	}
	cols := headerIndex(header)

	required := []string{"Date", "District", "Population"}
	if level == domain.LevelSector {
		required = append(required, "Sector")
	}
	for _, name := range required {
		if _, ok := cols[normalizeHeader(name)]; !ok {
			return nil, nil, 0, apperrors.NewParsingError(fmt.Sprintf("missing required column %q", name), nil).WithContext("path", path)
		}
	}

	known := make(map[string]struct{}, len(boundaryUnits))
	for _, u := range boundaryUnits {
		known[u.Key] = struct{}{}
	}

	metrics := domain.MetricsFor(level)
	var (
		observations []domain.Observation
		extraUnits   []domain.AdministrativeUnit
		unmatched    int
		synthesized  = make(map[string]struct{})
		line         = 1
	)

	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, 0, err
		}

		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, 0, apperrors.NewParsingError(fmt.Sprintf("malformed record at line %d", line+1), err).WithContext("path", path)
		}
		line++

		field := func(name string) string {
			i, ok := cols[normalizeHeader(name)]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		date, err := parseDate(field("Date"))
		if err != nil {
			l.logger.WarnContext(ctx, "skipping row with invalid date",
				slog.String("file", path),
				slog.Int("line", line),
				slog.String("value", field("Date")),
			)
			continue
		}

		district := domain.NormalizeName(field("District"))
		if district == "" {
			l.logger.WarnContext(ctx, "skipping row with empty district",
				slog.String("file", path),
				slog.Int("line", line),
			)
			continue
		}

		var unit domain.AdministrativeUnit
		switch level {
		case domain.LevelSector:
			sector := domain.NormalizeName(field("Sector"))
			if sector == "" {
				l.logger.WarnContext(ctx, "skipping row with empty sector",
					slog.String("file", path),
					slog.Int("line", line),
				)
				continue
			}
			unit = domain.AdministrativeUnit{
				Key:         domain.SectorKey(sector, district),
				Name:        sector,
				District:    district,
				DisplayName: domain.SectorDisplayName(sector, district),
			}
		default:
			unit = domain.AdministrativeUnit{
				Key:         district,
				Name:        district,
				DisplayName: district,
			}
		}

		if _, ok := known[unit.Key]; !ok {
			unmatched++
			if _, ok := synthesized[unit.Key]; !ok {
				synthesized[unit.Key] = struct{}{}
				extraUnits = append(extraUnits, unit)
			}
		}

		values := make(map[string]float64, len(metrics))
		for _, m := range metrics {
			values[m.ID] = parseNumber(field(m.Column))
		}

		observations = append(observations, domain.Observation{
			UnitKey:    unit.Key,
			Year:       date.Year(),
			Month:      date.Month(),
			Population: parseNumber(field("Population")),
			Values:     values,
		})
	}

	sort.SliceStable(observations, func(i, j int) bool {
		if observations[i].Period() != observations[j].Period() {
			return observations[i].Period() < observations[j].Period()
		}
		return observations[i].UnitKey < observations[j].UnitKey
	})

	return observations, extraUnits, unmatched, nil
}

// headerIndex maps normalized column names to their positions.
func headerIndex(header []string) map[string]int {
	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[normalizeHeader(name)] = i
	}
	return cols
}

func normalizeHeader(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(strings.TrimSpace(name)), " "))
}

var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05Z",
	"1/2/2006",
	"01/02/2006",
	"2006-01",
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// parseNumber coerces a CSV cell to a float. Malformed or empty cells become
// zero, mirroring the upstream cleaning step.
func parseNumber(s string) float64 {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
