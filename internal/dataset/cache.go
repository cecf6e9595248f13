package dataset

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"malariawatch/internal/config"
	"malariawatch/pkg/contracts/domain"
)

// allLoader is the part of Loader the store depends on.
type allLoader interface {
	LoadAll(ctx context.Context) (map[domain.Level]*domain.Dataset, error)
}

// Store holds the loaded datasets for both administrative levels and
// serves them to readers without re-parsing. Reload swaps both levels
// atomically; readers always see a consistent pair.
type Store struct {
	loader allLoader
	paths  *config.Paths
	logger *slog.Logger

	mu       sync.RWMutex
	datasets map[domain.Level]*domain.Dataset
	mtimes   map[string]time.Time
}

// NewStore creates an empty dataset store. Call Reload before serving.
func NewStore(loader allLoader, paths *config.Paths, logger *slog.Logger) *Store {
	return &Store{
		loader: loader,
		paths:  paths,
		logger: logger.With(slog.String("component", "dataset_store")),
	}
}

// Dataset returns the loaded dataset for a level.
func (s *Store) Dataset(level domain.Level) (*domain.Dataset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ds, ok := s.datasets[level]
	if !ok || ds == nil {
		return nil, fmt.Errorf("dataset for level %s not loaded", level)
	}
	return ds, nil
}

// Reload revalidates the source files and re-parses only when something
// changed on disk since the last load. It reports whether a re-parse
// happened; on failure the previously loaded datasets stay in place.
func (s *Store) Reload(ctx context.Context) (bool, error) {
	if s.loaded() && !s.Stale() {
		s.logger.InfoContext(ctx, "source files unchanged, keeping loaded datasets")
		return false, nil
	}

	// Snapshot before parsing: a file rewritten mid-load then stays stale
	// and the next reload picks it up.
	mtimes := s.snapshotMtimes()

	datasets, err := s.loader.LoadAll(ctx)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	s.datasets = datasets
	s.mtimes = mtimes
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "datasets reloaded",
		slog.Int("levels", len(datasets)))
	return true, nil
}

func (s *Store) loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.datasets) > 0
}

// Stale reports whether any source file changed on disk since the last
// Reload. Missing files count as unchanged; the next Reload surfaces the
// real error.
func (s *Store) Stale() bool {
	current := s.snapshotMtimes()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.mtimes == nil {
		return true
	}
	for path, mtime := range current {
		if prev, ok := s.mtimes[path]; !ok || !prev.Equal(mtime) {
			return true
		}
	}
	return false
}

// LoadedAt returns the load time of the oldest dataset, or zero when
// nothing is loaded.
func (s *Store) LoadedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var oldest time.Time
	for _, ds := range s.datasets {
		if oldest.IsZero() || ds.LoadedAt.Before(oldest) {
			oldest = ds.LoadedAt
		}
	}
	return oldest
}

func (s *Store) snapshotMtimes() map[string]time.Time {
	paths := []string{
		s.paths.CSVFor(domain.LevelDistrict),
		s.paths.CSVFor(domain.LevelSector),
		s.paths.GeoJSONFor(domain.LevelDistrict),
		s.paths.GeoJSONFor(domain.LevelSector),
	}
	mtimes := make(map[string]time.Time, len(paths))
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			mtimes[p] = info.ModTime()
		}
	}
	return mtimes
}
