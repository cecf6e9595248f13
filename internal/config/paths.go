package config

import (
	"fmt"
	"os"
	"path/filepath"

	"malariawatch/pkg/contracts/domain"
)

// Paths resolves every file location the application touches, relative to
// the working directory unless configured absolute.
type Paths struct {
	DataDir    string
	ExportsDir string
	LogsDir    string

	DistrictCSV     string
	SectorCSV       string
	DistrictGeoJSON string
	SectorGeoJSON   string
}

// NewPaths builds the resolved path set from configuration.
func NewPaths(cfg *Config) *Paths {
	dataDir := cfg.Data.Dir
	return &Paths{
		DataDir:         dataDir,
		ExportsDir:      cfg.Data.ExportsDir,
		LogsDir:         filepath.Dir(cfg.Logging.FilePath),
		DistrictCSV:     filepath.Join(dataDir, cfg.Data.DistrictCSV),
		SectorCSV:       filepath.Join(dataDir, cfg.Data.SectorCSV),
		DistrictGeoJSON: filepath.Join(dataDir, cfg.Data.DistrictGeoJSON),
		SectorGeoJSON:   filepath.Join(dataDir, cfg.Data.SectorGeoJSON),
	}
}

// CSVFor returns the attribute file path for an administrative level.
func (p *Paths) CSVFor(level domain.Level) string {
	if level == domain.LevelSector {
		return p.SectorCSV
	}
	return p.DistrictCSV
}

// GeoJSONFor returns the boundary file path for an administrative level.
func (p *Paths) GeoJSONFor(level domain.Level) string {
	if level == domain.LevelSector {
		return p.SectorGeoJSON
	}
	return p.DistrictGeoJSON
}

// EnsureDirectories creates the writable directories the application needs.
// The data directory is read-only input and is checked, not created.
func (p *Paths) EnsureDirectories() error {
	for _, dir := range []string{p.ExportsDir, p.LogsDir} {
		if dir == "" || dir == "." {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if _, err := os.Stat(p.DataDir); err != nil {
		return fmt.Errorf("data directory %s not accessible: %w", p.DataDir, err)
	}
	return nil
}

// FileExists reports whether a path exists and is a regular file.
func FileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
