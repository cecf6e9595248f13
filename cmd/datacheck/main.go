// Command datacheck validates the configured data sources without starting
// the server. It loads both administrative levels and prints a short report,
// exiting non-zero when either level fails to load.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"malariawatch/internal/config"
	"malariawatch/internal/dataset"
	"malariawatch/internal/infrastructure"
	"malariawatch/pkg/contracts/domain"
)

func main() {
	timeout := flag.Duration("timeout", 2*time.Minute, "maximum time to spend loading")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	// Keep the report readable: route structured logs to stderr at warn level.
	cfg.Logging.Level = "warn"
	cfg.Logging.Output = "stderr"

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger error: %v\n", err)
		os.Exit(1)
	}

	paths := config.NewPaths(cfg)
	loader := dataset.NewLoader(paths, logger)

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	datasets, err := loader.LoadAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load failed: %v\n", err)
		os.Exit(1)
	}

	for _, level := range []domain.Level{domain.LevelDistrict, domain.LevelSector} {
		ds := datasets[level]
		report(ds)
	}
}

func report(ds *domain.Dataset) {
	withGeometry := 0
	for _, u := range ds.Units {
		if u.HasGeometry() {
			withGeometry++
		}
	}

	fmt.Printf("%s level\n", ds.Level)
	fmt.Printf("  units:        %d (%d with boundaries)\n", len(ds.Units), withGeometry)
	fmt.Printf("  observations: %d\n", len(ds.Observations))
	fmt.Printf("  years:        %v\n", ds.Years())
	if ds.DroppedRows > 0 {
		fmt.Printf("  unmatched:    %d rows have no boundary feature\n", ds.DroppedRows)
	}
	fmt.Println()
}
