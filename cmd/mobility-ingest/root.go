package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"mobility-ingest/internal/config"
	"mobility-ingest/internal/db"
	"mobility-ingest/internal/geo"
	"mobility-ingest/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:           "mobility-ingest",
	Short:         "Ingest mobility provider data and derive geospatial aggregates",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.AddCommand(ingestCmd, deriveCmd, serveCmd)
}

// app wires the shared process dependencies: config, logging, database.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	database *gorm.DB
}

func newApp() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	log := logger.New(cfg.Environment)

	database, err := db.New(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	return &app{cfg: cfg, log: log, database: database}, nil
}

// classifier loads the configured reference regions. The first region is
// primary.
func (a *app) classifier() (*geo.Classifier, error) {
	if len(a.cfg.Geo.Regions) == 0 {
		return nil, fmt.Errorf("GEO_REGIONS is required for route derivation")
	}
	regions := make([]geo.Region, 0, len(a.cfg.Geo.Regions))
	for _, ref := range a.cfg.Geo.Regions {
		region, err := geo.LoadRegionFile(ref.Name, ref.Path)
		if err != nil {
			return nil, err
		}
		regions = append(regions, region)
	}
	return geo.NewClassifier(regions...), nil
}
