package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mobility-ingest/internal/derive"
	"mobility-ingest/internal/logger"
	"mobility-ingest/internal/metrics"
	"mobility-ingest/internal/watermark"
)

var deriveFlags struct {
	routes       bool
	availability bool
}

var deriveCmd = &cobra.Command{
	Use:   "derive",
	Short: "Run watermark-gated derivation passes",
	Long: `Run one pass of the selected derivation jobs over the records that
arrived since each job's watermark. Jobs are registered on first use and each
pass advances its watermark exactly once.`,
	RunE: runDerive,
}

func init() {
	f := deriveCmd.Flags()
	f.BoolVar(&deriveFlags.routes, "routes", false, "derive per-trip route aggregates")
	f.BoolVar(&deriveFlags.availability, "availability", false, "derive availability and occupancy windows")
}

func runDerive(cmd *cobra.Command, args []string) error {
	if !deriveFlags.routes && !deriveFlags.availability {
		return fmt.Errorf("nothing to derive: pass --routes and/or --availability")
	}

	application, err := newApp()
	if err != nil {
		return err
	}
	log := logger.Component(application.log, "derive")

	ctx := cmd.Context()
	m := metrics.NewDefault()
	wm := watermark.NewController(application.database, log)

	run := func(job string, register func() error, pass func() (watermark.Window, derive.Stats, error)) error {
		if err := register(); err != nil {
			return fmt.Errorf("register %s: %w", job, err)
		}
		win, stats, err := pass()
		m.DerivationRuns.WithLabelValues(job).Inc()
		if err != nil {
			m.DerivationErrors.WithLabelValues(job).Inc()
			log.Error().Err(err).Str("job", job).Msg("derivation pass failed")
			return err
		}
		m.DerivedRows.WithLabelValues(job).Add(float64(stats.DerivedRows))
		log.Info().
			Str("job", job).
			Int64("window_start", win.Start).
			Int64("window_end", win.End).
			Bool("empty", win.Empty()).
			Int("source_rows", stats.SourceRows).
			Int("derived_rows", stats.DerivedRows).
			Msg("derivation pass complete")
		return nil
	}

	if deriveFlags.routes {
		classifier, err := application.classifier()
		if err != nil {
			return err
		}
		routes := derive.NewRouteAggregator(
			application.database, wm, classifier, application.cfg.Derive.MinRoutePoints, log)
		if err := run(derive.RouteJob,
			func() error { return routes.Register(ctx) },
			func() (watermark.Window, derive.Stats, error) { return routes.Run(ctx) },
		); err != nil {
			return err
		}
	}

	if deriveFlags.availability {
		availability := derive.NewAvailabilityDeriver(application.database, wm, log)
		if err := run(derive.AvailabilityJob,
			func() error { return availability.Register(ctx) },
			func() (watermark.Window, derive.Stats, error) { return availability.Run(ctx) },
		); err != nil {
			return err
		}
	}

	return nil
}
