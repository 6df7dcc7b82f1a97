package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mobility-ingest/internal/derive"
	httpapi "mobility-ingest/internal/http"
	"mobility-ingest/internal/logger"
	"mobility-ingest/internal/metrics"
	"mobility-ingest/internal/watermark"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the operational HTTP API",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	application, err := newApp()
	if err != nil {
		return err
	}
	log := logger.Component(application.log, "http")

	classifier, err := application.classifier()
	if err != nil {
		return err
	}

	m := metrics.NewDefault()
	wm := watermark.NewController(application.database, log)
	routes := derive.NewRouteAggregator(
		application.database, wm, classifier, application.cfg.Derive.MinRoutePoints, log)
	availability := derive.NewAvailabilityDeriver(application.database, wm, log)

	ctx := cmd.Context()
	if err := routes.Register(ctx); err != nil {
		return err
	}
	if err := availability.Register(ctx); err != nil {
		return err
	}

	handler := httpapi.NewHandler(application.database, wm, routes, availability, m, log)
	router := httpapi.NewRouter(handler, application.cfg.Environment)

	addr := fmt.Sprintf("%s:%d", application.cfg.HTTP.Host, application.cfg.HTTP.Port)
	log.Info().Str("addr", addr).Msg("starting http server")
	return router.Run(addr)
}
