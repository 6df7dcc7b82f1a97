package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"mobility-ingest/internal/loader"
	"mobility-ingest/internal/logger"
	"mobility-ingest/internal/metrics"
	"mobility-ingest/internal/provider"
	"mobility-ingest/internal/service"
	"mobility-ingest/internal/validate"
)

var ingestFlags struct {
	statusChanges    bool
	trips            bool
	startTime        string
	endTime          string
	durationSec      int64
	noPaging         bool
	rateLimitSec     int
	noValidate       bool
	noLoad           bool
	sources          []string
	deviceID         string
	vehicleID        string
	stageFirst       int
	columns          []string
	onConflictUpdate []string
}

// bareConflictUpdate marks --on-conflict-update given without a value, which
// selects the per-kind default update column set.
const bareConflictUpdate = "\x00default"

var ingestCmd = &cobra.Command{
	Use:   "ingest <provider>",
	Short: "Acquire, validate, and load provider records",
	Long: `Acquire status changes and/or trips for one provider, validate them,
and append the survivors to the raw logs. Records may come from the provider
API (bounded by --start-time/--end-time) or from local payload files
(--source). Giving start, end, and --duration together runs a backfill of
overlapping windows.`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	f := ingestCmd.Flags()
	f.BoolVar(&ingestFlags.statusChanges, "status-changes", false, "ingest the status_changes feed")
	f.BoolVar(&ingestFlags.trips, "trips", false, "ingest the trips feed")
	f.StringVar(&ingestFlags.startTime, "start-time", "", "window start (unix seconds or ISO 8601)")
	f.StringVar(&ingestFlags.endTime, "end-time", "", "window end (unix seconds or ISO 8601)")
	f.Int64Var(&ingestFlags.durationSec, "duration", 0, "backfill window size in seconds")
	f.BoolVar(&ingestFlags.noPaging, "no-paging", false, "fetch only the first page of each query")
	f.IntVar(&ingestFlags.rateLimitSec, "rate-limit", 0, "seconds to sleep between page requests and backfill windows")
	f.BoolVar(&ingestFlags.noValidate, "no-validate", false, "skip schema validation")
	f.BoolVar(&ingestFlags.noLoad, "no-load", false, "acquire and validate but do not write to the database")
	f.StringArrayVar(&ingestFlags.sources, "source", nil, "payload file or directory to read instead of the provider API (repeatable)")
	f.StringVar(&ingestFlags.deviceID, "device-id", "", "filter trips to one device")
	f.StringVar(&ingestFlags.vehicleID, "vehicle-id", "", "filter trips to one vehicle")
	f.IntVar(&ingestFlags.stageFirst, "stage-first", 0, "load through a staging table; higher values add staging-name entropy")
	f.StringSliceVar(&ingestFlags.columns, "columns", nil, "override the natural-key column list")
	f.StringArrayVar(&ingestFlags.onConflictUpdate, "on-conflict-update", nil, "update columns on natural-key conflict; value form 'column: EXCLUDED.column'")
	f.Lookup("on-conflict-update").NoOptDefVal = bareConflictUpdate
}

func runIngest(cmd *cobra.Command, args []string) error {
	if !ingestFlags.statusChanges && !ingestFlags.trips {
		return fmt.Errorf("nothing to ingest: pass --status-changes and/or --trips")
	}

	application, err := newApp()
	if err != nil {
		return err
	}
	log := logger.Component(application.log, "ingest")

	providerName := args[0]

	var kinds []provider.RecordKind
	if ingestFlags.statusChanges {
		kinds = append(kinds, provider.StatusChanges)
	}
	if ingestFlags.trips {
		kinds = append(kinds, provider.Trips)
	}

	opts := service.RunOptions{
		Provider:     providerName,
		Kinds:        kinds,
		StartTime:    ingestFlags.startTime,
		EndTime:      ingestFlags.endTime,
		DurationSec:  ingestFlags.durationSec,
		NoPaging:     ingestFlags.noPaging,
		RateLimitSec: ingestFlags.rateLimitSec,
		NoValidate:   ingestFlags.noValidate,
		NoLoad:       ingestFlags.noLoad,
		Sources:      ingestFlags.sources,
		DeviceID:     ingestFlags.deviceID,
		VehicleID:    ingestFlags.vehicleID,
		StageFirst:   ingestFlags.stageFirst,
		Columns:      ingestFlags.columns,
	}

	var rulePairs []string
	for _, v := range ingestFlags.onConflictUpdate {
		if v == bareConflictUpdate {
			opts.DefaultConflictUpdate = true
			continue
		}
		rulePairs = append(rulePairs, v)
	}
	if opts.ConflictRules, err = loader.ParseConflictRules(rulePairs); err != nil {
		return err
	}

	m := metrics.NewDefault()
	ingest := service.NewIngestService(
		provider.NewClient(application.cfg.Provider.Endpoint, application.cfg.Provider.Token, log),
		provider.NewFileSource(log),
		validate.NewSchemaValidator(),
		loader.New(application.database, log),
		m,
		log,
	)

	if err := ingest.Run(cmd.Context(), opts); err != nil {
		log.Error().Err(err).Str("provider", providerName).Msg("ingestion failed")
		return err
	}
	log.Info().Str("provider", providerName).Msg("ingestion complete")
	return nil
}
