package loader

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mobility-ingest/internal/model"
)

// Loader is the only writer of the raw log tables. Loading is idempotent with
// respect to the natural key: replaying the same window never creates
// duplicate logical records.
type Loader struct {
	db  *gorm.DB
	log zerolog.Logger
}

func New(db *gorm.DB, log zerolog.Logger) *Loader {
	return &Loader{db: db, log: log}
}

// Options control one load call.
//
// StageFirst <= 0 appends directly to the target with collisions ignored.
// StageFirst >= 1 writes to an isolated staging table first and merges into
// the target; larger values add naming entropy for concurrent loaders that
// might otherwise collide on a staging name.
type Options struct {
	NaturalKey    []string
	StageFirst    int
	ConflictRules []ConflictRule
}

// Result reports what one load call did.
type Result struct {
	Received int
	Unique   int
	Loaded   int64
}

const batchSize = 500

var statusChangeColumns = []string{
	"provider_id", "provider_name", "device_id", "vehicle_id", "vehicle_type",
	"propulsion_types", "event_type", "event_type_reason", "event_time",
	"event_location", "battery_pct", "associated_trip", "recorded_at",
}

var tripColumns = []string{
	"provider_id", "provider_name", "device_id", "vehicle_id", "vehicle_type",
	"propulsion_types", "trip_id", "trip_duration", "trip_distance", "route",
	"accuracy_m", "start_time", "end_time", "parking_verification_url",
	"standard_cost", "actual_cost", "recorded_at",
}

// LoadStatusChanges deduplicates the batch on the natural key (last seen
// wins) and loads it into the status-change log as one atomic batch.
func (l *Loader) LoadStatusChanges(ctx context.Context, recs []model.StatusChange, opts Options) (Result, error) {
	res := Result{Received: len(recs)}
	if len(recs) == 0 {
		return res, nil
	}

	key := opts.NaturalKey
	if len(key) == 0 {
		key = model.StatusChangeNaturalKey
	}
	if err := checkColumns(key, statusChangeColumns); err != nil {
		return res, err
	}
	if err := checkRules(opts.ConflictRules, statusChangeColumns); err != nil {
		return res, err
	}

	deduped := dedupe(recs, func(rec model.StatusChange) string {
		return compositeKey(statusChangeValue(rec), key)
	})
	res.Unique = len(deduped)

	loaded, err := load(ctx, l.db, "status_changes", statusChangeColumns, deduped, key, opts)
	if err != nil {
		return res, err
	}
	res.Loaded = loaded

	l.log.Info().
		Int("received", res.Received).
		Int("unique", res.Unique).
		Int64("loaded", res.Loaded).
		Msg("status changes loaded")
	return res, nil
}

// LoadTrips deduplicates the batch on the natural key (last seen wins) and
// loads it into the trip log as one atomic batch.
func (l *Loader) LoadTrips(ctx context.Context, recs []model.Trip, opts Options) (Result, error) {
	res := Result{Received: len(recs)}
	if len(recs) == 0 {
		return res, nil
	}

	key := opts.NaturalKey
	if len(key) == 0 {
		key = model.TripNaturalKey
	}
	if err := checkColumns(key, tripColumns); err != nil {
		return res, err
	}
	if err := checkRules(opts.ConflictRules, tripColumns); err != nil {
		return res, err
	}

	deduped := dedupe(recs, func(rec model.Trip) string {
		return compositeKey(tripValue(rec), key)
	})
	res.Unique = len(deduped)

	loaded, err := load(ctx, l.db, "trips", tripColumns, deduped, key, opts)
	if err != nil {
		return res, err
	}
	res.Loaded = loaded

	l.log.Info().
		Int("received", res.Received).
		Int("unique", res.Unique).
		Int64("loaded", res.Loaded).
		Msg("trips loaded")
	return res, nil
}

func load[T any](ctx context.Context, db *gorm.DB, table string, columns []string, recs []T, key []string, opts Options) (int64, error) {
	if opts.StageFirst <= 0 {
		return loadDirect(ctx, db, recs, key, opts.ConflictRules)
	}
	return loadStaged(ctx, db, table, columns, recs, key, opts)
}

// loadDirect appends straight to the target. Natural-key collisions are
// ignored, or overwritten column-wise when conflict rules are set.
func loadDirect[T any](ctx context.Context, db *gorm.DB, recs []T, key []string, rules []ConflictRule) (int64, error) {
	tx := db.WithContext(ctx).Clauses(onConflictClause(key, rules)).CreateInBatches(recs, batchSize)
	if tx.Error != nil {
		return 0, fmt.Errorf("direct load: %w", tx.Error)
	}
	return tx.RowsAffected, nil
}

// loadStaged writes the batch into a freshly created staging table, merges it
// into the target with ON CONFLICT handling, and drops the stage. The whole
// protocol runs in one transaction, so an interrupted load commits nothing.
func loadStaged[T any](ctx context.Context, db *gorm.DB, table string, columns []string, recs []T, key []string, opts Options) (int64, error) {
	stage := stageName(table, opts.StageFirst)
	var loaded int64

	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec(fmt.Sprintf("CREATE TABLE %s (LIKE %s INCLUDING DEFAULTS)", stage, table)).Error; err != nil {
			return fmt.Errorf("create stage: %w", err)
		}
		if err := tx.Table(stage).CreateInBatches(recs, batchSize).Error; err != nil {
			return fmt.Errorf("fill stage: %w", err)
		}

		merge := tx.Exec(mergeSQL(table, stage, columns, key, opts.ConflictRules))
		if merge.Error != nil {
			return fmt.Errorf("merge stage: %w", merge.Error)
		}
		loaded = merge.RowsAffected

		if err := tx.Exec("DROP TABLE " + stage).Error; err != nil {
			return fmt.Errorf("drop stage: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return loaded, nil
}

// mergeSQL builds the staged INSERT ... SELECT. The sequence column is left
// out so merged rows take fresh positions in the target's sequence.
func mergeSQL(table, stage string, columns, key []string, rules []ConflictRule) string {
	cols := strings.Join(columns, ", ")
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) SELECT %s FROM %s", table, cols, cols, stage)
	fmt.Fprintf(&b, " ON CONFLICT (%s)", strings.Join(key, ", "))
	if len(rules) == 0 {
		b.WriteString(" DO NOTHING")
		return b.String()
	}
	assignments := make([]string, len(rules))
	for i, r := range rules {
		assignments[i] = fmt.Sprintf("%s = EXCLUDED.%s", r.Column, r.Column)
	}
	fmt.Fprintf(&b, " DO UPDATE SET %s", strings.Join(assignments, ", "))
	return b.String()
}

func onConflictClause(key []string, rules []ConflictRule) clause.OnConflict {
	cols := make([]clause.Column, len(key))
	for i, k := range key {
		cols[i] = clause.Column{Name: k}
	}
	if len(rules) == 0 {
		return clause.OnConflict{Columns: cols, DoNothing: true}
	}
	update := make([]string, len(rules))
	for i, r := range rules {
		update[i] = r.Column
	}
	return clause.OnConflict{Columns: cols, DoUpdates: clause.AssignmentColumns(update)}
}

// dedupe collapses records sharing a natural key to one, last seen wins,
// preserving first-seen order.
func dedupe[T any](recs []T, keyOf func(T) string) []T {
	out := make([]T, 0, len(recs))
	seen := make(map[string]int, len(recs))
	for _, rec := range recs {
		k := keyOf(rec)
		if i, ok := seen[k]; ok {
			out[i] = rec
			continue
		}
		seen[k] = len(out)
		out = append(out, rec)
	}
	return out
}

func compositeKey(values map[string]any, cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("%v", values[c])
	}
	return strings.Join(parts, "\x1f")
}

func statusChangeValue(rec model.StatusChange) map[string]any {
	return map[string]any{
		"provider_id":       rec.ProviderID,
		"provider_name":     rec.ProviderName,
		"device_id":         rec.DeviceID,
		"vehicle_id":        rec.VehicleID,
		"vehicle_type":      rec.VehicleType,
		"propulsion_types":  strings.Join(rec.PropulsionTypes, ","),
		"event_type":        rec.EventType,
		"event_type_reason": rec.EventTypeReason,
		"event_time":        rec.EventTime.UTC(),
		"event_location":    string(rec.EventLocation),
		"battery_pct":       deref(rec.BatteryPct),
		"associated_trip":   deref(rec.AssociatedTrip),
	}
}

func tripValue(rec model.Trip) map[string]any {
	return map[string]any{
		"provider_id":              rec.ProviderID,
		"provider_name":            rec.ProviderName,
		"device_id":                rec.DeviceID,
		"vehicle_id":               rec.VehicleID,
		"vehicle_type":             rec.VehicleType,
		"propulsion_types":         strings.Join(rec.PropulsionTypes, ","),
		"trip_id":                  rec.TripID,
		"trip_duration":            rec.TripDuration,
		"trip_distance":            rec.TripDistance,
		"route":                    string(rec.Route),
		"accuracy_m":               deref(rec.AccuracyM),
		"start_time":               rec.StartTime.UTC(),
		"end_time":                 rec.EndTime.UTC(),
		"parking_verification_url": deref(rec.ParkingVerificationURL),
		"standard_cost":            deref(rec.StandardCost),
		"actual_cost":              deref(rec.ActualCost),
	}
}

func deref[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func checkColumns(cols, known []string) error {
	for _, c := range cols {
		found := false
		for _, k := range known {
			if c == k {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("unknown column %q", c)
		}
	}
	return nil
}

func checkRules(rules []ConflictRule, known []string) error {
	cols := make([]string, len(rules))
	for i, r := range rules {
		cols[i] = r.Column
	}
	return checkColumns(cols, known)
}

// stageName generates an isolated staging table name. Entropy above 1 widens
// the random suffix for operators running concurrent loads of the same table.
func stageName(table string, entropy int) string {
	n := 4
	if entropy > 1 {
		n += 2 * (entropy - 1)
	}
	if n > 16 {
		n = 16
	}
	buf := make([]byte, n)
	_, _ = rand.Read(buf)
	return fmt.Sprintf("stage_%s_%s", table, hex.EncodeToString(buf))
}
