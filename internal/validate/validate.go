package validate

import (
	"encoding/json"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"mobility-ingest/internal/model"
)

// Validator is the injected pass/fail gate applied to records before loading.
// The schema ruleset itself lives outside this core; implementations only
// answer valid or not.
type Validator interface {
	StatusChange(*model.StatusChange) error
	Trip(*model.Trip) error
}

// Report summarizes a validation pass over one batch.
type Report struct {
	Seen   int
	Passed int
	Failed int
}

// SchemaValidator is the default gate: struct-tag validation plus the shape
// checks tags cannot express (GeoJSON geometry, trip time ordering).
type SchemaValidator struct {
	v *validator.Validate
}

func NewSchemaValidator() *SchemaValidator {
	return &SchemaValidator{v: validator.New()}
}

func (s *SchemaValidator) StatusChange(rec *model.StatusChange) error {
	if err := s.v.Struct(rec); err != nil {
		return err
	}
	if err := checkPointFeature(rec.EventLocation); err != nil {
		return fmt.Errorf("event_location: %w", err)
	}
	return nil
}

func (s *SchemaValidator) Trip(rec *model.Trip) error {
	if err := s.v.Struct(rec); err != nil {
		return err
	}
	if !rec.Valid() {
		return fmt.Errorf("trip %s: end_time must follow start_time with positive distance and duration", rec.TripID)
	}
	if len(rec.Route) == 0 {
		return fmt.Errorf("trip %s: route is required", rec.TripID)
	}
	if err := checkRouteFeatures(rec.Route); err != nil {
		return fmt.Errorf("trip %s: route: %w", rec.TripID, err)
	}
	return nil
}

// Disabled passes every record; the --no-validate path.
type Disabled struct{}

func (Disabled) StatusChange(*model.StatusChange) error { return nil }
func (Disabled) Trip(*model.Trip) error                 { return nil }

// FilterStatusChanges returns the records that pass the gate. Rejected records
// are logged with enough context to re-run manually, never silently dropped.
func FilterStatusChanges(v Validator, recs []model.StatusChange, log zerolog.Logger) ([]model.StatusChange, Report) {
	rep := Report{Seen: len(recs)}
	valid := make([]model.StatusChange, 0, len(recs))
	for i := range recs {
		if err := v.StatusChange(&recs[i]); err != nil {
			rep.Failed++
			log.Warn().
				Err(err).
				Str("provider", recs[i].ProviderName).
				Str("device_id", recs[i].DeviceID.String()).
				Time("event_time", recs[i].EventTime).
				Msg("status change rejected")
			continue
		}
		rep.Passed++
		valid = append(valid, recs[i])
	}
	return valid, rep
}

// FilterTrips returns the trips that pass the gate.
func FilterTrips(v Validator, recs []model.Trip, log zerolog.Logger) ([]model.Trip, Report) {
	rep := Report{Seen: len(recs)}
	valid := make([]model.Trip, 0, len(recs))
	for i := range recs {
		if err := v.Trip(&recs[i]); err != nil {
			rep.Failed++
			log.Warn().
				Err(err).
				Str("provider", recs[i].ProviderName).
				Str("trip_id", recs[i].TripID.String()).
				Msg("trip rejected")
			continue
		}
		rep.Passed++
		valid = append(valid, recs[i])
	}
	return valid, rep
}

type pointFeature struct {
	Type     string `json:"type"`
	Geometry struct {
		Type        string    `json:"type"`
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
}

// checkRouteFeatures rejects routes whose features the route aggregator could
// not consume: every feature must be a Point with in-range coordinates and an
// embedded timestamp.
func checkRouteFeatures(data []byte) error {
	var rc struct {
		Features []struct {
			Geometry struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties struct {
				Timestamp int64 `json:"timestamp"`
			} `json:"properties"`
		} `json:"features"`
	}
	if err := json.Unmarshal(data, &rc); err != nil {
		return err
	}
	for i, f := range rc.Features {
		if f.Geometry.Type != "Point" || len(f.Geometry.Coordinates) < 2 {
			return fmt.Errorf("feature %d: expected a Point with lon and lat coordinates", i)
		}
		lon, lat := f.Geometry.Coordinates[0], f.Geometry.Coordinates[1]
		if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
			return fmt.Errorf("feature %d: coordinates out of range: %f, %f", i, lon, lat)
		}
		if f.Properties.Timestamp == 0 {
			return fmt.Errorf("feature %d: missing timestamp", i)
		}
	}
	return nil
}

func checkPointFeature(data []byte) error {
	var f pointFeature
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	if f.Type != "Feature" || f.Geometry.Type != "Point" {
		return fmt.Errorf("expected a GeoJSON Point feature")
	}
	if len(f.Geometry.Coordinates) < 2 {
		return fmt.Errorf("point needs lon and lat coordinates")
	}
	lon, lat := f.Geometry.Coordinates[0], f.Geometry.Coordinates[1]
	if lon < -180 || lon > 180 || lat < -90 || lat > 90 {
		return fmt.Errorf("coordinates out of range: %f, %f", lon, lat)
	}
	return nil
}
