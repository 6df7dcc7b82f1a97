package provider

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"mobility-ingest/internal/model"
)

type statusChangeRecord struct {
	ProviderID      uuid.UUID       `json:"provider_id"`
	ProviderName    string          `json:"provider_name"`
	DeviceID        uuid.UUID       `json:"device_id"`
	VehicleID       string          `json:"vehicle_id"`
	VehicleType     string          `json:"vehicle_type"`
	PropulsionType  []string        `json:"propulsion_type"`
	EventType       string          `json:"event_type"`
	EventTypeReason string          `json:"event_type_reason"`
	EventTime       int64           `json:"event_time"`
	EventLocation   json.RawMessage `json:"event_location"`
	BatteryPct      *float64        `json:"battery_pct"`
	AssociatedTrip  *uuid.UUID      `json:"associated_trip"`
}

type tripRecord struct {
	ProviderID             uuid.UUID       `json:"provider_id"`
	ProviderName           string          `json:"provider_name"`
	DeviceID               uuid.UUID       `json:"device_id"`
	VehicleID              string          `json:"vehicle_id"`
	VehicleType            string          `json:"vehicle_type"`
	PropulsionType         []string        `json:"propulsion_type"`
	TripID                 uuid.UUID       `json:"trip_id"`
	TripDuration           int64           `json:"trip_duration"`
	TripDistance           int64           `json:"trip_distance"`
	Route                  json.RawMessage `json:"route"`
	Accuracy               *int64          `json:"accuracy"`
	StartTime              int64           `json:"start_time"`
	EndTime                int64           `json:"end_time"`
	ParkingVerificationURL *string         `json:"parking_verification_url"`
	StandardCost           *int64          `json:"standard_cost"`
	ActualCost             *int64          `json:"actual_cost"`
}

// NormalizeStatusChanges decodes raw status-change records from the given
// pages into the canonical model shape. A record that fails to decode aborts
// normalization; malformed pages are a fetch-level concern, not a
// validation-level one.
func NormalizeStatusChanges(pages []Page) ([]model.StatusChange, error) {
	var out []model.StatusChange
	for pi, page := range pages {
		for ri, raw := range page.Records {
			var rec statusChangeRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return nil, fmt.Errorf("page %d record %d: %w", pi+1, ri+1, err)
			}
			out = append(out, model.StatusChange{
				ProviderID:      rec.ProviderID,
				ProviderName:    rec.ProviderName,
				DeviceID:        rec.DeviceID,
				VehicleID:       rec.VehicleID,
				VehicleType:     model.VehicleType(rec.VehicleType),
				PropulsionTypes: rec.PropulsionType,
				EventType:       model.EventType(rec.EventType),
				EventTypeReason: model.EventTypeReason(rec.EventTypeReason),
				EventTime:       FromEpoch(rec.EventTime),
				EventLocation:   datatypes.JSON(rec.EventLocation),
				BatteryPct:      rec.BatteryPct,
				AssociatedTrip:  rec.AssociatedTrip,
			})
		}
	}
	return out, nil
}

// NormalizeTrips decodes raw trip records from the given pages into the
// canonical model shape.
func NormalizeTrips(pages []Page) ([]model.Trip, error) {
	var out []model.Trip
	for pi, page := range pages {
		for ri, raw := range page.Records {
			var rec tripRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return nil, fmt.Errorf("page %d record %d: %w", pi+1, ri+1, err)
			}
			out = append(out, model.Trip{
				ProviderID:             rec.ProviderID,
				ProviderName:           rec.ProviderName,
				DeviceID:               rec.DeviceID,
				VehicleID:              rec.VehicleID,
				VehicleType:            model.VehicleType(rec.VehicleType),
				PropulsionTypes:        rec.PropulsionType,
				TripID:                 rec.TripID,
				TripDuration:           rec.TripDuration,
				TripDistance:           rec.TripDistance,
				Route:                  datatypes.JSON(rec.Route),
				AccuracyM:              rec.Accuracy,
				StartTime:              FromEpoch(rec.StartTime),
				EndTime:                FromEpoch(rec.EndTime),
				ParkingVerificationURL: rec.ParkingVerificationURL,
				StandardCost:           rec.StandardCost,
				ActualCost:             rec.ActualCost,
			})
		}
	}
	return out, nil
}

// FromEpoch converts a provider timestamp to UTC. Feeds are inconsistent
// about units; values too large for seconds are read as milliseconds.
func FromEpoch(v int64) time.Time {
	// 1e11 seconds is year 5138; anything larger must be milliseconds
	if v > 1e11 {
		return time.UnixMilli(v).UTC()
	}
	return time.Unix(v, 0).UTC()
}
