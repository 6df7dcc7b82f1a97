package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// Trip is one row of the append-only trip log. PK (provider_id, trip_id).
// Route holds the raw GeoJSON FeatureCollection as delivered by the provider;
// each feature carries its own embedded timestamp and arrival order is not
// guaranteed.
type Trip struct {
	SequenceID             int64          `gorm:"autoIncrement;not null" json:"sequence_id"`
	ProviderID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"provider_id" validate:"required"`
	ProviderName           string         `gorm:"type:varchar(255);not null" json:"provider_name" validate:"required"`
	DeviceID               uuid.UUID      `gorm:"type:uuid;not null" json:"device_id" validate:"required"`
	VehicleID              string         `gorm:"type:varchar(255);not null" json:"vehicle_id" validate:"required"`
	VehicleType            VehicleType    `gorm:"type:vehicle_type;not null" json:"vehicle_type" validate:"required,oneof=bicycle car scooter"`
	PropulsionTypes        pq.StringArray `gorm:"type:text[]" json:"propulsion_type" validate:"min=1"`
	TripID                 uuid.UUID      `gorm:"type:uuid;primaryKey" json:"trip_id" validate:"required"`
	TripDuration           int64          `gorm:"not null" json:"trip_duration" validate:"required"`
	TripDistance           int64          `gorm:"not null" json:"trip_distance" validate:"required"`
	Route                  datatypes.JSON `gorm:"type:jsonb" json:"route" validate:"required"`
	AccuracyM              *int64         `json:"accuracy"`
	StartTime              time.Time      `gorm:"not null" json:"start_time" validate:"required"`
	EndTime                time.Time      `gorm:"not null" json:"end_time" validate:"required"`
	ParkingVerificationURL *string        `gorm:"type:text" json:"parking_verification_url"`
	StandardCost           *int64         `json:"standard_cost"`
	ActualCost             *int64         `json:"actual_cost"`
	RecordedAt             time.Time      `gorm:"autoCreateTime" json:"recorded_at"`
}

func (Trip) TableName() string {
	return "trips"
}

// Valid reports whether the trip satisfies the invariant enforced before
// downstream consumption: end after start, positive distance and duration.
func (t *Trip) Valid() bool {
	return t.EndTime.After(t.StartTime) && t.TripDistance > 0 && t.TripDuration > 0
}

// TripNaturalKey is the default dedup key for the trip log.
var TripNaturalKey = []string{"provider_id", "trip_id"}
