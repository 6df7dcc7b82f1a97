package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

type VehicleType string

const (
	VehicleTypeBicycle VehicleType = "bicycle"
	VehicleTypeCar     VehicleType = "car"
	VehicleTypeScooter VehicleType = "scooter"
)

type EventType string

const (
	EventTypeAvailable   EventType = "available"
	EventTypeReserved    EventType = "reserved"
	EventTypeUnavailable EventType = "unavailable"
	EventTypeRemoved     EventType = "removed"
)

type EventTypeReason string

const (
	ReasonServiceStart       EventTypeReason = "service_start"
	ReasonUserDropOff        EventTypeReason = "user_drop_off"
	ReasonRebalanceDropOff   EventTypeReason = "rebalance_drop_off"
	ReasonMaintenanceDropOff EventTypeReason = "maintenance_drop_off"
	ReasonUserPickUp         EventTypeReason = "user_pick_up"
	ReasonMaintenance        EventTypeReason = "maintenance"
	ReasonLowBattery         EventTypeReason = "low_battery"
	ReasonServiceEnd         EventTypeReason = "service_end"
	ReasonRebalancePickUp    EventTypeReason = "rebalance_pick_up"
	ReasonMaintenancePickUp  EventTypeReason = "maintenance_pick_up"
)

// StatusChange is one row of the append-only status-change log.
// The natural key (provider_id, device_id, event_type, event_type_reason,
// event_time) is unique; delivery duplicates collapse onto it.
type StatusChange struct {
	SequenceID      int64           `gorm:"primaryKey;autoIncrement" json:"sequence_id"`
	ProviderID      uuid.UUID       `gorm:"type:uuid;not null" json:"provider_id" validate:"required"`
	ProviderName    string          `gorm:"type:varchar(255);not null" json:"provider_name" validate:"required"`
	DeviceID        uuid.UUID       `gorm:"type:uuid;not null" json:"device_id" validate:"required"`
	VehicleID       string          `gorm:"type:varchar(255);not null" json:"vehicle_id" validate:"required"`
	VehicleType     VehicleType     `gorm:"type:vehicle_type;not null" json:"vehicle_type" validate:"required,oneof=bicycle car scooter"`
	PropulsionTypes pq.StringArray  `gorm:"type:text[]" json:"propulsion_type" validate:"min=1"`
	EventType       EventType       `gorm:"type:event_type;not null" json:"event_type" validate:"required,oneof=available reserved unavailable removed"`
	EventTypeReason EventTypeReason `gorm:"type:event_type_reason;not null" json:"event_type_reason" validate:"required"`
	EventTime       time.Time       `gorm:"not null" json:"event_time" validate:"required"`
	EventLocation   datatypes.JSON  `gorm:"type:jsonb" json:"event_location" validate:"required"`
	BatteryPct      *float64        `json:"battery_pct" validate:"omitempty,min=0,max=1"`
	AssociatedTrip  *uuid.UUID      `gorm:"type:uuid" json:"associated_trip"`
	RecordedAt      time.Time       `gorm:"autoCreateTime" json:"recorded_at"`
}

func (StatusChange) TableName() string {
	return "status_changes"
}

// StatusChangeNaturalKey is the default dedup key for the status-change log.
var StatusChangeNaturalKey = []string{"provider_id", "device_id", "event_type", "event_type_reason", "event_time"}
