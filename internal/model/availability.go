package model

import (
	"time"

	"github.com/google/uuid"
)

// AvailabilityWindow pairs two chronologically adjacent timeline events for a
// device. A null end marks an open window: the device is still in its start
// state, or was never heard from again.
type AvailabilityWindow struct {
	ID             int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	ProviderID     uuid.UUID        `gorm:"type:uuid;not null" json:"provider_id"`
	ProviderName   string           `gorm:"type:varchar(255);not null" json:"provider_name"`
	DeviceID       uuid.UUID        `gorm:"type:uuid;not null" json:"device_id"`
	VehicleType    VehicleType      `gorm:"type:vehicle_type;not null" json:"vehicle_type"`
	StartEventType EventType        `gorm:"type:event_type;not null" json:"start_event_type"`
	StartReason    EventTypeReason  `gorm:"type:event_type_reason;not null" json:"start_reason"`
	StartTime      time.Time        `gorm:"not null" json:"start_time"`
	EndEventType   *EventType       `gorm:"type:event_type" json:"end_event_type"`
	EndReason      *EventTypeReason `gorm:"type:event_type_reason" json:"end_reason"`
	EndTime        *time.Time       `json:"end_time"`
	DurationSec    *int64           `json:"duration_sec"`
	ComputedAt     time.Time        `gorm:"autoUpdateTime" json:"computed_at"`
}

func (AvailabilityWindow) TableName() string {
	return "availability_windows"
}
