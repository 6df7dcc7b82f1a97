package model

import "time"

// Watermark tracks, per derived-data job, the last safely-processed position
// in a monotonically increasing source sequence. LastProcessedID never
// decreases; it advances only in the same transaction as the window's derived
// writes.
type Watermark struct {
	JobName         string    `gorm:"type:varchar(128);primaryKey" json:"job_name"`
	SrcTable        string    `gorm:"type:varchar(128);not null" json:"src_table"`
	SrcSequence     string    `gorm:"type:varchar(128);not null" json:"src_sequence"`
	LastProcessedID int64     `gorm:"not null;default:0" json:"last_processed_id"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (Watermark) TableName() string {
	return "watermarks"
}
