package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// RouteAggregate is the durable per-trip route summary, keyed by
// (provider_id, trip_id). Every column is overwritten on upsert, so
// recomputing from the same trip always converges on the same row.
type RouteAggregate struct {
	ProviderID      uuid.UUID      `gorm:"type:uuid;primaryKey" json:"provider_id"`
	TripID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"trip_id"`
	TotalPoints     int            `gorm:"not null" json:"total_points"`
	InRegionPoints  int            `gorm:"not null" json:"in_region_points"`
	OutRegionPoints int            `gorm:"not null" json:"out_region_points"`
	InRegionPct     float64        `gorm:"not null" json:"in_region_pct"`
	LineGeometry    datatypes.JSON `gorm:"type:jsonb" json:"line_geometry"`
	FirstInRegionAt *time.Time     `json:"first_in_region_at"`
	FirstInRegion   datatypes.JSON `gorm:"type:jsonb" json:"first_in_region"`
	LastInRegionAt  *time.Time     `json:"last_in_region_at"`
	LastInRegion    datatypes.JSON `gorm:"type:jsonb" json:"last_in_region"`
	ComputedAt      time.Time      `gorm:"autoUpdateTime" json:"computed_at"`
}

func (RouteAggregate) TableName() string {
	return "route_aggregates"
}
