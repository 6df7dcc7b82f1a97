package db

import (
	"fmt"

	"gorm.io/gorm"
)

var migrationStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`,
	`DO $$
	BEGIN
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'vehicle_type') THEN
			CREATE TYPE vehicle_type AS ENUM ('bicycle', 'car', 'scooter');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'event_type') THEN
			CREATE TYPE event_type AS ENUM ('available', 'reserved', 'unavailable', 'removed');
		END IF;
		IF NOT EXISTS (SELECT 1 FROM pg_type WHERE typname = 'event_type_reason') THEN
			CREATE TYPE event_type_reason AS ENUM (
				'service_start', 'user_drop_off', 'rebalance_drop_off', 'maintenance_drop_off',
				'user_pick_up', 'maintenance', 'low_battery', 'service_end',
				'rebalance_pick_up', 'maintenance_pick_up'
			);
		END IF;
	END
	$$;`,
	`CREATE TABLE IF NOT EXISTS status_changes (
		sequence_id BIGSERIAL PRIMARY KEY,
		provider_id UUID NOT NULL,
		provider_name VARCHAR(255) NOT NULL,
		device_id UUID NOT NULL,
		vehicle_id VARCHAR(255) NOT NULL,
		vehicle_type vehicle_type NOT NULL,
		propulsion_types TEXT[] NOT NULL,
		event_type event_type NOT NULL,
		event_type_reason event_type_reason NOT NULL,
		event_time TIMESTAMPTZ NOT NULL,
		event_location JSONB NOT NULL,
		battery_pct DOUBLE PRECISION,
		associated_trip UUID,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT unique_event UNIQUE (provider_id, device_id, event_type, event_type_reason, event_time)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_status_changes_device ON status_changes (provider_id, device_id, event_time);`,
	`CREATE INDEX IF NOT EXISTS idx_status_changes_event_time ON status_changes (event_time);`,
	`CREATE TABLE IF NOT EXISTS trips (
		sequence_id BIGSERIAL NOT NULL,
		provider_id UUID NOT NULL,
		provider_name VARCHAR(255) NOT NULL,
		device_id UUID NOT NULL,
		vehicle_id VARCHAR(255) NOT NULL,
		vehicle_type vehicle_type NOT NULL,
		propulsion_types TEXT[] NOT NULL,
		trip_id UUID NOT NULL,
		trip_duration BIGINT NOT NULL,
		trip_distance BIGINT NOT NULL,
		route JSONB NOT NULL,
		accuracy_m BIGINT,
		start_time TIMESTAMPTZ NOT NULL,
		end_time TIMESTAMPTZ NOT NULL,
		parking_verification_url TEXT,
		standard_cost BIGINT,
		actual_cost BIGINT,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT pk_trips PRIMARY KEY (provider_id, trip_id)
	);`,
	`CREATE UNIQUE INDEX IF NOT EXISTS uniq_trips_sequence_id ON trips (sequence_id);`,
	`CREATE INDEX IF NOT EXISTS idx_trips_end_time ON trips (end_time);`,
	`CREATE TABLE IF NOT EXISTS watermarks (
		job_name VARCHAR(128) PRIMARY KEY,
		src_table VARCHAR(128) NOT NULL,
		src_sequence VARCHAR(128) NOT NULL,
		last_processed_id BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS route_aggregates (
		provider_id UUID NOT NULL,
		trip_id UUID NOT NULL,
		total_points INTEGER NOT NULL,
		in_region_points INTEGER NOT NULL,
		out_region_points INTEGER NOT NULL,
		in_region_pct DOUBLE PRECISION NOT NULL,
		line_geometry JSONB,
		first_in_region_at TIMESTAMPTZ,
		first_in_region JSONB,
		last_in_region_at TIMESTAMPTZ,
		last_in_region JSONB,
		computed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT pk_route_aggregates PRIMARY KEY (provider_id, trip_id)
	);`,
	`CREATE TABLE IF NOT EXISTS availability_windows (
		id BIGSERIAL PRIMARY KEY,
		provider_id UUID NOT NULL,
		provider_name VARCHAR(255) NOT NULL,
		device_id UUID NOT NULL,
		vehicle_type vehicle_type NOT NULL,
		start_event_type event_type NOT NULL,
		start_reason event_type_reason NOT NULL,
		start_time TIMESTAMPTZ NOT NULL,
		end_event_type event_type,
		end_reason event_type_reason,
		end_time TIMESTAMPTZ,
		duration_sec BIGINT,
		computed_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT uniq_availability_window UNIQUE (provider_id, device_id, start_time, start_event_type)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_availability_device ON availability_windows (provider_id, device_id, start_time);`,
	`CREATE INDEX IF NOT EXISTS idx_availability_open ON availability_windows (provider_id, device_id) WHERE end_time IS NULL;`,
}

func runMigrations(db *gorm.DB) error {
	for i, stmt := range migrationStatements {
		if err := db.Exec(stmt).Error; err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}
