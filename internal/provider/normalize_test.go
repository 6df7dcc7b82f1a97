package provider

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mobility-ingest/internal/model"
)

func TestNormalizeStatusChanges(t *testing.T) {
	raw := json.RawMessage(`{
		"provider_id": "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa",
		"provider_name": "mobly",
		"device_id": "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb",
		"vehicle_id": "SC-001",
		"vehicle_type": "scooter",
		"propulsion_type": ["electric"],
		"event_type": "available",
		"event_type_reason": "service_start",
		"event_time": 1546300800000,
		"event_location": {"type": "Feature", "geometry": {"type": "Point", "coordinates": [-122.4, 37.7]}},
		"battery_pct": 0.87
	}`)

	recs, err := NormalizeStatusChanges([]Page{{Version: "0.3", Records: []json.RawMessage{raw}}})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	require.Equal(t, "mobly", rec.ProviderName)
	require.Equal(t, model.VehicleTypeScooter, rec.VehicleType)
	require.Equal(t, model.EventTypeAvailable, rec.EventType)
	require.Equal(t, model.ReasonServiceStart, rec.EventTypeReason)
	require.Equal(t, time.Unix(1546300800, 0).UTC(), rec.EventTime)
	require.NotNil(t, rec.BatteryPct)
	require.Equal(t, 0.87, *rec.BatteryPct)
	require.JSONEq(t,
		`{"type": "Feature", "geometry": {"type": "Point", "coordinates": [-122.4, 37.7]}}`,
		string(rec.EventLocation))
}

func TestNormalizeTrips(t *testing.T) {
	raw := json.RawMessage(`{
		"provider_id": "aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa",
		"provider_name": "mobly",
		"device_id": "bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb",
		"vehicle_id": "SC-001",
		"vehicle_type": "scooter",
		"propulsion_type": ["electric"],
		"trip_id": "cccccccc-cccc-cccc-cccc-cccccccccccc",
		"trip_duration": 600,
		"trip_distance": 1500,
		"route": {"type": "FeatureCollection", "features": []},
		"accuracy": 5,
		"start_time": 1546300800,
		"end_time": 1546301400,
		"standard_cost": 100
	}`)

	recs, err := NormalizeTrips([]Page{{Version: "0.3", Records: []json.RawMessage{raw}}})
	require.NoError(t, err)
	require.Len(t, recs, 1)

	rec := recs[0]
	require.Equal(t, int64(600), rec.TripDuration)
	require.Equal(t, int64(1500), rec.TripDistance)
	require.Equal(t, time.Unix(1546300800, 0).UTC(), rec.StartTime)
	require.Equal(t, time.Unix(1546301400, 0).UTC(), rec.EndTime)
	require.NotNil(t, rec.AccuracyM)
	require.Equal(t, int64(5), *rec.AccuracyM)
	require.NotNil(t, rec.StandardCost)
	require.Nil(t, rec.ActualCost)
	require.True(t, rec.Valid())
}

func TestNormalizeRejectsMalformedRecords(t *testing.T) {
	pages := []Page{{Records: []json.RawMessage{json.RawMessage(`{"provider_id": 42}`)}}}

	_, err := NormalizeStatusChanges(pages)
	require.Error(t, err)
	_, err = NormalizeTrips(pages)
	require.Error(t, err)
}
