package derive

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"mobility-ingest/internal/geo"
	"mobility-ingest/internal/model"
	"mobility-ingest/internal/provider"
	"mobility-ingest/internal/watermark"
)

// RouteJob is the watermark job name for route aggregation over the trip log.
const RouteJob = "route_aggregates"

// RoutePoint is one parsed feature of a trip's route: geometry, embedded
// timestamp, and per-region containment. Ephemeral and fully recomputable
// from the owning trip; never persisted as a source of truth.
type RoutePoint struct {
	Point     geo.Point
	Timestamp time.Time
	In        map[string]bool
}

// RouteAggregator derives one idempotent route summary per trip, gated by the
// watermark over the trip log's sequence.
type RouteAggregator struct {
	db         *gorm.DB
	wm         *watermark.Controller
	classifier *geo.Classifier
	minPoints  int
	log        zerolog.Logger
}

func NewRouteAggregator(db *gorm.DB, wm *watermark.Controller, classifier *geo.Classifier, minPoints int, log zerolog.Logger) *RouteAggregator {
	return &RouteAggregator{
		db:         db,
		wm:         wm,
		classifier: classifier,
		minPoints:  minPoints,
		log:        log,
	}
}

func (a *RouteAggregator) Register(ctx context.Context) error {
	return a.wm.Register(ctx, RouteJob, "trips", "trips_sequence_id_seq")
}

// Stats reports one derivation pass.
type Stats struct {
	SourceRows  int
	DerivedRows int
}

// Run processes the next watermark window of trips. Only trips satisfying the
// validity invariant are consumed; trips without a point in the primary
// region produce no aggregate at all.
func (a *RouteAggregator) Run(ctx context.Context) (watermark.Window, Stats, error) {
	var stats Stats
	win, err := a.wm.Run(ctx, RouteJob, func(tx *gorm.DB, start, end int64) error {
		var trips []model.Trip
		if err := tx.
			Where("sequence_id BETWEEN ? AND ?", start, end).
			Where("end_time > start_time AND trip_distance > 0 AND trip_duration > 0").
			Find(&trips).Error; err != nil {
			return fmt.Errorf("select trips: %w", err)
		}
		stats.SourceRows = len(trips)

		aggs := make([]model.RouteAggregate, 0, len(trips))
		for i := range trips {
			agg, ok, err := a.Aggregate(&trips[i])
			if err != nil {
				// an unparseable route would wedge the job forever on
				// abort-and-retry; skip it and move the watermark past
				a.log.Warn().
					Err(err).
					Str("trip_id", trips[i].TripID.String()).
					Msg("skipping trip with unusable route")
				continue
			}
			if ok {
				aggs = append(aggs, agg)
			}
		}
		stats.DerivedRows = len(aggs)
		if len(aggs) == 0 {
			return nil
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider_id"}, {Name: "trip_id"}},
			UpdateAll: true,
		}).CreateInBatches(aggs, 200).Error
	})
	if err != nil {
		return win, stats, err
	}

	a.log.Info().
		Int64("window_start", win.Start).
		Int64("window_end", win.End).
		Int("trips", stats.SourceRows).
		Int("aggregates", stats.DerivedRows).
		Msg("route aggregation pass complete")
	return win, stats, nil
}

// Aggregate computes the route summary for one trip. The boolean is false
// when the trip carries no regional derived value (zero points in the primary
// region). Recomputing from the same trip always yields the same aggregate:
// points are sorted by timestamp with a coordinate tie-break before any
// order-dependent derivation.
func (a *RouteAggregator) Aggregate(trip *model.Trip) (model.RouteAggregate, bool, error) {
	points, err := ParseRoutePoints(trip.Route)
	if err != nil {
		return model.RouteAggregate{}, false, err
	}
	for i := range points {
		points[i].In = a.classifier.Classify(points[i].Point)
	}

	sort.SliceStable(points, func(i, j int) bool {
		if !points[i].Timestamp.Equal(points[j].Timestamp) {
			return points[i].Timestamp.Before(points[j].Timestamp)
		}
		if points[i].Point.Lon != points[j].Point.Lon {
			return points[i].Point.Lon < points[j].Point.Lon
		}
		return points[i].Point.Lat < points[j].Point.Lat
	})

	primary := a.classifier.Primary()
	agg := model.RouteAggregate{
		ProviderID:  trip.ProviderID,
		TripID:      trip.TripID,
		TotalPoints: len(points),
	}

	var first, last *RoutePoint
	for i := range points {
		if points[i].In[primary] {
			agg.InRegionPoints++
			if first == nil {
				first = &points[i]
			}
			last = &points[i]
		} else {
			agg.OutRegionPoints++
		}
	}
	if first == nil {
		return model.RouteAggregate{}, false, nil
	}

	if agg.TotalPoints >= a.minPoints {
		agg.InRegionPct = float64(agg.InRegionPoints) / float64(agg.TotalPoints) * 100
	}

	line, err := lineString(points)
	if err != nil {
		return model.RouteAggregate{}, false, err
	}
	agg.LineGeometry = line

	firstAt := first.Timestamp
	lastAt := last.Timestamp
	agg.FirstInRegionAt = &firstAt
	agg.LastInRegionAt = &lastAt
	if agg.FirstInRegion, err = pointGeometry(first.Point); err != nil {
		return model.RouteAggregate{}, false, err
	}
	if agg.LastInRegion, err = pointGeometry(last.Point); err != nil {
		return model.RouteAggregate{}, false, err
	}

	return agg, true, nil
}

type routeFeature struct {
	Geometry struct {
		Type        string    `json:"type"`
		Coordinates []float64 `json:"coordinates"`
	} `json:"geometry"`
	Properties struct {
		Timestamp int64 `json:"timestamp"`
	} `json:"properties"`
}

type routeCollection struct {
	Features []routeFeature `json:"features"`
}

// ParseRoutePoints extracts geometry and embedded timestamps from a trip's
// raw route FeatureCollection. Arrival order is preserved; callers sort.
func ParseRoutePoints(route []byte) ([]RoutePoint, error) {
	var rc routeCollection
	if err := json.Unmarshal(route, &rc); err != nil {
		return nil, fmt.Errorf("parse route: %w", err)
	}

	points := make([]RoutePoint, 0, len(rc.Features))
	for i, f := range rc.Features {
		if f.Geometry.Type != "Point" || len(f.Geometry.Coordinates) < 2 {
			return nil, fmt.Errorf("route feature %d: expected a Point with coordinates", i)
		}
		if f.Properties.Timestamp == 0 {
			return nil, fmt.Errorf("route feature %d: missing timestamp", i)
		}
		points = append(points, RoutePoint{
			Point:     geo.Point{Lon: f.Geometry.Coordinates[0], Lat: f.Geometry.Coordinates[1]},
			Timestamp: provider.FromEpoch(f.Properties.Timestamp),
		})
	}
	return points, nil
}

func lineString(points []RoutePoint) ([]byte, error) {
	coords := make([][2]float64, len(points))
	for i, p := range points {
		coords[i] = [2]float64{p.Point.Lon, p.Point.Lat}
	}
	return json.Marshal(map[string]any{
		"type":        "LineString",
		"coordinates": coords,
	})
}

func pointGeometry(p geo.Point) ([]byte, error) {
	return json.Marshal(map[string]any{
		"type":        "Point",
		"coordinates": [2]float64{p.Lon, p.Lat},
	})
}
