package geo

import (
	"encoding/json"
	"fmt"
	"os"
)

// Point is a WGS84 coordinate pair.
type Point struct {
	Lon float64
	Lat float64
}

// Region is a named reference area built from one or more polygons, each with
// an outer ring and zero or more holes.
type Region struct {
	Name     string
	polygons [][][]Point
}

// Contains reports whether the point lies inside the region. Boundary points
// count as inside.
func (r *Region) Contains(p Point) bool {
	for _, polygon := range r.polygons {
		if polygonContains(polygon, p) {
			return true
		}
	}
	return false
}

func polygonContains(rings [][]Point, p Point) bool {
	if len(rings) == 0 {
		return false
	}
	if !ringContains(rings[0], p) {
		return false
	}
	// inside the outer ring; holes exclude unless the point sits on a hole edge
	for _, hole := range rings[1:] {
		if ringContains(hole, p) && !onRing(hole, p) {
			return false
		}
	}
	return true
}

// ringContains runs an even-odd ray cast, treating points on an edge as
// contained.
func ringContains(ring []Point, p Point) bool {
	if onRing(ring, p) {
		return true
	}
	inside := false
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		a, b := ring[i], ring[j]
		if (a.Lat > p.Lat) != (b.Lat > p.Lat) {
			x := (b.Lon-a.Lon)*(p.Lat-a.Lat)/(b.Lat-a.Lat) + a.Lon
			if p.Lon < x {
				inside = !inside
			}
		}
	}
	return inside
}

func onRing(ring []Point, p Point) bool {
	n := len(ring)
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		if onSegment(ring[j], ring[i], p) {
			return true
		}
	}
	return false
}

func onSegment(a, b, p Point) bool {
	cross := (b.Lon-a.Lon)*(p.Lat-a.Lat) - (b.Lat-a.Lat)*(p.Lon-a.Lon)
	if cross > 1e-12 || cross < -1e-12 {
		return false
	}
	if p.Lon < min(a.Lon, b.Lon) || p.Lon > max(a.Lon, b.Lon) {
		return false
	}
	if p.Lat < min(a.Lat, b.Lat) || p.Lat > max(a.Lat, b.Lat) {
		return false
	}
	return true
}

// Classifier answers containment queries against an ordered set of reference
// regions. The first region is the primary one. Pure and stateless after
// construction.
type Classifier struct {
	regions []Region
}

func NewClassifier(regions ...Region) *Classifier {
	return &Classifier{regions: regions}
}

// Primary returns the name of the first configured region, or "" when none
// are configured.
func (c *Classifier) Primary() string {
	if len(c.regions) == 0 {
		return ""
	}
	return c.regions[0].Name
}

func (c *Classifier) Regions() []string {
	names := make([]string, len(c.regions))
	for i, r := range c.regions {
		names[i] = r.Name
	}
	return names
}

// Classify returns a containment flag per configured region.
func (c *Classifier) Classify(p Point) map[string]bool {
	flags := make(map[string]bool, len(c.regions))
	for i := range c.regions {
		flags[c.regions[i].Name] = c.regions[i].Contains(p)
	}
	return flags
}

type geojsonGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
}

type geojsonFeature struct {
	Type     string          `json:"type"`
	Geometry geojsonGeometry `json:"geometry"`
}

type geojsonFeatureCollection struct {
	Type     string           `json:"type"`
	Features []geojsonFeature `json:"features"`
}

// LoadRegion parses a GeoJSON Polygon or MultiPolygon into a named Region.
// Accepts a bare geometry, a Feature, or a FeatureCollection (all polygon
// features are merged into the region).
func LoadRegion(name string, data []byte) (Region, error) {
	region := Region{Name: name}

	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return region, fmt.Errorf("parse region %s: %w", name, err)
	}

	var geometries []geojsonGeometry
	switch probe.Type {
	case "FeatureCollection":
		var fc geojsonFeatureCollection
		if err := json.Unmarshal(data, &fc); err != nil {
			return region, fmt.Errorf("parse region %s: %w", name, err)
		}
		for _, f := range fc.Features {
			geometries = append(geometries, f.Geometry)
		}
	case "Feature":
		var f geojsonFeature
		if err := json.Unmarshal(data, &f); err != nil {
			return region, fmt.Errorf("parse region %s: %w", name, err)
		}
		geometries = append(geometries, f.Geometry)
	case "Polygon", "MultiPolygon":
		var g geojsonGeometry
		if err := json.Unmarshal(data, &g); err != nil {
			return region, fmt.Errorf("parse region %s: %w", name, err)
		}
		geometries = append(geometries, g)
	default:
		return region, fmt.Errorf("region %s: unsupported GeoJSON type %q", name, probe.Type)
	}

	for _, g := range geometries {
		switch g.Type {
		case "Polygon":
			var rings [][][2]float64
			if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
				return region, fmt.Errorf("region %s: polygon coordinates: %w", name, err)
			}
			region.polygons = append(region.polygons, toRings(rings))
		case "MultiPolygon":
			var polys [][][][2]float64
			if err := json.Unmarshal(g.Coordinates, &polys); err != nil {
				return region, fmt.Errorf("region %s: multipolygon coordinates: %w", name, err)
			}
			for _, rings := range polys {
				region.polygons = append(region.polygons, toRings(rings))
			}
		default:
			return region, fmt.Errorf("region %s: unsupported geometry %q", name, g.Type)
		}
	}

	if len(region.polygons) == 0 {
		return region, fmt.Errorf("region %s: no polygon geometry found", name)
	}
	return region, nil
}

// LoadRegionFile reads a GeoJSON file into a named Region.
func LoadRegionFile(name, path string) (Region, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Region{}, fmt.Errorf("read region file: %w", err)
	}
	return LoadRegion(name, data)
}

func toRings(raw [][][2]float64) [][]Point {
	rings := make([][]Point, len(raw))
	for i, ring := range raw {
		points := make([]Point, len(ring))
		for j, c := range ring {
			points[j] = Point{Lon: c[0], Lat: c[1]}
		}
		rings[i] = points
	}
	return rings
}
