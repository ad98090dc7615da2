// Package enrich decorates vehicle states and trip completions with GTFS
// static reference data (route names, headsigns, stop names, scheduled
// times). The tables are loaded into memory once at startup; lookups are
// lock-free reads afterwards. The whole layer is optional and the pipeline
// runs unchanged without it.
package enrich

import (
	"context"
	"fmt"
	"log"
	"math"
	"time"

	"gorm.io/gorm"

	"vehicle-tracker-backend/internal/parse"
)

// VehicleContext is the static-data decoration for one position.
type VehicleContext struct {
	RouteShortName string
	RouteLongName  string
	TripHeadsign   string
	StopName       string
	DirectionID    *int
}

// ShapeMatch is the result of projecting a position onto its trip's shape.
type ShapeMatch struct {
	DistTraveled float64 // meters along the shape from its start
	Bearing      float64 // degrees clockwise from north, along the shape
}

// shapeVertex is one shape point with its cumulative distance from the start.
type shapeVertex struct {
	lat, lon float64
	cum      float64
}

type tripWindow struct {
	first string // departure at the lowest stop sequence
	last  string // arrival at the highest stop sequence
}

// Catalog holds the in-memory GTFS static lookups.
type Catalog struct {
	db     *gorm.DB
	loc    *time.Location
	loaded bool

	routes  map[string]Route
	trips   map[string]Trip
	stops   map[string]string
	windows map[string]tripWindow
	shapes  map[string][]shapeVertex
}

// NewCatalog creates an empty catalog backed by the given database.
func NewCatalog(db *gorm.DB, loc *time.Location) *Catalog {
	return &Catalog{
		db:      db,
		loc:     loc,
		routes:  make(map[string]Route),
		trips:   make(map[string]Trip),
		stops:   make(map[string]string),
		windows: make(map[string]tripWindow),
		shapes:  make(map[string][]shapeVertex),
	}
}

// Load reads all reference tables into memory.
func (c *Catalog) Load(ctx context.Context) error {
	var routes []Route
	if err := c.db.WithContext(ctx).Find(&routes).Error; err != nil {
		return fmt.Errorf("load routes: %w", err)
	}
	for _, r := range routes {
		c.routes[r.RouteID] = r
	}

	var trips []Trip
	if err := c.db.WithContext(ctx).Find(&trips).Error; err != nil {
		return fmt.Errorf("load trips: %w", err)
	}
	for _, t := range trips {
		c.trips[t.TripID] = t
	}

	var stops []Stop
	if err := c.db.WithContext(ctx).Find(&stops).Error; err != nil {
		return fmt.Errorf("load stops: %w", err)
	}
	for _, s := range stops {
		c.stops[s.StopID] = s.Name
	}

	if err := c.loadWindows(ctx); err != nil {
		return err
	}
	if err := c.loadShapes(ctx); err != nil {
		return err
	}

	c.loaded = true
	log.Printf("GTFS catalog loaded: %d routes, %d trips, %d stops, %d schedule windows, %d shapes",
		len(c.routes), len(c.trips), len(c.stops), len(c.windows), len(c.shapes))
	return nil
}

// loadShapes builds one polyline per shape with cumulative distances, so a
// match can report how far along its shape a vehicle is.
func (c *Catalog) loadShapes(ctx context.Context) error {
	rows, err := c.db.WithContext(ctx).Model(&ShapePoint{}).
		Order("shape_id, sequence").Rows()
	if err != nil {
		return fmt.Errorf("load shapes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var sp ShapePoint
		if err := c.db.ScanRows(rows, &sp); err != nil {
			return fmt.Errorf("scan shape point: %w", err)
		}
		verts := c.shapes[sp.ShapeID]
		cum := 0.0
		if n := len(verts); n > 0 {
			prev := verts[n-1]
			cum = prev.cum + haversineMeters(prev.lat, prev.lon, sp.Lat, sp.Lon)
		}
		c.shapes[sp.ShapeID] = append(verts, shapeVertex{lat: sp.Lat, lon: sp.Lon, cum: cum})
	}
	return rows.Err()
}

// loadWindows keeps only the first departure and last arrival per trip; the
// full stop_times table is too large to hold for no reason.
func (c *Catalog) loadWindows(ctx context.Context) error {
	rows, err := c.db.WithContext(ctx).Model(&StopTime{}).
		Order("trip_id, stop_sequence").Rows()
	if err != nil {
		return fmt.Errorf("load stop times: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var st StopTime
		if err := c.db.ScanRows(rows, &st); err != nil {
			return fmt.Errorf("scan stop time: %w", err)
		}
		w, ok := c.windows[st.TripID]
		if !ok {
			w.first = st.DepartureTime
		}
		w.last = st.ArrivalTime
		c.windows[st.TripID] = w
	}
	return rows.Err()
}

// Loaded reports whether reference data is available.
func (c *Catalog) Loaded() bool {
	return c != nil && c.loaded
}

// VehicleContext resolves the display names for one position. Unknown ids
// yield empty fields rather than errors.
func (c *Catalog) VehicleContext(tripID, routeID, stopID string) VehicleContext {
	var vc VehicleContext
	if !c.Loaded() {
		return vc
	}
	if t, ok := c.trips[tripID]; ok {
		vc.TripHeadsign = t.Headsign
		direction := t.DirectionID
		vc.DirectionID = &direction
		if routeID == "" {
			routeID = t.RouteID
		}
	}
	if r, ok := c.routes[routeID]; ok {
		vc.RouteShortName = r.ShortName
		vc.RouteLongName = r.LongName
	}
	if name, ok := c.stops[stopID]; ok {
		vc.StopName = name
	}
	return vc
}

// ScheduledWindow returns the scheduled start and end of a trip instance as
// unix timestamps, or zeros when the trip or its times are unknown.
func (c *Catalog) ScheduledWindow(tripID, serviceDate string) (int64, int64) {
	if !c.Loaded() || serviceDate == "" {
		return 0, 0
	}
	w, ok := c.windows[tripID]
	if !ok {
		return 0, 0
	}
	var start, end int64
	if gt, err := parse.ParseGTFSTime(w.first); err == nil {
		if epoch, err := gt.Epoch(serviceDate, c.loc); err == nil {
			start = epoch
		}
	}
	if gt, err := parse.ParseGTFSTime(w.last); err == nil {
		if epoch, err := gt.Epoch(serviceDate, c.loc); err == nil {
			end = epoch
		}
	}
	return start, end
}

// maxShapeDeviationMeters bounds how far a position may sit from its trip's
// shape and still be considered on it. Beyond this the telemetry would be
// noise (detours, bad GPS fixes).
const maxShapeDeviationMeters = 100.0

// MatchShape projects a position onto the shape of its trip and reports the
// distance traveled along the shape and the shape's bearing at that point.
// It returns false when the trip has no shape or the position deviates too
// far from it.
func (c *Catalog) MatchShape(tripID string, lat, lon float64) (ShapeMatch, bool) {
	if !c.Loaded() {
		return ShapeMatch{}, false
	}
	t, ok := c.trips[tripID]
	if !ok || t.ShapeID == "" {
		return ShapeMatch{}, false
	}
	verts := c.shapes[t.ShapeID]
	if len(verts) < 2 {
		return ShapeMatch{}, false
	}

	best := ShapeMatch{}
	bestDev := math.MaxFloat64
	for i := 0; i < len(verts)-1; i++ {
		a, b := verts[i], verts[i+1]
		dev, frac := pointToSegmentMeters(lat, lon, a, b)
		if dev >= bestDev {
			continue
		}
		bestDev = dev
		best = ShapeMatch{
			DistTraveled: a.cum + frac*(b.cum-a.cum),
			Bearing:      segmentBearing(a, b),
		}
	}
	if bestDev > maxShapeDeviationMeters {
		return ShapeMatch{}, false
	}
	return best, true
}

// pointToSegmentMeters returns the distance from a point to the segment a-b
// and the fractional position of the closest point along it, using a local
// equirectangular projection (fine at segment scale).
func pointToSegmentMeters(lat, lon float64, a, b shapeVertex) (float64, float64) {
	const metersPerDegLat = 111320.0
	metersPerDegLon := metersPerDegLat * math.Cos(a.lat*math.Pi/180)

	px := (lon - a.lon) * metersPerDegLon
	py := (lat - a.lat) * metersPerDegLat
	bx := (b.lon - a.lon) * metersPerDegLon
	by := (b.lat - a.lat) * metersPerDegLat

	segLenSq := bx*bx + by*by
	frac := 0.0
	if segLenSq > 0 {
		frac = (px*bx + py*by) / segLenSq
		if frac < 0 {
			frac = 0
		} else if frac > 1 {
			frac = 1
		}
	}
	dx := px - frac*bx
	dy := py - frac*by
	return math.Sqrt(dx*dx + dy*dy), frac
}

// segmentBearing returns the initial bearing from a to b in degrees,
// clockwise from north.
func segmentBearing(a, b shapeVertex) float64 {
	phi1 := a.lat * math.Pi / 180
	phi2 := b.lat * math.Pi / 180
	dLambda := (b.lon - a.lon) * math.Pi / 180

	y := math.Sin(dLambda) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLambda)
	deg := math.Atan2(y, x) * 180 / math.Pi
	return math.Mod(deg+360, 360)
}

const earthRadiusMeters = 6371000.0

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
