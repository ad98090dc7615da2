package model

import "strconv"

// TripPosition is one append-only entry in a trip instance's track stream.
type TripPosition struct {
	VehicleID    string
	Latitude     float64
	Longitude    float64
	Bearing      *float64
	Speed        *float64
	Timestamp    int64
	Status       MovementStatus
	StopID       string
	StopSequence *int
	ServiceDate  string
}

// ToMap flattens the entry for the track stream.
func (p *TripPosition) ToMap() map[string]string {
	return map[string]string{
		"vehicle_id":    p.VehicleID,
		"lat":           strconv.FormatFloat(p.Latitude, 'f', -1, 64),
		"lon":           strconv.FormatFloat(p.Longitude, 'f', -1, 64),
		"bearing":       formatOptFloat(p.Bearing),
		"speed":         formatOptFloat(p.Speed),
		"ts":            strconv.FormatInt(p.Timestamp, 10),
		"status":        string(p.Status),
		"stop_id":       p.StopID,
		"stop_sequence": formatOptInt(p.StopSequence),
		"service_date":  p.ServiceDate,
	}
}

// TripPositionFromMap rebuilds a track entry from its stream field map.
func TripPositionFromMap(m map[string]string) *TripPosition {
	p := &TripPosition{
		VehicleID:    m["vehicle_id"],
		Bearing:      parseOptFloat(m["bearing"]),
		Speed:        parseOptFloat(m["speed"]),
		Status:       MovementStatus(m["status"]),
		StopID:       m["stop_id"],
		StopSequence: parseOptInt(m["stop_sequence"]),
		ServiceDate:  m["service_date"],
	}
	p.Latitude, _ = strconv.ParseFloat(m["lat"], 64)
	p.Longitude, _ = strconv.ParseFloat(m["lon"], 64)
	p.Timestamp, _ = strconv.ParseInt(m["ts"], 10, 64)
	if p.Status == "" {
		p.Status = StatusUnknown
	}
	return p
}

// TransitionKind classifies how a vehicle's trip assignment changed between
// two consecutive observations.
type TransitionKind string

const (
	TransitionNone     TransitionKind = "none"
	TransitionStarted  TransitionKind = "started"
	TransitionEnded    TransitionKind = "ended"
	TransitionSwitched TransitionKind = "switched"
)

// TripTransition describes a detected trip boundary. Prev fields are empty for
// a started transition, New fields are empty for an ended transition.
type TripTransition struct {
	Kind            TransitionKind
	VehicleID       string
	PrevTripID      string
	PrevServiceDate string
	NewTripID       string
	NewServiceDate  string
	Timestamp       int64
}

// TripCompletion is the summary persisted when a trip instance is finalized.
type TripCompletion struct {
	TripID          string
	ServiceDate     string
	VehicleID       string
	LicensePlate    string
	StartTime       int64
	EndTime         int64
	DurationSeconds int64
	TotalPositions  int
	StopsServed     int
	DistanceMeters  float64
	AvgSpeedMPS     float64

	// Enrichment fields, empty when static data is unavailable.
	RouteShortName string
	RouteLongName  string
	ScheduledStart int64
	ScheduledEnd   int64

	CompletedAt int64
}

// ToMap flattens the completion summary for its hash.
func (c *TripCompletion) ToMap() map[string]string {
	return map[string]string{
		"trip_id":          c.TripID,
		"service_date":     c.ServiceDate,
		"vehicle_id":       c.VehicleID,
		"license_plate":    c.LicensePlate,
		"start_time":       strconv.FormatInt(c.StartTime, 10),
		"end_time":         strconv.FormatInt(c.EndTime, 10),
		"duration_seconds": strconv.FormatInt(c.DurationSeconds, 10),
		"total_positions":  strconv.Itoa(c.TotalPositions),
		"stops_served":     strconv.Itoa(c.StopsServed),
		"distance_meters":  strconv.FormatFloat(c.DistanceMeters, 'f', 1, 64),
		"avg_speed_mps":    strconv.FormatFloat(c.AvgSpeedMPS, 'f', 2, 64),
		"route_short_name": c.RouteShortName,
		"route_long_name":  c.RouteLongName,
		"scheduled_start":  strconv.FormatInt(c.ScheduledStart, 10),
		"scheduled_end":    strconv.FormatInt(c.ScheduledEnd, 10),
		"completed_at":     strconv.FormatInt(c.CompletedAt, 10),
	}
}

// TripCompletionFromMap rebuilds a completion summary from its stored map.
func TripCompletionFromMap(m map[string]string) *TripCompletion {
	c := &TripCompletion{
		TripID:         m["trip_id"],
		ServiceDate:    m["service_date"],
		VehicleID:      m["vehicle_id"],
		LicensePlate:   m["license_plate"],
		RouteShortName: m["route_short_name"],
		RouteLongName:  m["route_long_name"],
	}
	c.StartTime, _ = strconv.ParseInt(m["start_time"], 10, 64)
	c.EndTime, _ = strconv.ParseInt(m["end_time"], 10, 64)
	c.DurationSeconds, _ = strconv.ParseInt(m["duration_seconds"], 10, 64)
	c.TotalPositions, _ = strconv.Atoi(m["total_positions"])
	c.StopsServed, _ = strconv.Atoi(m["stops_served"])
	c.DistanceMeters, _ = strconv.ParseFloat(m["distance_meters"], 64)
	c.AvgSpeedMPS, _ = strconv.ParseFloat(m["avg_speed_mps"], 64)
	c.ScheduledStart, _ = strconv.ParseInt(m["scheduled_start"], 10, 64)
	c.ScheduledEnd, _ = strconv.ParseInt(m["scheduled_end"], 10, 64)
	c.CompletedAt, _ = strconv.ParseInt(m["completed_at"], 10, 64)
	return c
}
