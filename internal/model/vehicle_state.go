package model

import "strconv"

// VehicleState is the per-vehicle record persisted in the store, overwritten on
// every cycle. ServiceDate is sticky: once assigned for a trip it is carried
// forward unchanged while the vehicle stays on that trip, even across midnight.
type VehicleState struct {
	VehicleID    string
	LicensePlate string
	TripID       string
	RouteID      string
	Latitude     float64
	Longitude    float64
	Bearing      *float64
	Speed        *float64
	Timestamp    int64
	Status       MovementStatus
	StopID       string
	StopSequence *int
	ServiceDate  string
	LastUpdated  int64 // ingestion time, epoch seconds

	// Static-data enrichment, empty when enrichment is disabled.
	RouteShortName string
	RouteLongName  string
	TripHeadsign   string
	StopName       string
	DirectionID    *int

	// Shape-derived telemetry, nil when the position is off-shape or the
	// trip has no shape.
	ShapeDistTraveled *float64
}

// ToMap flattens the state into the string field map stored in the vehicle hash.
func (v *VehicleState) ToMap() map[string]string {
	return map[string]string{
		"vehicle_id":          v.VehicleID,
		"license_plate":       v.LicensePlate,
		"trip_id":             v.TripID,
		"route_id":            v.RouteID,
		"latitude":            strconv.FormatFloat(v.Latitude, 'f', -1, 64),
		"longitude":           strconv.FormatFloat(v.Longitude, 'f', -1, 64),
		"bearing":             formatOptFloat(v.Bearing),
		"speed":               formatOptFloat(v.Speed),
		"timestamp":           strconv.FormatInt(v.Timestamp, 10),
		"status":              string(v.Status),
		"stop_id":             v.StopID,
		"stop_sequence":       formatOptInt(v.StopSequence),
		"service_date":        v.ServiceDate,
		"last_updated":        strconv.FormatInt(v.LastUpdated, 10),
		"route_short_name":    v.RouteShortName,
		"route_long_name":     v.RouteLongName,
		"trip_headsign":       v.TripHeadsign,
		"stop_name":           v.StopName,
		"direction_id":        formatOptInt(v.DirectionID),
		"shape_dist_traveled": formatOptFloat(v.ShapeDistTraveled),
	}
}

// VehicleStateFromMap rebuilds a VehicleState from the stored field map.
func VehicleStateFromMap(m map[string]string) *VehicleState {
	v := &VehicleState{
		VehicleID:      m["vehicle_id"],
		LicensePlate:   m["license_plate"],
		TripID:         m["trip_id"],
		RouteID:        m["route_id"],
		Bearing:        parseOptFloat(m["bearing"]),
		Speed:          parseOptFloat(m["speed"]),
		Status:         MovementStatus(m["status"]),
		StopID:         m["stop_id"],
		StopSequence:   parseOptInt(m["stop_sequence"]),
		ServiceDate:    m["service_date"],
		RouteShortName: m["route_short_name"],
		RouteLongName:  m["route_long_name"],
		TripHeadsign:   m["trip_headsign"],
		StopName:       m["stop_name"],
		DirectionID:    parseOptInt(m["direction_id"]),
	}
	v.ShapeDistTraveled = parseOptFloat(m["shape_dist_traveled"])
	v.Latitude, _ = strconv.ParseFloat(m["latitude"], 64)
	v.Longitude, _ = strconv.ParseFloat(m["longitude"], 64)
	v.Timestamp, _ = strconv.ParseInt(m["timestamp"], 10, 64)
	v.LastUpdated, _ = strconv.ParseInt(m["last_updated"], 10, 64)
	if v.Status == "" {
		v.Status = StatusUnknown
	}
	return v
}

func formatOptFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', -1, 64)
}

func parseOptFloat(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}

func formatOptInt(i *int) string {
	if i == nil {
		return ""
	}
	return strconv.Itoa(*i)
}

func parseOptInt(s string) *int {
	if s == "" {
		return nil
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return nil
	}
	return &i
}
