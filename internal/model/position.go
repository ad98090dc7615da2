package model

// MovementStatus describes what a vehicle is doing relative to its next stop.
type MovementStatus string

const (
	StatusUnknown     MovementStatus = "UNKNOWN"
	StatusIncomingAt  MovementStatus = "INCOMING_AT"
	StatusStoppedAt   MovementStatus = "STOPPED_AT"
	StatusInTransitTo MovementStatus = "IN_TRANSIT_TO"
)

// Position is one normalized vehicle-position record from the upstream feed.
// Optional fields use pointers (numeric) or the empty string (identifiers).
type Position struct {
	VehicleID    string
	LicensePlate string
	TripID       string
	RouteID      string
	Latitude     float64
	Longitude    float64
	Bearing      *float64
	Speed        *float64 // meters per second
	Timestamp    int64    // feed timestamp, epoch seconds
	Status       MovementStatus
	StopID       string
	StopSequence *int
	ServiceDate  string // YYYYMMDD, derived when TripID is set
}
