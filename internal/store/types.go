package store

import "time"

// TTLs for self-cleaning trip keys. The active TTL is refreshed on every
// position append, so an abandoned trip's status key expires one hour after
// the vehicle's last report.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"

	ActiveStatusTTL    = time.Hour
	CompletedStatusTTL = 24 * time.Hour
	CompletionTTL      = 24 * time.Hour
)

// TrackEntry is one entry of a trip track, addressed by its stream entry id.
type TrackEntry struct {
	ID     string            `json:"id"`
	Fields map[string]string `json:"fields"`
}

// Stats summarizes what the store currently tracks.
type Stats struct {
	ActiveVehicles int64 `json:"active_vehicles"`
	VehicleStates  int64 `json:"vehicle_states"`
	TripTracks     int64 `json:"trip_tracks"`
}

// VehicleUpdate is the real-time event published on the vehicle:updates
// channel after each successful vehicle publish.
type VehicleUpdate struct {
	VehicleID   string   `json:"vehicle_id"`
	TripID      string   `json:"trip_id,omitempty"`
	RouteID     string   `json:"route_id,omitempty"`
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	Bearing     *float64 `json:"bearing,omitempty"`
	Speed       *float64 `json:"speed,omitempty"`
	Timestamp   int64    `json:"timestamp"`
	ServiceDate string   `json:"service_date,omitempty"`
}
