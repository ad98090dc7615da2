package api

import (
	"errors"
	"log"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"vehicle-tracker-backend/internal/model"
	"vehicle-tracker-backend/internal/store"
)

// VehicleResponse represents the API response for a single vehicle.
type VehicleResponse struct {
	VehicleID    string   `json:"vehicle_id"`
	LicensePlate string   `json:"license_plate,omitempty"`
	TripID       string   `json:"trip_id,omitempty"`
	RouteID      string   `json:"route_id,omitempty"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	Bearing      *float64 `json:"bearing,omitempty"`
	Speed        *float64 `json:"speed,omitempty"`
	Timestamp    int64    `json:"timestamp"`
	Status       string   `json:"status"`
	StopID       string   `json:"stop_id,omitempty"`
	StopSequence *int     `json:"stop_sequence,omitempty"`
	ServiceDate  string   `json:"service_date,omitempty"`
	LastUpdated  int64    `json:"last_updated"`

	RouteShortName    string   `json:"route_short_name,omitempty"`
	RouteLongName     string   `json:"route_long_name,omitempty"`
	TripHeadsign      string   `json:"trip_headsign,omitempty"`
	StopName          string   `json:"stop_name,omitempty"`
	DirectionID       *int     `json:"direction_id,omitempty"`
	ShapeDistTraveled *float64 `json:"shape_dist_traveled,omitempty"`
}

func vehicleResponse(state *model.VehicleState) VehicleResponse {
	return VehicleResponse{
		VehicleID:         state.VehicleID,
		LicensePlate:      state.LicensePlate,
		TripID:            state.TripID,
		RouteID:           state.RouteID,
		Latitude:          state.Latitude,
		Longitude:         state.Longitude,
		Bearing:           state.Bearing,
		Speed:             state.Speed,
		Timestamp:         state.Timestamp,
		Status:            string(state.Status),
		StopID:            state.StopID,
		StopSequence:      state.StopSequence,
		ServiceDate:       state.ServiceDate,
		LastUpdated:       state.LastUpdated,
		RouteShortName:    state.RouteShortName,
		RouteLongName:     state.RouteLongName,
		TripHeadsign:      state.TripHeadsign,
		StopName:          state.StopName,
		DirectionID:       state.DirectionID,
		ShapeDistTraveled: state.ShapeDistTraveled,
	}
}

// GetVehicles handles the GET /api/vehicles request. It returns the state of
// every vehicle in the active index.
func (h *Handler) GetVehicles(c *gin.Context) {
	ids, err := h.store.ActiveVehicles(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve active vehicles"})
		return
	}
	sort.Strings(ids)

	responses := make([]VehicleResponse, 0, len(ids))
	for _, id := range ids {
		state, err := h.store.GetVehicleState(c.Request.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			// Index and state can drift between cycles; skip the orphan.
			continue
		}
		if err != nil {
			log.Printf("Failed to read state for vehicle %s: %v", id, err)
			continue
		}
		responses = append(responses, vehicleResponse(state))
	}
	c.JSON(http.StatusOK, responses)
}

// GetVehicle handles the GET /api/vehicles/{vehicle_id} request.
func (h *Handler) GetVehicle(c *gin.Context) {
	vehicleID := c.Param("vehicle_id")

	state, err := h.store.GetVehicleState(c.Request.Context(), vehicleID)
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Vehicle not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve vehicle"})
		return
	}
	c.JSON(http.StatusOK, vehicleResponse(state))
}
