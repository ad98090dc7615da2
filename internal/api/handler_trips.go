package api

import (
	"errors"
	"net/http"
	"regexp"
	"strconv"

	"github.com/gin-gonic/gin"

	"vehicle-tracker-backend/internal/model"
	"vehicle-tracker-backend/internal/store"
)

var serviceDatePattern = regexp.MustCompile(`^\d{8}$`)

// TrackPointResponse is one entry of a trip track.
type TrackPointResponse struct {
	ID           string   `json:"id"`
	VehicleID    string   `json:"vehicle_id"`
	Latitude     float64  `json:"latitude"`
	Longitude    float64  `json:"longitude"`
	Bearing      *float64 `json:"bearing,omitempty"`
	Speed        *float64 `json:"speed,omitempty"`
	Timestamp    int64    `json:"timestamp"`
	Status       string   `json:"status"`
	StopID       string   `json:"stop_id,omitempty"`
	StopSequence *int     `json:"stop_sequence,omitempty"`
}

// CompletionResponse is the finalized trip summary.
type CompletionResponse struct {
	TripID          string  `json:"trip_id"`
	ServiceDate     string  `json:"service_date"`
	VehicleID       string  `json:"vehicle_id"`
	LicensePlate    string  `json:"license_plate,omitempty"`
	StartTime       int64   `json:"start_time"`
	EndTime         int64   `json:"end_time"`
	DurationSeconds int64   `json:"duration_seconds"`
	TotalPositions  int     `json:"total_positions"`
	StopsServed     int     `json:"stops_served"`
	DistanceMeters  float64 `json:"distance_meters"`
	AvgSpeedMPS     float64 `json:"avg_speed_mps"`
	RouteShortName  string  `json:"route_short_name,omitempty"`
	RouteLongName   string  `json:"route_long_name,omitempty"`
	ScheduledStart  int64   `json:"scheduled_start,omitempty"`
	ScheduledEnd    int64   `json:"scheduled_end,omitempty"`
	CompletedAt     int64   `json:"completed_at"`
}

// tripInstance validates the path parameters shared by the trip endpoints.
func tripInstance(c *gin.Context) (string, string, bool) {
	tripID := c.Param("trip_id")
	serviceDate := c.Param("service_date")
	if tripID == "" || !serviceDatePattern.MatchString(serviceDate) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid trip ID or service date"})
		return "", "", false
	}
	return tripID, serviceDate, true
}

// GetTripTrack handles the GET /api/trips/{trip_id}/{service_date}/track
// request. The optional limit query caps the number of entries returned,
// oldest first.
func (h *Handler) GetTripTrack(c *gin.Context) {
	tripID, serviceDate, ok := tripInstance(c)
	if !ok {
		return
	}

	var entries []store.TrackEntry
	var err error
	if limitParam := c.Query("limit"); limitParam != "" {
		limit, parseErr := strconv.ParseInt(limitParam, 10, 64)
		if parseErr != nil || limit <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		entries, err = h.store.GetTripTrack(c.Request.Context(), tripID, serviceDate, limit)
	} else {
		entries, err = h.store.GetFullTripTrack(c.Request.Context(), tripID, serviceDate)
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve trip track"})
		return
	}

	points := make([]TrackPointResponse, 0, len(entries))
	for _, entry := range entries {
		tp := model.TripPositionFromMap(entry.Fields)
		points = append(points, TrackPointResponse{
			ID:           entry.ID,
			VehicleID:    tp.VehicleID,
			Latitude:     tp.Latitude,
			Longitude:    tp.Longitude,
			Bearing:      tp.Bearing,
			Speed:        tp.Speed,
			Timestamp:    tp.Timestamp,
			Status:       string(tp.Status),
			StopID:       tp.StopID,
			StopSequence: tp.StopSequence,
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"trip_id":      tripID,
		"service_date": serviceDate,
		"points":       points,
	})
}

// GetTripStatus handles the GET /api/trips/{trip_id}/{service_date}/status
// request.
func (h *Handler) GetTripStatus(c *gin.Context) {
	tripID, serviceDate, ok := tripInstance(c)
	if !ok {
		return
	}

	status, err := h.store.GetTripStatus(c.Request.Context(), tripID, serviceDate)
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Trip status not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve trip status"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"trip_id":      tripID,
		"service_date": serviceDate,
		"status":       status,
	})
}

// GetTripCompletion handles the GET
// /api/trips/{trip_id}/{service_date}/completion request.
func (h *Handler) GetTripCompletion(c *gin.Context) {
	tripID, serviceDate, ok := tripInstance(c)
	if !ok {
		return
	}

	completion, err := h.store.GetTripCompletion(c.Request.Context(), tripID, serviceDate)
	if errors.Is(err, store.ErrNotFound) {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "Trip completion not found"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve trip completion"})
		return
	}

	c.JSON(http.StatusOK, CompletionResponse{
		TripID:          completion.TripID,
		ServiceDate:     completion.ServiceDate,
		VehicleID:       completion.VehicleID,
		LicensePlate:    completion.LicensePlate,
		StartTime:       completion.StartTime,
		EndTime:         completion.EndTime,
		DurationSeconds: completion.DurationSeconds,
		TotalPositions:  completion.TotalPositions,
		StopsServed:     completion.StopsServed,
		DistanceMeters:  completion.DistanceMeters,
		AvgSpeedMPS:     completion.AvgSpeedMPS,
		RouteShortName:  completion.RouteShortName,
		RouteLongName:   completion.RouteLongName,
		ScheduledStart:  completion.ScheduledStart,
		ScheduledEnd:    completion.ScheduledEnd,
		CompletedAt:     completion.CompletedAt,
	})
}
