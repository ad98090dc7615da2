package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"vehicle-tracker-backend/internal/ingest"
)

// GetStats handles the GET /api/stats request. It combines store counts with
// the last completed cycle report.
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.store.Stats(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve stats"})
		return
	}

	resp := gin.H{
		"active_vehicles": stats.ActiveVehicles,
		"vehicle_states":  stats.VehicleStates,
		"trip_tracks":     stats.TripTracks,
	}
	if h.ingestor != nil {
		if report := h.ingestor.LastReport(); report != nil {
			resp["last_cycle"] = report
		}
	}
	c.JSON(http.StatusOK, resp)
}

// TriggerCycle handles the POST /api/trigger request. A cycle already in
// flight answers 409.
func (h *Handler) TriggerCycle(c *gin.Context) {
	if h.ingestor == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "Ingestion is not running"})
		return
	}

	report, err := h.ingestor.RunOnce(c.Request.Context())
	if errors.Is(err, ingest.ErrCycleRunning) {
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "A cycle is already running"})
		return
	}
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": "Cycle failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}

// Health handles the GET /health request. The store must answer; the feed
// check is advisory and only flips the reported state to degraded.
func (h *Handler) Health(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"store":  "down",
		})
		return
	}

	status := "ok"
	feedStatus := "ok"
	if h.feed != nil && !h.feed.HealthCheck(c.Request.Context()) {
		status = "degraded"
		feedStatus = "down"
	}
	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"store":  "ok",
		"feed":   feedStatus,
	})
}
