package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"vehicle-tracker-backend/config"
	"vehicle-tracker-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router. metricsHandler may be
// nil, in which case /metrics is not mounted.
func NewRouter(cfg *config.ServerConfig, handler *Handler, metricsHandler http.Handler) *gin.Engine {
	r := gin.Default()

	limit := rate.Limit(cfg.RateLimitPerSec)
	if limit <= 0 {
		limit = rate.Limit(10)
	}
	rateLimiter := mw.RateLimiter(limit, int(limit)+5, cfg.RequestIPHeader)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Second
	}
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)

	r.GET("/health", handler.Health)
	if metricsHandler != nil {
		r.GET("/metrics", gin.WrapH(metricsHandler))
	}

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		// Reads are cached for a short window; positions only change once
		// per ingestion cycle anyway.
		api.GET("/vehicles", caching, handler.GetVehicles)
		api.GET("/vehicles/:vehicle_id", caching, handler.GetVehicle)

		api.GET("/trips/:trip_id/:service_date/track", caching, handler.GetTripTrack)
		api.GET("/trips/:trip_id/:service_date/status", handler.GetTripStatus)
		api.GET("/trips/:trip_id/:service_date/completion", caching, handler.GetTripCompletion)

		api.GET("/stats", handler.GetStats)
		api.POST("/trigger", handler.TriggerCycle)
	}

	return r
}
