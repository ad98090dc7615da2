package api

import (
	"context"

	"vehicle-tracker-backend/internal/ingest"
	"vehicle-tracker-backend/internal/store"
)

// Ingestor is the slice of the ingestion service the API needs.
type Ingestor interface {
	RunOnce(ctx context.Context) (*ingest.CycleReport, error)
	LastReport() *ingest.CycleReport
}

// HealthChecker reports whether the upstream feed currently answers.
type HealthChecker interface {
	HealthCheck(ctx context.Context) bool
}

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store    store.Store
	ingestor Ingestor
	feed     HealthChecker
}

// NewHandler creates a new API handler. ingestor and feed may be nil; the
// corresponding endpoints then report unavailable.
func NewHandler(s store.Store, ingestor Ingestor, feed HealthChecker) *Handler {
	return &Handler{
		store:    s,
		ingestor: ingestor,
		feed:     feed,
	}
}
