package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vehicle-tracker-backend/config"
	"vehicle-tracker-backend/internal/ingest"
	"vehicle-tracker-backend/internal/model"
	"vehicle-tracker-backend/internal/store"
)

type stubIngestor struct {
	report *ingest.CycleReport
	err    error
}

func (s *stubIngestor) RunOnce(context.Context) (*ingest.CycleReport, error) {
	return s.report, s.err
}

func (s *stubIngestor) LastReport() *ingest.CycleReport { return s.report }

func setupRouter(t *testing.T, ingestor Ingestor) (*gin.Engine, store.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	st := store.NewRedisStore(client)

	cfg := &config.ServerConfig{RateLimitPerSec: 1000, CacheTTLSeconds: 1}
	router := NewRouter(cfg, NewHandler(st, ingestor, nil), nil)
	return router, st
}

func seedVehicle(t *testing.T, st store.Store, vehicleID, tripID, serviceDate string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, st.SetVehicleState(ctx, &model.VehicleState{
		VehicleID:   vehicleID,
		TripID:      tripID,
		Latitude:    38.71,
		Longitude:   -9.14,
		Timestamp:   1764950000,
		Status:      model.StatusInTransitTo,
		ServiceDate: serviceDate,
	}))
	require.NoError(t, st.AddActiveVehicle(ctx, vehicleID))
}

func TestGetVehicles(t *testing.T) {
	router, st := setupRouter(t, nil)
	seedVehicle(t, st, "V1", "T1", "20251205")
	seedVehicle(t, st, "V2", "", "")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/vehicles", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp []VehicleResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "V1", resp[0].VehicleID)
	assert.Equal(t, "T1", resp[0].TripID)
	assert.Equal(t, "20251205", resp[0].ServiceDate)
	assert.Equal(t, "V2", resp[1].VehicleID)
}

func TestGetVehicle_NotFound(t *testing.T) {
	router, _ := setupRouter(t, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/vehicles/NOPE", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestGetTripStatus(t *testing.T) {
	router, st := setupRouter(t, nil)
	ctx := context.Background()
	require.NoError(t, st.SetTripStatus(ctx, "T1", "20251205", store.StatusActive, time.Hour))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/trips/T1/20251205/status", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"trip_id":"T1","service_date":"20251205","status":"active"}`, w.Body.String())
}

func TestGetTripStatus_BadServiceDate(t *testing.T) {
	router, _ := setupRouter(t, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/trips/T1/yesterday/status", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetTripTrack_Limit(t *testing.T) {
	router, st := setupRouter(t, nil)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		_, err := st.AppendTripPosition(ctx, "T1", "20251205", &model.TripPosition{
			VehicleID: "V1",
			Latitude:  38.71 + float64(i)*0.001,
			Longitude: -9.14,
			Timestamp: 1764950000 + int64(i*60),
			Status:    model.StatusInTransitTo,
		})
		require.NoError(t, err)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/trips/T1/20251205/track?limit=3", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp struct {
		Points []TrackPointResponse `json:"points"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Points, 3)
	assert.Equal(t, int64(1764950000), resp.Points[0].Timestamp)
}

func TestGetTripCompletion(t *testing.T) {
	router, st := setupRouter(t, nil)
	ctx := context.Background()
	require.NoError(t, st.SetTripCompletion(ctx, &model.TripCompletion{
		TripID:          "T1",
		ServiceDate:     "20251205",
		VehicleID:       "V1",
		StartTime:       1764950000,
		EndTime:         1764951800,
		DurationSeconds: 1800,
		TotalPositions:  30,
		StopsServed:     12,
		DistanceMeters:  8421.5,
		AvgSpeedMPS:     4.68,
		CompletedAt:     1764951900,
	}, time.Hour))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/trips/T1/20251205/completion", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp CompletionResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 30, resp.TotalPositions)
	assert.Equal(t, 12, resp.StopsServed)
	assert.InDelta(t, 8421.5, resp.DistanceMeters, 0.01)

	w = httptest.NewRecorder()
	req, _ = http.NewRequest(http.MethodGet, "/api/trips/T2/20251205/completion", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestTriggerCycle(t *testing.T) {
	report := &ingest.CycleReport{Fetched: 7, Published: 7}
	router, _ := setupRouter(t, &stubIngestor{report: report})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/trigger", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp ingest.CycleReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 7, resp.Fetched)
}

func TestTriggerCycle_Busy(t *testing.T) {
	router, _ := setupRouter(t, &stubIngestor{err: ingest.ErrCycleRunning})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodPost, "/api/trigger", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestGetStats(t *testing.T) {
	router, st := setupRouter(t, &stubIngestor{report: &ingest.CycleReport{Published: 3}})
	seedVehicle(t, st, "V1", "T1", "20251205")

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/api/stats", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var resp map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Contains(t, resp, "active_vehicles")
	assert.Contains(t, resp, "last_cycle")
}

func TestHealth(t *testing.T) {
	router, _ := setupRouter(t, nil)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","store":"ok","feed":"ok"}`, w.Body.String())
}
