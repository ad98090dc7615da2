package publisher

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"vehicle-tracker-backend/internal/enrich"
	"vehicle-tracker-backend/internal/model"
	"vehicle-tracker-backend/internal/store"
)

func newTestPublisher(t *testing.T) (*Publisher, store.Store) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	st := store.NewRedisStore(client)
	p := New(st, nil, 10)
	p.now = func() time.Time { return time.Unix(1765000000, 0) }
	return p, st
}

func position(vehicleID, tripID string, ts int64, lat, lon float64) *model.Position {
	return &model.Position{
		VehicleID: vehicleID,
		TripID:    tripID,
		RouteID:   "R1",
		Latitude:  lat,
		Longitude: lon,
		Timestamp: ts,
		Status:    model.StatusInTransitTo,
	}
}

func transition(kind model.TransitionKind, vehicleID, prevTrip, prevSD, newTrip, newSD string, ts int64) *model.TripTransition {
	return &model.TripTransition{
		Kind:            kind,
		VehicleID:       vehicleID,
		PrevTripID:      prevTrip,
		PrevServiceDate: prevSD,
		NewTripID:       newTrip,
		NewServiceDate:  newSD,
		Timestamp:       ts,
	}
}

func TestPublish_StartedWritesEverything(t *testing.T) {
	p, st := newTestPublisher(t)
	ctx := context.Background()

	pos := position("V1", "T1", 1764950000, 38.71, -9.14)
	update, err := p.Publish(ctx, pos, transition(model.TransitionStarted, "V1", "", "", "T1", "20251205", pos.Timestamp))
	require.NoError(t, err)
	require.NotNil(t, update)
	assert.Equal(t, "V1", update.VehicleID)
	assert.Equal(t, "20251205", update.ServiceDate)

	status, err := st.GetTripStatus(ctx, "T1", "20251205")
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, status)

	track, err := st.GetFullTripTrack(ctx, "T1", "20251205")
	require.NoError(t, err)
	require.Len(t, track, 1)
	assert.Equal(t, "V1", track[0].Fields["vehicle_id"])
	assert.Equal(t, "20251205", track[0].Fields["service_date"])

	state, err := st.GetVehicleState(ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, "T1", state.TripID)
	assert.Equal(t, "20251205", state.ServiceDate)
	assert.Equal(t, int64(1765000000), state.LastUpdated)

	active, err := st.ActiveVehicles(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"V1"}, active)
}

func TestPublish_NoTripSkipsTrack(t *testing.T) {
	p, st := newTestPublisher(t)
	ctx := context.Background()

	pos := position("V1", "", 1764950000, 38.71, -9.14)
	update, err := p.Publish(ctx, pos, transition(model.TransitionNone, "V1", "", "", "", "", pos.Timestamp))
	require.NoError(t, err)
	assert.Empty(t, update.TripID)

	state, err := st.GetVehicleState(ctx, "V1")
	require.NoError(t, err)
	assert.Empty(t, state.TripID)
	assert.Empty(t, state.ServiceDate)
}

func TestPublish_EndedFinalizesPreviousTrip(t *testing.T) {
	p, st := newTestPublisher(t)
	ctx := context.Background()

	// Build a three-point track: two km northward over 600 seconds.
	base := int64(1764950000)
	points := []struct {
		lat float64
		seq int
	}{{38.710, 1}, {38.719, 2}, {38.728, 3}}
	for i, pt := range points {
		pos := position("V1", "T1", base+int64(i*300), pt.lat, -9.14)
		seq := pt.seq
		pos.StopSequence = &seq
		kind := model.TransitionNone
		if i == 0 {
			kind = model.TransitionStarted
		}
		_, err := p.Publish(ctx, pos, transition(kind, "V1", "", "", "T1", "20251205", pos.Timestamp))
		require.NoError(t, err)
	}

	// Trip drops off the feed.
	pos := position("V1", "", base+900, 38.728, -9.14)
	_, err := p.Publish(ctx, pos, transition(model.TransitionEnded, "V1", "T1", "20251205", "", "", pos.Timestamp))
	require.NoError(t, err)

	status, err := st.GetTripStatus(ctx, "T1", "20251205")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, status)

	completion, err := st.GetTripCompletion(ctx, "T1", "20251205")
	require.NoError(t, err)
	assert.Equal(t, "V1", completion.VehicleID)
	assert.Equal(t, base, completion.StartTime)
	assert.Equal(t, base+600, completion.EndTime)
	assert.Equal(t, int64(600), completion.DurationSeconds)
	assert.Equal(t, 3, completion.TotalPositions)
	assert.Equal(t, 3, completion.StopsServed)
	assert.InDelta(t, 2000, completion.DistanceMeters, 50)
	assert.InDelta(t, 3.33, completion.AvgSpeedMPS, 0.2)
	assert.Equal(t, int64(1765000000), completion.CompletedAt)
}

func TestPublish_SwitchedFinalizesOldAndStartsNew(t *testing.T) {
	p, st := newTestPublisher(t)
	ctx := context.Background()

	base := int64(1764950000)
	pos := position("V1", "T1", base, 38.71, -9.14)
	_, err := p.Publish(ctx, pos, transition(model.TransitionStarted, "V1", "", "", "T1", "20251205", base))
	require.NoError(t, err)

	pos = position("V1", "T2", base+300, 38.72, -9.14)
	_, err = p.Publish(ctx, pos, transition(model.TransitionSwitched, "V1", "T1", "20251205", "T2", "20251205", base+300))
	require.NoError(t, err)

	oldStatus, err := st.GetTripStatus(ctx, "T1", "20251205")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, oldStatus)

	newStatus, err := st.GetTripStatus(ctx, "T2", "20251205")
	require.NoError(t, err)
	assert.Equal(t, store.StatusActive, newStatus)

	// Old track survives finalization, new track has the switch point.
	oldTrack, err := st.GetFullTripTrack(ctx, "T1", "20251205")
	require.NoError(t, err)
	assert.Len(t, oldTrack, 1)
	newTrack, err := st.GetFullTripTrack(ctx, "T2", "20251205")
	require.NoError(t, err)
	assert.Len(t, newTrack, 1)

	_, err = st.GetTripCompletion(ctx, "T1", "20251205")
	require.NoError(t, err)
}

func TestPublish_EndedWithEmptyTrackSkipsCompletion(t *testing.T) {
	p, st := newTestPublisher(t)
	ctx := context.Background()

	// Previous state claims a trip whose track never materialized.
	pos := position("V1", "", 1764950000, 38.71, -9.14)
	_, err := p.Publish(ctx, pos, transition(model.TransitionEnded, "V1", "T9", "20251205", "", "", pos.Timestamp))
	require.NoError(t, err)

	status, err := st.GetTripStatus(ctx, "T9", "20251205")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, status)

	_, err = st.GetTripCompletion(ctx, "T9", "20251205")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

// flakyStore fails a fixed number of track reads before recovering.
type flakyStore struct {
	store.Store
	trackReadFailures int
}

func (f *flakyStore) GetFullTripTrack(ctx context.Context, tripID, serviceDate string) ([]store.TrackEntry, error) {
	if f.trackReadFailures > 0 {
		f.trackReadFailures--
		return nil, errors.New("store timeout")
	}
	return f.Store.GetFullTripTrack(ctx, tripID, serviceDate)
}

func TestPublish_FinalizationFailureAbortsVehicle(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	flaky := &flakyStore{Store: store.NewRedisStore(client), trackReadFailures: 1}
	p := New(flaky, nil, 10)
	p.now = func() time.Time { return time.Unix(1765000000, 0) }
	ctx := context.Background()

	base := int64(1764950000)
	pos := position("V1", "T1", base, 38.71, -9.14)
	_, err := p.Publish(ctx, pos, transition(model.TransitionStarted, "V1", "", "", "T1", "20251205", base))
	require.NoError(t, err)

	// The switch hits the flaky track read while finalizing T1.
	pos = position("V1", "T2", base+300, 38.72, -9.14)
	tr := transition(model.TransitionSwitched, "V1", "T1", "20251205", "T2", "20251205", base+300)
	update, err := p.Publish(ctx, pos, tr)
	require.Error(t, err)
	assert.Nil(t, update)

	// State is untouched, so the next cycle re-detects the same switch.
	state, err := flaky.GetVehicleState(ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, "T1", state.TripID)
	_, err = flaky.GetTripCompletion(ctx, "T1", "20251205")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = flaky.GetTripStatus(ctx, "T2", "20251205")
	assert.ErrorIs(t, err, store.ErrNotFound)

	// The retried publish finalizes T1 exactly once and lands T2.
	_, err = p.Publish(ctx, pos, tr)
	require.NoError(t, err)

	status, err := flaky.GetTripStatus(ctx, "T1", "20251205")
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, status)
	completion, err := flaky.GetTripCompletion(ctx, "T1", "20251205")
	require.NoError(t, err)
	assert.Equal(t, 1, completion.TotalPositions)
	state, err = flaky.GetVehicleState(ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, "T2", state.TripID)
}

func TestPublish_FinalizationTrimsTrackTail(t *testing.T) {
	p, st := newTestPublisher(t)
	p.trackTail = 2
	ctx := context.Background()

	base := int64(1764950000)
	for i := 0; i < 5; i++ {
		pos := position("V1", "T1", base+int64(i*60), 38.71+float64(i)*0.001, -9.14)
		kind := model.TransitionNone
		if i == 0 {
			kind = model.TransitionStarted
		}
		_, err := p.Publish(ctx, pos, transition(kind, "V1", "", "", "T1", "20251205", pos.Timestamp))
		require.NoError(t, err)
	}

	pos := position("V1", "", base+600, 38.716, -9.14)
	_, err := p.Publish(ctx, pos, transition(model.TransitionEnded, "V1", "T1", "20251205", "", "", pos.Timestamp))
	require.NoError(t, err)

	track, err := st.GetFullTripTrack(ctx, "T1", "20251205")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(track), 2)

	// The completion summary saw the full five points before the trim.
	completion, err := st.GetTripCompletion(ctx, "T1", "20251205")
	require.NoError(t, err)
	assert.Equal(t, 5, completion.TotalPositions)
}

func TestPublish_EnrichesFromCatalog(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "gtfs.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&enrich.Route{}, &enrich.Trip{}, &enrich.Stop{}, &enrich.StopTime{}, &enrich.ShapePoint{}))
	require.NoError(t, db.Create(&enrich.Route{RouteID: "R1", ShortName: "728", LongName: "Restelo - Portela"}).Error)
	require.NoError(t, db.Create(&enrich.Trip{TripID: "T1", RouteID: "R1", ShapeID: "SH1", Headsign: "Portela", DirectionID: 1}).Error)
	require.NoError(t, db.Create([]enrich.ShapePoint{
		{ShapeID: "SH1", Sequence: 1, Lat: 38.710, Lon: -9.14},
		{ShapeID: "SH1", Sequence: 2, Lat: 38.728, Lon: -9.14},
	}).Error)

	catalog := enrich.NewCatalog(db, time.UTC)
	require.NoError(t, catalog.Load(context.Background()))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	st := store.NewRedisStore(client)
	p := New(st, catalog, 10)

	ctx := context.Background()
	pos := position("V1", "T1", 1764950000, 38.719, -9.14)
	_, err = p.Publish(ctx, pos, transition(model.TransitionStarted, "V1", "", "", "T1", "20251205", pos.Timestamp))
	require.NoError(t, err)

	state, err := st.GetVehicleState(ctx, "V1")
	require.NoError(t, err)
	assert.Equal(t, "728", state.RouteShortName)
	assert.Equal(t, "Portela", state.TripHeadsign)
	require.NotNil(t, state.DirectionID)
	assert.Equal(t, 1, *state.DirectionID)
	require.NotNil(t, state.ShapeDistTraveled)
	assert.InDelta(t, 1000, *state.ShapeDistTraveled, 50)
	// The feed carried no bearing, so the shape's stands in.
	require.NotNil(t, state.Bearing)
	assert.InDelta(t, 0, *state.Bearing, 1)
}
