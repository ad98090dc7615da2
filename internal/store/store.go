package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"vehicle-tracker-backend/internal/model"
)

// ErrNotFound is returned when a vehicle, track, status or completion key
// does not exist (or has expired).
var ErrNotFound = errors.New("store: not found")

const (
	activeVehiclesKey = "active_vehicles"
	updatesChannel    = "vehicle:updates"
)

// Store defines every operation the pipeline and the API perform against the
// shared store. All trip-scoped operations require the (tripID, serviceDate)
// pair; there is no single-key addressing mode, so callers cannot touch the
// wrong day's instance by accident.
type Store interface {
	Ping(ctx context.Context) error

	// Vehicle state (field map, one per vehicle).
	SetVehicleState(ctx context.Context, state *model.VehicleState) error
	GetVehicleState(ctx context.Context, vehicleID string) (*model.VehicleState, error)

	// Trip track (append-only ordered log per trip instance).
	AppendTripPosition(ctx context.Context, tripID, serviceDate string, pos *model.TripPosition) (string, error)
	GetTripTrack(ctx context.Context, tripID, serviceDate string, count int64) ([]TrackEntry, error)
	GetFullTripTrack(ctx context.Context, tripID, serviceDate string) ([]TrackEntry, error)
	TrimTripTrack(ctx context.Context, tripID, serviceDate string, maxLen int64) error

	// Trip status (scalar with expiration).
	SetTripStatus(ctx context.Context, tripID, serviceDate, status string, ttl time.Duration) error
	GetTripStatus(ctx context.Context, tripID, serviceDate string) (string, error)

	// Trip completion summary.
	SetTripCompletion(ctx context.Context, completion *model.TripCompletion, ttl time.Duration) error
	GetTripCompletion(ctx context.Context, tripID, serviceDate string) (*model.TripCompletion, error)

	// Active-vehicle index.
	AddActiveVehicle(ctx context.Context, vehicleID string) error
	RemoveActiveVehicle(ctx context.Context, vehicleID string) error
	ActiveVehicles(ctx context.Context) ([]string, error)

	// Real-time update channel.
	PublishVehicleUpdate(ctx context.Context, update *VehicleUpdate) error

	Stats(ctx context.Context) (*Stats, error)
}

// redisStore implements Store on a Redis client.
type redisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed store.
func NewRedisStore(client *redis.Client) Store {
	return &redisStore{client: client}
}

func vehicleKey(vehicleID string) string {
	return "vehicle:" + vehicleID
}

func tripTrackKey(tripID, serviceDate string) string {
	return fmt.Sprintf("trip:%s:%s:track", tripID, serviceDate)
}

func tripStatusKey(tripID, serviceDate string) string {
	return fmt.Sprintf("trip:%s:%s:status", tripID, serviceDate)
}

func tripCompletionKey(tripID, serviceDate string) string {
	return fmt.Sprintf("trip:%s:%s:completion", tripID, serviceDate)
}

func (s *redisStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("store ping: %w", err)
	}
	return nil
}

func (s *redisStore) SetVehicleState(ctx context.Context, state *model.VehicleState) error {
	if err := s.client.HSet(ctx, vehicleKey(state.VehicleID), state.ToMap()).Err(); err != nil {
		return fmt.Errorf("set vehicle state %s: %w", state.VehicleID, err)
	}
	return nil
}

func (s *redisStore) GetVehicleState(ctx context.Context, vehicleID string) (*model.VehicleState, error) {
	m, err := s.client.HGetAll(ctx, vehicleKey(vehicleID)).Result()
	if err != nil {
		return nil, fmt.Errorf("get vehicle state %s: %w", vehicleID, err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return model.VehicleStateFromMap(m), nil
}

func (s *redisStore) AppendTripPosition(ctx context.Context, tripID, serviceDate string, pos *model.TripPosition) (string, error) {
	id, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: tripTrackKey(tripID, serviceDate),
		Values: toInterfaceMap(pos.ToMap()),
	}).Result()
	if err != nil {
		return "", fmt.Errorf("append trip position %s/%s: %w", tripID, serviceDate, err)
	}
	return id, nil
}

func (s *redisStore) GetTripTrack(ctx context.Context, tripID, serviceDate string, count int64) ([]TrackEntry, error) {
	msgs, err := s.client.XRangeN(ctx, tripTrackKey(tripID, serviceDate), "-", "+", count).Result()
	if err != nil {
		return nil, fmt.Errorf("read trip track %s/%s: %w", tripID, serviceDate, err)
	}
	return toTrackEntries(msgs), nil
}

func (s *redisStore) GetFullTripTrack(ctx context.Context, tripID, serviceDate string) ([]TrackEntry, error) {
	msgs, err := s.client.XRange(ctx, tripTrackKey(tripID, serviceDate), "-", "+").Result()
	if err != nil {
		return nil, fmt.Errorf("read full trip track %s/%s: %w", tripID, serviceDate, err)
	}
	return toTrackEntries(msgs), nil
}

func (s *redisStore) TrimTripTrack(ctx context.Context, tripID, serviceDate string, maxLen int64) error {
	if err := s.client.XTrimMaxLenApprox(ctx, tripTrackKey(tripID, serviceDate), maxLen, 0).Err(); err != nil {
		return fmt.Errorf("trim trip track %s/%s: %w", tripID, serviceDate, err)
	}
	return nil
}

func (s *redisStore) SetTripStatus(ctx context.Context, tripID, serviceDate, status string, ttl time.Duration) error {
	if err := s.client.Set(ctx, tripStatusKey(tripID, serviceDate), status, ttl).Err(); err != nil {
		return fmt.Errorf("set trip status %s/%s: %w", tripID, serviceDate, err)
	}
	return nil
}

func (s *redisStore) GetTripStatus(ctx context.Context, tripID, serviceDate string) (string, error) {
	status, err := s.client.Get(ctx, tripStatusKey(tripID, serviceDate)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get trip status %s/%s: %w", tripID, serviceDate, err)
	}
	return status, nil
}

func (s *redisStore) SetTripCompletion(ctx context.Context, completion *model.TripCompletion, ttl time.Duration) error {
	key := tripCompletionKey(completion.TripID, completion.ServiceDate)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, completion.ToMap())
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set trip completion %s/%s: %w", completion.TripID, completion.ServiceDate, err)
	}
	return nil
}

func (s *redisStore) GetTripCompletion(ctx context.Context, tripID, serviceDate string) (*model.TripCompletion, error) {
	m, err := s.client.HGetAll(ctx, tripCompletionKey(tripID, serviceDate)).Result()
	if err != nil {
		return nil, fmt.Errorf("get trip completion %s/%s: %w", tripID, serviceDate, err)
	}
	if len(m) == 0 {
		return nil, ErrNotFound
	}
	return model.TripCompletionFromMap(m), nil
}

func (s *redisStore) AddActiveVehicle(ctx context.Context, vehicleID string) error {
	if err := s.client.SAdd(ctx, activeVehiclesKey, vehicleID).Err(); err != nil {
		return fmt.Errorf("add active vehicle %s: %w", vehicleID, err)
	}
	return nil
}

func (s *redisStore) RemoveActiveVehicle(ctx context.Context, vehicleID string) error {
	if err := s.client.SRem(ctx, activeVehiclesKey, vehicleID).Err(); err != nil {
		return fmt.Errorf("remove active vehicle %s: %w", vehicleID, err)
	}
	return nil
}

func (s *redisStore) ActiveVehicles(ctx context.Context) ([]string, error) {
	ids, err := s.client.SMembers(ctx, activeVehiclesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list active vehicles: %w", err)
	}
	return ids, nil
}

func (s *redisStore) PublishVehicleUpdate(ctx context.Context, update *VehicleUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("marshal vehicle update %s: %w", update.VehicleID, err)
	}
	if err := s.client.Publish(ctx, updatesChannel, payload).Err(); err != nil {
		return fmt.Errorf("publish vehicle update %s: %w", update.VehicleID, err)
	}
	return nil
}

func (s *redisStore) Stats(ctx context.Context) (*Stats, error) {
	active, err := s.client.SCard(ctx, activeVehiclesKey).Result()
	if err != nil {
		return nil, fmt.Errorf("count active vehicles: %w", err)
	}

	vehicles, err := s.countKeys(ctx, "vehicle:*")
	if err != nil {
		return nil, err
	}
	tracks, err := s.countKeys(ctx, "trip:*:*:track")
	if err != nil {
		return nil, err
	}

	return &Stats{
		ActiveVehicles: active,
		VehicleStates:  vehicles,
		TripTracks:     tracks,
	}, nil
}

// countKeys walks the keyspace with SCAN so stats never block the store.
func (s *redisStore) countKeys(ctx context.Context, pattern string) (int64, error) {
	var count int64
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, 200).Result()
		if err != nil {
			return 0, fmt.Errorf("scan %q: %w", pattern, err)
		}
		count += int64(len(keys))
		cursor = next
		if cursor == 0 {
			return count, nil
		}
	}
}

func toInterfaceMap(m map[string]string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toTrackEntries(msgs []redis.XMessage) []TrackEntry {
	entries := make([]TrackEntry, 0, len(msgs))
	for _, msg := range msgs {
		fields := make(map[string]string, len(msg.Values))
		for k, v := range msg.Values {
			if s, ok := v.(string); ok {
				fields[k] = s
			}
		}
		entries = append(entries, TrackEntry{ID: msg.ID, Fields: fields})
	}
	return entries
}
