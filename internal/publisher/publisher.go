// Package publisher writes one vehicle's observation into the store: trip
// finalization, status keys, track append, state overwrite and the active
// index, in that order.
package publisher

import (
	"context"
	"fmt"
	"math"
	"time"

	"vehicle-tracker-backend/internal/enrich"
	"vehicle-tracker-backend/internal/model"
	"vehicle-tracker-backend/internal/store"
)

// Publisher applies a detected transition and the newest position to the
// store. It is safe for concurrent use across distinct vehicles; the pipeline
// never publishes the same vehicle from two workers at once.
type Publisher struct {
	store     store.Store
	catalog   *enrich.Catalog // nil when enrichment is disabled
	trackTail int64           // entries kept per finalized track, 0 keeps all
	now       func() time.Time
}

// New creates a publisher. catalog may be nil.
func New(st store.Store, catalog *enrich.Catalog, trackTail int64) *Publisher {
	return &Publisher{
		store:     st,
		catalog:   catalog,
		trackTail: trackTail,
		now:       time.Now,
	}
}

// Publish persists a vehicle observation. When the transition closes a trip
// instance, that instance is finalized before the new one is touched. Any
// store failure aborts the remaining steps for this vehicle, leaving the
// persisted state untouched so the next cycle re-detects the transition and
// retries.
//
// The returned update is ready for the real-time channel; it is nil when the
// write failed.
func (p *Publisher) Publish(ctx context.Context, pos *model.Position, tr *model.TripTransition) (*store.VehicleUpdate, error) {
	if tr.Kind == model.TransitionEnded || tr.Kind == model.TransitionSwitched {
		if err := p.finalize(ctx, tr.PrevTripID, tr.PrevServiceDate, pos); err != nil {
			return nil, fmt.Errorf("finalize trip %s/%s: %w", tr.PrevTripID, tr.PrevServiceDate, err)
		}
	}

	if pos.TripID != "" {
		// Marks a fresh instance active and refreshes the TTL on a running
		// one, so the status key outlives the vehicle's last report by the
		// active TTL and no longer.
		if err := p.store.SetTripStatus(ctx, pos.TripID, tr.NewServiceDate, store.StatusActive, store.ActiveStatusTTL); err != nil {
			return nil, err
		}
		entry := &model.TripPosition{
			VehicleID:    pos.VehicleID,
			Latitude:     pos.Latitude,
			Longitude:    pos.Longitude,
			Bearing:      pos.Bearing,
			Speed:        pos.Speed,
			Timestamp:    pos.Timestamp,
			Status:       pos.Status,
			StopID:       pos.StopID,
			StopSequence: pos.StopSequence,
			ServiceDate:  tr.NewServiceDate,
		}
		if _, err := p.store.AppendTripPosition(ctx, pos.TripID, tr.NewServiceDate, entry); err != nil {
			return nil, err
		}
	}

	state := p.buildState(pos, tr.NewServiceDate)
	if err := p.store.SetVehicleState(ctx, state); err != nil {
		return nil, err
	}
	if err := p.store.AddActiveVehicle(ctx, pos.VehicleID); err != nil {
		return nil, err
	}

	return &store.VehicleUpdate{
		VehicleID:   pos.VehicleID,
		TripID:      pos.TripID,
		RouteID:     pos.RouteID,
		Latitude:    pos.Latitude,
		Longitude:   pos.Longitude,
		Bearing:     pos.Bearing,
		Speed:       pos.Speed,
		Timestamp:   pos.Timestamp,
		ServiceDate: tr.NewServiceDate,
	}, nil
}

func (p *Publisher) buildState(pos *model.Position, serviceDate string) *model.VehicleState {
	state := &model.VehicleState{
		VehicleID:    pos.VehicleID,
		LicensePlate: pos.LicensePlate,
		TripID:       pos.TripID,
		RouteID:      pos.RouteID,
		Latitude:     pos.Latitude,
		Longitude:    pos.Longitude,
		Bearing:      pos.Bearing,
		Speed:        pos.Speed,
		Timestamp:    pos.Timestamp,
		Status:       pos.Status,
		StopID:       pos.StopID,
		StopSequence: pos.StopSequence,
		ServiceDate:  serviceDate,
		LastUpdated:  p.now().Unix(),
	}
	if p.catalog.Loaded() {
		vc := p.catalog.VehicleContext(pos.TripID, pos.RouteID, pos.StopID)
		state.RouteShortName = vc.RouteShortName
		state.RouteLongName = vc.RouteLongName
		state.TripHeadsign = vc.TripHeadsign
		state.StopName = vc.StopName
		state.DirectionID = vc.DirectionID

		if match, ok := p.catalog.MatchShape(pos.TripID, pos.Latitude, pos.Longitude); ok {
			dist := match.DistTraveled
			state.ShapeDistTraveled = &dist
			// The feed's own bearing wins when present.
			if state.Bearing == nil {
				bearing := match.Bearing
				state.Bearing = &bearing
			}
		}
	}
	return state
}

// finalize closes a trip instance: summarizes its track into a completion
// record, flips the status to completed and trims the track to its tail.
func (p *Publisher) finalize(ctx context.Context, tripID, serviceDate string, pos *model.Position) error {
	entries, err := p.store.GetFullTripTrack(ctx, tripID, serviceDate)
	if err != nil {
		return err
	}

	if len(entries) > 0 {
		completion := p.summarize(tripID, serviceDate, pos, entries)
		if err := p.store.SetTripCompletion(ctx, completion, store.CompletionTTL); err != nil {
			return err
		}
	}

	if err := p.store.SetTripStatus(ctx, tripID, serviceDate, store.StatusCompleted, store.CompletedStatusTTL); err != nil {
		return err
	}

	if p.trackTail > 0 && int64(len(entries)) > p.trackTail {
		if err := p.store.TrimTripTrack(ctx, tripID, serviceDate, p.trackTail); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) summarize(tripID, serviceDate string, pos *model.Position, entries []store.TrackEntry) *model.TripCompletion {
	positions := make([]*model.TripPosition, 0, len(entries))
	for _, e := range entries {
		positions = append(positions, model.TripPositionFromMap(e.Fields))
	}

	start := positions[0].Timestamp
	end := positions[0].Timestamp
	stops := make(map[int]struct{})
	var distance float64
	for i, tp := range positions {
		if tp.Timestamp < start {
			start = tp.Timestamp
		}
		if tp.Timestamp > end {
			end = tp.Timestamp
		}
		if tp.StopSequence != nil {
			stops[*tp.StopSequence] = struct{}{}
		}
		if i > 0 {
			prev := positions[i-1]
			distance += haversineMeters(prev.Latitude, prev.Longitude, tp.Latitude, tp.Longitude)
		}
	}

	completion := &model.TripCompletion{
		TripID:          tripID,
		ServiceDate:     serviceDate,
		VehicleID:       pos.VehicleID,
		LicensePlate:    pos.LicensePlate,
		StartTime:       start,
		EndTime:         end,
		DurationSeconds: end - start,
		TotalPositions:  len(positions),
		StopsServed:     len(stops),
		DistanceMeters:  distance,
		CompletedAt:     p.now().Unix(),
	}
	if completion.DurationSeconds > 0 {
		completion.AvgSpeedMPS = distance / float64(completion.DurationSeconds)
	}
	if p.catalog.Loaded() {
		vc := p.catalog.VehicleContext(tripID, "", "")
		completion.RouteShortName = vc.RouteShortName
		completion.RouteLongName = vc.RouteLongName
		completion.ScheduledStart, completion.ScheduledEnd = p.catalog.ScheduledWindow(tripID, serviceDate)
	}
	return completion
}

const earthRadiusMeters = 6371000.0

func haversineMeters(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := lat1 * math.Pi / 180
	phi2 := lat2 * math.Pi / 180
	dPhi := (lat2 - lat1) * math.Pi / 180
	dLambda := (lon2 - lon1) * math.Pi / 180

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	return earthRadiusMeters * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}
