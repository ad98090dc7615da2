package feed

import (
	"log"
	"time"

	gtfsrt "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"

	"vehicle-tracker-backend/internal/model"
	"vehicle-tracker-backend/internal/servicedate"
)

// Normalizer turns raw feed entities into Position records. Malformed
// entities are dropped one by one; they never fail the whole feed.
type Normalizer struct {
	loc    *time.Location
	maxAge time.Duration // positions older than this are dropped, 0 disables
	now    func() time.Time
}

// NewNormalizer creates a normalizer for the given local timezone.
func NewNormalizer(loc *time.Location, maxAge time.Duration) *Normalizer {
	return &Normalizer{loc: loc, maxAge: maxAge, now: time.Now}
}

// Normalize extracts every usable vehicle position from the feed.
func (n *Normalizer) Normalize(fm *gtfsrt.FeedMessage) []model.Position {
	if fm == nil {
		return nil
	}

	positions := make([]model.Position, 0, len(fm.Entity))
	for _, entity := range fm.Entity {
		vp := entity.GetVehicle()
		if vp == nil {
			continue
		}
		pos, ok := n.normalizeVehicle(vp)
		if !ok {
			log.Printf("Dropping malformed vehicle entity %q", entity.GetId())
			continue
		}
		if pos == nil {
			continue // stale, already counted out
		}
		positions = append(positions, *pos)
	}
	return positions
}

// normalizeVehicle maps one VehiclePosition entity. The bool result reports
// validity; a nil position with ok=true means the record was valid but stale.
func (n *Normalizer) normalizeVehicle(vp *gtfsrt.VehiclePosition) (*model.Position, bool) {
	desc := vp.GetVehicle()
	if desc.GetId() == "" {
		return nil, false
	}
	raw := vp.GetPosition()
	if raw == nil {
		return nil, false
	}

	now := n.now()
	ts := int64(vp.GetTimestamp())
	if ts == 0 {
		ts = now.Unix()
	}
	if n.maxAge > 0 && now.Unix()-ts > int64(n.maxAge.Seconds()) {
		return nil, true
	}

	pos := &model.Position{
		VehicleID:    desc.GetId(),
		LicensePlate: desc.GetLicensePlate(),
		Latitude:     float64(raw.GetLatitude()),
		Longitude:    float64(raw.GetLongitude()),
		Timestamp:    ts,
		Status:       movementStatus(vp),
		StopID:       vp.GetStopId(),
	}
	if raw.Bearing != nil {
		b := float64(raw.GetBearing())
		pos.Bearing = &b
	}
	if raw.Speed != nil {
		s := float64(raw.GetSpeed())
		pos.Speed = &s
	}
	if trip := vp.GetTrip(); trip != nil {
		pos.TripID = trip.GetTripId()
		pos.RouteID = trip.GetRouteId()
	}
	if vp.CurrentStopSequence != nil {
		seq := int(vp.GetCurrentStopSequence())
		pos.StopSequence = &seq
	}
	if pos.TripID != "" {
		pos.ServiceDate = time.Unix(ts, 0).In(n.loc).Format(servicedate.Layout)
	}
	return pos, true
}

func movementStatus(vp *gtfsrt.VehiclePosition) model.MovementStatus {
	if vp.CurrentStatus == nil {
		return model.StatusUnknown
	}
	switch vp.GetCurrentStatus() {
	case gtfsrt.VehiclePosition_INCOMING_AT:
		return model.StatusIncomingAt
	case gtfsrt.VehiclePosition_STOPPED_AT:
		return model.StatusStoppedAt
	case gtfsrt.VehiclePosition_IN_TRANSIT_TO:
		return model.StatusInTransitTo
	default:
		return model.StatusUnknown
	}
}
