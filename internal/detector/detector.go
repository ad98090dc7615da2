// Package detector decides whether a trip boundary occurred between a
// vehicle's previous persisted state and its newest position.
package detector

import (
	"time"

	"vehicle-tracker-backend/internal/model"
	"vehicle-tracker-backend/internal/servicedate"
)

// Detector classifies trip transitions. It performs no I/O; the caller reads
// the previous state from the store and applies the resulting transition.
type Detector struct {
	loc *time.Location
}

// New creates a detector resolving service dates in the given timezone.
func New(loc *time.Location) *Detector {
	return &Detector{loc: loc}
}

// Detect compares the position's trip assignment against the previous state
// (nil when the vehicle has never been seen) and returns the transition.
//
// A vehicle that reappears with the same trip id after missing one or more
// cycles is classified as no change: fetch gaps do not break trip continuity.
func (d *Detector) Detect(pos *model.Position, prev *model.VehicleState) (*model.TripTransition, error) {
	prevTripID := ""
	prevServiceDate := ""
	if prev != nil {
		prevTripID = prev.TripID
		prevServiceDate = prev.ServiceDate
	}

	newServiceDate, err := d.resolveServiceDate(pos, prevServiceDate, prevTripID)
	if err != nil {
		return nil, err
	}

	tr := &model.TripTransition{
		Kind:            model.TransitionNone,
		VehicleID:       pos.VehicleID,
		PrevTripID:      prevTripID,
		PrevServiceDate: prevServiceDate,
		NewTripID:       pos.TripID,
		NewServiceDate:  newServiceDate,
		Timestamp:       pos.Timestamp,
	}

	switch {
	case prevTripID == "" && pos.TripID != "":
		tr.Kind = model.TransitionStarted
		tr.PrevServiceDate = ""
	case prevTripID != "" && pos.TripID == "":
		tr.Kind = model.TransitionEnded
		tr.NewServiceDate = ""
	case prevTripID != "" && pos.TripID != "" && prevTripID != pos.TripID:
		tr.Kind = model.TransitionSwitched
	}
	return tr, nil
}

// resolveServiceDate keeps a running trip on its assigned day and otherwise
// derives a fresh date, preferring one already stamped on the record.
func (d *Detector) resolveServiceDate(pos *model.Position, prevServiceDate, prevTripID string) (string, error) {
	if pos.TripID != "" && pos.TripID == prevTripID && prevServiceDate != "" {
		return prevServiceDate, nil
	}
	if pos.TripID != "" && pos.ServiceDate != "" {
		return pos.ServiceDate, nil
	}
	return servicedate.Resolve(pos.Timestamp, prevServiceDate, prevTripID, pos.TripID, d.loc)
}
