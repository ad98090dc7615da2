// Package servicedate derives the calendar service day a trip belongs to.
//
// Trip identifiers repeat every service day, so a trip instance is keyed by
// (trip_id, service_date). The service date is the local calendar day on which
// the trip was first observed and must stay fixed for the lifetime of the
// trip, including positions that arrive after local midnight.
package servicedate

import (
	"fmt"
	"time"
)

// Layout is the 8-digit date code used throughout the store keys.
const Layout = "20060102"

// Resolve maps a feed timestamp to the service date for the vehicle's current
// trip.
//
// Rules, in order:
//   - no current trip: no service date (empty string);
//   - same trip as before with a known service date: keep it unchanged, which
//     is what keeps midnight-crossing trips on their original day;
//   - otherwise: the civil calendar date of ts in loc.
//
// A non-positive timestamp is an input-validation error, never silently
// defaulted.
func Resolve(ts int64, prevServiceDate, prevTripID, curTripID string, loc *time.Location) (string, error) {
	if curTripID == "" {
		return "", nil
	}
	if curTripID == prevTripID && prevServiceDate != "" {
		return prevServiceDate, nil
	}
	if ts <= 0 {
		return "", fmt.Errorf("servicedate: invalid timestamp %d", ts)
	}
	return time.Unix(ts, 0).In(loc).Format(Layout), nil
}
