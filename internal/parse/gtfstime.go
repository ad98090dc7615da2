package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var gtfsTimeRe = regexp.MustCompile(`^(\d{1,2}):([0-5]\d):([0-5]\d)$`)

// GTFSTime is a schedule time as seconds after local midnight of the service
// day. GTFS allows hours of 24 and beyond for trips running past midnight, so
// this cannot be a clock time.
type GTFSTime struct {
	Seconds int
}

// ParseGTFSTime parses an "HH:MM:SS" GTFS schedule time, accepting hour
// values of 24 or more.
func ParseGTFSTime(raw string) (GTFSTime, error) {
	m := gtfsTimeRe.FindStringSubmatch(raw)
	if m == nil {
		return GTFSTime{}, fmt.Errorf("unable to parse GTFS time: %q", raw)
	}
	h, _ := strconv.Atoi(m[1])
	min, _ := strconv.Atoi(m[2])
	sec, _ := strconv.Atoi(m[3])
	return GTFSTime{Seconds: h*3600 + min*60 + sec}, nil
}

// Epoch anchors the schedule time to a YYYYMMDD service date in loc and
// returns the resulting unix timestamp. Times past 24:00 land on the
// following calendar day.
func (g GTFSTime) Epoch(serviceDate string, loc *time.Location) (int64, error) {
	day, err := time.ParseInLocation("20060102", serviceDate, loc)
	if err != nil {
		return 0, fmt.Errorf("invalid service date %q: %w", serviceDate, err)
	}
	return day.Add(time.Duration(g.Seconds) * time.Second).Unix(), nil
}
