package enrich

// GTFS static reference tables. An external importer keeps them current; this
// service only reads them.

// Route is one row of the GTFS routes table.
type Route struct {
	RouteID   string `gorm:"primaryKey;size:64"`
	ShortName string `gorm:"size:64"`
	LongName  string `gorm:"size:256"`
}

// Trip is one row of the GTFS trips table.
type Trip struct {
	TripID      string `gorm:"primaryKey;size:64"`
	RouteID     string `gorm:"index;size:64"`
	ShapeID     string `gorm:"index;size:64"`
	Headsign    string `gorm:"size:256"`
	DirectionID int
}

// Stop is one row of the GTFS stops table.
type Stop struct {
	StopID string `gorm:"primaryKey;size:64"`
	Name   string `gorm:"size:256"`
}

// ShapePoint is one row of the GTFS shapes table.
type ShapePoint struct {
	ShapeID  string  `gorm:"primaryKey;size:64"`
	Sequence int     `gorm:"primaryKey"`
	Lat      float64
	Lon      float64
}

// StopTime is one row of the GTFS stop_times table. Arrival and departure
// keep the raw HH:MM:SS text since GTFS times can exceed 24:00.
type StopTime struct {
	TripID        string `gorm:"primaryKey;size:64"`
	StopSequence  int    `gorm:"primaryKey"`
	StopID        string `gorm:"size:64"`
	ArrivalTime   string `gorm:"size:16"`
	DepartureTime string `gorm:"size:16"`
}
