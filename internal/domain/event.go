package domain

import "time"

// StormEvent is one row of the NOAA StormEvents details dataset after
// normalization. It mirrors the Parquet schema exactly; the API layer is
// read-only and never mutates it.
type StormEvent struct {
	EventID        string
	State          string
	EventType      string
	EpisodeID      string
	CZName         string
	BeginDateTime  time.Time
	EndDateTime    time.Time
	InjuriesDirect int
	DeathsDirect   int

	// DamageProperty keeps NOAA's raw magnitude-with-suffix encoding
	// (e.g. "10.00K"); parsing it is the consumer's concern.
	DamageProperty string

	// Nullable measurements. A nil pointer means "not reported", which is
	// distinct from zero: 0 is a valid magnitude and (0, 0) is a valid
	// coordinate.
	Magnitude *float64
	Latitude  *float64
	Longitude *float64

	// Partition keys. Year matches the year of BeginDateTime;
	// EventTypePart is the normalized EventType (see PartitionKey).
	Year          int
	EventTypePart string
}

// EventRow is the /events response projection.
type EventRow struct {
	EventID   string   `json:"event_id"`
	Type      string   `json:"type"`
	Magnitude *float64 `json:"magnitude"`
	Lon       *float64 `json:"lon"`
	Lat       *float64 `json:"lat"`
	Date      string   `json:"date"`
}

// SummaryRow is the /events/summary response projection. Key is always a
// string, even when grouping by year, so both engines agree on shape.
type SummaryRow struct {
	Key string `json:"key"`
	N   int64  `json:"n"`
}

// HealthStatus is the /health response body.
type HealthStatus struct {
	Status          string `json:"status"`
	DatasetLocation string `json:"dataset_location"`
	FileCount       int    `json:"file_count"`
}
