package service

import "github.com/couchcryptid/storm-data-query/internal/domain"

// GeoJSON rendering of /events results, for map clients that consume
// FeatureCollections directly (format=geojson).

// Geometry is a GeoJSON Point in lon/lat order.
type Geometry struct {
	Type        string     `json:"type"`
	Coordinates [2]float64 `json:"coordinates"`
}

// FeatureProperties carries the non-geometry event fields.
type FeatureProperties struct {
	EventID   string   `json:"event_id"`
	Type      string   `json:"type"`
	Magnitude *float64 `json:"magnitude"`
	Date      string   `json:"date"`
}

// Feature is a GeoJSON Feature. Geometry is null when the event has no
// coordinates.
type Feature struct {
	Type       string            `json:"type"`
	Geometry   *Geometry         `json:"geometry"`
	Properties FeatureProperties `json:"properties"`
}

// FeatureCollection is a GeoJSON FeatureCollection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// ToFeatureCollection converts shaped event rows into GeoJSON, preserving
// their order.
func ToFeatureCollection(rows []domain.EventRow) FeatureCollection {
	features := make([]Feature, 0, len(rows))
	for _, r := range rows {
		f := Feature{
			Type: "Feature",
			Properties: FeatureProperties{
				EventID:   r.EventID,
				Type:      r.Type,
				Magnitude: r.Magnitude,
				Date:      r.Date,
			},
		}
		if r.Lon != nil && r.Lat != nil {
			f.Geometry = &Geometry{Type: "Point", Coordinates: [2]float64{*r.Lon, *r.Lat}}
		}
		features = append(features, f)
	}
	return FeatureCollection{Type: "FeatureCollection", Features: features}
}
