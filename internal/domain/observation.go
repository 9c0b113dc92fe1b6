package domain

import (
	"math"

	"github.com/couchcryptid/balloon-reliability-service/internal/geo"
)

// DefaultSeriesHours is the number of hourly slots in one ingestion run.
const DefaultSeriesHours = 24

// RawObservation is one ingested sample for one tracked object at one hour-offset.
// Coordinates are nil when the upstream row could not be parsed.
type RawObservation struct {
	ObjectID   int      `json:"object_id"`
	HourOffset int      `json:"hour_offset"`
	Lat        *float64 `json:"lat"`
	Lon        *float64 `json:"lon"`
	Alt        *float64 `json:"alt"`
	ParseOK    bool     `json:"parse_ok"`
}

// Valid reports whether the observation carries a usable position.
func (o RawObservation) Valid() bool {
	return o.ParseOK && o.Lat != nil && o.Lon != nil
}

// Position is one valid observation of a tracked object.
type Position struct {
	Lat float64  `json:"lat"`
	Lon float64  `json:"lon"`
	Alt *float64 `json:"alt,omitempty"`
}

// Point drops the altitude.
func (p Position) Point() geo.Point {
	return geo.Point{Lat: p.Lat, Lon: p.Lon}
}

// Series is a fixed-length, hour-indexed sequence of positions. A nil slot is a gap.
type Series []*Position

// ParsePoint validates a raw [lat, lon, alt] triple as published by the
// upstream constellation feed. It returns false when the row is not at least
// three finite numbers or the coordinates are out of range.
func ParsePoint(raw []any) (Position, bool) {
	if len(raw) < 3 {
		return Position{}, false
	}
	vals := make([]float64, 3)
	for i := range vals {
		f, ok := raw[i].(float64)
		if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
			return Position{}, false
		}
		vals[i] = f
	}
	lat, lon, alt := vals[0], vals[1], vals[2]
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return Position{}, false
	}
	return Position{Lat: lat, Lon: lon, Alt: &alt}, true
}
