package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/couchcryptid/balloon-reliability-service/internal/geo"
)

// CellKey identifies one cached weather lookup. Two keys are equal only when
// all five fields match exactly.
type CellKey struct {
	Time        time.Time `json:"time"`
	LatBucket   float64   `json:"lat_bucket"`
	LonBucket   float64   `json:"lon_bucket"`
	Model       string    `json:"model"`
	VarsVersion string    `json:"vars_version"`
}

// String renders the key in a form suitable for set membership.
func (k CellKey) String() string {
	return fmt.Sprintf("%s|%g|%g|%s|%s", k.Time.UTC().Format(time.RFC3339), k.LatBucket, k.LonBucket, k.Model, k.VarsVersion)
}

// Day returns the UTC calendar day of the cell as YYYY-MM-DD.
func (k CellKey) Day() string {
	return k.Time.UTC().Format(time.DateOnly)
}

// CellParams configures how anomaly points are coarsened into cells.
type CellParams struct {
	BaseTime    time.Time
	StepDeg     float64
	Model       string
	VarsVersion string
}

// NewCellKey coarsens one anomaly point observed hourOffset hours before the
// base time: the time is floored to the UTC hour, latitude clamped, longitude
// wrapped, and both rounded to the step.
func NewCellKey(p CellParams, hourOffset int, lat, lon float64) CellKey {
	t := p.BaseTime.UTC().Truncate(time.Hour).Add(-time.Duration(hourOffset) * time.Hour)
	return CellKey{
		Time:        t,
		LatBucket:   geo.Bucket(geo.ClampLat(lat), p.StepDeg),
		LonBucket:   geo.Bucket(geo.WrapLon(lon), p.StepDeg),
		Model:       p.Model,
		VarsVersion: p.VarsVersion,
	}
}

// CoalesceCells collapses the anomaly evidence of the given records into a
// deduplicated set of cells. Both endpoints of every teleport and the point of
// every missing edge contribute. The result is sorted by time, then latitude,
// then longitude bucket.
func CoalesceCells(records []ReliabilityRecord, p CellParams) []CellKey {
	set := make(map[string]CellKey)
	add := func(hourOffset int, lat, lon float64) {
		k := NewCellKey(p, hourOffset, lat, lon)
		set[k.String()] = k
	}

	for _, r := range records {
		for _, e := range r.Evidence.TeleportEvents {
			add(e.HourOffset, e.From.Lat, e.From.Lon)
			add(e.HourOffset, e.To.Lat, e.To.Lon)
		}
		for _, m := range r.Evidence.MissingEdges {
			add(m.HourOffset, m.Lat, m.Lon)
		}
	}

	cells := make([]CellKey, 0, len(set))
	for _, k := range set {
		cells = append(cells, k)
	}
	SortCells(cells)
	return cells
}

// SortCells orders cells by time, latitude bucket, then longitude bucket.
func SortCells(cells []CellKey) {
	sort.Slice(cells, func(i, j int) bool {
		a, b := cells[i], cells[j]
		if !a.Time.Equal(b.Time) {
			return a.Time.Before(b.Time)
		}
		if a.LatBucket != b.LatBucket {
			return a.LatBucket < b.LatBucket
		}
		return a.LonBucket < b.LonBucket
	})
}

// WeatherCell is one cached provider reading. Any variable the provider did
// not report is nil.
type WeatherCell struct {
	CellKey
	Temp2m        *float64 `json:"temp_2m"`
	WindSpeed10m  *float64 `json:"windspeed_10m"`
	WindDir10m    *float64 `json:"winddir_10m"`
	PressureMSL   *float64 `json:"pressure_msl"`
	Precipitation *float64 `json:"precipitation"`
	WindGusts10m  *float64 `json:"windgusts_10m"`
}
