package enrich

import (
	"log/slog"
	"sort"

	"github.com/couchcryptid/balloon-reliability-service/internal/domain"
)

// providerTimeLayout is the provider's hourly timestamp format (UTC, no zone suffix).
const providerTimeLayout = "2006-01-02T15:04"

// LocationGroup is every missing cell for one coordinate on one day.
type LocationGroup struct {
	LatBucket float64
	LonBucket float64
	Cells     []domain.CellKey
}

// DayGroup is every missing cell on one UTC calendar day, split by location.
type DayGroup struct {
	Day       string
	Locations []LocationGroup
}

// GroupMissing groups cells by UTC day and, within a day, by coordinate.
// Days ascend; locations sort by latitude then longitude bucket; cells within
// a location keep time order.
func GroupMissing(cells []domain.CellKey) []DayGroup {
	sorted := make([]domain.CellKey, len(cells))
	copy(sorted, cells)
	domain.SortCells(sorted)

	type locKey struct{ lat, lon float64 }
	byDay := make(map[string]map[locKey][]domain.CellKey)
	for _, c := range sorted {
		day := c.Day()
		if byDay[day] == nil {
			byDay[day] = make(map[locKey][]domain.CellKey)
		}
		k := locKey{c.LatBucket, c.LonBucket}
		byDay[day][k] = append(byDay[day][k], c)
	}

	days := make([]string, 0, len(byDay))
	for d := range byDay {
		days = append(days, d)
	}
	sort.Strings(days)

	out := make([]DayGroup, 0, len(days))
	for _, d := range days {
		locs := make([]LocationGroup, 0, len(byDay[d]))
		for k, cs := range byDay[d] {
			sort.SliceStable(cs, func(i, j int) bool { return cs[i].Time.Before(cs[j].Time) })
			locs = append(locs, LocationGroup{LatBucket: k.lat, LonBucket: k.lon, Cells: cs})
		}
		sort.Slice(locs, func(i, j int) bool {
			if locs[i].LatBucket != locs[j].LatBucket {
				return locs[i].LatBucket < locs[j].LatBucket
			}
			return locs[i].LonBucket < locs[j].LonBucket
		})
		out = append(out, DayGroup{Day: d, Locations: locs})
	}
	return out
}

// Chunk splits a day's locations into batches of at most size locations.
func Chunk(locs []LocationGroup, size int) [][]LocationGroup {
	if size <= 0 {
		size = len(locs)
	}
	var out [][]LocationGroup
	for len(locs) > 0 {
		n := min(size, len(locs))
		out = append(out, locs[:n])
		locs = locs[n:]
	}
	return out
}

// NewBatchRequest builds the provider request for one batch on one day.
func NewBatchRequest(day string, batch []LocationGroup) BatchRequest {
	req := BatchRequest{
		Lats:      make([]float64, len(batch)),
		Lons:      make([]float64, len(batch)),
		StartDate: day,
		EndDate:   day,
	}
	for i, g := range batch {
		req.Lats[i] = g.LatBucket
		req.Lons[i] = g.LonBucket
	}
	return req
}

// RowsFromResponse pairs each requested location with its response entry by
// position and extracts one row per requested cell. A cell whose hour the
// provider did not return is skipped: the cache never updates a row, so
// writing it empty would hide it from every later invocation.
func RowsFromResponse(batch []LocationGroup, resp []LocationHourly, logger *slog.Logger) []domain.WeatherCell {
	if len(resp) != len(batch) {
		logger.Warn("provider returned unexpected location count",
			"requested", len(batch),
			"returned", len(resp),
		)
	}

	var rows []domain.WeatherCell
	for i, g := range batch {
		if i >= len(resp) {
			break
		}
		h := resp[i].Hourly

		index := make(map[string]int, len(h.Time))
		for j, ts := range h.Time {
			index[ts] = j
		}

		for _, c := range g.Cells {
			j, ok := index[c.Time.UTC().Format(providerTimeLayout)]
			if !ok {
				continue
			}
			rows = append(rows, domain.WeatherCell{
				CellKey:       c,
				Temp2m:        at(h.Temp2m, j),
				WindSpeed10m:  at(h.WindSpeed10m, j),
				WindDir10m:    at(h.WindDir10m, j),
				PressureMSL:   at(h.PressureMSL, j),
				Precipitation: at(h.Precipitation, j),
				WindGusts10m:  at(h.WindGusts10m, j),
			})
		}
	}
	return rows
}

func at(vals []*float64, i int) *float64 {
	if i < 0 || i >= len(vals) || vals[i] == nil {
		return nil
	}
	v := *vals[i]
	return &v
}

