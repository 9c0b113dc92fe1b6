package domain

import "sort"

// BuildSeries groups unordered observations into one Series per object id.
// Every series has exactly hours slots; slots without a valid observation are gaps.
// Observations with an hour-offset outside [0, hours) are ignored.
//
// Duplicate (object, hour-offset) observations are resolved last-write-wins in
// input order, including an invalid row overwriting a valid one.
func BuildSeries(obs []RawObservation, hours int) map[int]Series {
	out := make(map[int]Series)
	for _, o := range obs {
		if o.HourOffset < 0 || o.HourOffset >= hours {
			continue
		}
		s, ok := out[o.ObjectID]
		if !ok {
			s = make(Series, hours)
			out[o.ObjectID] = s
		}
		if !o.Valid() {
			s[o.HourOffset] = nil
			continue
		}
		s[o.HourOffset] = &Position{Lat: *o.Lat, Lon: *o.Lon, Alt: o.Alt}
	}
	return out
}

// ObjectIDs returns the keys of a series map in ascending order.
func ObjectIDs(series map[int]Series) []int {
	ids := make([]int, 0, len(series))
	for id := range series {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
