// Package geo provides great-circle helpers for WGS-84 coordinates.
package geo

import "math"

// EarthRadiusKm is the mean Earth radius used by the haversine formula.
const EarthRadiusKm = 6371.0

// Point is a latitude/longitude pair in degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

func radians(deg float64) float64 { return deg * math.Pi / 180 }

// DistanceKm returns the great-circle distance between two points.
func DistanceKm(p1, p2 Point) float64 {
	lat1, lat2 := radians(p1.Lat), radians(p2.Lat)
	dLat := math.Abs(lat1 - lat2)
	dLon := math.Abs(radians(p1.Lon) - radians(p2.Lon))

	a := math.Pow(math.Sin(dLat/2), 2) + math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dLon/2), 2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return EarthRadiusKm * c
}

// HaversineSpeed returns the implied ground speed in km/h between two points
// observed elapsedHours apart. elapsedHours must be at least 1.
func HaversineSpeed(p1, p2 Point, elapsedHours int) float64 {
	return DistanceKm(p1, p2) / float64(elapsedHours)
}

// Bearing returns the initial forward azimuth from p1 to p2 in radians, in [0, 2π).
func Bearing(p1, p2 Point) float64 {
	lat1, lat2 := radians(p1.Lat), radians(p2.Lat)
	dLon := radians(p2.Lon) - radians(p1.Lon)

	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	b := math.Atan2(y, x)
	if b < 0 {
		b += 2 * math.Pi
	}
	if b >= 2*math.Pi {
		b -= 2 * math.Pi
	}
	return b
}

// AngularDifference returns the smaller arc between two bearings (radians), in degrees [0, 180].
func AngularDifference(b1, b2 float64) float64 {
	d := math.Mod(math.Abs(b2-b1), 2*math.Pi)
	wrapped := math.Min(d, 2*math.Pi-d)
	return wrapped * 180 / math.Pi
}

// ClampLat limits a latitude to [-90, 90].
func ClampLat(lat float64) float64 {
	return math.Max(-90, math.Min(lat, 90))
}

// WrapLon maps a longitude into [-180, 180).
func WrapLon(lon float64) float64 {
	return math.Mod(math.Mod(lon+180, 360)+360, 360) - 180
}

// Bucket rounds x to the nearest multiple of step.
func Bucket(x, step float64) float64 {
	b := math.Round(x/step) * step
	if b == 0 {
		return 0 // normalize -0
	}
	return b
}
