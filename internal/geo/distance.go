// Package geo contains pure geographic computation helpers.
package geo

import (
	"math"

	"ridehail/internal/types"
)

// EarthRadiusKm is the mean Earth radius of the spherical model.
const EarthRadiusKm = 6371.0

// DistanceKm returns the great-circle (haversine) distance in kilometres
// between two points given in decimal degrees.
func DistanceKm(latA, lngA, latB, lngB float64) float64 {
	dLat := degreesToRadians(latB - latA)
	dLng := degreesToRadians(lngB - lngA)

	rLatA := degreesToRadians(latA)
	rLatB := degreesToRadians(latB)

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rLatA)*math.Cos(rLatB)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))

	return EarthRadiusKm * c
}

func Between(a, b types.Point) float64 {
	return DistanceKm(a.Lat, a.Lng, b.Lat, b.Lng)
}

func degreesToRadians(deg float64) float64 {
	return deg * math.Pi / 180.0
}
