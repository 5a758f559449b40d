// Package geo provides the great-circle distance helpers used to decide
// whether two orders belong to the same circle.
package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/paulmach/orb"
)

const (
	// EarthRadiusMiles is the mean earth radius used by DistanceMiles.
	EarthRadiusMiles = 3959.0

	// RadiusSlack widens every radius test to absorb device and geocoding imprecision.
	RadiusSlack = 1.1
)

var ErrInvalidCoordinate = errors.New("invalid coordinate")

// NewPoint builds an orb.Point from latitude and longitude in degrees.
func NewPoint(lat, lon float64) orb.Point {
	return orb.Point{lon, lat}
}

// ValidatePoint rejects non-finite or out of range coordinates.
func ValidatePoint(p orb.Point) error {
	lat, lon := p.Lat(), p.Lon()
	if math.IsNaN(lat) || math.IsInf(lat, 0) || math.IsNaN(lon) || math.IsInf(lon, 0) {
		return fmt.Errorf("%w: lat=%v lon=%v is not finite", ErrInvalidCoordinate, lat, lon)
	}
	if lat < -90 || lat > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidCoordinate, lat)
	}
	if lon < -180 || lon > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidCoordinate, lon)
	}
	return nil
}

// DistanceMiles returns the haversine distance between a and b in miles.
func DistanceMiles(a, b orb.Point) float64 {
	lat1 := toRadians(a.Lat())
	lat2 := toRadians(b.Lat())
	deltaLat := toRadians(b.Lat() - a.Lat())
	deltaLon := toRadians(b.Lon() - a.Lon())

	h := math.Sin(deltaLat/2)*math.Sin(deltaLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*
			math.Sin(deltaLon/2)*math.Sin(deltaLon/2)

	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadiusMiles * c
}

// WithinRadius reports whether b lies within radiusMiles of a, slack included.
func WithinRadius(a, b orb.Point, radiusMiles float64) bool {
	return DistanceMiles(a, b) <= radiusMiles*RadiusSlack
}

func toRadians(degrees float64) float64 {
	return degrees * math.Pi / 180
}
