package geo_test

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/food-circles/internal/geo"
)

// northOf returns a point the given number of miles due north of p.
func northOf(p orb.Point, miles float64) orb.Point {
	deltaDeg := miles / geo.EarthRadiusMiles * 180 / math.Pi
	return geo.NewPoint(p.Lat()+deltaDeg, p.Lon())
}

func TestDistanceMiles_SamePointIsZero(t *testing.T) {
	points := []orb.Point{
		geo.NewPoint(0, 0),
		geo.NewPoint(40.7128, -74.0060),
		geo.NewPoint(-33.8688, 151.2093),
		geo.NewPoint(89.9, 179.9),
	}

	for _, p := range points {
		assert.Zero(t, geo.DistanceMiles(p, p), "distance from %v to itself", p)
	}
}

func TestDistanceMiles_KnownDistance(t *testing.T) {
	// New York City to Los Angeles is roughly 2445 miles.
	nyc := geo.NewPoint(40.7128, -74.0060)
	la := geo.NewPoint(34.0522, -118.2437)

	assert.InDelta(t, 2445, geo.DistanceMiles(nyc, la), 10)
}

func TestWithinRadius_Symmetric(t *testing.T) {
	tests := []struct {
		name   string
		a, b   orb.Point
		radius float64
	}{
		{name: "close", a: geo.NewPoint(51.5, -0.12), b: geo.NewPoint(51.505, -0.125), radius: 1},
		{name: "far", a: geo.NewPoint(51.5, -0.12), b: geo.NewPoint(52.5, -1.12), radius: 1},
		{name: "antimeridian", a: geo.NewPoint(10, 179.999), b: geo.NewPoint(10, -179.999), radius: 1},
		{name: "zero_radius", a: geo.NewPoint(1, 1), b: geo.NewPoint(1, 1), radius: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, geo.WithinRadius(tt.a, tt.b, tt.radius), geo.WithinRadius(tt.b, tt.a, tt.radius))
		})
	}
}

func TestWithinRadius_SlackBoundary(t *testing.T) {
	origin := geo.NewPoint(37.7749, -122.4194)
	const radius = 1.0
	const eps = 1e-6

	assert.True(t, geo.WithinRadius(origin, northOf(origin, radius*geo.RadiusSlack-eps), radius), "just inside the slack boundary")
	assert.False(t, geo.WithinRadius(origin, northOf(origin, radius*geo.RadiusSlack+eps), radius), "just outside the slack boundary")

	// 1.05 miles is outside the nominal radius but inside the slack.
	assert.True(t, geo.WithinRadius(origin, northOf(origin, 1.05), radius))
	assert.False(t, geo.WithinRadius(origin, northOf(origin, 5), radius))
}

func TestValidatePoint(t *testing.T) {
	tests := []struct {
		name    string
		point   orb.Point
		wantErr bool
	}{
		{name: "valid", point: geo.NewPoint(45, 90), wantErr: false},
		{name: "poles_and_antimeridian", point: geo.NewPoint(-90, 180), wantErr: false},
		{name: "nan_lat", point: geo.NewPoint(math.NaN(), 0), wantErr: true},
		{name: "inf_lon", point: geo.NewPoint(0, math.Inf(1)), wantErr: true},
		{name: "lat_out_of_range", point: geo.NewPoint(91, 0), wantErr: true},
		{name: "lon_out_of_range", point: geo.NewPoint(0, -181), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := geo.ValidatePoint(tt.point)
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, geo.ErrInvalidCoordinate)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
