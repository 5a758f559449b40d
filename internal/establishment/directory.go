// Package establishment is the read-only view of establishments, cities
// and menu prices that the circle engine needs. Creating and editing them
// belongs to another service.
package establishment

import (
	"context"
	"errors"

	"github.com/paulmach/orb"

	"github.com/vasiliy-maslov/food-circles/internal/geo"
)

var (
	ErrNotFound        = errors.New("establishment not found")
	ErrUnknownProducts = errors.New("products not on the menu")
)

type Establishment struct {
	ID     string  `json:"id" db:"id"`
	CityID string  `json:"city_id" db:"city_id"`
	Name   string  `json:"name" db:"name"`
	Lat    float64 `json:"lat" db:"lat"`
	Lon    float64 `json:"lon" db:"lon"`
}

func (e Establishment) Point() orb.Point {
	return geo.NewPoint(e.Lat, e.Lon)
}

type Directory interface {
	Get(ctx context.Context, id string) (*Establishment, error)
	CityExists(ctx context.Context, cityID string) (bool, error)
	ListByCity(ctx context.Context, cityID string) ([]Establishment, error)
	// MenuPrices returns the unit price of every requested product. Products
	// the establishment does not sell are reported with ErrUnknownProducts.
	MenuPrices(ctx context.Context, establishmentID string, productIDs []string) (map[string]float64, error)
}
