package establishment

import (
	"context"

	"github.com/vasiliy-maslov/food-circles/internal/db"
)

// RetryingDirectory applies the store retry policy to every directory call.
type RetryingDirectory struct {
	next   Directory
	policy db.RetryPolicy
}

func NewRetryingDirectory(next Directory, policy db.RetryPolicy) *RetryingDirectory {
	return &RetryingDirectory{next: next, policy: policy}
}

func (d *RetryingDirectory) Get(ctx context.Context, id string) (*Establishment, error) {
	var result *Establishment
	err := db.Retry(ctx, d.policy, "establishments.get", func(ctx context.Context) error {
		var err error
		result, err = d.next.Get(ctx, id)
		return err
	})
	return result, err
}

func (d *RetryingDirectory) CityExists(ctx context.Context, cityID string) (bool, error) {
	var exists bool
	err := db.Retry(ctx, d.policy, "establishments.city_exists", func(ctx context.Context) error {
		var err error
		exists, err = d.next.CityExists(ctx, cityID)
		return err
	})
	return exists, err
}

func (d *RetryingDirectory) ListByCity(ctx context.Context, cityID string) ([]Establishment, error) {
	var result []Establishment
	err := db.Retry(ctx, d.policy, "establishments.list_by_city", func(ctx context.Context) error {
		var err error
		result, err = d.next.ListByCity(ctx, cityID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (d *RetryingDirectory) MenuPrices(ctx context.Context, establishmentID string, productIDs []string) (map[string]float64, error) {
	var result map[string]float64
	err := db.Retry(ctx, d.policy, "establishments.menu_prices", func(ctx context.Context) error {
		var err error
		result, err = d.next.MenuPrices(ctx, establishmentID, productIDs)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
