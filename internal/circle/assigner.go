// Package circle groups orders that are close in space and time into
// circles, settles an establishment's circles and projects a city's live
// circles into popularity counters and a map overlay.
package circle

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"

	"github.com/vasiliy-maslov/food-circles/internal/establishment"
	"github.com/vasiliy-maslov/food-circles/internal/geo"
	"github.com/vasiliy-maslov/food-circles/internal/order"
)

const (
	// Window is how long, in seconds, a circle accepts new orders after its anchor.
	Window = 900.0

	// RadiusMiles is the join radius around an existing circle member.
	RadiusMiles = 1.0
)

var (
	ErrScopeNotFound        = errors.New("scope not found")
	ErrUnknownEstablishment = errors.New("order references an establishment outside the projection")
)

// Assigner picks the anchor a new order joins.
type Assigner struct {
	orders    order.Repository
	directory establishment.Directory
}

func NewAssigner(orders order.Repository, directory establishment.Directory) *Assigner {
	return &Assigner{orders: orders, directory: directory}
}

// Assign returns the anchor of the first order in scope, oldest created
// first, whose anchor lies in [now-Window, now] and whose location is
// within RadiusMiles of p. With no such order it returns now, starting a
// new circle. It only reads; callers must serialize Assign and the write
// of the order per scope.
func (a *Assigner) Assign(ctx context.Context, scope order.Scope, p orb.Point, now float64) (float64, error) {
	if err := geo.ValidatePoint(p); err != nil {
		return 0, err
	}
	if err := a.resolveScope(ctx, scope); err != nil {
		return 0, err
	}

	candidates, err := a.orders.GetOrdersSince(ctx, scope, now-Window)
	if err != nil {
		return 0, fmt.Errorf("assigner: failed to load candidates for %s: %w", scope, err)
	}

	for i := range candidates {
		c := &candidates[i]
		if c.Anchor > now {
			continue
		}
		if geo.WithinRadius(p, c.Point(), RadiusMiles) {
			return c.Anchor, nil
		}
	}

	return now, nil
}

func (a *Assigner) resolveScope(ctx context.Context, scope order.Scope) error {
	switch scope.Kind {
	case order.ScopeEstablishment:
		_, err := a.directory.Get(ctx, scope.ID)
		if errors.Is(err, establishment.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrScopeNotFound, scope)
		}
		if err != nil {
			return fmt.Errorf("assigner: failed to resolve %s: %w", scope, err)
		}
		return nil
	case order.ScopeCity:
		exists, err := a.directory.CityExists(ctx, scope.ID)
		if err != nil {
			return fmt.Errorf("assigner: failed to resolve %s: %w", scope, err)
		}
		if !exists {
			return fmt.Errorf("%w: %s", ErrScopeNotFound, scope)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", order.ErrUnsupportedScope, scope.Kind)
	}
}
