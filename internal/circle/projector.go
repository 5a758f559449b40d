package circle

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb"

	"github.com/vasiliy-maslov/food-circles/internal/establishment"
	"github.com/vasiliy-maslov/food-circles/internal/geo"
	"github.com/vasiliy-maslov/food-circles/internal/order"
)

type EstablishmentPopularity struct {
	establishment.Establishment
	PopCount int   `json:"pop_count"`
	Timer    int64 `json:"timer"`
}

type OverlayCircle struct {
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	ExpiresAt float64 `json:"expires_at"`
}

type Projection struct {
	Establishments []EstablishmentPopularity `json:"establishments"`
	Circles        []OverlayCircle           `json:"circles"`
}

type Projector struct {
	orders order.Repository
}

func NewProjector(orders order.Repository) *Projector {
	return &Projector{orders: orders}
}

// Project annotates establishments with the live orders of cityID around
// requester and builds the deduplicated overlay of live circles.
//
// Orders are walked in store order. For an establishment with several
// matching orders the timer of the last one walked wins, which is not
// necessarily the latest anchor.
func (p *Projector) Project(ctx context.Context, cityID string, requester orb.Point, establishments []establishment.Establishment, now float64) (Projection, error) {
	if err := geo.ValidatePoint(requester); err != nil {
		return Projection{}, err
	}

	orders, err := p.orders.GetOrdersSince(ctx, order.Scope{Kind: order.ScopeCity, ID: cityID}, now-Window)
	if err != nil {
		return Projection{}, fmt.Errorf("projector: failed to load orders of city %s: %w", cityID, err)
	}

	annotated := make([]EstablishmentPopularity, len(establishments))
	index := make(map[string]int, len(establishments))
	for i, e := range establishments {
		annotated[i] = EstablishmentPopularity{Establishment: e}
		index[e.ID] = i
	}

	overlay := make([]OverlayCircle, 0)
	seenAnchors := make(map[float64]struct{})
	seenPoints := make(map[orb.Point]struct{})

	for i := range orders {
		o := &orders[i]
		if o.Anchor <= now-Window {
			continue
		}

		point := o.Point()
		if geo.WithinRadius(requester, point, RadiusMiles) {
			idx, ok := index[o.EstablishmentID]
			if !ok {
				return Projection{}, fmt.Errorf("%w: %s", ErrUnknownEstablishment, o.EstablishmentID)
			}
			annotated[idx].PopCount++
			annotated[idx].Timer = int64(math.Floor(o.Anchor + Window - now))
		}

		_, anchorSeen := seenAnchors[o.Anchor]
		_, pointSeen := seenPoints[point]
		// Both keys count as seen even when this order is suppressed.
		seenAnchors[o.Anchor] = struct{}{}
		seenPoints[point] = struct{}{}
		if anchorSeen || pointSeen {
			continue
		}
		overlay = append(overlay, OverlayCircle{Lat: o.Lat, Lon: o.Lon, ExpiresAt: o.Anchor + Window})
	}

	return Projection{Establishments: annotated, Circles: overlay}, nil
}
