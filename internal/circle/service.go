package circle

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/paulmach/orb"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/vasiliy-maslov/food-circles/internal/establishment"
	"github.com/vasiliy-maslov/food-circles/internal/geo"
	"github.com/vasiliy-maslov/food-circles/internal/order"
)

var (
	ErrInvalidItems = errors.New("invalid order items")
	ErrCityMismatch = errors.New("establishment is not in the given city")
)

// Clock returns the current time as unix seconds.
type Clock func() float64

func SystemClock() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}

type SubmitOrderInput struct {
	EstablishmentID string
	CityID          string
	UserID          string
	Lat             float64
	Lon             float64
	Items           map[string]int
}

// TimeRange limits a settlement view to orders created inside it.
type TimeRange struct {
	From float64
	To   float64
}

type Service interface {
	SubmitOrder(ctx context.Context, in SubmitOrderInput) (*order.Order, error)
	EstablishmentCircles(ctx context.Context, establishmentID string, within *TimeRange) (Aggregate, error)
	CityMap(ctx context.Context, cityID string, requester orb.Point) (Projection, error)
}

type service struct {
	orders    order.Repository
	directory establishment.Directory
	assigner  *Assigner
	projector *Projector
	locker    Locker
	scopeKind order.ScopeKind
	clock     Clock
}

func NewService(
	orders order.Repository,
	directory establishment.Directory,
	locker Locker,
	scopeKind order.ScopeKind,
	clock Clock,
) Service {
	if clock == nil {
		clock = SystemClock
	}
	return &service{
		orders:    orders,
		directory: directory,
		assigner:  NewAssigner(orders, directory),
		projector: NewProjector(orders),
		locker:    locker,
		scopeKind: scopeKind,
		clock:     clock,
	}
}

func (s *service) SubmitOrder(ctx context.Context, in SubmitOrderInput) (*order.Order, error) {
	point := geo.NewPoint(in.Lat, in.Lon)
	if err := geo.ValidatePoint(point); err != nil {
		return nil, err
	}

	productIDs, err := validateItems(in.Items)
	if err != nil {
		return nil, err
	}

	// Everything below up to the lock only reads, so it runs unserialized.
	est, err := s.directory.Get(ctx, in.EstablishmentID)
	if err != nil {
		if errors.Is(err, establishment.ErrNotFound) {
			log.Warn().Str("establishment_id", in.EstablishmentID).Msg("service: order for unknown establishment")
			return nil, fmt.Errorf("%w: establishment %s", ErrScopeNotFound, in.EstablishmentID)
		}
		return nil, fmt.Errorf("service: failed to load establishment: %w", err)
	}

	// An empty city means the establishment's own.
	cityID := in.CityID
	if cityID == "" {
		cityID = est.CityID
	}
	if cityID != est.CityID {
		return nil, fmt.Errorf("%w: %s is in %s, not %s", ErrCityMismatch, est.ID, est.CityID, cityID)
	}

	total, err := s.priceItems(ctx, est.ID, in.Items, productIDs)
	if err != nil {
		return nil, err
	}

	o := &order.Order{
		EstablishmentID: est.ID,
		CityID:          cityID,
		UserID:          in.UserID,
		Lat:             in.Lat,
		Lon:             in.Lon,
		Items:           in.Items,
		Total:           total,
		Status:          order.StatusPending,
	}
	scope := s.scopeOf(o)

	unlock, err := s.locker.Lock(ctx, scope.String())
	if err != nil {
		return nil, fmt.Errorf("service: failed to lock %s: %w", scope, err)
	}
	defer unlock()

	// Read the clock under the lock so anchors only move forward per scope.
	now := s.clock()
	anchor, err := s.assigner.Assign(ctx, scope, point, now)
	if err != nil {
		return nil, err
	}

	o.Anchor = anchor
	o.CreatedAt = now

	// Persist before unlocking so the next submitter in this scope sees the order.
	if err := s.orders.Create(ctx, o); err != nil {
		log.Error().Err(err).Str("establishment_id", o.EstablishmentID).Msg("service: failed to create order in repository")
		return nil, fmt.Errorf("service: failed to create order: %w", err)
	}

	log.Info().
		Stringer("order_id", o.ID).
		Str("scope", scope.String()).
		Float64("anchor", o.Anchor).
		Bool("new_circle", o.Anchor == now).
		Float64("total", o.Total).
		Msg("service: order submitted")

	return o, nil
}

func (s *service) EstablishmentCircles(ctx context.Context, establishmentID string, within *TimeRange) (Aggregate, error) {
	if _, err := s.directory.Get(ctx, establishmentID); err != nil {
		if errors.Is(err, establishment.ErrNotFound) {
			return Aggregate{}, fmt.Errorf("%w: establishment %s", ErrScopeNotFound, establishmentID)
		}
		return Aggregate{}, fmt.Errorf("service: failed to load establishment: %w", err)
	}

	orders, err := s.orders.GetOrdersForEstablishment(ctx, establishmentID)
	if err != nil {
		log.Error().Err(err).Str("establishment_id", establishmentID).Msg("service: failed to fetch establishment orders")
		return Aggregate{}, fmt.Errorf("service: failed to fetch establishment orders: %w", err)
	}

	agg := GroupByCircle(orders)
	// A range re-aggregates the matching orders into a fresh view.
	if within != nil {
		agg = agg.Between(within.From, within.To)
	}
	return agg, nil
}

func (s *service) CityMap(ctx context.Context, cityID string, requester orb.Point) (Projection, error) {
	if err := geo.ValidatePoint(requester); err != nil {
		return Projection{}, err
	}

	establishments, err := s.directory.ListByCity(ctx, cityID)
	if err != nil {
		return Projection{}, fmt.Errorf("service: failed to list establishments: %w", err)
	}
	if len(establishments) == 0 {
		return Projection{}, fmt.Errorf("%w: city %s", ErrScopeNotFound, cityID)
	}

	projection, err := s.projector.Project(ctx, cityID, requester, establishments, s.clock())
	if err != nil {
		log.Error().Err(err).Str("city_id", cityID).Msg("service: failed to project city circles")
		return Projection{}, err
	}
	return projection, nil
}

func (s *service) scopeOf(o *order.Order) order.Scope {
	if s.scopeKind == order.ScopeCity {
		return order.Scope{Kind: order.ScopeCity, ID: o.CityID}
	}
	return order.Scope{Kind: order.ScopeEstablishment, ID: o.EstablishmentID}
}

func (s *service) priceItems(ctx context.Context, establishmentID string, items map[string]int, productIDs []string) (float64, error) {
	prices, err := s.directory.MenuPrices(ctx, establishmentID, productIDs)
	if err != nil {
		if errors.Is(err, establishment.ErrUnknownProducts) {
			return 0, fmt.Errorf("%w: %w", ErrInvalidItems, err)
		}
		return 0, fmt.Errorf("service: failed to load menu prices: %w", err)
	}

	// Summed as decimals, rounded to cents once.
	total := decimal.Zero
	for _, id := range productIDs {
		line := decimal.NewFromFloat(prices[id]).Mul(decimal.NewFromInt(int64(items[id])))
		total = total.Add(line)
	}
	return total.Round(2).InexactFloat64(), nil
}

// validateItems returns the product IDs of items in a stable order.
func validateItems(items map[string]int) ([]string, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: order must contain at least one item", ErrInvalidItems)
	}

	productIDs := make([]string, 0, len(items))
	for id, qty := range items {
		if id == "" {
			return nil, fmt.Errorf("%w: empty product id", ErrInvalidItems)
		}
		if qty <= 0 {
			return nil, fmt.Errorf("%w: quantity for product %s must be greater than zero", ErrInvalidItems, id)
		}
		productIDs = append(productIDs, id)
	}
	sort.Strings(productIDs)
	return productIDs, nil
}
