package order

import (
	"context"
	"sort"
	"sync"

	"github.com/gofrs/uuid"
)

// MemoryRepository keeps orders in process. It backs the memory store
// driver and the circle engine tests.
type MemoryRepository struct {
	mu     sync.RWMutex
	orders []Order
	byID   map[uuid.UUID]int
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		byID: make(map[uuid.UUID]int),
	}
}

func (r *MemoryRepository) Create(ctx context.Context, o *Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := prepareForCreate(o); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[o.ID]; exists {
		return ErrDuplicateOrderID
	}

	r.byID[o.ID] = len(r.orders)
	r.orders = append(r.orders, cloneOrder(*o))
	return nil
}

func (r *MemoryRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	idx, ok := r.byID[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	o := cloneOrder(r.orders[idx])
	return &o, nil
}

func (r *MemoryRepository) GetOrdersSince(ctx context.Context, scope Scope, since float64) ([]Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var match func(o *Order) bool
	switch scope.Kind {
	case ScopeEstablishment:
		match = func(o *Order) bool { return o.EstablishmentID == scope.ID }
	case ScopeCity:
		match = func(o *Order) bool { return o.CityID == scope.ID }
	default:
		return nil, ErrUnsupportedScope
	}

	r.mu.RLock()
	result := make([]Order, 0)
	for i := range r.orders {
		o := &r.orders[i]
		if match(o) && o.Anchor >= since {
			result = append(result, cloneOrder(*o))
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt < result[j].CreatedAt
	})
	return result, nil
}

func (r *MemoryRepository) GetOrdersForEstablishment(ctx context.Context, establishmentID string) ([]Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	result := make([]Order, 0)
	for i := range r.orders {
		if r.orders[i].EstablishmentID == establishmentID {
			result = append(result, cloneOrder(r.orders[i]))
		}
	}
	r.mu.RUnlock()

	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Anchor != result[j].Anchor {
			return result[i].Anchor < result[j].Anchor
		}
		return result[i].CreatedAt < result[j].CreatedAt
	})
	return result, nil
}

func (r *MemoryRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.byID[id]
	if !ok {
		return ErrOrderNotFound
	}
	r.orders[idx].Status = status
	return nil
}

func cloneOrder(o Order) Order {
	if o.Items != nil {
		items := make(map[string]int, len(o.Items))
		for k, v := range o.Items {
			items[k] = v
		}
		o.Items = items
	}
	return o
}
