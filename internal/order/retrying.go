package order

import (
	"context"
	"errors"

	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/log"

	"github.com/vasiliy-maslov/food-circles/internal/db"
)

// RetryingRepository bounds every call to the wrapped store with the policy
// timeout and retries transient failures. A store that stays down surfaces
// db.ErrServiceUnavailable; it is never reported as an empty result.
type RetryingRepository struct {
	next   Repository
	policy db.RetryPolicy
}

func NewRetryingRepository(next Repository, policy db.RetryPolicy) *RetryingRepository {
	return &RetryingRepository{next: next, policy: policy}
}

func (r *RetryingRepository) Create(ctx context.Context, o *Order) error {
	// Fix the ID before the first attempt so a retry after an ambiguous
	// failure hits the duplicate check instead of inserting twice.
	if err := prepareForCreate(o); err != nil {
		return err
	}

	attempts := 0
	return db.Retry(ctx, r.policy, "orders.create", func(ctx context.Context) error {
		attempts++
		err := r.next.Create(ctx, o)
		if attempts > 1 && errors.Is(err, ErrDuplicateOrderID) {
			log.Info().Stringer("order_id", o.ID).Msg("repository: order already written by an earlier attempt")
			return nil
		}
		return err
	})
}

func (r *RetryingRepository) GetByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	var result *Order
	err := db.Retry(ctx, r.policy, "orders.get_by_id", func(ctx context.Context) error {
		var err error
		result, err = r.next.GetByID(ctx, id)
		return err
	})
	return result, err
}

func (r *RetryingRepository) GetOrdersSince(ctx context.Context, scope Scope, since float64) ([]Order, error) {
	var result []Order
	err := db.Retry(ctx, r.policy, "orders.since", func(ctx context.Context) error {
		var err error
		result, err = r.next.GetOrdersSince(ctx, scope, since)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *RetryingRepository) GetOrdersForEstablishment(ctx context.Context, establishmentID string) ([]Order, error) {
	var result []Order
	err := db.Retry(ctx, r.policy, "orders.for_establishment", func(ctx context.Context) error {
		var err error
		result, err = r.next.GetOrdersForEstablishment(ctx, establishmentID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (r *RetryingRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error {
	return db.Retry(ctx, r.policy, "orders.update_status", func(ctx context.Context) error {
		return r.next.UpdateStatus(ctx, id, status)
	})
}
