package order_test

import (
	"context"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/food-circles/internal/order"
)

func newOrder(est, city string, anchor, createdAt float64) *order.Order {
	return &order.Order{
		EstablishmentID: est,
		CityID:          city,
		UserID:          "user-1",
		Lat:             40.0,
		Lon:             -75.0,
		Items:           map[string]int{"pizza": 1},
		Total:           10,
		Status:          order.StatusPending,
		Anchor:          anchor,
		CreatedAt:       createdAt,
	}
}

func TestMemoryRepository_CreateAssignsIDAndCopies(t *testing.T) {
	repo := order.NewMemoryRepository()
	ctx := context.Background()

	o := newOrder("est-1", "city-1", 100, 100)
	require.NoError(t, repo.Create(ctx, o))
	require.NotEqual(t, uuid.Nil, o.ID)

	o.Items["pizza"] = 99

	stored, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Items["pizza"], "stored order must not alias the caller's map")
}

func TestMemoryRepository_CreateRejectsBrokenAnchors(t *testing.T) {
	repo := order.NewMemoryRepository()
	ctx := context.Background()

	err := repo.Create(ctx, newOrder("est-1", "city-1", 0, 100))
	assert.ErrorIs(t, err, order.ErrAnchorNotAssigned)

	err = repo.Create(ctx, newOrder("est-1", "city-1", 200, 100))
	assert.ErrorIs(t, err, order.ErrAnchorAfterCreation)
}

func TestMemoryRepository_CreateDuplicateID(t *testing.T) {
	repo := order.NewMemoryRepository()
	ctx := context.Background()

	o := newOrder("est-1", "city-1", 100, 100)
	require.NoError(t, repo.Create(ctx, o))

	dup := newOrder("est-1", "city-1", 100, 101)
	dup.ID = o.ID
	assert.ErrorIs(t, repo.Create(ctx, dup), order.ErrDuplicateOrderID)
}

func TestMemoryRepository_GetOrdersSince(t *testing.T) {
	repo := order.NewMemoryRepository()
	ctx := context.Background()

	// Inserted out of creation order on purpose.
	for _, o := range []*order.Order{
		newOrder("est-1", "city-1", 100, 130),
		newOrder("est-1", "city-1", 100, 100),
		newOrder("est-2", "city-1", 120, 120),
		newOrder("est-1", "city-2", 50, 50),
		newOrder("est-3", "city-2", 500, 510),
	} {
		require.NoError(t, repo.Create(ctx, o))
	}

	byEst, err := repo.GetOrdersSince(ctx, order.Scope{Kind: order.ScopeEstablishment, ID: "est-1"}, 60)
	require.NoError(t, err)
	gotCreated := make([]float64, 0, len(byEst))
	for _, o := range byEst {
		gotCreated = append(gotCreated, o.CreatedAt)
	}
	if diff := cmp.Diff([]float64{100, 130}, gotCreated); diff != "" {
		t.Errorf("establishment scope mismatch (-want +got):\n%s", diff)
	}

	byCity, err := repo.GetOrdersSince(ctx, order.Scope{Kind: order.ScopeCity, ID: "city-1"}, 0)
	require.NoError(t, err)
	assert.Len(t, byCity, 3)

	_, err = repo.GetOrdersSince(ctx, order.Scope{Kind: "country", ID: "x"}, 0)
	assert.ErrorIs(t, err, order.ErrUnsupportedScope)
}

func TestMemoryRepository_GetOrdersForEstablishmentSortedByAnchor(t *testing.T) {
	repo := order.NewMemoryRepository()
	ctx := context.Background()

	for _, o := range []*order.Order{
		newOrder("est-1", "city-1", 500, 520),
		newOrder("est-1", "city-1", 100, 130),
		newOrder("est-1", "city-1", 100, 100),
		newOrder("est-2", "city-1", 10, 10),
	} {
		require.NoError(t, repo.Create(ctx, o))
	}

	orders, err := repo.GetOrdersForEstablishment(ctx, "est-1")
	require.NoError(t, err)
	require.Len(t, orders, 3)
	assert.Equal(t, []float64{100, 100, 500}, []float64{orders[0].Anchor, orders[1].Anchor, orders[2].Anchor})
	assert.Equal(t, 100.0, orders[0].CreatedAt)
}

func TestMemoryRepository_UpdateStatus(t *testing.T) {
	repo := order.NewMemoryRepository()
	ctx := context.Background()

	o := newOrder("est-1", "city-1", 100, 100)
	require.NoError(t, repo.Create(ctx, o))

	require.NoError(t, repo.UpdateStatus(ctx, o.ID, order.StatusAccepted))
	stored, err := repo.GetByID(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, order.StatusAccepted, stored.Status)

	assert.ErrorIs(t, repo.UpdateStatus(ctx, uuid.Must(uuid.NewV4()), order.StatusAccepted), order.ErrOrderNotFound)
}
