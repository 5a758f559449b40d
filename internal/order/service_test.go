package order_test

import (
	"context"
	"errors"
	"testing"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/vasiliy-maslov/food-circles/internal/order"
)

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, o *order.Order) error {
	args := m.Called(ctx, o)
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderRepository) GetOrdersSince(ctx context.Context, scope order.Scope, since float64) ([]order.Order, error) {
	args := m.Called(ctx, scope, since)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderRepository) GetOrdersForEstablishment(ctx context.Context, establishmentID string) ([]order.Order, error) {
	args := m.Called(ctx, establishmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status order.Status) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func statusPtr(s order.Status) *order.Status {
	return &s
}

func TestOrderService_GetOrderByID(t *testing.T) {
	id := uuid.Must(uuid.NewV4())
	dbFailure := errors.New("connection refused")

	tests := []struct {
		name      string
		repoOrder *order.Order
		repoErr   error
		wantErrIs error
	}{
		{
			name:      "success",
			repoOrder: &order.Order{ID: id, EstablishmentID: "est-1", Status: order.StatusPending, Anchor: 100, CreatedAt: 100},
		},
		{
			name:      "not_found",
			repoErr:   order.ErrOrderNotFound,
			wantErrIs: order.ErrOrderNotFound,
		},
		{
			name:      "repository_failure",
			repoErr:   dbFailure,
			wantErrIs: dbFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockOrderRepository)
			if tt.repoOrder != nil {
				mockRepo.On("GetByID", mock.Anything, id).Return(tt.repoOrder, nil).Once()
			} else {
				mockRepo.On("GetByID", mock.Anything, id).Return(nil, tt.repoErr).Once()
			}

			svc := order.NewService(mockRepo)
			got, err := svc.GetOrderByID(context.Background(), id)

			if tt.wantErrIs != nil {
				require.ErrorIs(t, err, tt.wantErrIs)
				assert.Nil(t, got)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.repoOrder, got)
			}
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestOrderService_UpdateOrder(t *testing.T) {
	id := uuid.Must(uuid.NewV4())

	tests := []struct {
		name          string
		changes       order.Changes
		currentStatus order.Status
		expectUpdate  bool
		wantErrIs     error
	}{
		{
			name:          "pending_to_accepted",
			changes:       order.Changes{Status: statusPtr(order.StatusAccepted)},
			currentStatus: order.StatusPending,
			expectUpdate:  true,
		},
		{
			name:          "preparing_to_cancelled",
			changes:       order.Changes{Status: statusPtr(order.StatusCancelled)},
			currentStatus: order.StatusPreparing,
			expectUpdate:  true,
		},
		{
			name:          "skip_a_step",
			changes:       order.Changes{Status: statusPtr(order.StatusCompleted)},
			currentStatus: order.StatusPending,
			wantErrIs:     order.ErrInvalidStatusTransition,
		},
		{
			name:          "from_terminal_state",
			changes:       order.Changes{Status: statusPtr(order.StatusAccepted)},
			currentStatus: order.StatusCancelled,
			wantErrIs:     order.ErrInvalidStatusTransition,
		},
		{
			name:          "same_status",
			changes:       order.Changes{Status: statusPtr(order.StatusPending)},
			currentStatus: order.StatusPending,
			wantErrIs:     order.ErrStatusAlreadySet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockOrderRepository)
			mockRepo.On("GetByID", mock.Anything, id).
				Return(&order.Order{ID: id, Status: tt.currentStatus, Anchor: 10, CreatedAt: 10}, nil).
				Once()
			if tt.expectUpdate {
				mockRepo.On("UpdateStatus", mock.Anything, id, *tt.changes.Status).Return(nil).Once()
			}

			svc := order.NewService(mockRepo)
			err := svc.UpdateOrder(context.Background(), id, tt.changes)

			if tt.wantErrIs != nil {
				require.ErrorIs(t, err, tt.wantErrIs)
			} else {
				require.NoError(t, err)
			}
			mockRepo.AssertExpectations(t)
		})
	}
}

func TestOrderService_UpdateOrder_RejectedBeforeRepository(t *testing.T) {
	id := uuid.Must(uuid.NewV4())

	tests := []struct {
		name      string
		changes   order.Changes
		wantErrIs error
	}{
		{name: "empty_changes", changes: order.Changes{}, wantErrIs: order.ErrNoChanges},
		{name: "unknown_status", changes: order.Changes{Status: statusPtr("teleported")}, wantErrIs: order.ErrInvalidStatus},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockRepo := new(MockOrderRepository)
			svc := order.NewService(mockRepo)

			err := svc.UpdateOrder(context.Background(), id, tt.changes)

			require.ErrorIs(t, err, tt.wantErrIs)
			mockRepo.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
		})
	}
}

func TestOrderService_UpdateOrder_NotFound(t *testing.T) {
	id := uuid.Must(uuid.NewV4())
	mockRepo := new(MockOrderRepository)
	mockRepo.On("GetByID", mock.Anything, id).Return(nil, order.ErrOrderNotFound).Once()

	svc := order.NewService(mockRepo)
	err := svc.UpdateOrder(context.Background(), id, order.Changes{Status: statusPtr(order.StatusAccepted)})

	require.ErrorIs(t, err, order.ErrOrderNotFound)
	mockRepo.AssertExpectations(t)
}
