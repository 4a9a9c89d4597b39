package order_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/restaurant-orders/internal/order"
)

type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) GetOrderByID(ctx context.Context, id int64) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockOrderRepository) ListOrders(ctx context.Context) ([]order.Order, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderRepository) ListOrdersByCustomer(ctx context.Context, customerID int64) ([]order.Order, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderRepository) ListOrdersByDateRange(ctx context.Context, from, to time.Time) ([]order.Order, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockOrderRepository) UpdateOrderStatus(ctx context.Context, orderID int64, newStatus order.Status) error {
	return m.Called(ctx, orderID, newStatus).Error(0)
}

func (m *MockOrderRepository) UpdatePaymentStatus(ctx context.Context, orderID int64, newStatus order.PaymentStatus) error {
	return m.Called(ctx, orderID, newStatus).Error(0)
}

func (m *MockOrderRepository) CalculateOrderTotal(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	args := m.Called(ctx, orderID)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

type MockPlacer struct {
	mock.Mock
}

func (m *MockPlacer) Place(ctx context.Context, o *order.Order) (int64, error) {
	args := m.Called(ctx, o)
	return args.Get(0).(int64), args.Error(1)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishOrderPlaced(ctx context.Context, o *order.Order) error {
	return m.Called(ctx, o).Error(0)
}

func TestOrderService_PlaceOrder_Success(t *testing.T) {
	repo, placer, pub := new(MockOrderRepository), new(MockPlacer), new(MockPublisher)
	svc := order.NewService(repo, placer, pub)

	o := flourOrder()
	placer.On("Place", mock.Anything, o).
		Run(func(args mock.Arguments) { args.Get(1).(*order.Order).ID = 42 }).
		Return(int64(42), nil).
		Once()
	pub.On("PublishOrderPlaced", mock.Anything, o).Return(errors.New("broker down")).Once()

	placed, err := svc.PlaceOrder(context.Background(), o)
	require.NoError(t, err, "a failed publish must not fail the placement")
	require.Equal(t, int64(42), placed.ID)

	placer.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestOrderService_PlaceOrder_Insufficient(t *testing.T) {
	repo, placer, pub := new(MockOrderRepository), new(MockPlacer), new(MockPublisher)
	svc := order.NewService(repo, placer, pub)

	placer.On("Place", mock.Anything, mock.AnythingOfType("*order.Order")).
		Return(int64(0), order.ErrInsufficientInventory).
		Once()

	placed, err := svc.PlaceOrder(context.Background(), flourOrder())
	require.ErrorIs(t, err, order.ErrInsufficientInventory)
	require.Nil(t, placed)
	pub.AssertNotCalled(t, "PublishOrderPlaced", mock.Anything, mock.Anything)
}

func TestOrderService_GetOrderByID(t *testing.T) {
	repo := new(MockOrderRepository)
	svc := order.NewService(repo, nil, nil)

	expected := order.Order{ID: 5, CustomerID: 9, Status: order.StatusPending, TotalAmount: d("12.00")}
	repo.On("GetOrderByID", mock.Anything, int64(5)).Return(&expected, nil).Once()
	repo.On("GetOrderByID", mock.Anything, int64(6)).Return(nil, order.ErrOrderNotFound).Once()

	found, err := svc.GetOrderByID(context.Background(), 5)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(expected, *found, decimalEqual))

	_, err = svc.GetOrderByID(context.Background(), 6)
	require.ErrorIs(t, err, order.ErrOrderNotFound)
	repo.AssertExpectations(t)
}

func TestOrderService_ListOrders(t *testing.T) {
	from := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 5, 3, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		filter  order.ListFilter
		setup   func(m *MockOrderRepository)
		wantErr error
	}{
		{
			name:   "all",
			filter: order.ListFilter{},
			setup: func(m *MockOrderRepository) {
				m.On("ListOrders", mock.Anything).Return([]order.Order{{ID: 2}, {ID: 1}}, nil).Once()
			},
		},
		{
			name:   "by customer",
			filter: order.ListFilter{CustomerID: 9},
			setup: func(m *MockOrderRepository) {
				m.On("ListOrdersByCustomer", mock.Anything, int64(9)).Return([]order.Order{{ID: 2}, {ID: 1}}, nil).Once()
			},
		},
		{
			name:   "by date range",
			filter: order.ListFilter{From: from, To: to},
			setup: func(m *MockOrderRepository) {
				m.On("ListOrdersByDateRange", mock.Anything, from, to).Return([]order.Order{{ID: 2}, {ID: 1}}, nil).Once()
			},
		},
		{
			name:    "inverted range",
			filter:  order.ListFilter{From: to, To: from},
			wantErr: order.ErrValidation,
		},
		{
			name:    "open range",
			filter:  order.ListFilter{From: from},
			wantErr: order.ErrValidation,
		},
		{
			name:    "customer and range",
			filter:  order.ListFilter{CustomerID: 9, From: from, To: to},
			wantErr: order.ErrValidation,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockOrderRepository)
			if tt.setup != nil {
				tt.setup(repo)
			}
			svc := order.NewService(repo, nil, nil)

			orders, err := svc.ListOrders(context.Background(), tt.filter)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, orders, 2)
			repo.AssertExpectations(t)
		})
	}
}

func TestOrderService_UpdateOrderStatus(t *testing.T) {
	tests := []struct {
		name     string
		current  order.Status
		next     order.Status
		wantErr  error
		persists bool
	}{
		{name: "pending to in progress", current: order.StatusPending, next: order.StatusInProgress, persists: true},
		{name: "pending to cancelled", current: order.StatusPending, next: order.StatusCancelled, persists: true},
		{name: "in progress to completed", current: order.StatusInProgress, next: order.StatusCompleted, persists: true},
		{name: "same status is a no-op", current: order.StatusCompleted, next: order.StatusCompleted},
		{name: "pending to completed", current: order.StatusPending, next: order.StatusCompleted, wantErr: order.ErrInvalidStatusTransition},
		{name: "cancelled is terminal", current: order.StatusCancelled, next: order.StatusInProgress, wantErr: order.ErrInvalidStatusTransition},
		{name: "unknown status", current: order.StatusPending, next: "teleported", wantErr: order.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockOrderRepository)
			svc := order.NewService(repo, nil, nil)

			repo.On("GetOrderByID", mock.Anything, int64(3)).Return(&order.Order{ID: 3, Status: tt.current}, nil).Maybe()
			if tt.persists {
				repo.On("UpdateOrderStatus", mock.Anything, int64(3), tt.next).Return(nil).Once()
			}

			err := svc.UpdateOrderStatus(context.Background(), 3, tt.next)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			if !tt.persists {
				repo.AssertNotCalled(t, "UpdateOrderStatus", mock.Anything, mock.Anything, mock.Anything)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestOrderService_UpdatePaymentStatus(t *testing.T) {
	tests := []struct {
		name     string
		current  order.PaymentStatus
		next     order.PaymentStatus
		wantErr  error
		persists bool
	}{
		{name: "unpaid to paid", current: order.PaymentUnpaid, next: order.PaymentPaid, persists: true},
		{name: "paid to refunded", current: order.PaymentPaid, next: order.PaymentRefunded, persists: true},
		{name: "unpaid to refunded", current: order.PaymentUnpaid, next: order.PaymentRefunded, wantErr: order.ErrInvalidStatusTransition},
		{name: "refunded to paid", current: order.PaymentRefunded, next: order.PaymentPaid, wantErr: order.ErrInvalidStatusTransition},
		{name: "same status is a no-op", current: order.PaymentPaid, next: order.PaymentPaid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockOrderRepository)
			svc := order.NewService(repo, nil, nil)

			repo.On("GetOrderByID", mock.Anything, int64(3)).Return(&order.Order{ID: 3, PaymentStatus: tt.current}, nil).Once()
			if tt.persists {
				repo.On("UpdatePaymentStatus", mock.Anything, int64(3), tt.next).Return(nil).Once()
			}

			err := svc.UpdatePaymentStatus(context.Background(), 3, tt.next)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestOrderService_UpdateOrderStatus_NotFound(t *testing.T) {
	repo := new(MockOrderRepository)
	svc := order.NewService(repo, nil, nil)

	repo.On("GetOrderByID", mock.Anything, int64(77)).Return(nil, order.ErrOrderNotFound).Once()

	err := svc.UpdateOrderStatus(context.Background(), 77, order.StatusInProgress)
	require.ErrorIs(t, err, order.ErrOrderNotFound)
	repo.AssertExpectations(t)
}

func TestOrderService_CalculateOrderTotal(t *testing.T) {
	repo := new(MockOrderRepository)
	svc := order.NewService(repo, nil, nil)

	repo.On("CalculateOrderTotal", mock.Anything, int64(3)).Return(d("19.75"), nil).Once()
	repo.On("CalculateOrderTotal", mock.Anything, int64(4)).Return(decimal.Zero, order.ErrOrderNotFound).Once()

	total, err := svc.CalculateOrderTotal(context.Background(), 3)
	require.NoError(t, err)
	assert.True(t, total.Equal(d("19.75")))

	_, err = svc.CalculateOrderTotal(context.Background(), 4)
	require.ErrorIs(t, err, order.ErrOrderNotFound)
	repo.AssertExpectations(t)
}
