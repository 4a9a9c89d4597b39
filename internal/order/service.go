package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

var allowedTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusInProgress: true,
		StatusCancelled:  true,
	},
	StatusInProgress: {
		StatusCompleted: true,
		StatusCancelled: true,
	},
	StatusCompleted: {},
	StatusCancelled: {},
}

var allowedPaymentTransitions = map[PaymentStatus]map[PaymentStatus]bool{
	PaymentUnpaid: {
		PaymentPaid: true,
	},
	PaymentPaid: {
		PaymentRefunded: true,
	},
	PaymentRefunded: {},
}

// Placement is the single entry point that writes new orders.
type Placement interface {
	Place(ctx context.Context, o *Order) (int64, error)
}

// EventPublisher announces committed orders to downstream consumers.
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, o *Order) error
}

// ListFilter selects orders by customer or by an inclusive date range. The zero value lists all orders.
type ListFilter struct {
	CustomerID int64
	From       time.Time
	To         time.Time
}

type Service interface {
	PlaceOrder(ctx context.Context, o *Order) (*Order, error)
	GetOrderByID(ctx context.Context, id int64) (*Order, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, newStatus Status) error
	UpdatePaymentStatus(ctx context.Context, orderID int64, newStatus PaymentStatus) error
	CalculateOrderTotal(ctx context.Context, orderID int64) (decimal.Decimal, error)
}

type service struct {
	orderRepo Repository
	placer    Placement
	publisher EventPublisher
}

func NewService(orderRepo Repository, placer Placement, publisher EventPublisher) Service {
	return &service{
		orderRepo: orderRepo,
		placer:    placer,
		publisher: publisher,
	}
}

func (s *service) PlaceOrder(ctx context.Context, o *Order) (*Order, error) {
	if o == nil {
		return nil, fmt.Errorf("service: failed to place order: %w", validationError("order is nil"))
	}

	id, err := s.placer.Place(ctx, o)
	if err != nil {
		switch OutcomeOf(err) {
		case OutcomeRejected, OutcomeInsufficientInventory:
			log.Warn().Err(err).Int64("customer_id", o.CustomerID).Msg("service: order not placed")
		default:
			log.Error().Err(err).Int64("customer_id", o.CustomerID).Msg("service: failed to place order")
		}
		return nil, fmt.Errorf("service: failed to place order: %w", err)
	}

	if s.publisher != nil {
		if err := s.publisher.PublishOrderPlaced(ctx, o); err != nil {
			log.Warn().Err(err).Int64("order_id", id).Msg("service: failed to publish order placed event")
		}
	}

	log.Info().Int64("order_id", id).Int64("customer_id", o.CustomerID).Msg("service: order created successfully")
	return o, nil
}

func (s *service) GetOrderByID(ctx context.Context, id int64) (*Order, error) {
	order, err := s.orderRepo.GetOrderByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			log.Warn().Err(err).Int64("order_id", id).Msg("service: order not found by id")
			return nil, ErrOrderNotFound
		}

		log.Error().Err(err).Msg("service: failed to fetch order by id in repository")
		return nil, fmt.Errorf("service: failed to fetch order by id: %w", err)
	}

	return order, nil
}

func (s *service) ListOrders(ctx context.Context, f ListFilter) ([]Order, error) {
	hasRange := !f.From.IsZero() || !f.To.IsZero()
	switch {
	case f.CustomerID < 0:
		return nil, validationError("customer id must be positive, got %d", f.CustomerID)
	case f.CustomerID > 0 && hasRange:
		return nil, validationError("filter by customer or by date range, not both")
	case hasRange && (f.From.IsZero() || f.To.IsZero()):
		return nil, validationError("date range needs both from and to")
	case hasRange && f.From.After(f.To):
		return nil, validationError("date range start %s is after end %s", f.From.Format(time.DateOnly), f.To.Format(time.DateOnly))
	}

	var (
		orders []Order
		err    error
	)
	switch {
	case f.CustomerID > 0:
		orders, err = s.orderRepo.ListOrdersByCustomer(ctx, f.CustomerID)
	case hasRange:
		orders, err = s.orderRepo.ListOrdersByDateRange(ctx, f.From, f.To)
	default:
		orders, err = s.orderRepo.ListOrders(ctx)
	}
	if err != nil {
		log.Error().Err(err).Int64("customer_id", f.CustomerID).Msg("service: failed to list orders in repository")
		return nil, fmt.Errorf("service: failed to list orders: %w", err)
	}

	return orders, nil
}

func (s *service) UpdateOrderStatus(ctx context.Context, orderID int64, newStatus Status) error {
	if !newStatus.Valid() {
		return validationError("unknown order status %q", newStatus)
	}

	currentOrder, err := s.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}

	if currentOrder.Status == newStatus {
		log.Info().Int64("order_id", orderID).Stringer("status", newStatus).Msg("service: order status is already the same, no update needed")
		return nil
	}

	if !allowedTransitions[currentOrder.Status][newStatus] {
		log.Warn().
			Int64("order_id", orderID).
			Stringer("current_status", currentOrder.Status).
			Stringer("new_status", newStatus).
			Msg("service: invalid status transition attempt")
		return fmt.Errorf("service: %w from %s to %s", ErrInvalidStatusTransition, currentOrder.Status, newStatus)
	}

	err = s.orderRepo.UpdateOrderStatus(ctx, orderID, newStatus)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		log.Error().Err(err).Int64("order_id", orderID).Stringer("new_status", newStatus).Msg("service: failed to update order status in repository")
		return fmt.Errorf("service: failed to update order status: %w", err)
	}

	log.Info().Int64("order_id", orderID).Stringer("old_status", currentOrder.Status).Stringer("new_status", newStatus).Msg("service: order status updated successfully")
	return nil
}

func (s *service) UpdatePaymentStatus(ctx context.Context, orderID int64, newStatus PaymentStatus) error {
	if !newStatus.Valid() {
		return validationError("unknown payment status %q", newStatus)
	}

	currentOrder, err := s.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}

	if currentOrder.PaymentStatus == newStatus {
		log.Info().Int64("order_id", orderID).Stringer("payment_status", newStatus).Msg("service: payment status is already the same, no update needed")
		return nil
	}

	if !allowedPaymentTransitions[currentOrder.PaymentStatus][newStatus] {
		log.Warn().
			Int64("order_id", orderID).
			Stringer("current_status", currentOrder.PaymentStatus).
			Stringer("new_status", newStatus).
			Msg("service: invalid payment status transition attempt")
		return fmt.Errorf("service: %w from %s to %s", ErrInvalidStatusTransition, currentOrder.PaymentStatus, newStatus)
	}

	err = s.orderRepo.UpdatePaymentStatus(ctx, orderID, newStatus)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return ErrOrderNotFound
		}
		log.Error().Err(err).Int64("order_id", orderID).Stringer("new_status", newStatus).Msg("service: failed to update payment status in repository")
		return fmt.Errorf("service: failed to update payment status: %w", err)
	}

	log.Info().Int64("order_id", orderID).Stringer("old_status", currentOrder.PaymentStatus).Stringer("new_status", newStatus).Msg("service: payment status updated successfully")
	return nil
}

func (s *service) CalculateOrderTotal(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	total, err := s.orderRepo.CalculateOrderTotal(ctx, orderID)
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			return decimal.Zero, ErrOrderNotFound
		}
		log.Error().Err(err).Int64("order_id", orderID).Msg("service: failed to calculate order total")
		return decimal.Zero, fmt.Errorf("service: failed to calculate order total: %w", err)
	}
	return total, nil
}
