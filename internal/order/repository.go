package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/restaurant-orders/internal/db"
)

type Repository interface {
	GetOrderByID(ctx context.Context, id int64) (*Order, error)
	ListOrders(ctx context.Context) ([]Order, error)
	ListOrdersByCustomer(ctx context.Context, customerID int64) ([]Order, error)
	// ListOrdersByDateRange matches orders whose calendar date lies in [from, to].
	ListOrdersByDateRange(ctx context.Context, from, to time.Time) ([]Order, error)
	UpdateOrderStatus(ctx context.Context, orderID int64, newStatus Status) error
	UpdatePaymentStatus(ctx context.Context, orderID int64, newStatus PaymentStatus) error
	CalculateOrderTotal(ctx context.Context, orderID int64) (decimal.Decimal, error)
}

type postgresRepository struct {
	db db.Querier
}

func NewRepository(q db.Querier) Repository {
	return &postgresRepository{db: q}
}

const selectOrders = `
	SELECT order_id, customer_id, order_datetime, order_type, order_status, payment_status,
	       total_amount::text, payment_method
	FROM orders
`

const mostRecentFirst = ` ORDER BY order_datetime DESC, order_id DESC`

func scanOrder(row pgx.Row) (Order, error) {
	var (
		o     Order
		total string
	)
	err := row.Scan(
		&o.ID,
		&o.CustomerID,
		&o.CreatedAt,
		&o.Type,
		&o.Status,
		&o.PaymentStatus,
		&total,
		&o.PaymentMethod,
	)
	if err != nil {
		return o, err
	}
	o.TotalAmount, err = decimal.NewFromString(total)
	if err != nil {
		return o, fmt.Errorf("invalid total amount %q: %w", total, err)
	}
	return o, nil
}

func (r *postgresRepository) GetOrderByID(ctx context.Context, orderID int64) (*Order, error) {
	o, err := scanOrder(r.db.QueryRow(ctx, selectOrders+` WHERE order_id = $1`, orderID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("repository: failed to select order by id %d: %w", orderID, err)
	}

	orders := []Order{o}
	if err := r.hydrate(ctx, orders); err != nil {
		return nil, fmt.Errorf("repository: failed to hydrate order %d: %w", orderID, err)
	}
	return &orders[0], nil
}

func (r *postgresRepository) ListOrders(ctx context.Context) ([]Order, error) {
	orders, err := r.list(ctx, selectOrders+mostRecentFirst)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to list orders: %w", err)
	}
	return orders, nil
}

func (r *postgresRepository) ListOrdersByCustomer(ctx context.Context, customerID int64) ([]Order, error) {
	orders, err := r.list(ctx, selectOrders+` WHERE customer_id = $1`+mostRecentFirst, customerID)
	if err != nil {
		return nil, fmt.Errorf("repository: failed to list orders for customer %d: %w", customerID, err)
	}
	return orders, nil
}

// ListOrdersByDateRange matches whole UTC calendar days, so the result does not
// depend on the session TimeZone. Only the date part of from and to is used.
func (r *postgresRepository) ListOrdersByDateRange(ctx context.Context, from, to time.Time) ([]Order, error) {
	query := selectOrders +
		` WHERE (order_datetime AT TIME ZONE 'UTC')::date BETWEEN $1::text::date AND $2::text::date` +
		mostRecentFirst
	orders, err := r.list(ctx, query, from.Format(time.DateOnly), to.Format(time.DateOnly))
	if err != nil {
		return nil, fmt.Errorf("repository: failed to list orders from %s to %s: %w",
			from.Format(time.DateOnly), to.Format(time.DateOnly), err)
	}
	return orders, nil
}

func (r *postgresRepository) list(ctx context.Context, query string, args ...any) ([]Order, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan order: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating orders: %w", err)
	}

	if err := r.hydrate(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// hydrate attaches items and assigned employees to orders in place.
func (r *postgresRepository) hydrate(ctx context.Context, orders []Order) error {
	if len(orders) == 0 {
		return nil
	}

	ids := make([]int64, len(orders))
	for i := range orders {
		ids[i] = orders[i].ID
	}

	items, err := selectItems(ctx, r.db, ids)
	if err != nil {
		return err
	}
	staff, err := selectAssignments(ctx, r.db, ids)
	if err != nil {
		return err
	}

	for i := range orders {
		orders[i].Items = items[orders[i].ID]
		if orders[i].Items == nil {
			orders[i].Items = []OrderItem{}
		}
		orders[i].EmployeeIDs = staff[orders[i].ID]
		if orders[i].EmployeeIDs == nil {
			orders[i].EmployeeIDs = []int64{}
		}
	}
	return nil
}

// selectItems reads the line items of the given orders, keyed by order id.
func selectItems(ctx context.Context, q db.Querier, orderIDs []int64) (map[int64][]OrderItem, error) {
	query := `
		SELECT order_item_id, order_id, product_id, quantity, price_at_time::text
		FROM order_items
		WHERE order_id = ANY($1)
		ORDER BY order_id, order_item_id
	`

	rows, err := q.Query(ctx, query, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query order items: %w", err)
	}
	defer rows.Close()

	byOrder := make(map[int64][]OrderItem, len(orderIDs))
	for rows.Next() {
		var (
			it    OrderItem
			price string
		)
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &price); err != nil {
			return nil, fmt.Errorf("failed to scan order item: %w", err)
		}
		it.UnitPrice, err = decimal.NewFromString(price)
		if err != nil {
			return nil, fmt.Errorf("invalid price %q for order item %d: %w", price, it.ID, err)
		}
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating order items: %w", err)
	}
	return byOrder, nil
}

// selectAssignments reads assigned employee ids in assignment order, keyed by order id.
func selectAssignments(ctx context.Context, q db.Querier, orderIDs []int64) (map[int64][]int64, error) {
	query := `
		SELECT order_id, employee_id
		FROM assigned_employees_to_orders
		WHERE order_id = ANY($1)
		ORDER BY order_id, position
	`

	rows, err := q.Query(ctx, query, orderIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to query employee assignments: %w", err)
	}
	defer rows.Close()

	byOrder := make(map[int64][]int64, len(orderIDs))
	for rows.Next() {
		var orderID, employeeID int64
		if err := rows.Scan(&orderID, &employeeID); err != nil {
			return nil, fmt.Errorf("failed to scan employee assignment: %w", err)
		}
		byOrder[orderID] = append(byOrder[orderID], employeeID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating employee assignments: %w", err)
	}
	return byOrder, nil
}

func (r *postgresRepository) UpdateOrderStatus(ctx context.Context, orderID int64, newStatus Status) error {
	cmdTag, err := r.db.Exec(ctx, `UPDATE orders SET order_status = $1 WHERE order_id = $2`, string(newStatus), orderID)
	if err != nil {
		log.Error().Err(err).Int64("order_id", orderID).Stringer("new_status", newStatus).Msg("repository: failed to update order status")
		return fmt.Errorf("repository: failed to update order status %d: %w", orderID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		log.Warn().Int64("order_id", orderID).Stringer("new_status", newStatus).Msg("repository: order not found for status update")
		return ErrOrderNotFound
	}
	return nil
}

func (r *postgresRepository) UpdatePaymentStatus(ctx context.Context, orderID int64, newStatus PaymentStatus) error {
	cmdTag, err := r.db.Exec(ctx, `UPDATE orders SET payment_status = $1 WHERE order_id = $2`, string(newStatus), orderID)
	if err != nil {
		log.Error().Err(err).Int64("order_id", orderID).Stringer("new_status", newStatus).Msg("repository: failed to update payment status")
		return fmt.Errorf("repository: failed to update payment status %d: %w", orderID, err)
	}

	if cmdTag.RowsAffected() == 0 {
		log.Warn().Int64("order_id", orderID).Stringer("new_status", newStatus).Msg("repository: order not found for payment status update")
		return ErrOrderNotFound
	}
	return nil
}

// CalculateOrderTotal sums quantity times the price captured at order time.
func (r *postgresRepository) CalculateOrderTotal(ctx context.Context, orderID int64) (decimal.Decimal, error) {
	query := `
		SELECT COALESCE(SUM(i.quantity * i.price_at_time), 0)::text
		FROM orders o
		LEFT JOIN order_items i ON i.order_id = o.order_id
		WHERE o.order_id = $1
		GROUP BY o.order_id
	`

	var raw string
	err := r.db.QueryRow(ctx, query, orderID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, ErrOrderNotFound
		}
		return decimal.Zero, fmt.Errorf("repository: failed to calculate total for order %d: %w", orderID, err)
	}

	total, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("repository: invalid total %q for order %d: %w", raw, orderID, err)
	}
	return total, nil
}
