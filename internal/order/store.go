package order

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vasiliy-maslov/restaurant-orders/internal/db"
	"github.com/vasiliy-maslov/restaurant-orders/internal/inventory"
)

// Store opens units of work for order placement.
type Store interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// UnitOfWork groups every write of one placement. Nothing is visible to other
// readers until Commit; Rollback discards all of it.
type UnitOfWork interface {
	InsertOrder(ctx context.Context, o *Order) (int64, error)
	// InsertItems and AssignEmployees return how many rows were written.
	InsertItems(ctx context.Context, orderID int64, items []OrderItem) (int, error)
	AssignEmployees(ctx context.Context, orderID int64, employeeIDs []int64) (int, error)
	AdjustStock(ctx context.Context, adj inventory.Adjustment) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type PostgresStore struct {
	pool   db.Beginner
	ledger *inventory.Ledger
}

func NewPostgresStore(pool db.Beginner, ledger *inventory.Ledger) *PostgresStore {
	return &PostgresStore{pool: pool, ledger: ledger}
}

func (s *PostgresStore) Begin(ctx context.Context) (UnitOfWork, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("store: failed to begin transaction: %w", err)
	}
	return &pgUnit{tx: tx, ledger: s.ledger}, nil
}

type pgUnit struct {
	tx     pgx.Tx
	ledger *inventory.Ledger
}

func (u *pgUnit) InsertOrder(ctx context.Context, o *Order) (int64, error) {
	query := `
		INSERT INTO orders (customer_id, order_datetime, order_type, order_status, payment_status, total_amount, payment_method)
		VALUES ($1, $2, $3, $4, $5, $6::text::numeric, $7)
		RETURNING order_id
	`

	var id int64
	err := u.tx.QueryRow(ctx, query,
		o.CustomerID,
		o.CreatedAt,
		string(o.Type),
		string(o.Status),
		string(o.PaymentStatus),
		o.TotalAmount.String(),
		o.PaymentMethod,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: failed to insert order: %w", classify(err))
	}
	return id, nil
}

func (u *pgUnit) InsertItems(ctx context.Context, orderID int64, items []OrderItem) (int, error) {
	query := `
		INSERT INTO order_items (order_id, product_id, quantity, price_at_time)
		VALUES ($1, $2, $3, $4::text::numeric)
	`

	batch := &pgx.Batch{}
	for _, it := range items {
		batch.Queue(query, orderID, it.ProductID, it.Quantity, it.UnitPrice.String())
	}
	return u.sendBatch(ctx, batch, "order items")
}

func (u *pgUnit) AssignEmployees(ctx context.Context, orderID int64, employeeIDs []int64) (int, error) {
	query := `
		INSERT INTO assigned_employees_to_orders (order_id, employee_id, position)
		VALUES ($1, $2, $3)
	`

	batch := &pgx.Batch{}
	for i, id := range employeeIDs {
		batch.Queue(query, orderID, id, i)
	}
	return u.sendBatch(ctx, batch, "employee assignments")
}

func (u *pgUnit) sendBatch(ctx context.Context, batch *pgx.Batch, what string) (written int, err error) {
	br := u.tx.SendBatch(ctx, batch)
	defer func() {
		if closeErr := br.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("store: failed to close %s batch: %w", what, closeErr)
		}
	}()

	for range batch.Len() {
		tag, execErr := br.Exec()
		if execErr != nil {
			return written, fmt.Errorf("store: failed to insert %s: %w", what, classify(execErr))
		}
		written += int(tag.RowsAffected())
	}
	return written, nil
}

func (u *pgUnit) AdjustStock(ctx context.Context, adj inventory.Adjustment) error {
	_, err := u.ledger.Apply(ctx, u.tx, adj)
	return err
}

func (u *pgUnit) Commit(ctx context.Context) error {
	return u.tx.Commit(ctx)
}

func (u *pgUnit) Rollback(ctx context.Context) error {
	err := u.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	if pgErr.Code != pgerrcode.ForeignKeyViolation {
		return err
	}
	switch pgErr.TableName {
	case "orders":
		return errors.Join(ErrCustomerNotFound, err)
	case "order_items":
		return errors.Join(ErrProductNotFound, err)
	case "assigned_employees_to_orders":
		return errors.Join(inventory.ErrUnknownEmployee, err)
	}
	return err
}
