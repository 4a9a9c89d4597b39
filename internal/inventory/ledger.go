package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/restaurant-orders/internal/db"
)

// Ledger owns ingredient stock levels. Every change goes through Apply, which
// refuses any result below zero and writes an audit row in the same unit of work.
type Ledger struct {
	db  db.Beginner
	now func() time.Time
}

func NewLedger(pool db.Beginner) *Ledger {
	return &Ledger{
		db:  pool,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the timestamp source used for audit rows.
func (l *Ledger) WithClock(now func() time.Time) *Ledger {
	l.now = now
	return l
}

func (l *Ledger) Get(ctx context.Context, ingredientID int64) (*Ingredient, error) {
	query := `
		SELECT ingredient_id, name, quantity_in_stock::text, unit
		FROM ingredients
		WHERE ingredient_id = $1
	`

	var (
		ing Ingredient
		raw string
	)
	err := l.db.QueryRow(ctx, query, ingredientID).Scan(&ing.ID, &ing.Name, &raw, &ing.Unit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrIngredientNotFound
		}
		return nil, fmt.Errorf("ledger: failed to select ingredient %d: %w", ingredientID, err)
	}

	ing.QuantityInStock, err = decimal.NewFromString(raw)
	if err != nil {
		return nil, fmt.Errorf("ledger: invalid stock %q for ingredient %d: %w", raw, ingredientID, err)
	}
	return &ing, nil
}

// Stock returns the current quantity in stock, or ErrIngredientNotFound.
func (l *Ledger) Stock(ctx context.Context, ingredientID int64) (decimal.Decimal, error) {
	ing, err := l.Get(ctx, ingredientID)
	if err != nil {
		return decimal.Zero, err
	}
	return ing.QuantityInStock, nil
}

// AdjustStock applies a standalone adjustment (restock, waste, correction) in its own transaction.
func (l *Ledger) AdjustStock(ctx context.Context, adj Adjustment) (decimal.Decimal, error) {
	var remaining decimal.Decimal
	err := pgx.BeginFunc(ctx, l.db, func(tx pgx.Tx) error {
		var applyErr error
		remaining, applyErr = l.Apply(ctx, tx, adj)
		return applyErr
	})
	if err != nil {
		return decimal.Zero, err
	}
	return remaining, nil
}

// Apply performs the adjustment on q, which must be the caller's unit of work.
// The decrement is a single conditional UPDATE, so concurrent callers cannot
// jointly drive an ingredient below zero.
func (l *Ledger) Apply(ctx context.Context, q db.Querier, adj Adjustment) (decimal.Decimal, error) {
	if err := adj.Validate(); err != nil {
		return decimal.Zero, err
	}

	update := `
		UPDATE ingredients
		SET quantity_in_stock = quantity_in_stock + $2::text::numeric
		WHERE ingredient_id = $1
		  AND quantity_in_stock + $2::text::numeric >= 0
		RETURNING quantity_in_stock::text
	`

	var raw string
	err := q.QueryRow(ctx, update, adj.IngredientID, adj.Delta.String()).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return decimal.Zero, l.refusal(ctx, q, adj)
		}
		return decimal.Zero, classify(fmt.Errorf("ledger: failed to adjust ingredient %d: %w", adj.IngredientID, err))
	}

	remaining, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger: invalid stock %q for ingredient %d: %w", raw, adj.IngredientID, err)
	}

	txID, err := uuid.NewV4()
	if err != nil {
		return decimal.Zero, fmt.Errorf("ledger: failed to generate transaction id: %w", err)
	}

	insert := `
		INSERT INTO inventory_transactions (transaction_id, ingredient_id, quantity_change, employee_id, reason, note, created_at)
		VALUES ($1, $2, $3::text::numeric, $4, $5, $6, $7)
	`
	_, err = q.Exec(ctx, insert,
		txID,
		adj.IngredientID,
		adj.Delta.String(),
		adj.EmployeeID,
		string(adj.Reason),
		adj.Note,
		l.now(),
	)
	if err != nil {
		return decimal.Zero, classify(fmt.Errorf("ledger: failed to record transaction for ingredient %d: %w", adj.IngredientID, err))
	}

	log.Debug().
		Stringer("transaction_id", txID).
		Int64("ingredient_id", adj.IngredientID).
		Stringer("delta", adj.Delta).
		Stringer("remaining", remaining).
		Stringer("reason", adj.Reason).
		Msg("ledger: stock adjusted")

	return remaining, nil
}

// Transactions lists the audit rows of one ingredient, newest first, at most limit rows.
func (l *Ledger) Transactions(ctx context.Context, ingredientID int64, limit int) ([]Transaction, error) {
	if _, err := l.Get(ctx, ingredientID); err != nil {
		return nil, err
	}

	query := `
		SELECT transaction_id::text, ingredient_id, quantity_change::text, employee_id, reason, note, created_at
		FROM inventory_transactions
		WHERE ingredient_id = $1
		ORDER BY created_at DESC, transaction_id
		LIMIT $2
	`

	rows, err := l.db.Query(ctx, query, ingredientID, limit)
	if err != nil {
		return nil, fmt.Errorf("ledger: failed to select transactions for ingredient %d: %w", ingredientID, err)
	}
	defer rows.Close()

	transactions := make([]Transaction, 0)
	for rows.Next() {
		var (
			t             Transaction
			rawID, change string
			reason        string
		)
		if err := rows.Scan(&rawID, &t.IngredientID, &change, &t.EmployeeID, &reason, &t.Note, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("ledger: failed to scan transaction: %w", err)
		}
		if t.ID, err = uuid.FromString(rawID); err != nil {
			return nil, fmt.Errorf("ledger: invalid transaction id %q: %w", rawID, err)
		}
		if t.QuantityChange, err = decimal.NewFromString(change); err != nil {
			return nil, fmt.Errorf("ledger: invalid quantity change %q: %w", change, err)
		}
		t.Reason = Reason(reason)
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: failed to iterate transactions: %w", err)
	}
	return transactions, nil
}

// refusal explains why the conditional update touched no row.
func (l *Ledger) refusal(ctx context.Context, q db.Querier, adj Adjustment) error {
	var exists bool
	err := q.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM ingredients WHERE ingredient_id = $1)`, adj.IngredientID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("ledger: failed to probe ingredient %d: %w", adj.IngredientID, err)
	}
	if !exists {
		return fmt.Errorf("ledger: ingredient %d: %w", adj.IngredientID, ErrIngredientNotFound)
	}

	log.Warn().
		Int64("ingredient_id", adj.IngredientID).
		Stringer("delta", adj.Delta).
		Msg("ledger: adjustment refused, stock would go negative")
	return fmt.Errorf("ledger: ingredient %d cannot absorb %s: %w", adj.IngredientID, adj.Delta, ErrInsufficientStock)
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgerrcode.CheckViolation:
		return errors.Join(ErrInsufficientStock, err)
	case pgerrcode.ForeignKeyViolation:
		return errors.Join(ErrUnknownEmployee, err)
	}
	return err
}
