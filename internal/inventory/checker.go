package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/restaurant-orders/internal/recipe"
)

type StockReader interface {
	Stock(ctx context.Context, ingredientID int64) (decimal.Decimal, error)
}

// Checker is the read-only pre-check run before a write transaction is opened.
// It is a fast path only; Ledger.Apply is what actually refuses overdrafts.
type Checker struct {
	stock StockReader
}

func NewChecker(stock StockReader) *Checker {
	return &Checker{stock: stock}
}

// Check returns the first shortfall in ascending ingredient order, or nil when
// every requirement is covered. A missing ingredient counts as zero stock.
func (c *Checker) Check(ctx context.Context, req recipe.Requirements) (*Shortfall, error) {
	for _, id := range req.SortedIDs() {
		required := req[id]

		available, err := c.stock.Stock(ctx, id)
		if err != nil {
			if errors.Is(err, ErrIngredientNotFound) {
				log.Warn().Int64("ingredient_id", id).Msg("checker: ingredient missing, treating as unavailable")
				return &Shortfall{IngredientID: id, Required: required, Available: decimal.Zero, Missing: true}, nil
			}
			return nil, fmt.Errorf("checker: failed to read stock for ingredient %d: %w", id, err)
		}

		if available.LessThan(required) {
			return &Shortfall{IngredientID: id, Required: required, Available: available}, nil
		}
	}
	return nil, nil
}

func (c *Checker) HasSufficientStock(ctx context.Context, req recipe.Requirements) (bool, error) {
	shortfall, err := c.Check(ctx, req)
	if err != nil {
		return false, err
	}
	return shortfall == nil, nil
}
