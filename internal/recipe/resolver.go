package recipe

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/restaurant-orders/internal/db"
)

type Entry struct {
	ProductID    int64
	IngredientID int64
	PerUnit      decimal.Decimal
}

type Resolver interface {
	// RequiredIngredients returns perUnit*quantity for every ingredient in the
	// product's recipe. A product without recipe rows yields an empty map.
	RequiredIngredients(ctx context.Context, productID int64, quantity int) (Requirements, error)
}

type PostgresResolver struct {
	db db.Querier
}

func NewPostgresResolver(q db.Querier) *PostgresResolver {
	return &PostgresResolver{db: q}
}

func (r *PostgresResolver) Entries(ctx context.Context, productID int64) ([]Entry, error) {
	query := `
		SELECT product_id, ingredient_id, quantity_needed::text
		FROM dish_ingredients
		WHERE product_id = $1
		ORDER BY ingredient_id
	`

	rows, err := r.db.Query(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("recipe: failed to query recipe for product %d: %w", productID, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			e   Entry
			raw string
		)
		if err := rows.Scan(&e.ProductID, &e.IngredientID, &raw); err != nil {
			return nil, fmt.Errorf("recipe: failed to scan recipe row for product %d: %w", productID, err)
		}
		e.PerUnit, err = decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("recipe: invalid quantity %q for product %d: %w", raw, productID, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recipe: error iterating recipe rows for product %d: %w", productID, err)
	}

	return entries, nil
}

func (r *PostgresResolver) RequiredIngredients(ctx context.Context, productID int64, quantity int) (Requirements, error) {
	entries, err := r.Entries(ctx, productID)
	if err != nil {
		return nil, err
	}
	return Expand(entries, quantity), nil
}

// Expand multiplies recipe entries by a dish quantity.
func Expand(entries []Entry, quantity int) Requirements {
	req := make(Requirements, len(entries))
	qty := decimal.NewFromInt(int64(quantity))
	for _, e := range entries {
		req.Add(e.IngredientID, e.PerUnit.Mul(qty))
	}
	return req
}
