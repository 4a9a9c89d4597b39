package order

import (
	"context"
	"fmt"

	"github.com/vasiliy-maslov/restaurant-orders/internal/recipe"
)

// Aggregate sums the ingredient requirements of every item. The result does
// not depend on item order; products without a recipe contribute nothing.
func Aggregate(ctx context.Context, resolver recipe.Resolver, items []OrderItem) (recipe.Requirements, error) {
	total := make(recipe.Requirements)
	for _, it := range items {
		req, err := resolver.RequiredIngredients(ctx, it.ProductID, it.Quantity)
		if err != nil {
			return nil, fmt.Errorf("aggregate: failed to resolve recipe for product %d: %w", it.ProductID, err)
		}
		total.Merge(req)
	}
	return total, nil
}
