package recipe

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Requirements maps an ingredient id to the quantity needed of it.
// Quantities are fixed-point, so summation order never changes the result.
type Requirements map[int64]decimal.Decimal

func (r Requirements) Add(ingredientID int64, qty decimal.Decimal) {
	if cur, ok := r[ingredientID]; ok {
		r[ingredientID] = cur.Add(qty)
		return
	}
	r[ingredientID] = qty
}

func (r Requirements) Merge(other Requirements) {
	for id, qty := range other {
		r.Add(id, qty)
	}
}

// SortedIDs returns the ingredient ids in ascending order.
func (r Requirements) SortedIDs() []int64 {
	ids := make([]int64, 0, len(r))
	for id := range r {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (r Requirements) Equal(other Requirements) bool {
	if len(r) != len(other) {
		return false
	}
	for id, qty := range r {
		o, ok := other[id]
		if !ok || !o.Equal(qty) {
			return false
		}
	}
	return true
}
