package order_test

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/vasiliy-maslov/restaurant-orders/internal/inventory"
	"github.com/vasiliy-maslov/restaurant-orders/internal/order"
	"github.com/vasiliy-maslov/restaurant-orders/internal/recipe"
)

var errInjected = errors.New("injected failure")

// tables is the persisted state of memStore.
type tables struct {
	Stock  map[int64]decimal.Decimal
	Orders map[int64]order.Order
	Items  map[int64][]order.OrderItem
	Staff  map[int64][]int64
	Audit  []inventory.Adjustment
}

func (t tables) clone() tables {
	c := tables{
		Stock:  maps.Clone(t.Stock),
		Orders: maps.Clone(t.Orders),
		Items:  make(map[int64][]order.OrderItem, len(t.Items)),
		Staff:  make(map[int64][]int64, len(t.Staff)),
		Audit:  slices.Clone(t.Audit),
	}
	for k, v := range t.Items {
		c.Items[k] = slices.Clone(v)
	}
	for k, v := range t.Staff {
		c.Staff[k] = slices.Clone(v)
	}
	return c
}

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

// memStore is an in-memory Store, recipe.Resolver and inventory.StockReader.
// A unit of work edits a private copy that Commit publishes.
type memStore struct {
	mu      sync.Mutex
	data    tables
	recipes map[int64][]recipe.Entry
	nextID  int64

	failOn       string // begin, header, items, staff, adjust, commit
	shortItems   bool
	shortStaff   bool
	stockReads   int
	begins       int
	commits      int
	rollbacks    int
	lastAdjusted []int64
}

func newMemStore(stock map[int64]decimal.Decimal, recipes map[int64][]recipe.Entry) *memStore {
	return &memStore{
		data: tables{
			Stock:  stock,
			Orders: map[int64]order.Order{},
			Items:  map[int64][]order.OrderItem{},
			Staff:  map[int64][]int64{},
		},
		recipes: recipes,
	}
}

func (m *memStore) snapshot() tables {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.data.clone()
}

func (m *memStore) RequiredIngredients(_ context.Context, productID int64, quantity int) (recipe.Requirements, error) {
	return recipe.Expand(m.recipes[productID], quantity), nil
}

func (m *memStore) Stock(_ context.Context, ingredientID int64) (decimal.Decimal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stockReads++
	qty, ok := m.data.Stock[ingredientID]
	if !ok {
		return decimal.Zero, inventory.ErrIngredientNotFound
	}
	return qty, nil
}

func (m *memStore) Begin(context.Context) (order.UnitOfWork, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.begins++
	if m.failOn == "begin" {
		return nil, errInjected
	}
	return &memUnit{store: m, work: m.data.clone()}, nil
}

type memUnit struct {
	store *memStore
	work  tables
	done  bool
}

func (u *memUnit) InsertOrder(_ context.Context, o *order.Order) (int64, error) {
	if u.store.failOn == "header" {
		return 0, errInjected
	}
	u.store.mu.Lock()
	u.store.nextID++
	id := u.store.nextID
	u.store.mu.Unlock()

	stored := *o
	stored.ID = id
	stored.Items = nil
	stored.EmployeeIDs = nil
	u.work.Orders[id] = stored
	return id, nil
}

func (u *memUnit) InsertItems(_ context.Context, orderID int64, items []order.OrderItem) (int, error) {
	if u.store.failOn == "items" {
		return 0, errInjected
	}
	n := len(items)
	if u.store.shortItems {
		n--
	}
	for i, it := range items[:n] {
		it.ID = int64(i + 1)
		it.OrderID = orderID
		u.work.Items[orderID] = append(u.work.Items[orderID], it)
	}
	return n, nil
}

func (u *memUnit) AssignEmployees(_ context.Context, orderID int64, employeeIDs []int64) (int, error) {
	if u.store.failOn == "staff" {
		return 0, errInjected
	}
	n := len(employeeIDs)
	if u.store.shortStaff {
		n--
	}
	u.work.Staff[orderID] = append(u.work.Staff[orderID], employeeIDs[:n]...)
	return n, nil
}

func (u *memUnit) AdjustStock(_ context.Context, adj inventory.Adjustment) error {
	u.store.lastAdjusted = append(u.store.lastAdjusted, adj.IngredientID)
	if u.store.failOn == "adjust" && len(u.store.lastAdjusted) > 1 {
		return errInjected
	}
	cur, ok := u.work.Stock[adj.IngredientID]
	if !ok {
		return inventory.ErrIngredientNotFound
	}
	next := cur.Add(adj.Delta)
	if next.IsNegative() {
		return fmt.Errorf("ingredient %d: %w", adj.IngredientID, inventory.ErrInsufficientStock)
	}
	u.work.Stock[adj.IngredientID] = next
	u.work.Audit = append(u.work.Audit, adj)
	return nil
}

func (u *memUnit) Commit(context.Context) error {
	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	if u.store.failOn == "commit" {
		return errInjected
	}
	u.store.data = u.work
	u.store.commits++
	u.done = true
	return nil
}

func (u *memUnit) Rollback(context.Context) error {
	if u.done {
		return nil
	}
	u.store.mu.Lock()
	u.store.rollbacks++
	u.store.mu.Unlock()
	u.done = true
	return nil
}
