package order_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/restaurant-orders/internal/db/dbtest"
	"github.com/vasiliy-maslov/restaurant-orders/internal/inventory"
	"github.com/vasiliy-maslov/restaurant-orders/internal/order"
	"github.com/vasiliy-maslov/restaurant-orders/internal/recipe"
)

func setup(t *testing.T, flourStock, eggStock string) (*pgxpool.Pool, dbtest.Fixture, *order.Placer, order.Repository) {
	pool := dbtest.Open(t)
	fx := dbtest.Seed(t, pool, flourStock, eggStock)

	ledger := inventory.NewLedger(pool)
	placer := order.NewPlacer(
		recipe.NewPostgresResolver(pool),
		inventory.NewChecker(ledger),
		order.NewPostgresStore(pool, ledger),
	)
	return pool, fx, placer, order.NewRepository(pool)
}

func pancakeOrder(fx dbtest.Fixture, qty int, at time.Time) *order.Order {
	return &order.Order{
		CustomerID:    fx.CustomerID,
		CreatedAt:     at,
		Type:          order.TypeTakeout,
		PaymentMethod: "cash",
		Items:         []order.OrderItem{{ProductID: fx.Pancakes, Quantity: qty, UnitPrice: d("4.50")}},
		EmployeeIDs:   []int64{fx.Waiter, fx.Cook},
	}
}

func countRows(t *testing.T, pool *pgxpool.Pool, table string) int {
	var n int
	require.NoError(t, pool.QueryRow(context.Background(), "SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func TestPostgresPlacement_RoundTrip(t *testing.T) {
	pool, fx, placer, repo := setup(t, "10", "12")
	ctx := context.Background()
	at := time.Date(2026, 5, 2, 12, 0, 0, 0, time.UTC)

	id, err := placer.Place(ctx, pancakeOrder(fx, 4, at))
	require.NoError(t, err)

	got, err := repo.GetOrderByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, fx.CustomerID, got.CustomerID)
	assert.Equal(t, order.StatusPending, got.Status)
	assert.Equal(t, order.PaymentUnpaid, got.PaymentStatus)
	assert.True(t, got.TotalAmount.Equal(d("18")), "got %s", got.TotalAmount)
	require.Len(t, got.Items, 1)
	assert.Equal(t, 4, got.Items[0].Quantity)
	assert.Equal(t, []int64{fx.Waiter, fx.Cook}, got.EmployeeIDs)

	ledger := inventory.NewLedger(pool)
	flour, err := ledger.Stock(ctx, fx.Flour)
	require.NoError(t, err)
	assert.True(t, flour.Equal(d("8")), "got %s", flour)
	eggs, err := ledger.Stock(ctx, fx.Eggs)
	require.NoError(t, err)
	assert.True(t, eggs.Equal(d("4")), "got %s", eggs)

	var responsible int64
	var note string
	require.NoError(t, pool.QueryRow(ctx,
		`SELECT DISTINCT employee_id, note FROM inventory_transactions WHERE note LIKE 'Used in order%'`,
	).Scan(&responsible, &note))
	assert.Equal(t, fx.Waiter, responsible)
	assert.Contains(t, note, "#")

	total, err := repo.CalculateOrderTotal(ctx, id)
	require.NoError(t, err)
	assert.True(t, total.Equal(d("18")))
}

func TestPostgresPlacement_InsufficientLeavesNothing(t *testing.T) {
	pool, fx, placer, _ := setup(t, "10", "7")

	_, err := placer.Place(context.Background(), pancakeOrder(fx, 4, time.Time{}))
	require.ErrorIs(t, err, order.ErrInsufficientInventory)

	for _, table := range []string{"orders", "order_items", "assigned_employees_to_orders", "inventory_transactions"} {
		assert.Zero(t, countRows(t, pool, table), table)
	}
}

func TestPostgresPlacement_UnknownEmployeeRollsBack(t *testing.T) {
	pool, fx, placer, _ := setup(t, "10", "12")

	o := pancakeOrder(fx, 1, time.Time{})
	o.EmployeeIDs = []int64{fx.Cook, 9999}

	_, err := placer.Place(context.Background(), o)
	require.ErrorIs(t, err, order.ErrPersistence)
	require.ErrorIs(t, err, inventory.ErrUnknownEmployee)

	for _, table := range []string{"orders", "order_items", "assigned_employees_to_orders", "inventory_transactions"} {
		assert.Zero(t, countRows(t, pool, table), table)
	}
	flour, err := inventory.NewLedger(pool).Stock(context.Background(), fx.Flour)
	require.NoError(t, err)
	assert.True(t, flour.Equal(d("10")))
}

func TestPostgresRepository_Lists(t *testing.T) {
	_, fx, placer, repo := setup(t, "100", "100")
	ctx := context.Background()

	day := func(n int) time.Time { return time.Date(2026, 5, n, 10, 0, 0, 0, time.UTC) }
	var ids []int64
	for _, n := range []int{1, 3, 2, 5} {
		id, err := placer.Place(ctx, pancakeOrder(fx, 1, day(n)))
		require.NoError(t, err)
		ids = append(ids, id)
	}

	all, err := repo.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, []int64{ids[3], ids[1], ids[2], ids[0]}, orderIDs(all), "most recent first")
	for _, o := range all {
		assert.Len(t, o.Items, 1)
		assert.Len(t, o.EmployeeIDs, 2)
	}

	byCustomer, err := repo.ListOrdersByCustomer(ctx, fx.CustomerID)
	require.NoError(t, err)
	assert.Len(t, byCustomer, 4)

	none, err := repo.ListOrdersByCustomer(ctx, fx.CustomerID+1)
	require.NoError(t, err)
	assert.Empty(t, none)

	ranged, err := repo.ListOrdersByDateRange(ctx, day(2), day(3))
	require.NoError(t, err)
	assert.Equal(t, []int64{ids[1], ids[2]}, orderIDs(ranged), "inclusive on both ends")
}

func TestPostgresRepository_DateRangeIgnoresSessionTimeZone(t *testing.T) {
	_, fx, placer, _ := setup(t, "10", "12")
	ctx := context.Background()

	lateEvening := time.Date(2026, 5, 2, 23, 30, 0, 0, time.UTC)
	id, err := placer.Place(ctx, pancakeOrder(fx, 1, lateEvening))
	require.NoError(t, err)

	// UTC+14: the order falls on May 3rd in session time.
	cfg, err := pgxpool.ParseConfig(os.Getenv(dbtest.EnvURL))
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["timezone"] = "Pacific/Kiritimati"
	farEast, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(farEast.Close)
	repo := order.NewRepository(farEast)

	day := func(n int) time.Time { return time.Date(2026, 5, n, 0, 0, 0, 0, time.UTC) }

	sameDay, err := repo.ListOrdersByDateRange(ctx, day(2), day(2))
	require.NoError(t, err)
	assert.Equal(t, []int64{id}, orderIDs(sameDay))

	nextDay, err := repo.ListOrdersByDateRange(ctx, day(3), day(3))
	require.NoError(t, err)
	assert.Empty(t, nextDay)
}

func TestPostgresRepository_UpdateStatus(t *testing.T) {
	_, fx, placer, repo := setup(t, "10", "12")
	ctx := context.Background()

	id, err := placer.Place(ctx, pancakeOrder(fx, 1, time.Time{}))
	require.NoError(t, err)

	require.NoError(t, repo.UpdateOrderStatus(ctx, id, order.StatusInProgress))
	require.NoError(t, repo.UpdatePaymentStatus(ctx, id, order.PaymentPaid))

	got, err := repo.GetOrderByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, order.StatusInProgress, got.Status)
	assert.Equal(t, order.PaymentPaid, got.PaymentStatus)

	assert.ErrorIs(t, repo.UpdateOrderStatus(ctx, id+100, order.StatusCompleted), order.ErrOrderNotFound)
	assert.ErrorIs(t, repo.UpdatePaymentStatus(ctx, id+100, order.PaymentPaid), order.ErrOrderNotFound)

	_, err = repo.GetOrderByID(ctx, id+100)
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
	_, err = repo.CalculateOrderTotal(ctx, id+100)
	assert.ErrorIs(t, err, order.ErrOrderNotFound)
}

func orderIDs(orders []order.Order) []int64 {
	ids := make([]int64, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	return ids
}
