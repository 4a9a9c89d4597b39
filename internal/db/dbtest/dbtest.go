// Package dbtest opens a migrated PostgreSQL pool for integration tests.
// Tests are skipped unless TEST_DATABASE_URL is set.
package dbtest

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/vasiliy-maslov/restaurant-orders/internal/db"
)

const EnvURL = "TEST_DATABASE_URL"

var (
	migrateOnce sync.Once
	migrateErr  error
)

func migrationsDir() string {
	_, file, _, _ := runtime.Caller(0)
	return filepath.Join(filepath.Dir(file), "..", "..", "..", "migrations")
}

// Open connects to TEST_DATABASE_URL, applies migrations once per process and
// truncates every table. The pool is closed on test cleanup.
func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()

	url := lookupURL()
	if url == "" {
		t.Skipf("%s not set, skipping integration test", EnvURL)
	}

	migrateOnce.Do(func() {
		dsn := url
		for _, scheme := range []string{"postgres://", "postgresql://"} {
			if strings.HasPrefix(dsn, scheme) {
				dsn = "pgx5://" + strings.TrimPrefix(dsn, scheme)
				break
			}
		}
		migrateErr = db.Migrate(migrationsDir(), dsn)
	})
	require.NoError(t, migrateErr, "migrations must apply")

	pool, err := pgxpool.New(context.Background(), url)
	require.NoError(t, err, "failed to connect to test database")
	t.Cleanup(pool.Close)

	Reset(t, pool)
	return pool
}

func Reset(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	_, err := pool.Exec(context.Background(), `
		TRUNCATE TABLE inventory_transactions, assigned_employees_to_orders, order_items, orders,
			dish_ingredients, ingredients, products, employees, customers
		RESTART IDENTITY CASCADE
	`)
	require.NoError(t, err, "failed to truncate tables")
}

// Fixture is a minimal restaurant: one customer, two employees, flour and eggs,
// and a pancake recipe using 0.5 flour and 2 eggs per portion.
type Fixture struct {
	CustomerID int64
	Cook       int64
	Waiter     int64
	Flour      int64
	Eggs       int64
	Pancakes   int64
}

func Seed(t *testing.T, pool *pgxpool.Pool, flour, eggs string) Fixture {
	t.Helper()
	ctx := context.Background()
	var f Fixture

	row := func(sql string, args ...any) int64 {
		var id int64
		require.NoError(t, pool.QueryRow(ctx, sql, args...).Scan(&id))
		return id
	}

	f.CustomerID = row(`INSERT INTO customers (full_name) VALUES ('Ada') RETURNING customer_id`)
	f.Cook = row(`INSERT INTO employees (full_name, role) VALUES ('Cook', 'cook') RETURNING employee_id`)
	f.Waiter = row(`INSERT INTO employees (full_name, role) VALUES ('Waiter', 'waiter') RETURNING employee_id`)
	f.Flour = row(`INSERT INTO ingredients (name, quantity_in_stock, unit) VALUES ('flour', $1::text::numeric, 'kg') RETURNING ingredient_id`, flour)
	f.Eggs = row(`INSERT INTO ingredients (name, quantity_in_stock, unit) VALUES ('eggs', $1::text::numeric, 'pcs') RETURNING ingredient_id`, eggs)
	f.Pancakes = row(`INSERT INTO products (name, price) VALUES ('pancakes', 4.50) RETURNING product_id`)

	_, err := pool.Exec(ctx, `
		INSERT INTO dish_ingredients (product_id, ingredient_id, quantity_needed)
		VALUES ($1, $2, 0.5), ($1, $3, 2)
	`, f.Pancakes, f.Flour, f.Eggs)
	require.NoError(t, err)

	return f
}

func lookupURL() string {
	return strings.TrimSpace(os.Getenv(EnvURL))
}
