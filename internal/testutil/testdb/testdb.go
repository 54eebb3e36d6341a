// Package testdb opens the shared Postgres instance used by integration tests.
package testdb

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/ayo6706/wallet-transfer/internal/db"
	"github.com/jackc/pgx/v5/pgxpool"
)

var tables = []string{"audit_log", "idempotency_keys", "transfers", "accounts"}

// Open connects to DATABASE_URL, applies the schema and empties every table.
// The test is skipped when DATABASE_URL is unset.
func Open(t *testing.T) *pgxpool.Pool {
	t.Helper()

	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		t.Skip("DATABASE_URL not set; skipping Postgres integration test")
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, connString, 8)
	if err != nil {
		t.Fatalf("Failed to connect to DB: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.EnsureSchema(ctx, pool); err != nil {
		t.Fatalf("Failed to apply schema: %v", err)
	}
	for _, table := range tables {
		if _, err := pool.Exec(ctx, fmt.Sprintf("TRUNCATE TABLE %s CASCADE", table)); err != nil {
			t.Fatalf("Failed to truncate %s: %v", table, err)
		}
	}
	return pool
}
