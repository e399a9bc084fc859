package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetledger/internal/core"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/ledger?sslmode=disable", migrateURL("postgres://u:p@db:5432/ledger?sslmode=disable"))
	assert.Equal(t, "pgx5://db/ledger", migrateURL("postgresql://db/ledger"))
	assert.Equal(t, "pgx5://db/ledger", migrateURL("pgx5://db/ledger"))
}

// Integration tests run only when TEST_DATABASE_URL points at a scratch database.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	require.NoError(t, RunMigrations(url))

	ctx := context.Background()
	pool, err := Connect(ctx, url)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `TRUNCATE owner_transactions, transactions, owners`)
	require.NoError(t, err)
	return New(pool)
}

func TestPostgresLedgerRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	owner, err := s.CreateOwner(ctx, "Asha", "asha@example.com")
	require.NoError(t, err)

	mk := func(amount string, day int) core.Transaction {
		return core.Transaction{
			OwnerID: owner.ID, Title: "shop", Description: "market",
			Amount: decimal.RequireFromString(amount), Category: "Groceries & Vegetables",
			Kind: core.KindExpense, OccurredAt: time.Date(2025, 3, day, 9, 0, 0, 0, time.UTC),
		}
	}
	first, err := s.Insert(ctx, mk("6500", 2))
	require.NoError(t, err)
	second, err := s.Insert(ctx, mk("2000.75", 10))
	require.NoError(t, err)

	sum, err := s.MonthToDateSum(ctx, owner.ID, "Groceries & Vegetables", core.KindExpense, time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("8500.75").Equal(sum), "got %s", sum)

	o, err := s.GetOwner(ctx, owner.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, second.ID}, o.TransactionIDs)

	assert.ErrorIs(t, s.DeleteByID(ctx, owner.ID, "missing"), core.ErrNotFound)
	require.NoError(t, s.DeleteByID(ctx, owner.ID, first.ID))

	list, err := s.ListByOwner(ctx, owner.ID, core.ListFilter{})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, second.ID, list[0].ID)

	_, err = s.Insert(ctx, core.Transaction{OwnerID: owner.ID})
	assert.ErrorIs(t, err, core.ErrValidation)
}
