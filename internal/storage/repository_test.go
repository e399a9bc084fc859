package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetledger/internal/core"
)

const groceries = "Groceries & Vegetables"

func date(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func newTestRepo(t *testing.T) (*SQLiteRepository, string) {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "data", "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	o, err := repo.CreateOwner(context.Background(), "Asha", "asha@example.com")
	require.NoError(t, err)
	return repo, o.ID
}

func expense(owner string, amount string, when time.Time) core.Transaction {
	return core.Transaction{
		OwnerID:     owner,
		Title:       "shop",
		Description: "market",
		Amount:      decimal.RequireFromString(amount),
		Category:    groceries,
		Kind:        core.KindExpense,
		OccurredAt:  when,
	}
}

func TestNewSQLiteRepositoryMigrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	repo, err := NewSQLiteRepository(path)
	require.NoError(t, err)
	require.NoError(t, repo.Ping(context.Background()))
	require.NoError(t, repo.Close())

	// Reopening an up to date schema is a no-op.
	repo, err = NewSQLiteRepository(path)
	require.NoError(t, err)
	defer repo.Close()

	version, dirty, err := SchemaVersion(path)
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
	assert.False(t, dirty)
}

func TestSQLiteInsertRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo, owner := newTestRepo(t)

	in := expense(owner, "1234.50", time.Date(2025, 3, 3, 17, 45, 0, 0, time.UTC))
	saved, err := repo.Insert(ctx, in)
	require.NoError(t, err)
	assert.NotEmpty(t, saved.ID)
	assert.Equal(t, date(2025, 3, 3), saved.OccurredAt)

	got, err := repo.FindByID(ctx, saved.ID)
	require.NoError(t, err)
	assert.True(t, in.Amount.Equal(got.Amount), "decimal amounts survive storage, got %s", got.Amount)
	assert.Equal(t, saved.OccurredAt, got.OccurredAt)
	assert.Equal(t, core.KindExpense, got.Kind)
	assert.WithinDuration(t, saved.CreatedAt, got.CreatedAt, time.Microsecond)

	o, err := repo.GetOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []string{saved.ID}, o.TransactionIDs)
}

func TestSQLiteInsertFailuresLeaveNoTrace(t *testing.T) {
	ctx := context.Background()
	repo, owner := newTestRepo(t)

	bad := expense(owner, "10", date(2025, 3, 3))
	bad.Category = ""
	_, err := repo.Insert(ctx, bad)
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = repo.Insert(ctx, expense("ghost", "10", date(2025, 3, 3)))
	assert.ErrorIs(t, err, core.ErrNotFound)

	o, err := repo.GetOwner(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, o.TransactionIDs)
}

func TestSQLiteMonthToDateSum(t *testing.T) {
	ctx := context.Background()
	repo, owner := newTestRepo(t)

	for _, tx := range []core.Transaction{
		expense(owner, "5000", date(2025, 3, 1)),
		expense(owner, "1000.25", date(2025, 3, 15)),
		expense(owner, "0.10", date(2025, 3, 15)),
		expense(owner, "0.20", date(2025, 3, 15)),
		expense(owner, "700", date(2025, 3, 16)),
		expense(owner, "900", date(2025, 2, 28)),
	} {
		_, err := repo.Insert(ctx, tx)
		require.NoError(t, err)
	}
	income := expense(owner, "40000", date(2025, 3, 2))
	income.Kind = core.KindIncome
	_, err := repo.Insert(ctx, income)
	require.NoError(t, err)

	sum, err := repo.MonthToDateSum(ctx, owner, groceries, core.KindExpense, time.Date(2025, 3, 15, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, "6000.55", sum.String())

	none, err := repo.MonthToDateSum(ctx, owner, "Milk & Dairy", core.KindExpense, date(2025, 3, 15))
	require.NoError(t, err)
	assert.True(t, none.IsZero())
}

func TestSQLiteUpdateAndDelete(t *testing.T) {
	ctx := context.Background()
	repo, owner := newTestRepo(t)
	other, err := repo.CreateOwner(ctx, "Ravi", "")
	require.NoError(t, err)

	first, err := repo.Insert(ctx, expense(owner, "100", date(2025, 3, 3)))
	require.NoError(t, err)
	second, err := repo.Insert(ctx, expense(owner, "200", date(2025, 3, 4)))
	require.NoError(t, err)

	title := "weekly shop"
	when := date(2025, 3, 10)
	updated, err := repo.UpdateByID(ctx, first.ID, core.TransactionPatch{Title: &title, OccurredAt: &when})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)
	assert.Equal(t, when, updated.OccurredAt)

	amount := decimal.NewFromInt(1)
	_, err = repo.UpdateByID(ctx, "missing", core.TransactionPatch{Amount: &amount})
	assert.ErrorIs(t, err, core.ErrNotFound)

	assert.ErrorIs(t, repo.DeleteByID(ctx, owner, "missing"), core.ErrNotFound)
	assert.ErrorIs(t, repo.DeleteByID(ctx, other.ID, first.ID), core.ErrNotFound)

	require.NoError(t, repo.DeleteByID(ctx, owner, first.ID))
	o, err := repo.GetOwner(ctx, owner)
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, o.TransactionIDs)

	_, err = repo.FindByID(ctx, first.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSQLiteListByOwner(t *testing.T) {
	ctx := context.Background()
	repo, owner := newTestRepo(t)
	repo.now = func() time.Time { return time.Date(2025, 3, 31, 12, 0, 0, 0, time.UTC) }

	_, err := repo.Insert(ctx, expense(owner, "1", date(2025, 3, 30)))
	require.NoError(t, err)
	_, err = repo.Insert(ctx, expense(owner, "2", date(2025, 1, 10)))
	require.NoError(t, err)
	inc := expense(owner, "3", date(2025, 3, 29))
	inc.Kind = core.KindIncome
	_, err = repo.Insert(ctx, inc)
	require.NoError(t, err)

	all, err := repo.ListByOwner(ctx, owner, core.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "1", all[0].Amount.String())

	recent, err := repo.ListByOwner(ctx, owner, core.ListFilter{Days: 7})
	require.NoError(t, err)
	assert.Len(t, recent, 2)

	incomes, err := repo.ListByOwner(ctx, owner, core.ListFilter{Kind: core.KindIncome})
	require.NoError(t, err)
	require.Len(t, incomes, 1)
	assert.Equal(t, "3", incomes[0].Amount.String())

	jan, err := repo.ListByOwner(ctx, owner, core.ListFilter{Custom: true, Start: date(2025, 1, 1), End: date(2025, 1, 10)})
	require.NoError(t, err)
	assert.Len(t, jan, 1)

	halfCustom, err := repo.ListByOwner(ctx, owner, core.ListFilter{Custom: true, Start: date(2025, 3, 30)})
	require.NoError(t, err)
	assert.Len(t, halfCustom, 3, "a custom window without an end date lists everything")

	_, err = repo.ListByOwner(ctx, "ghost", core.ListFilter{})
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestSQLiteConcurrentInsertsKeepIndexConsistent(t *testing.T) {
	ctx := context.Background()
	repo, owner := newTestRepo(t)

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Insert(ctx, expense(owner, "10", date(2025, 3, 5)))
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	o, err := repo.GetOwner(ctx, owner)
	require.NoError(t, err)
	assert.Len(t, o.TransactionIDs, n)

	sum, err := repo.MonthToDateSum(ctx, owner, groceries, core.KindExpense, date(2025, 3, 31))
	require.NoError(t, err)
	assert.Equal(t, "200", sum.String())
}
