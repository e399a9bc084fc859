package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"budgetledger/internal/budget"
	"budgetledger/internal/core"
	"budgetledger/internal/limits"
	"budgetledger/internal/storage/memory"
)

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) NotifyWarning(ctx context.Context, owner core.Owner, category string, spent, limit decimal.Decimal) error {
	return m.Called(ctx, owner, category, spent, limit).Error(0)
}

func (m *mockNotifier) NotifyLimitCrossed(ctx context.Context, owner core.Owner, category string, spent, limit decimal.Decimal) error {
	return m.Called(ctx, owner, category, spent, limit).Error(0)
}

func amount(v int64) interface{} {
	return mock.MatchedBy(func(d decimal.Decimal) bool { return d.Equal(decimal.NewFromInt(v)) })
}

func ownerID(id string) interface{} {
	return mock.MatchedBy(func(o core.Owner) bool { return o.ID == id })
}

const groceries = "Groceries & Vegetables"

var march10 = time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

type fixture struct {
	store    *memory.Store
	notifier *mockNotifier
	disp     *Dispatcher
	svc      *TransactionService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.New()
	store.PutOwner(core.Owner{ID: "o1", Name: "Asha", Email: "asha@example.com"})
	n := &mockNotifier{}
	d := NewDispatcher(n, 4, time.Second).WithReporter(nil)
	return &fixture{
		store:    store,
		notifier: n,
		disp:     d,
		svc:      NewTransactionService(store, limits.Default(), d, "₹"),
	}
}

func expense(category string, amt int64, on time.Time) core.Transaction {
	return core.Transaction{
		OwnerID:     "o1",
		Title:       "purchase",
		Description: "weekly shop",
		Amount:      decimal.NewFromInt(amt),
		Category:    category,
		Kind:        core.KindExpense,
		OccurredAt:  on,
	}
}

func TestCreateRaisesWarningThenExceeded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.notifier.On("NotifyWarning", mock.Anything, ownerID("o1"), groceries, amount(6500), amount(8000)).Return(nil).Once()
	res, err := f.svc.Create(ctx, expense(groceries, 6500, march10))
	require.NoError(t, err)
	f.disp.Wait()

	assert.NotEmpty(t, res.Transaction.ID)
	assert.True(t, res.WarningAlert)
	assert.False(t, res.BudgetAlert)
	assert.Equal(t,
		"You are close to your monthly limit for Groceries & Vegetables. Limit: ₹8000, this month spent: ₹6500.",
		res.WarningAlertMessage)
	assert.Empty(t, res.BudgetAlertMessage)

	f.notifier.On("NotifyLimitCrossed", mock.Anything, ownerID("o1"), groceries, amount(8500), amount(8000)).Return(nil).Once()
	res, err = f.svc.Create(ctx, expense(groceries, 2000, march10.AddDate(0, 0, 2)))
	require.NoError(t, err)
	f.disp.Wait()

	assert.True(t, res.BudgetAlert)
	assert.False(t, res.WarningAlert)
	assert.Equal(t,
		"You have crossed the monthly limit for Groceries & Vegetables. Limit: ₹8000, this month spent: ₹8500.",
		res.BudgetAlertMessage)

	f.notifier.AssertExpectations(t)
	f.notifier.AssertNumberOfCalls(t, "NotifyWarning", 1)
	f.notifier.AssertNumberOfCalls(t, "NotifyLimitCrossed", 1)
}

func TestCreatePassesTransactionIDToNotifier(t *testing.T) {
	f := newFixture(t)

	var got string
	f.notifier.On("NotifyWarning", mock.Anything, ownerID("o1"), groceries, amount(7000), amount(8000)).
		Run(func(args mock.Arguments) {
			got = core.TransactionIDFrom(args.Get(0).(context.Context))
		}).
		Return(nil).Once()

	res, err := f.svc.Create(context.Background(), expense(groceries, 7000, march10))
	require.NoError(t, err)
	f.disp.Wait()

	f.notifier.AssertExpectations(t)
	assert.Equal(t, res.Transaction.ID, got)
}

func TestCreateConcurrentWritesSeeEachOther(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.notifier.On("NotifyWarning", mock.Anything, ownerID("o1"), groceries, mock.Anything, amount(8000)).Return(nil).Maybe()
	f.notifier.On("NotifyLimitCrossed", mock.Anything, ownerID("o1"), groceries, mock.Anything, amount(8000)).Return(nil).Maybe()

	const n = 10
	results := make([]CreateResult, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Create(ctx, expense(groceries, 1000, march10))
		}(i)
	}
	wg.Wait()
	f.disp.Wait()

	exceeded := 0
	for i := 0; i < n; i++ {
		require.NoError(t, errs[i])
		if results[i].BudgetAlert {
			exceeded++
		}
	}
	assert.GreaterOrEqual(t, exceeded, 1)

	total, err := f.store.MonthToDateSum(ctx, "o1", groceries, core.KindExpense, march10)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(n*1000).Equal(total), "got %s", total)
}

func TestCreateJumpsStraightToExceeded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, expense(groceries, 5000, march10))
	require.NoError(t, err)
	assert.False(t, res.WarningAlert)
	assert.False(t, res.BudgetAlert)

	f.notifier.On("NotifyLimitCrossed", mock.Anything, ownerID("o1"), groceries, amount(10000), amount(8000)).Return(nil).Once()
	res, err = f.svc.Create(ctx, expense(groceries, 5000, march10))
	require.NoError(t, err)
	f.disp.Wait()

	assert.True(t, res.BudgetAlert)
	assert.False(t, res.WarningAlert, "exceeded wins over warning")
	f.notifier.AssertExpectations(t)
	f.notifier.AssertNotCalled(t, "NotifyWarning", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateSkipsEvaluation(t *testing.T) {
	tests := []struct {
		name string
		tx   core.Transaction
	}{
		{"zero limit category", expense("Savings & Investments", 100000, march10)},
		{"unknown category", expense("Pet Care", 100000, march10)},
		{"income", func() core.Transaction {
			tx := expense(groceries, 100000, march10)
			tx.Kind = core.KindIncome
			return tx
		}()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res, err := f.svc.Create(context.Background(), tt.tx)
			require.NoError(t, err)
			f.disp.Wait()

			assert.NotEmpty(t, res.Transaction.ID)
			assert.False(t, res.BudgetAlert)
			assert.False(t, res.WarningAlert)
			assert.Empty(t, res.BudgetAlertMessage)
			assert.Empty(t, res.WarningAlertMessage)
			f.notifier.AssertNotCalled(t, "NotifyWarning", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			f.notifier.AssertNotCalled(t, "NotifyLimitCrossed", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestCreateSumsOnlyTheTransactionMonth(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.notifier.On("NotifyWarning", mock.Anything, ownerID("o1"), groceries, amount(7900), amount(8000)).Return(nil).Once()
	_, err := f.svc.Create(ctx, expense(groceries, 7900, time.Date(2025, 2, 27, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	f.disp.Wait()

	res, err := f.svc.Create(ctx, expense(groceries, 1000, march10))
	require.NoError(t, err)
	f.disp.Wait()
	assert.False(t, res.WarningAlert)
	assert.False(t, res.BudgetAlert)
	f.notifier.AssertNumberOfCalls(t, "NotifyWarning", 1)
}

func TestCreateBackdatedSumsUpToItsOwnDate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, expense(groceries, 6000, time.Date(2025, 3, 20, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	res, err := f.svc.Create(ctx, expense(groceries, 1000, time.Date(2025, 3, 5, 14, 30, 0, 0, time.UTC)))
	require.NoError(t, err)
	f.disp.Wait()
	assert.False(t, res.WarningAlert, "later transactions in the month are outside the window")
	assert.True(t, res.Transaction.OccurredAt.Equal(time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)))
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx := expense(groceries, 9000, march10)
	tx.Title = ""
	_, err := f.svc.Create(ctx, tx)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrValidation)

	var ve *core.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"title"}, ve.Fields)

	owner, err := f.store.GetOwner(ctx, "o1")
	require.NoError(t, err)
	assert.Empty(t, owner.TransactionIDs)
	f.notifier.AssertNotCalled(t, "NotifyLimitCrossed", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreateUnknownOwner(t *testing.T) {
	f := newFixture(t)
	tx := expense(groceries, 100, march10)
	tx.OwnerID = "nobody"

	_, err := f.svc.Create(context.Background(), tx)
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestCreateSucceedsWhenNotifierFails(t *testing.T) {
	f := newFixture(t)
	var (
		mu       sync.Mutex
		reported []error
	)
	f.disp.WithReporter(func(err error, kind core.AlertKind, category string) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, core.AlertExceeded, kind)
		assert.Equal(t, groceries, category)
		reported = append(reported, err)
	})

	deliveryErr := &core.DeliveryError{Channel: "email", Kind: core.AlertExceeded, Err: errors.New("smtp down")}
	f.notifier.On("NotifyLimitCrossed", mock.Anything, mock.Anything, groceries, mock.Anything, mock.Anything).Return(deliveryErr).Once()

	res, err := f.svc.Create(context.Background(), expense(groceries, 9000, march10))
	require.NoError(t, err)
	f.disp.Wait()

	assert.True(t, res.BudgetAlert)
	got, err := f.store.FindByID(context.Background(), res.Transaction.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Transaction.ID, got.ID)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, reported, 1)
	assert.ErrorIs(t, reported[0], core.ErrDelivery)
}

type failingSum struct {
	*memory.Store
}

func (failingSum) MonthToDateSum(context.Context, string, string, core.Kind, time.Time) (decimal.Decimal, error) {
	return decimal.Zero, errors.New("database is locked")
}

func TestCreateEvaluationFailureMeansNoAlert(t *testing.T) {
	f := newFixture(t)
	svc := NewTransactionService(failingSum{f.store}, limits.Default(), f.disp, "₹")

	res, err := svc.Create(context.Background(), expense(groceries, 9000, march10))
	require.NoError(t, err)
	f.disp.Wait()

	assert.NotEmpty(t, res.Transaction.ID)
	assert.False(t, res.BudgetAlert)
	assert.False(t, res.WarningAlert)
	f.notifier.AssertNotCalled(t, "NotifyLimitCrossed", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestListRequiresOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.List(ctx, "nobody", core.ListFilter{})
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.svc.List(ctx, "", core.ListFilter{})
	assert.ErrorIs(t, err, core.ErrValidation)

	_, err = f.svc.Create(ctx, expense("Milk & Dairy", 100, march10))
	require.NoError(t, err)
	income := expense("Salary", 50000, march10)
	income.Kind = core.KindIncome
	_, err = f.svc.Create(ctx, income)
	require.NoError(t, err)

	all, err := f.svc.List(ctx, "o1", core.ListFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	onlyIncome, err := f.svc.List(ctx, "o1", core.ListFilter{Kind: core.KindIncome})
	require.NoError(t, err)
	require.Len(t, onlyIncome, 1)
	assert.Equal(t, "Salary", onlyIncome[0].Category)
}

func TestUpdateDoesNotReevaluate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, expense(groceries, 100, march10))
	require.NoError(t, err)

	big := decimal.NewFromInt(20000)
	updated, err := f.svc.Update(ctx, res.Transaction.ID, core.TransactionPatch{Amount: &big})
	require.NoError(t, err)
	f.disp.Wait()

	assert.True(t, big.Equal(updated.Amount))
	f.notifier.AssertNotCalled(t, "NotifyLimitCrossed", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)

	_, err = f.svc.Update(ctx, "missing", core.TransactionPatch{Amount: &big})
	assert.ErrorIs(t, err, core.ErrNotFound)

	_, err = f.svc.Update(ctx, res.Transaction.ID, core.TransactionPatch{})
	assert.ErrorIs(t, err, core.ErrValidation)

	zero := decimal.Zero
	_, err = f.svc.Update(ctx, res.Transaction.ID, core.TransactionPatch{Amount: &zero})
	assert.ErrorIs(t, err, core.ErrValidation)
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.svc.Create(ctx, expense(groceries, 100, march10))
	require.NoError(t, err)

	err = f.svc.Delete(ctx, "o1", "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
	owner, err := f.store.GetOwner(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, []string{res.Transaction.ID}, owner.TransactionIDs)

	assert.ErrorIs(t, f.svc.Delete(ctx, "", res.Transaction.ID), core.ErrValidation)

	require.NoError(t, f.svc.Delete(ctx, "o1", res.Transaction.ID))
	owner, err = f.store.GetOwner(ctx, "o1")
	require.NoError(t, err)
	assert.Empty(t, owner.TransactionIDs)

	_, err = f.store.FindByID(ctx, res.Transaction.ID)
	assert.ErrorIs(t, err, core.ErrNotFound)
}

type blockingNotifier struct {
	release chan struct{}
	mu      sync.Mutex
	calls   int
}

func (b *blockingNotifier) wait() error {
	b.mu.Lock()
	b.calls++
	b.mu.Unlock()
	<-b.release
	return nil
}

func (b *blockingNotifier) NotifyWarning(context.Context, core.Owner, string, decimal.Decimal, decimal.Decimal) error {
	return b.wait()
}

func (b *blockingNotifier) NotifyLimitCrossed(context.Context, core.Owner, string, decimal.Decimal, decimal.Decimal) error {
	return b.wait()
}

func TestDispatcherDropsWhenSaturated(t *testing.T) {
	n := &blockingNotifier{release: make(chan struct{})}
	d := NewDispatcher(n, 1, time.Second).WithReporter(nil)
	owner := core.Owner{ID: "o1"}
	exceeded := budget.Evaluate(decimal.NewFromInt(100), decimal.NewFromInt(150))

	assert.True(t, d.Dispatch(context.Background(), owner, groceries, exceeded))
	assert.False(t, d.Dispatch(context.Background(), owner, groceries, exceeded))
	assert.False(t, d.Dispatch(context.Background(), owner, groceries, budget.Evaluate(decimal.NewFromInt(100), decimal.NewFromInt(10))))

	close(n.release)
	d.Wait()
	assert.Equal(t, 1, n.calls)

	assert.True(t, d.Dispatch(context.Background(), owner, groceries, exceeded))
	require.NoError(t, d.Shutdown(context.Background()))
	assert.Equal(t, 2, n.calls)
}

func TestDispatcherOutlivesRequestContext(t *testing.T) {
	n := &mockNotifier{}
	var seen context.Context
	n.On("NotifyWarning", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Run(func(args mock.Arguments) { seen = args.Get(0).(context.Context) }).
		Return(nil).Once()

	d := NewDispatcher(n, 1, time.Second).WithReporter(nil)
	ctx, cancel := context.WithCancel(context.Background())
	warning := budget.Evaluate(decimal.NewFromInt(100), decimal.NewFromInt(85))
	require.True(t, d.Dispatch(ctx, core.Owner{ID: "o1"}, groceries, warning))
	cancel()
	d.Wait()

	require.NotNil(t, seen)
	_, hasDeadline := seen.Deadline()
	assert.True(t, hasDeadline)
	n.AssertExpectations(t)
}
