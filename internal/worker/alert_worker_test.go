package worker

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"budgetledger/internal/amqp"
	"budgetledger/internal/core"
	"budgetledger/internal/storage/memory"
)

type recorder struct {
	mu     sync.Mutex
	alerts []core.Alert
	err    error
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) Deliver(_ context.Context, a core.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return r.err
}

func newStore() *memory.Store {
	s := memory.New()
	s.PutOwner(core.Owner{ID: "o1", Name: "Asha R", Email: "asha.new@example.com"})
	return s
}

func message(ownerID string) *amqp.BudgetAlertMessage {
	alert := core.NewAlert(core.AlertWarning,
		core.Owner{ID: ownerID, Name: "Asha", Email: "asha.old@example.com"},
		"Milk & Dairy", decimal.NewFromInt(1700), decimal.NewFromInt(2000))
	return amqp.NewBudgetAlertMessage(alert)
}

func TestHandleBudgetAlertRefreshesContact(t *testing.T) {
	rec := &recorder{}
	w := NewAlertWorker(newStore(), rec, "₹")

	require.NoError(t, w.HandleBudgetAlert(context.Background(), message("o1")))
	require.Len(t, rec.alerts, 1)
	got := rec.alerts[0]
	assert.Equal(t, "asha.new@example.com", got.OwnerEmail)
	assert.Equal(t, "Asha R", got.OwnerName)
	assert.Equal(t, "You are close to your monthly limit for Milk & Dairy. Limit: ₹2000, this month spent: ₹1700.", got.Body)
}

func TestHandleBudgetAlertSkipsDuplicates(t *testing.T) {
	rec := &recorder{}
	w := NewAlertWorker(newStore(), rec, "₹")
	msg := message("o1")

	require.NoError(t, w.HandleBudgetAlert(context.Background(), msg))
	require.NoError(t, w.HandleBudgetAlert(context.Background(), msg))
	assert.Len(t, rec.alerts, 1)
}

func TestHandleBudgetAlertDropsUnknownOwner(t *testing.T) {
	rec := &recorder{}
	w := NewAlertWorker(newStore(), rec, "₹")

	require.NoError(t, w.HandleBudgetAlert(context.Background(), message("gone")))
	assert.Empty(t, rec.alerts)
}

func TestHandleBudgetAlertReportsFailures(t *testing.T) {
	rec := &recorder{err: errors.New("smtp down")}
	var reported []core.AlertKind
	w := NewAlertWorker(nil, rec, "₹").WithReporter(func(err error, kind core.AlertKind, category string) {
		reported = append(reported, kind)
		assert.Equal(t, "Milk & Dairy", category)
	})

	require.NoError(t, w.HandleBudgetAlert(context.Background(), message("o1")))
	require.Len(t, rec.alerts, 1)
	assert.Equal(t, "asha.old@example.com", rec.alerts[0].OwnerEmail)
	assert.Equal(t, []core.AlertKind{core.AlertWarning}, reported)
}

func TestHandleBudgetAlertRequeuesOnShutdown(t *testing.T) {
	rec := &recorder{}
	w := NewAlertWorker(nil, rec, "₹")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	msg := message("o1")
	err := w.HandleBudgetAlert(ctx, msg)
	assert.ErrorIs(t, err, context.Canceled)

	// Not marked as seen, so the redelivery is processed.
	require.NoError(t, w.HandleBudgetAlert(context.Background(), msg))
	assert.Len(t, rec.alerts, 2)
}

type fakeConsumer struct {
	msgs []*amqp.BudgetAlertMessage
}

func (f *fakeConsumer) ConsumeBudgetAlerts(ctx context.Context, handler func(context.Context, *amqp.BudgetAlertMessage) error) error {
	for _, m := range f.msgs {
		if err := handler(ctx, m); err != nil {
			return err
		}
	}
	return context.Canceled
}

func TestRun(t *testing.T) {
	rec := &recorder{}
	w := NewAlertWorker(newStore(), rec, "₹")
	err := w.Run(context.Background(), &fakeConsumer{msgs: []*amqp.BudgetAlertMessage{message("o1"), message("o1")}})
	require.NoError(t, err)
	assert.Len(t, rec.alerts, 2)
}
