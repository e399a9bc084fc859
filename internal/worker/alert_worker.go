package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"budgetledger/internal/amqp"
	"budgetledger/internal/cache"
	"budgetledger/internal/core"
	"budgetledger/internal/ledger"
	applog "budgetledger/internal/log"
	"budgetledger/internal/notify"
)

// Consumer feeds queued alerts to a handler until ctx ends.
type Consumer interface {
	ConsumeBudgetAlerts(ctx context.Context, handler func(context.Context, *amqp.BudgetAlertMessage) error) error
}

// AlertWorker delivers budget alerts published by the API.
type AlertWorker struct {
	owners   ledger.OwnerReader
	channel  notify.Channel
	currency string
	seen     *cache.LRU[time.Time]
	report   func(err error, kind core.AlertKind, category string)
}

// NewAlertWorker builds a worker. owners may be nil, in which case the
// contact details carried by the message are used as is.
func NewAlertWorker(owners ledger.OwnerReader, channel notify.Channel, currency string) *AlertWorker {
	return &AlertWorker{
		owners:   owners,
		channel:  channel,
		currency: currency,
		seen:     cache.NewLRU[time.Time](4096, time.Hour),
	}
}

// WithReporter sets where delivery failures are reported after logging.
func (w *AlertWorker) WithReporter(fn func(err error, kind core.AlertKind, category string)) *AlertWorker {
	w.report = fn
	return w
}

// Run consumes until ctx is cancelled.
func (w *AlertWorker) Run(ctx context.Context, consumer Consumer) error {
	slog.InfoContext(ctx, "Alert worker started",
		applog.FieldComponent, applog.ComponentWorker,
		applog.FieldChannel, w.channel.Name())
	err := consumer.ConsumeBudgetAlerts(ctx, w.HandleBudgetAlert)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// HandleBudgetAlert delivers one queued alert. Channel failures are logged
// and reported, not returned: channels retry on their own and a requeue
// would repeat the sends that did succeed. Only a cancelled context is
// returned so the message goes back on the queue during shutdown.
func (w *AlertWorker) HandleBudgetAlert(ctx context.Context, msg *amqp.BudgetAlertMessage) error {
	if _, dup := w.seen.Get(msg.MessageID); dup {
		slog.InfoContext(ctx, "Duplicate alert message skipped",
			applog.FieldComponent, applog.ComponentWorker,
			"message_id", msg.MessageID)
		return nil
	}

	alert := msg.Alert
	if w.owners != nil {
		owner, err := w.owners.GetOwner(ctx, alert.OwnerID)
		switch {
		case errors.Is(err, core.ErrNotFound):
			slog.WarnContext(ctx, "Alert owner no longer exists, dropping message",
				applog.FieldComponent, applog.ComponentWorker,
				applog.FieldOwnerID, alert.OwnerID,
				"message_id", msg.MessageID)
			return nil
		case err != nil:
			slog.WarnContext(ctx, "Owner lookup failed, using contact from message",
				applog.FieldComponent, applog.ComponentWorker,
				applog.FieldOwnerID, alert.OwnerID,
				applog.FieldError, err)
		default:
			alert.OwnerName = owner.Name
			alert.OwnerEmail = owner.Email
		}
	}
	if alert.Body == "" {
		alert.Body = core.AlertMessage(alert.Kind, alert.Category, w.currency, alert.Spent, alert.Limit)
	}

	err := w.channel.Deliver(ctx, alert)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	w.seen.Set(msg.MessageID, time.Now())

	if err != nil {
		slog.ErrorContext(ctx, "Alert delivery failed",
			applog.FieldComponent, applog.ComponentWorker,
			applog.FieldOwnerID, alert.OwnerID,
			applog.FieldCategory, alert.Category,
			applog.FieldAlertKind, alert.Kind,
			applog.FieldErrorType, applog.ErrorTypeDelivery,
			applog.FieldError, err,
			"message_id", msg.MessageID)
		if w.report != nil {
			w.report(err, alert.Kind, alert.Category)
		}
		return nil
	}

	slog.InfoContext(ctx, "Alert delivered",
		applog.FieldComponent, applog.ComponentWorker,
		applog.FieldOwnerID, alert.OwnerID,
		applog.FieldCategory, alert.Category,
		applog.FieldAlertKind, alert.Kind,
		"message_id", msg.MessageID,
		"queued_for", time.Since(msg.Timestamp).Round(time.Millisecond))
	return nil
}
