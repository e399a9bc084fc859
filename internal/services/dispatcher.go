package services

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"golang.org/x/sync/semaphore"

	"budgetledger/internal/budget"
	"budgetledger/internal/core"
	"budgetledger/internal/ledger"
	applog "budgetledger/internal/log"
)

const (
	defaultMaxInFlight = 16
	defaultTimeout     = 10 * time.Second
)

// ErrorReporter receives delivery failures after they are logged.
type ErrorReporter func(err error, kind core.AlertKind, category string)

// Dispatcher sends budget notifications in the background with a bound on
// in-flight sends. When the bound is reached new alerts are dropped, never
// queued, so writes never wait on a slow channel.
type Dispatcher struct {
	notifier ledger.Notifier
	sem      *semaphore.Weighted
	timeout  time.Duration
	report   ErrorReporter
	wg       sync.WaitGroup
}

func NewDispatcher(notifier ledger.Notifier, maxInFlight int, timeout time.Duration) *Dispatcher {
	if maxInFlight <= 0 {
		maxInFlight = defaultMaxInFlight
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Dispatcher{
		notifier: notifier,
		sem:      semaphore.NewWeighted(int64(maxInFlight)),
		timeout:  timeout,
		report:   ReportToSentry,
	}
}

// WithReporter replaces the error reporter. A nil reporter disables reporting.
func (d *Dispatcher) WithReporter(r ErrorReporter) *Dispatcher {
	d.report = r
	return d
}

// Dispatch starts exactly one notification for a Warning or Exceeded result.
// It reports whether a send was started.
func (d *Dispatcher) Dispatch(ctx context.Context, owner core.Owner, category string, r budget.Result) bool {
	kind, ok := r.State.AlertKind()
	if !ok || d == nil || d.notifier == nil {
		return false
	}

	if !d.sem.TryAcquire(1) {
		slog.WarnContext(ctx, "Notification dispatcher saturated, dropping alert",
			applog.FieldComponent, applog.ComponentNotify,
			applog.FieldOwnerID, owner.ID,
			applog.FieldCategory, category,
			applog.FieldAlertKind, kind)
		return false
	}

	// Detach from the request so the send outlives the response.
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer d.sem.Release(1)
		defer cancel()
		d.send(sendCtx, kind, owner, category, r)
	}()
	return true
}

func (d *Dispatcher) send(ctx context.Context, kind core.AlertKind, owner core.Owner, category string, r budget.Result) {
	var err error
	switch kind {
	case core.AlertExceeded:
		err = d.notifier.NotifyLimitCrossed(ctx, owner, category, r.Spent, r.Limit)
	case core.AlertWarning:
		err = d.notifier.NotifyWarning(ctx, owner, category, r.Spent, r.Limit)
	}
	if err == nil {
		slog.InfoContext(ctx, "Budget notification sent",
			applog.FieldComponent, applog.ComponentNotify,
			applog.FieldOwnerID, owner.ID,
			applog.FieldCategory, category,
			applog.FieldAlertKind, kind)
		return
	}

	errType := applog.ErrorTypeInternal
	if errors.Is(err, core.ErrDelivery) {
		errType = applog.ErrorTypeDelivery
	}
	if errors.Is(err, context.DeadlineExceeded) {
		errType = applog.ErrorTypeTimeout
	}
	slog.ErrorContext(ctx, "Budget notification failed",
		applog.FieldComponent, applog.ComponentNotify,
		applog.FieldOwnerID, owner.ID,
		applog.FieldCategory, category,
		applog.FieldAlertKind, kind,
		applog.FieldErrorType, errType,
		applog.FieldError, err)
	if d.report != nil {
		d.report(err, kind, category)
	}
}

// Wait blocks until every started send has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// Shutdown waits for in-flight sends or until ctx ends.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReportToSentry captures err on the current hub, tagged with the alert kind
// and category. It is a no-op when Sentry is not initialized.
func ReportToSentry(err error, kind core.AlertKind, category string) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("alert_kind", string(kind))
		scope.SetTag("category", category)
		var de *core.DeliveryError
		if errors.As(err, &de) {
			scope.SetTag("channel", de.Channel)
		}
		sentry.CaptureException(err)
	})
}
