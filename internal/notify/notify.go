// Package notify delivers budget alerts. Every delivery channel implements
// Channel; ChannelNotifier adapts a Channel to the ledger's Notifier port.
package notify

import (
	"context"
	"errors"
	"log/slog"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"budgetledger/internal/core"
	"budgetledger/internal/ledger"
)

// Channel delivers a fully built alert over one medium.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, alert core.Alert) error
}

var _ ledger.Notifier = (*ChannelNotifier)(nil)

// ChannelNotifier builds alerts, including their rendered body, and hands
// them to a channel.
type ChannelNotifier struct {
	Channel  Channel
	Currency string
}

func NewChannelNotifier(ch Channel, currency string) *ChannelNotifier {
	return &ChannelNotifier{Channel: ch, Currency: currency}
}

func (n *ChannelNotifier) NotifyWarning(ctx context.Context, owner core.Owner, category string, spent, limit decimal.Decimal) error {
	return n.deliver(ctx, core.AlertWarning, owner, category, spent, limit)
}

func (n *ChannelNotifier) NotifyLimitCrossed(ctx context.Context, owner core.Owner, category string, spent, limit decimal.Decimal) error {
	return n.deliver(ctx, core.AlertExceeded, owner, category, spent, limit)
}

func (n *ChannelNotifier) deliver(ctx context.Context, kind core.AlertKind, owner core.Owner, category string, spent, limit decimal.Decimal) error {
	alert := core.NewAlert(kind, owner, category, spent, limit)
	alert.Body = core.AlertMessage(kind, category, n.Currency, spent, limit)
	alert.TransactionID = core.TransactionIDFrom(ctx)
	if err := n.Channel.Deliver(ctx, alert); err != nil {
		return wrap(n.Channel.Name(), kind, err)
	}
	return nil
}

// wrap tags err as a DeliveryError unless it already is one.
func wrap(channel string, kind core.AlertKind, err error) error {
	var de *core.DeliveryError
	if errors.As(err, &de) {
		return err
	}
	return &core.DeliveryError{Channel: channel, Kind: kind, Err: err}
}

// Log writes alerts to the structured log. It never fails.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Name() string { return "log" }

func (l *Log) Deliver(ctx context.Context, alert core.Alert) error {
	l.logger.InfoContext(ctx, "Budget alert",
		"alert_kind", alert.Kind,
		"owner_id", alert.OwnerID,
		"transaction_id", alert.TransactionID,
		"category", alert.Category,
		"spent", alert.Spent.String(),
		"limit", alert.Limit.String(),
		"body", alert.Body)
	return nil
}

// Publisher queues alerts for out-of-process delivery.
type Publisher interface {
	PublishBudgetAlert(ctx context.Context, alert core.Alert) error
}

// Queue hands alerts to the message broker; the alert worker delivers them.
type Queue struct {
	publisher Publisher
}

func NewQueue(p Publisher) *Queue {
	return &Queue{publisher: p}
}

func (q *Queue) Name() string { return "amqp" }

func (q *Queue) Deliver(ctx context.Context, alert core.Alert) error {
	return q.publisher.PublishBudgetAlert(ctx, alert)
}

// Multi fans an alert out to every channel concurrently. One failing
// channel does not stop the others; all failures are returned joined.
type Multi struct {
	channels []Channel
}

func NewMulti(channels ...Channel) *Multi {
	var out []Channel
	for _, ch := range channels {
		if ch != nil {
			out = append(out, ch)
		}
	}
	return &Multi{channels: out}
}

func (m *Multi) Name() string { return "multi" }

// Channels returns the names of the wrapped channels.
func (m *Multi) Channels() []string {
	names := make([]string, len(m.channels))
	for i, ch := range m.channels {
		names[i] = ch.Name()
	}
	return names
}

func (m *Multi) Deliver(ctx context.Context, alert core.Alert) error {
	errs := make([]error, len(m.channels))
	var g errgroup.Group
	for i, ch := range m.channels {
		g.Go(func() error {
			if err := ch.Deliver(ctx, alert); err != nil {
				errs[i] = wrap(ch.Name(), alert.Kind, err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
