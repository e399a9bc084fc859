package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"budgetledger/internal/core"
)

// Ports consumed by the transaction pipeline.
type (
	// OwnerReader resolves owners and their display-side transaction index.
	OwnerReader interface {
		GetOwner(ctx context.Context, id string) (core.Owner, error)
	}

	TransactionWriter interface {
		// Insert stores tx with a freshly assigned id and appends the id to
		// the owner's display index atomically.
		Insert(ctx context.Context, tx core.Transaction) (core.Transaction, error)
		// UpdateByID applies patch. Returns core.NotFoundError for unknown ids.
		UpdateByID(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error)
		// DeleteByID removes the transaction and detaches it from the owner's index.
		DeleteByID(ctx context.Context, ownerID, id string) error
	}

	TransactionReader interface {
		FindByID(ctx context.Context, id string) (core.Transaction, error)
		ListByOwner(ctx context.Context, ownerID string, filter core.ListFilter) ([]core.Transaction, error)
	}

	// SpendAggregator sums amounts straight from the store.
	SpendAggregator interface {
		// MonthToDateSum returns the sum of amounts for owner, category and kind
		// with OccurredAt in [first day of asOf's month, asOf].
		MonthToDateSum(ctx context.Context, ownerID, category string, kind core.Kind, asOf time.Time) (decimal.Decimal, error)
	}

	// Store is the full contract a durable backend provides.
	Store interface {
		OwnerReader
		TransactionWriter
		TransactionReader
		SpendAggregator
	}

	// OwnerWriter is used by operator tooling; registration is not part of
	// the ledger itself.
	OwnerWriter interface {
		CreateOwner(ctx context.Context, name, email string) (core.Owner, error)
	}

	// Notifier delivers budget alerts to an owner. Implementations own any
	// retry policy; callers treat failures as best effort.
	Notifier interface {
		NotifyWarning(ctx context.Context, owner core.Owner, category string, spent, limit decimal.Decimal) error
		NotifyLimitCrossed(ctx context.Context, owner core.Owner, category string, spent, limit decimal.Decimal) error
	}
)
