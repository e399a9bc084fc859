// Package services runs the transaction write pipeline: validate, persist,
// evaluate the category budget and dispatch at most one notification.
package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"budgetledger/internal/budget"
	"budgetledger/internal/core"
	"budgetledger/internal/ledger"
	applog "budgetledger/internal/log"
)

// LimitLookup resolves the monthly limit of a category.
type LimitLookup interface {
	LimitFor(category string) (decimal.Decimal, bool)
}

// CreateResult is returned by a successful create. At most one of
// BudgetAlert and WarningAlert is set.
type CreateResult struct {
	Transaction         core.Transaction `json:"transaction"`
	BudgetAlert         bool             `json:"budgetAlert"`
	BudgetAlertMessage  string           `json:"budgetAlertMessage"`
	WarningAlert        bool             `json:"warningAlert"`
	WarningAlertMessage string           `json:"warningAlertMessage"`
}

// TransactionService orchestrates ledger writes across the store, the limit
// table and the notification dispatcher.
type TransactionService struct {
	store      ledger.Store
	limits     LimitLookup
	dispatcher *Dispatcher
	currency   string
}

func NewTransactionService(store ledger.Store, limits LimitLookup, dispatcher *Dispatcher, currency string) *TransactionService {
	return &TransactionService{
		store:      store,
		limits:     limits,
		dispatcher: dispatcher,
		currency:   currency,
	}
}

// Create records tx for its owner and evaluates the category budget.
// Notification failures never fail the call; the transaction is already
// durable once persisted.
func (s *TransactionService) Create(ctx context.Context, tx core.Transaction) (CreateResult, error) {
	if !tx.OccurredAt.IsZero() {
		tx.OccurredAt = core.DateOf(tx.OccurredAt)
	}
	if err := tx.Validate(); err != nil {
		return CreateResult{}, err
	}

	owner, err := s.store.GetOwner(ctx, tx.OwnerID)
	if err != nil {
		return CreateResult{}, err
	}

	saved, err := s.store.Insert(ctx, tx)
	if err != nil {
		return CreateResult{}, fmt.Errorf("persist transaction: %w", err)
	}
	events := applog.NewStructuredLogger(applog.FromContext(ctx))
	events.LogTransactionCreated(ctx, saved.ID, saved.OwnerID, saved.Category, saved.Kind.String(), saved.Amount.String())

	res := CreateResult{Transaction: saved}

	result, evaluated := s.evaluate(ctx, saved)
	if !evaluated {
		return res, nil
	}

	switch result.State {
	case budget.StateExceeded:
		res.BudgetAlert = true
		res.BudgetAlertMessage = result.Message(saved.Category, s.currency)
	case budget.StateWarning:
		res.WarningAlert = true
		res.WarningAlertMessage = result.Message(saved.Category, s.currency)
	default:
		return res, nil
	}

	events.LogAlertRaised(ctx, result.State.String(), owner.ID, saved.Category, result.Spent.String(), result.Limit.String())
	s.dispatcher.Dispatch(core.WithTransactionID(ctx, saved.ID), owner, saved.Category, result)
	return res, nil
}

// evaluate sums the month to date for expenses in a limited category.
// A failed sum is logged and treated as no alert.
func (s *TransactionService) evaluate(ctx context.Context, tx core.Transaction) (budget.Result, bool) {
	if tx.Kind != core.KindExpense || s.limits == nil {
		return budget.Result{}, false
	}
	limit, ok := s.limits.LimitFor(tx.Category)
	if !ok || !limit.IsPositive() {
		return budget.Result{}, false
	}

	spent, err := s.store.MonthToDateSum(ctx, tx.OwnerID, tx.Category, core.KindExpense, tx.OccurredAt)
	if err != nil {
		slog.ErrorContext(ctx, "Budget evaluation failed, skipping alert",
			applog.FieldComponent, applog.ComponentBudget,
			applog.FieldOwnerID, tx.OwnerID,
			applog.FieldTransactionID, tx.ID,
			applog.FieldCategory, tx.Category,
			applog.FieldErrorType, applog.ErrorTypeDatabase,
			applog.FieldError, err)
		return budget.Result{}, false
	}

	r := budget.Evaluate(limit, spent)
	slog.DebugContext(ctx, "Budget evaluated",
		applog.FieldComponent, applog.ComponentBudget,
		applog.FieldCategory, tx.Category,
		applog.FieldSpent, spent.String(),
		applog.FieldLimit, limit.String(),
		"warn_threshold", r.WarnThreshold.String(),
		"state", r.State.String())
	return r, true
}

// List returns the owner's transactions in insertion order.
func (s *TransactionService) List(ctx context.Context, ownerID string, filter core.ListFilter) ([]core.Transaction, error) {
	if ownerID == "" {
		return nil, &core.ValidationError{Fields: []string{"ownerId"}}
	}
	if _, err := s.store.GetOwner(ctx, ownerID); err != nil {
		return nil, err
	}
	txs, err := s.store.ListByOwner(ctx, ownerID, filter)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// Update applies patch and returns the updated transaction. Budgets are not
// re-evaluated.
func (s *TransactionService) Update(ctx context.Context, id string, patch core.TransactionPatch) (core.Transaction, error) {
	if id == "" {
		return core.Transaction{}, &core.ValidationError{Fields: []string{"id"}}
	}
	if patch.IsEmpty() {
		return core.Transaction{}, &core.ValidationError{Reason: "no fields to update"}
	}
	if err := patch.Validate(); err != nil {
		return core.Transaction{}, err
	}
	tx, err := s.store.UpdateByID(ctx, id, patch)
	if err != nil {
		return core.Transaction{}, err
	}
	slog.InfoContext(ctx, "Transaction updated",
		applog.FieldComponent, applog.ComponentLedger,
		applog.FieldTransactionID, tx.ID,
		applog.FieldOwnerID, tx.OwnerID)
	return tx, nil
}

// Delete removes one of the owner's transactions and detaches it from the
// owner's index. Budgets are not re-evaluated.
func (s *TransactionService) Delete(ctx context.Context, ownerID, id string) error {
	var missing []string
	if ownerID == "" {
		missing = append(missing, "ownerId")
	}
	if id == "" {
		missing = append(missing, "id")
	}
	if len(missing) > 0 {
		return &core.ValidationError{Fields: missing}
	}
	if err := s.store.DeleteByID(ctx, ownerID, id); err != nil {
		return err
	}
	slog.InfoContext(ctx, "Transaction deleted",
		applog.FieldComponent, applog.ComponentLedger,
		applog.FieldTransactionID, id,
		applog.FieldOwnerID, ownerID)
	return nil
}
