// Package budget classifies month-to-date spend against a category limit.
package budget

import (
	"github.com/shopspring/decimal"

	"budgetledger/internal/core"
)

const (
	StateNone State = iota
	StateWarning
	StateExceeded
)

// WarnRatio is the share of the limit at which a warning is raised.
var WarnRatio = decimal.RequireFromString("0.8")

type (
	// State is the outcome of an evaluation.
	State int

	// Result is computed fresh on every qualifying write and never stored.
	Result struct {
		State         State
		Spent         decimal.Decimal
		Limit         decimal.Decimal
		WarnThreshold decimal.Decimal
	}
)

func (s State) String() string {
	switch s {
	case StateWarning:
		return "WARNING"
	case StateExceeded:
		return "EXCEEDED"
	default:
		return "NONE"
	}
}

// AlertKind maps a state to the outbound alert tag. ok is false for StateNone.
func (s State) AlertKind() (kind core.AlertKind, ok bool) {
	switch s {
	case StateWarning:
		return core.AlertWarning, true
	case StateExceeded:
		return core.AlertExceeded, true
	default:
		return "", false
	}
}

// WarnThreshold is round(limit * 0.8), halves rounded up.
func WarnThreshold(limit decimal.Decimal) decimal.Decimal {
	return limit.Mul(WarnRatio).Round(0)
}

// Evaluate classifies spent against limit. A non-positive limit is never
// evaluated. Exceeded wins when both conditions hold.
func Evaluate(limit, spent decimal.Decimal) Result {
	r := Result{State: StateNone, Spent: spent, Limit: limit}
	if !limit.IsPositive() {
		return r
	}
	r.WarnThreshold = WarnThreshold(limit)

	switch {
	case spent.GreaterThanOrEqual(limit):
		r.State = StateExceeded
	case spent.GreaterThanOrEqual(r.WarnThreshold):
		r.State = StateWarning
	}
	return r
}

// Message renders the human readable alert text shown with a write
// response. It is empty for StateNone.
func (r Result) Message(category, currency string) string {
	kind, ok := r.State.AlertKind()
	if !ok {
		return ""
	}
	return core.AlertMessage(kind, category, currency, r.Spent, r.Limit)
}
