package core

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	KindExpense Kind = "expense"
	KindIncome  Kind = "income"
)

type (
	// Kind tells whether a transaction takes money out (expense) or brings it in (income).
	Kind string

	Transaction struct {
		ID          string          `json:"id"`
		OwnerID     string          `json:"ownerId"`
		Title       string          `json:"title"`
		Description string          `json:"description"`
		Amount      decimal.Decimal `json:"amount"`
		Category    string          `json:"category"`
		Kind        Kind            `json:"kind"`
		OccurredAt  time.Time       `json:"occurredAt"` // economic date, UTC midnight
		CreatedAt   time.Time       `json:"createdAt"`
		UpdatedAt   time.Time       `json:"updatedAt"`
	}

	// Owner is the user a transaction belongs to. TransactionIDs is a
	// display index only; sums are always derived from the store.
	Owner struct {
		ID             string   `json:"id"`
		Name           string   `json:"name"`
		Email          string   `json:"email"`
		TransactionIDs []string `json:"transactionIds"`
	}

	// TransactionPatch carries the fields of an update. Nil means "leave as is".
	TransactionPatch struct {
		Title       *string
		Description *string
		Amount      *decimal.Decimal
		Category    *string
		Kind        *Kind
		OccurredAt  *time.Time
	}
)

// ParseKind accepts "expense", "income" and the user-facing alias "credit".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "expense", "debit":
		return KindExpense, nil
	case "income", "credit":
		return KindIncome, nil
	case "":
		return "", &ValidationError{Fields: []string{"kind"}}
	default:
		return "", &ValidationError{Reason: fmt.Sprintf("unknown transaction kind %q", s)}
	}
}

func (k Kind) String() string {
	return string(k)
}

// IsValid reports whether k is one of the known kinds.
func (k Kind) IsValid() bool {
	return k == KindExpense || k == KindIncome
}

// DateOf truncates t to its calendar date at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// MonthStart returns the first day of the calendar month containing t.
func MonthStart(t time.Time) time.Time {
	y, m, _ := t.Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// Validate checks that every field required at creation is present.
// All missing fields are reported together.
func (t Transaction) Validate() error {
	var missing []string
	if strings.TrimSpace(t.Title) == "" {
		missing = append(missing, "title")
	}
	if t.Amount.IsZero() {
		missing = append(missing, "amount")
	}
	if strings.TrimSpace(t.Description) == "" {
		missing = append(missing, "description")
	}
	if t.OccurredAt.IsZero() {
		missing = append(missing, "occurredAt")
	}
	if strings.TrimSpace(t.Category) == "" {
		missing = append(missing, "category")
	}
	if t.Kind == "" {
		missing = append(missing, "kind")
	}
	if strings.TrimSpace(t.OwnerID) == "" {
		missing = append(missing, "ownerId")
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}

	if t.Amount.IsNegative() {
		return &ValidationError{Fields: []string{"amount"}, Reason: "amount must be positive"}
	}
	if !t.Kind.IsValid() {
		return &ValidationError{Fields: []string{"kind"}, Reason: fmt.Sprintf("unknown transaction kind %q", t.Kind)}
	}
	return nil
}

// IsEmpty reports whether the patch changes nothing.
func (p TransactionPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Amount == nil &&
		p.Category == nil && p.Kind == nil && p.OccurredAt == nil
}

func (p TransactionPatch) Validate() error {
	if p.Amount != nil && !p.Amount.IsPositive() {
		return &ValidationError{Fields: []string{"amount"}, Reason: "amount must be positive"}
	}
	if p.Kind != nil && !p.Kind.IsValid() {
		return &ValidationError{Fields: []string{"kind"}, Reason: fmt.Sprintf("unknown transaction kind %q", *p.Kind)}
	}
	return nil
}

// Apply returns t with the supplied fields overwritten. ID and OwnerID never change.
func (p TransactionPatch) Apply(t Transaction) Transaction {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Kind != nil {
		t.Kind = *p.Kind
	}
	if p.OccurredAt != nil {
		t.OccurredAt = DateOf(*p.OccurredAt)
	}
	return t
}
