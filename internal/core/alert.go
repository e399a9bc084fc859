package core

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const (
	AlertWarning  AlertKind = "WARNING"
	AlertExceeded AlertKind = "EXCEEDED"
)

type (
	// AlertKind tags an outbound budget notification.
	AlertKind string

	// Alert is everything a delivery channel needs to tell an owner about a
	// category crossing its warning or hard limit.
	Alert struct {
		Kind          AlertKind       `json:"kind"`
		OwnerID       string          `json:"ownerId"`
		OwnerName     string          `json:"ownerName"`
		OwnerEmail    string          `json:"ownerEmail"`
		Category      string          `json:"category"`
		Spent         decimal.Decimal `json:"spent"`
		Limit         decimal.Decimal `json:"limit"`
		Body          string          `json:"body"`
		TransactionID string          `json:"transactionId,omitempty"`
		RaisedAt      time.Time       `json:"raisedAt"`
	}
)

func (k AlertKind) String() string {
	return string(k)
}

type transactionIDKey struct{}

// WithTransactionID records the transaction whose write raised an alert.
func WithTransactionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, transactionIDKey{}, id)
}

// TransactionIDFrom returns the id stored by WithTransactionID, or "".
func TransactionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(transactionIDKey{}).(string)
	return id
}

// NewAlert builds an alert addressed to the owner.
func NewAlert(kind AlertKind, owner Owner, category string, spent, limit decimal.Decimal) Alert {
	return Alert{
		Kind:       kind,
		OwnerID:    owner.ID,
		OwnerName:  owner.Name,
		OwnerEmail: owner.Email,
		Category:   category,
		Spent:      spent,
		Limit:      limit,
		RaisedAt:   time.Now().UTC(),
	}
}

// AlertMessage renders the one-line text for an alert, e.g. "You are close to
// your monthly limit for Milk & Dairy. Limit: ₹2000, this month spent: ₹1700."
func AlertMessage(kind AlertKind, category, currency string, spent, limit decimal.Decimal) string {
	l := FormatAmount(currency, limit)
	s := FormatAmount(currency, spent)
	switch kind {
	case AlertExceeded:
		return fmt.Sprintf("You have crossed the monthly limit for %s. Limit: %s, this month spent: %s.", category, l, s)
	case AlertWarning:
		return fmt.Sprintf("You are close to your monthly limit for %s. Limit: %s, this month spent: %s.", category, l, s)
	default:
		return ""
	}
}
