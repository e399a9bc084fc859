// Package core provides money parsing and handling utilities.
//
// Amounts are carried as decimal.Decimal so sums never pick up
// floating-point drift.
package core

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// Digit grouping accepted in the integer part: western (8,000 and
// 1,000,000) and Indian (1,00,000 and 12,34,567).
var groupedAmount = regexp.MustCompile(`^(\d{1,3}(,\d{3})+|\d{1,2}(,\d{2})*,\d{3})(\.\d+)?$`)

// ParseAmount converts a user supplied decimal string into an amount.
//
// The dot is the only decimal mark. Commas are accepted as digit grouping
// when they form a western or Indian grouping, and rejected otherwise. The
// result is rounded half-up to two decimal places. Signs are rejected, and so
// is zero.
//
// Examples:
//
//	ParseAmount("12.346")   -> 12.35
//	ParseAmount("1,00,000") -> 100000
//	ParseAmount("12,34")    -> error
//	ParseAmount("-1")       -> error
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, &ValidationError{Fields: []string{"amount"}}
	}
	if strings.Contains(s, ",") {
		if !groupedAmount.MatchString(s) {
			return decimal.Zero, &ValidationError{Fields: []string{"amount"}, Reason: "amount is not a number"}
		}
		s = strings.ReplaceAll(s, ",", "")
	}
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, &ValidationError{Fields: []string{"amount"}, Reason: "amount must be positive"}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &ValidationError{Fields: []string{"amount"}, Reason: "amount is not a number"}
	}
	d = d.Round(2)
	if !d.IsPositive() {
		return decimal.Zero, &ValidationError{Fields: []string{"amount"}, Reason: "amount must be positive"}
	}
	return d, nil
}

// FormatAmount renders an amount with the given currency symbol, e.g. "₹6500".
func FormatAmount(symbol string, d decimal.Decimal) string {
	return symbol + d.String()
}

// SumAmounts adds a list of amounts.
func SumAmounts(amounts []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}
