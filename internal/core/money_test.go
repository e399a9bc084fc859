package core

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmount(t *testing.T) {
	cases := []struct {
		in  string
		out string
		ok  bool
	}{
		{"1", "1", true},
		{"1.23", "1.23", true},
		{"8,000", "8000", true},
		{"1,000,000.50", "1000000.5", true},
		{"1,00,000", "100000", true},
		{"12,34,567.891", "1234567.89", true},
		{"1,23", "", false},
		{"8,00", "", false},
		{"8000,", "", false},
		{",800", "", false},
		{"1,0000", "", false},
		{"1.234,56", "", false},
		{"0.01", "0.01", true},
		{"1.005", "1.01", true},
		{" 6500 ", "6500", true},
		{"-1", "", false},
		{"+1", "", false},
		{"0", "", false},
		{"0.001", "", false},
		{"abc", "", false},
		{"1.2.3", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, err := ParseAmount(tc.in)
		if !tc.ok {
			assert.ErrorIs(t, err, ErrValidation, "input %q", tc.in)
			continue
		}
		require.NoError(t, err, "input %q", tc.in)
		assert.True(t, decimal.RequireFromString(tc.out).Equal(got), "input %q got %s", tc.in, got)
	}
}

func TestFormatAndSum(t *testing.T) {
	total := SumAmounts([]decimal.Decimal{decimal.NewFromInt(5000), decimal.RequireFromString("3500.50")})
	assert.Equal(t, "₹8500.5", FormatAmount("₹", total))
	assert.True(t, SumAmounts(nil).IsZero())
}
