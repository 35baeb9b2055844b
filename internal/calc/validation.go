package calc

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount parses a user supplied amount such as "12.5" and checks it with ValidateAmount.
func ParseAmount(raw, operation string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, fmt.Errorf("invalid %s amount: missing", operation)
	}
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s amount: %q is not a number", operation, raw)
	}
	if err := ValidateAmount(amount, operation); err != nil {
		return decimal.Zero, err
	}
	return amount, nil
}

// ValidateAmount checks if an amount is positive and within reasonable bounds
func ValidateAmount(amount decimal.Decimal, operation string) error {
	if amount.LessThanOrEqual(decimal.Zero) {
		return fmt.Errorf("invalid %s amount: must be positive", operation)
	}

	// Check for reasonable upper bounds (prevent overflow issues)
	maxAmount := decimal.New(1, 30) // 10^30
	if amount.GreaterThan(maxAmount) {
		return fmt.Errorf("invalid %s amount: too large", operation)
	}

	return nil
}

// ToBaseUnits scales a UI amount to the token's smallest unit, truncating
// digits below the token's precision.
func ToBaseUnits(amount decimal.Decimal, decimals uint8) (uint64, error) {
	scaled := amount.Shift(int32(decimals)).Truncate(0)
	if scaled.LessThanOrEqual(decimal.Zero) {
		return 0, fmt.Errorf("amount %s is below the smallest unit (%d decimals)", amount, decimals)
	}
	if !scaled.BigInt().IsUint64() {
		return 0, fmt.Errorf("amount %s exceeds u64 in base units", amount)
	}
	return scaled.BigInt().Uint64(), nil
}

// FromBaseUnits converts base units back to a UI amount.
func FromBaseUnits(amount uint64, decimals uint8) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -int32(decimals))
}

var compactSuffixes = []struct {
	threshold decimal.Decimal
	suffix    string
}{
	{decimal.New(1, 12), "T"},
	{decimal.New(1, 9), "B"},
	{decimal.New(1, 6), "M"},
	{decimal.New(1, 3), "K"},
}

// FormatAmount renders an amount compactly: 1234 -> "1.2K", 2.50 -> "2.5", 0.000123 -> "0.000123".
func FormatAmount(amount decimal.Decimal) string {
	for _, s := range compactSuffixes {
		if amount.GreaterThanOrEqual(s.threshold) {
			return trimZeros(amount.Div(s.threshold).StringFixed(1)) + s.suffix
		}
	}
	if amount.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return trimZeros(amount.StringFixed(2))
	}
	if amount.IsZero() {
		return "0"
	}
	return trimZeros(significant(amount, 3))
}

// significant keeps n significant digits of a value in (0, 1).
func significant(amount decimal.Decimal, n int32) string {
	exp := int32(0)
	v := amount
	for v.LessThan(decimal.NewFromInt(1)) {
		v = v.Shift(1)
		exp++
	}
	return amount.Round(exp + n - 1).String()
}

func trimZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
