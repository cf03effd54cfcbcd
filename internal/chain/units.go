package chain

import (
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	ErrEmptyAmount     = errors.New("amount is empty")
	ErrMalformedAmount = errors.New("amount is not a decimal number")
	ErrAmountPrecision = errors.New("amount has more fraction digits than the token supports")
)

// ParseUnits converts a human decimal string such as "1.5" into base units
// for a token with the given number of decimals. The conversion is exact:
// only digits and a single '.' are accepted and no floating point is involved.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyAmount
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" && frac == "" {
		return nil, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
	}
	if !isDigits(whole) || !isDigits(frac) {
		return nil, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
	}

	// "1.500000" is fine for 6 decimals and "1.50" for 1 decimal.
	frac = strings.TrimRight(frac, "0")
	if len(frac) > int(decimals) {
		return nil, fmt.Errorf("%w: %d > %d", ErrAmountPrecision, len(frac), decimals)
	}

	digits := strings.TrimLeft(whole+frac+strings.Repeat("0", int(decimals)-len(frac)), "0")
	if digits == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMalformedAmount, s)
	}
	return v, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FormatUnits renders base units as an exact decimal string, trimming trailing
// fraction zeros but always keeping one fraction digit ("1.5", "100.0").
func FormatUnits(v *big.Int, decimals uint8) string {
	if v == nil {
		return "0.0"
	}
	sign := ""
	abs := new(big.Int).Set(v)
	if abs.Sign() < 0 {
		sign = "-"
		abs.Neg(abs)
	}
	if decimals == 0 {
		return sign + abs.String() + ".0"
	}

	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, rem := new(big.Int).QuoRem(abs, unit, new(big.Int))

	frac := rem.String()
	frac = strings.Repeat("0", int(decimals)-len(frac)) + frac
	frac = strings.TrimRight(frac, "0")
	if frac == "" {
		frac = "0"
	}
	return sign + whole.String() + "." + frac
}

// FormatBalance formats a balance with decimals as a human-readable string,
// truncated to at most six fraction digits.
func FormatBalance(balance *big.Int, decimals uint8) string {
	if balance == nil {
		return "0"
	}

	precision := int(decimals)
	if precision > 6 {
		precision = 6
	}

	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, rem := new(big.Int).QuoRem(new(big.Int).Abs(balance), unit, new(big.Int))
	sign := ""
	if balance.Sign() < 0 {
		sign = "-"
	}
	if precision == 0 {
		return sign + whole.String()
	}

	frac := rem.String()
	frac = strings.Repeat("0", int(decimals)-len(frac)) + frac
	return sign + whole.String() + "." + frac[:precision]
}
