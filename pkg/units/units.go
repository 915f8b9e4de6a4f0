// Package units converts between human-readable token quantities ("2500.5")
// and base-unit integers.
package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// DefaultDecimals is the precision of the native coin and most tokens.
const DefaultDecimals = 18

var (
	ErrNegative  = errors.New("amount is negative")
	ErrPrecision = errors.New("amount has more decimal places than the asset")
	ErrOverflow  = errors.New("amount does not fit in 256 bits")
)

// ParseUnits parses s as a decimal quantity and scales it by 10^decimals.
func ParseUnits(s string, decimals int32) (*uint256.Int, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, ErrNegative
	}
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, ErrPrecision
	}
	out, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, ErrOverflow
	}
	return out, nil
}

// Format renders a base-unit amount with thousands separators and without
// trailing fractional zeros: Format(2500e18, 18) == "2,500".
func Format(amount *uint256.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	if decimals <= 0 {
		return humanize.BigComma(amount.ToBig())
	}

	unit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
	whole, frac := new(big.Int).QuoRem(amount.ToBig(), unit, new(big.Int))

	out := humanize.BigComma(whole)
	if frac.Sign() == 0 {
		return out
	}
	digits := frac.String()
	digits = strings.Repeat("0", int(decimals)-len(digits)) + digits
	return out + "." + strings.TrimRight(digits, "0")
}
