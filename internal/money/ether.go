// Package money converts between display amounts in ether and integer wei.
//
// All arithmetic that must match the value transferred on-chain is done in wei.
// Decimal values only exist at the edges: catalog prices and formatted output.
package money

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimals is the number of fractional digits between ether and wei.
const Decimals = 18

// DefaultFee is the contract's fixed transaction fee in ether.
const DefaultFee = "0.00001"

var (
	ErrNegative     = errors.New("amount is negative")
	ErrTooPrecise   = errors.New("amount has more than 18 fractional digits")
	ErrInvalidValue = errors.New("invalid amount")
)

// ToWei converts an ether amount to wei without rounding.
func ToWei(ether decimal.Decimal) (*big.Int, error) {
	if ether.IsNegative() {
		return nil, ErrNegative
	}
	shifted := ether.Shift(Decimals)
	if !shifted.IsInteger() {
		return nil, ErrTooPrecise
	}
	return shifted.BigInt(), nil
}

// MustWei is ToWei for constants known to be valid.
func MustWei(ether string) *big.Int {
	d, err := ParseEther(ether)
	if err != nil {
		panic(err)
	}
	w, err := ToWei(d)
	if err != nil {
		panic(err)
	}
	return w
}

// FromWei converts wei to an exact ether decimal.
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -Decimals)
}

// ParseEther parses a decimal ether string such as "0.000016".
func ParseEther(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, ErrInvalidValue
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidValue, s)
	}
	if d.IsNegative() {
		return decimal.Zero, ErrNegative
	}
	return d, nil
}

var (
	thousandth = decimal.New(1, -3)
	one        = decimal.NewFromInt(1)
)

// Format renders an ether amount for display: below 0.001 with 6 decimals,
// below 1 with 5, otherwise with 2.
func Format(ether decimal.Decimal) string {
	switch {
	case ether.LessThan(thousandth):
		return ether.StringFixed(6)
	case ether.LessThan(one):
		return ether.StringFixed(5)
	default:
		return ether.StringFixed(2)
	}
}

// FormatWithSuffix is Format followed by the currency symbol.
func FormatWithSuffix(ether decimal.Decimal) string {
	return Format(ether) + " ETH"
}

// FormatWei formats a wei amount with Format.
func FormatWei(wei *big.Int) string {
	return Format(FromWei(wei))
}
