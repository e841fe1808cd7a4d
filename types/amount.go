package types

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// Decimals is the fixed-point precision of volumes and reward amounts.
const Decimals = 18

var unit = new(uint256.Int).Exp(uint256.NewInt(10), uint256.NewInt(Decimals))

// Unit returns 10^18.
func Unit() *uint256.Int {
	return new(uint256.Int).Set(unit)
}

// ToWei scales a whole-unit quantity to its 18-decimal representation.
func ToWei(v *uint256.Int) (*uint256.Int, error) {
	wei, overflow := new(uint256.Int).MulOverflow(v, unit)
	if overflow {
		return nil, fmt.Errorf("%w: %s units overflow 256 bits", ErrValidation, v.Dec())
	}
	return wei, nil
}

// Ether is ToWei for small constants.
func Ether(v uint64) *uint256.Int {
	return new(uint256.Int).Mul(uint256.NewInt(v), unit)
}

// ParseAmount reads a human decimal amount ("1.5") into wei.
func ParseAmount(s string) (*uint256.Int, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("invalid amount %q: negative", s)
	}
	scaled := d.Shift(Decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("invalid amount %q: more than %d decimals", s, Decimals)
	}
	wei, overflow := uint256.FromBig(scaled.BigInt())
	if overflow {
		return nil, fmt.Errorf("invalid amount %q: overflows 256 bits", s)
	}
	return wei, nil
}

// FormatAmount renders wei as a human decimal amount.
func FormatAmount(wei *uint256.Int) string {
	return decimal.NewFromBigInt(wei.ToBig(), -Decimals).String()
}

// ParseUint reads a decimal or 0x-prefixed integer.
func ParseUint(s string) (*uint256.Int, error) {
	v, err := uint256.FromDecimal(s)
	if err == nil {
		return v, nil
	}
	v, hexErr := uint256.FromHex(s)
	if hexErr != nil {
		return nil, fmt.Errorf("invalid integer %q: %w", s, err)
	}
	return v, nil
}

// Uint is a 256 bit integer that travels as a decimal string in JSON.
// Decoding also accepts JSON numbers and 0x-prefixed hex strings.
type Uint uint256.Int

func NewUint(v *uint256.Int) *Uint {
	return (*Uint)(v.Clone())
}

func (u *Uint) Int() *uint256.Int {
	if u == nil {
		return new(uint256.Int)
	}
	return (*uint256.Int)(u)
}

func (u Uint) MarshalText() ([]byte, error) {
	return []byte((*uint256.Int)(&u).Dec()), nil
}

func (u *Uint) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := ParseUint(s)
	if err != nil {
		return err
	}
	*u = Uint(*v)
	return nil
}
