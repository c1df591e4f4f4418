package domain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidTickSize = errors.New("tick size must be greater than zero")

var (
	one = decimal.NewFromInt(1)
	two = decimal.NewFromInt(2)
)

// RoundFunc snaps a price onto a multiple of tickSize.
type RoundFunc func(value, tickSize decimal.Decimal) decimal.Decimal

// ParseTickSize parses a tick size from its decimal text.
func ParseTickSize(s string) (decimal.Decimal, error) {
	tick, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidTickSize, s)
	}
	if err := ValidateTickSize(tick); err != nil {
		return decimal.Zero, err
	}
	return tick, nil
}

func ValidateTickSize(tickSize decimal.Decimal) error {
	if tickSize.Sign() <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidTickSize, tickSize)
	}
	return nil
}

// RoundToTick returns the multiple of tickSize nearest to value, halves away from zero.
func RoundToTick(value, tickSize decimal.Decimal) decimal.Decimal {
	if places, ok := tickPlaces(tickSize); ok {
		return Round(value, places)
	}
	q, r := quoRem(value, tickSize)
	if r.Abs().Mul(two).GreaterThanOrEqual(tickSize) {
		if r.Sign() > 0 {
			q = q.Add(one)
		} else {
			q = q.Sub(one)
		}
	}
	return q.Mul(tickSize)
}

// FloorToTick returns the largest multiple of tickSize not above value.
func FloorToTick(value, tickSize decimal.Decimal) decimal.Decimal {
	if places, ok := tickPlaces(tickSize); ok {
		return Floor(value, places)
	}
	q, r := quoRem(value, tickSize)
	if r.Sign() < 0 {
		q = q.Sub(one)
	}
	return q.Mul(tickSize)
}

// CeilToTick returns the smallest multiple of tickSize not below value.
func CeilToTick(value, tickSize decimal.Decimal) decimal.Decimal {
	if places, ok := tickPlaces(tickSize); ok {
		return Ceil(value, places)
	}
	q, r := quoRem(value, tickSize)
	if r.Sign() > 0 {
		q = q.Add(one)
	}
	return q.Mul(tickSize)
}

// Round rounds value to the given number of decimal places.
func Round(value decimal.Decimal, decimals int32) decimal.Decimal {
	return value.Round(decimals)
}

func Floor(value decimal.Decimal, decimals int32) decimal.Decimal {
	return value.RoundFloor(decimals)
}

func Ceil(value decimal.Decimal, decimals int32) decimal.Decimal {
	return value.RoundCeil(decimals)
}

// quoRem splits value into an integer number of ticks truncated toward zero
// and an exact remainder carrying the sign of value.
func quoRem(value, tickSize decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	if tickSize.Sign() <= 0 {
		panic(fmt.Sprintf("domain: non-positive tick size %s", tickSize))
	}
	return value.QuoRem(tickSize, 0)
}

// tickPlaces reports the decimal places of a power of ten tick (0.01 -> 2,
// 10 -> -1). Such ticks round directly on the decimal representation.
func tickPlaces(tickSize decimal.Decimal) (int32, bool) {
	if tickSize.Sign() <= 0 {
		panic(fmt.Sprintf("domain: non-positive tick size %s", tickSize))
	}

	digits := tickSize.Coefficient().String()
	if strings.TrimRight(digits, "0") != "1" {
		return 0, false
	}
	return -(tickSize.Exponent() + int32(len(digits)-1)), true
}
