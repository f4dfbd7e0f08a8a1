// Package interpolate computes prices between bracketing known points.
package interpolate

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// PriceScale is the number of decimal places kept in interpolated prices.
const PriceScale = 8

// ErrInvalidBracket is returned when the bracketing points cannot produce
// an interpolated value: the brackets are not in order, or the target does
// not lie strictly between them.
var ErrInvalidBracket = errors.New("invalid bracket")

// Linear returns the linearly interpolated price at target time t given a
// lower bracket (t0, p0) and an upper bracket (t1, p1):
//
//	p0 + (p1 - p0) * (t - t0) / (t1 - t0)
//
// The result is rounded to PriceScale decimal places. Fails with
// ErrInvalidBracket if t1 <= t0 or t is not strictly inside (t0, t1).
func Linear(t, t0 int64, p0 decimal.Decimal, t1 int64, p1 decimal.Decimal) (decimal.Decimal, error) {
	if t1 <= t0 {
		return decimal.Zero, fmt.Errorf("%w: t1 %d <= t0 %d", ErrInvalidBracket, t1, t0)
	}
	if t <= t0 || t >= t1 {
		return decimal.Zero, fmt.Errorf("%w: target %d not strictly inside (%d, %d)", ErrInvalidBracket, t, t0, t1)
	}

	offset := decimal.NewFromInt(t - t0)
	span := decimal.NewFromInt(t1 - t0)

	price := p0.Add(p1.Sub(p0).Mul(offset).Div(span))
	return price.Round(PriceScale), nil
}
