package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// DaySeconds is the length of one calendar day in seconds.
const DaySeconds int64 = 86400

// Source identifies how a resolved price was obtained.
type Source string

const (
	SourceCache        Source = "cache"
	SourceInterpolated Source = "interpolated"
	SourceExternal     Source = "external"
)

// PricePoint represents a single observed or computed price.
// Corresponds to the price_points table.
// At most one point exists per (token, network, date); points are
// immutable once written.
type PricePoint struct {
	Token     string          // token address, normalized lowercase
	Network   string          // network identifier
	Timestamp int64           // Unix timestamp in seconds
	Price     decimal.Decimal // non-negative price
	Date      int64           // UTC day boundary derived from Timestamp
}

// NewPricePoint creates a PricePoint with the token normalized and the
// calendar date derived from the timestamp.
func NewPricePoint(token, network string, timestamp int64, price decimal.Decimal) *PricePoint {
	return &PricePoint{
		Token:     NormalizeToken(token),
		Network:   network,
		Timestamp: timestamp,
		Price:     price,
		Date:      DayStart(timestamp),
	}
}

// DayStart truncates a Unix timestamp to the start of its UTC day.
func DayStart(ts int64) int64 {
	return ts - ts%DaySeconds
}

// NormalizeToken lowercases and trims a token address so that lookups
// and the (token, network, date) uniqueness key are case-insensitive.
func NormalizeToken(token string) string {
	return strings.ToLower(strings.TrimSpace(token))
}
