// Package upstream defines the external price-source capabilities consumed
// by the resolver and the backfill runner, plus an HTTP client implementation.
package upstream

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrUnavailable is returned when the external source is unreachable or
// rejects the query. Callers do not retry automatically.
var ErrUnavailable = errors.New("upstream price source unavailable")

// PriceSource provides on-demand prices from an external source.
type PriceSource interface {
	// FetchAt returns the price for (token, network) at the given Unix
	// timestamp. Errors wrap ErrUnavailable when the source failed.
	FetchAt(ctx context.Context, token, network string, ts int64) (decimal.Decimal, error)
}

// OriginLookup resolves the first-seen timestamp of a token, used as the
// backfill starting point when no prices are stored yet.
type OriginLookup interface {
	// FirstSeen returns the Unix timestamp at which the token was first
	// observed on the network. Errors wrap ErrUnavailable when the source
	// failed.
	FirstSeen(ctx context.Context, token, network string) (int64, error)
}
