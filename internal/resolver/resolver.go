// Package resolver implements point-in-time price resolution: cached points
// first, interpolation between stored neighbors second, the external source
// as a last resort.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/shopspring/decimal"

	"price-history/internal/domain"
	"price-history/internal/interpolate"
	"price-history/internal/observability"
	"price-history/internal/storage"
	"price-history/internal/upstream"
)

// ToleranceSeconds is the half-width of the cache lookup window. A stored
// point within this distance of the requested timestamp answers the query
// directly.
const ToleranceSeconds int64 = 3600

// ErrInternal is returned when the backing store fails mid-resolution.
var ErrInternal = errors.New("price resolution failed")

// Result is a resolved price with its provenance.
type Result struct {
	Price  decimal.Decimal
	Source domain.Source
	// Persisted reports whether the price is durably stored. False only on
	// the degraded path where an externally fetched price could not be
	// written back.
	Persisted bool
}

// Options configures a Resolver.
type Options struct {
	PriceStore storage.PriceStore
	Source     upstream.PriceSource
	Logger     *log.Logger
}

// Resolver answers price-at-timestamp queries.
type Resolver struct {
	store  storage.PriceStore
	source upstream.PriceSource
	log    *log.Logger
}

// New creates a Resolver. PriceStore and Source are required.
func New(opts Options) (*Resolver, error) {
	if opts.PriceStore == nil {
		return nil, errors.New("resolver: PriceStore is required")
	}
	if opts.Source == nil {
		return nil, errors.New("resolver: Source is required")
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[resolver] ", log.LstdFlags)
	}

	return &Resolver{
		store:  opts.PriceStore,
		source: opts.Source,
		log:    logger,
	}, nil
}

// Resolve returns the price of (token, network) at the given Unix timestamp.
//
// Stored points within ToleranceSeconds win, closest first and the earlier
// timestamp on a tie. Failing that, a target strictly between two stored
// neighbors is linearly interpolated; the interpolated value is returned but
// never stored. Only when neither path produces an answer is the external
// source consulted, and its price written back so the next query hits the
// cache.
func (r *Resolver) Resolve(ctx context.Context, token, network string, ts int64) (*Result, error) {
	start := time.Now()
	defer func() {
		observability.RecordResolutionLatency(time.Since(start).Seconds())
	}()

	token = domain.NormalizeToken(token)
	if token == "" || network == "" || ts <= 0 {
		observability.RecordResolutionError("invalid_input")
		return nil, storage.ErrInvalidInput
	}

	// Cache window lookup.
	near, err := r.store.QueryNear(ctx, token, network, ts, ToleranceSeconds)
	if err != nil {
		observability.RecordResolutionError("store")
		return nil, fmt.Errorf("%w: query near %s/%s@%d: %v", ErrInternal, token, network, ts, err)
	}
	if p := closest(near, ts); p != nil {
		observability.RecordResolution(string(domain.SourceCache))
		return &Result{Price: p.Price, Source: domain.SourceCache, Persisted: true}, nil
	}

	// Interpolation between strict neighbors.
	res, err := r.interpolated(ctx, token, network, ts)
	if err != nil {
		return nil, err
	}
	if res != nil {
		observability.RecordResolution(string(domain.SourceInterpolated))
		return res, nil
	}

	// External fetch with write-back.
	return r.fetchExternal(ctx, token, network, ts)
}

// closest picks the stored point nearest to ts, preferring the earlier
// timestamp when two points are equidistant. The input is ordered by
// timestamp ASC, so the first best match is the earlier one.
func closest(points []*domain.PricePoint, ts int64) *domain.PricePoint {
	var best *domain.PricePoint
	var bestDist int64

	for _, p := range points {
		dist := p.Timestamp - ts
		if dist < 0 {
			dist = -dist
		}
		if best == nil || dist < bestDist {
			best = p
			bestDist = dist
		}
	}
	return best
}

// interpolated returns a linear estimate between the nearest stored points
// strictly before and after ts, or nil when either neighbor is missing.
func (r *Resolver) interpolated(ctx context.Context, token, network string, ts int64) (*Result, error) {
	before, err := r.store.QueryBefore(ctx, token, network, ts)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		observability.RecordResolutionError("store")
		return nil, fmt.Errorf("%w: query before %s/%s@%d: %v", ErrInternal, token, network, ts, err)
	}

	after, err := r.store.QueryAfter(ctx, token, network, ts)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		observability.RecordResolutionError("store")
		return nil, fmt.Errorf("%w: query after %s/%s@%d: %v", ErrInternal, token, network, ts, err)
	}

	price, err := interpolate.Linear(ts, before.Timestamp, before.Price, after.Timestamp, after.Price)
	if err != nil {
		// Neighbors are strict by query construction, so a bracket error
		// means the store returned inconsistent data.
		observability.RecordResolutionError("interpolate")
		return nil, fmt.Errorf("%w: interpolate %s/%s@%d: %v", ErrInternal, token, network, ts, err)
	}

	return &Result{Price: price, Source: domain.SourceInterpolated, Persisted: false}, nil
}

// fetchExternal fetches the price from the external source and writes it
// back. A failed write-back degrades the result instead of failing it.
func (r *Resolver) fetchExternal(ctx context.Context, token, network string, ts int64) (*Result, error) {
	price, err := r.source.FetchAt(ctx, token, network, ts)
	if err != nil {
		observability.RecordResolutionError("upstream")
		return nil, fmt.Errorf("fetch %s/%s@%d: %w", token, network, ts, err)
	}

	persisted := true
	if err := r.store.Insert(ctx, domain.NewPricePoint(token, network, ts, price)); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			// Another writer filled this day first; the price is stored
			// either way.
		} else {
			persisted = false
			observability.RecordWriteBackFailure()
			r.log.Printf("WARN: write-back failed for %s/%s@%d: %v", token, network, ts, err)
		}
	}

	observability.RecordResolution(string(domain.SourceExternal))
	return &Result{Price: price, Source: domain.SourceExternal, Persisted: persisted}, nil
}
