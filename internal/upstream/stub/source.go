// Package stub provides deterministic in-memory price sources for tests
// and for running the service without upstream credentials.
package stub

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"

	"price-history/internal/upstream"
)

type priceKey struct {
	token   string
	network string
	ts      int64
}

// Source is a deterministic implementation of upstream.PriceSource and
// upstream.OriginLookup. Unscripted timestamps resolve to DefaultPrice.
type Source struct {
	mu sync.Mutex

	// DefaultPrice is returned for timestamps without a scripted price.
	DefaultPrice decimal.Decimal

	prices   map[priceKey]decimal.Decimal
	failures map[priceKey]error
	origins  map[string]int64
	origErr  error

	fetchCalls  int
	originCalls int
}

// Compile-time interface checks.
var (
	_ upstream.PriceSource  = (*Source)(nil)
	_ upstream.OriginLookup = (*Source)(nil)
)

// New creates a stub source with the given default price.
func New(defaultPrice decimal.Decimal) *Source {
	return &Source{
		DefaultPrice: defaultPrice,
		prices:       make(map[priceKey]decimal.Decimal),
		failures:     make(map[priceKey]error),
		origins:      make(map[string]int64),
	}
}

// SetPrice scripts a price for a specific timestamp.
func (s *Source) SetPrice(token, network string, ts int64, price decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[priceKey{token, network, ts}] = price
}

// FailAt scripts a fetch failure for a specific timestamp.
func (s *Source) FailAt(token, network string, ts int64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		err = upstream.ErrUnavailable
	}
	s.failures[priceKey{token, network, ts}] = err
}

// SetOrigin scripts the first-seen timestamp for a (token, network) pair.
func (s *Source) SetOrigin(token, network string, ts int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.origins[token+"|"+network] = ts
}

// FailOrigin makes all origin lookups fail with err.
func (s *Source) FailOrigin(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		err = upstream.ErrUnavailable
	}
	s.origErr = err
}

// FetchCalls returns how many FetchAt calls were made.
func (s *Source) FetchCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetchCalls
}

// FetchAt implements upstream.PriceSource.
func (s *Source) FetchAt(_ context.Context, token, network string, ts int64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.fetchCalls++

	key := priceKey{token, network, ts}
	if err, ok := s.failures[key]; ok {
		return decimal.Zero, fmt.Errorf("stub fetch %s/%s@%d: %w", network, token, ts, err)
	}
	if price, ok := s.prices[key]; ok {
		return price, nil
	}
	return s.DefaultPrice, nil
}

// FirstSeen implements upstream.OriginLookup.
func (s *Source) FirstSeen(_ context.Context, token, network string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.originCalls++

	if s.origErr != nil {
		return 0, fmt.Errorf("stub origin %s/%s: %w", network, token, s.origErr)
	}
	if ts, ok := s.origins[token+"|"+network]; ok {
		return ts, nil
	}
	return 0, fmt.Errorf("stub origin %s/%s: %w", network, token, upstream.ErrUnavailable)
}
