package resolver_test

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"github.com/shopspring/decimal"

	"price-history/internal/domain"
	"price-history/internal/resolver"
	"price-history/internal/storage"
	"price-history/internal/storage/memory"
	"price-history/internal/upstream"
	"price-history/internal/upstream/stub"
)

func newResolver(t *testing.T, store storage.PriceStore, source upstream.PriceSource) *resolver.Resolver {
	t.Helper()
	r, err := resolver.New(resolver.Options{
		PriceStore: store,
		Source:     source,
		Logger:     log.New(io.Discard, "", 0),
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return r
}

func mustInsert(t *testing.T, store storage.PriceStore, token, network string, ts int64, price string) {
	t.Helper()
	p := domain.NewPricePoint(token, network, ts, decimal.RequireFromString(price))
	if err := store.Insert(context.Background(), p); err != nil {
		t.Fatalf("Insert(%d) error = %v", ts, err)
	}
}

func TestResolveFromCache(t *testing.T) {
	store := memory.NewPriceStore()
	source := stub.New(decimal.RequireFromString("99.0"))
	r := newResolver(t, store, source)

	mustInsert(t, store, "0xabc", "ethereum", 10_000, "1.5")

	res, err := r.Resolve(context.Background(), "0xabc", "ethereum", 10_000+3600)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Source != domain.SourceCache {
		t.Errorf("Source = %q, want %q", res.Source, domain.SourceCache)
	}
	if !res.Price.Equal(decimal.RequireFromString("1.5")) {
		t.Errorf("Price = %s, want 1.5", res.Price)
	}
	if !res.Persisted {
		t.Error("Persisted = false, want true")
	}
	if source.FetchCalls() != 0 {
		t.Errorf("FetchCalls = %d, want 0", source.FetchCalls())
	}
}

func TestResolveCachePicksClosest(t *testing.T) {
	store := memory.NewPriceStore()
	r := newResolver(t, store, stub.New(decimal.Zero))

	mustInsert(t, store, "0xabc", "ethereum", 100_000, "1.0")
	mustInsert(t, store, "0xabc", "ethereum", 100_000+domain.DaySeconds, "2.0")

	// 1000s from the second point, 85400s from the first.
	res, err := r.Resolve(context.Background(), "0xabc", "ethereum", 100_000+domain.DaySeconds-1000)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Source != domain.SourceCache {
		t.Fatalf("Source = %q, want %q", res.Source, domain.SourceCache)
	}
	if !res.Price.Equal(decimal.RequireFromString("2.0")) {
		t.Errorf("Price = %s, want 2.0", res.Price)
	}
}

func TestResolveCacheTieBreaksEarlier(t *testing.T) {
	store := memory.NewPriceStore()
	r := newResolver(t, store, stub.New(decimal.Zero))

	// Same (token, network) on consecutive days, equidistant from the target.
	mustInsert(t, store, "0xabc", "ethereum", domain.DaySeconds-1800, "1.0")
	mustInsert(t, store, "0xabc", "ethereum", domain.DaySeconds+1800, "2.0")

	res, err := r.Resolve(context.Background(), "0xabc", "ethereum", domain.DaySeconds)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !res.Price.Equal(decimal.RequireFromString("1.0")) {
		t.Errorf("Price = %s, want 1.0 (earlier point wins the tie)", res.Price)
	}
}

func TestResolveInterpolated(t *testing.T) {
	store := memory.NewPriceStore()
	source := stub.New(decimal.RequireFromString("99.0"))
	r := newResolver(t, store, source)

	// Neighbors two days apart; target exactly between them and outside
	// the cache window of both.
	mustInsert(t, store, "0xabc", "ethereum", 0, "1.0")
	mustInsert(t, store, "0xabc", "ethereum", 2*domain.DaySeconds, "3.0")

	res, err := r.Resolve(context.Background(), "0xabc", "ethereum", domain.DaySeconds)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Source != domain.SourceInterpolated {
		t.Fatalf("Source = %q, want %q", res.Source, domain.SourceInterpolated)
	}
	if !res.Price.Equal(decimal.RequireFromString("2.0")) {
		t.Errorf("Price = %s, want 2.0", res.Price)
	}
	if res.Persisted {
		t.Error("Persisted = true, want false for interpolated result")
	}
	if source.FetchCalls() != 0 {
		t.Errorf("FetchCalls = %d, want 0", source.FetchCalls())
	}

	// Interpolated values are never written back.
	points, err := store.QueryNear(context.Background(), "0xabc", "ethereum", domain.DaySeconds, 0)
	if err != nil {
		t.Fatalf("QueryNear() error = %v", err)
	}
	if len(points) != 0 {
		t.Errorf("interpolated value was stored: %+v", points[0])
	}
}

func TestResolveExternalWithWriteBack(t *testing.T) {
	store := memory.NewPriceStore()
	source := stub.New(decimal.Zero)
	source.SetPrice("0xabc", "ethereum", 5*domain.DaySeconds, decimal.RequireFromString("7.25"))
	r := newResolver(t, store, source)

	res, err := r.Resolve(context.Background(), "0xabc", "ethereum", 5*domain.DaySeconds)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Source != domain.SourceExternal {
		t.Fatalf("Source = %q, want %q", res.Source, domain.SourceExternal)
	}
	if !res.Price.Equal(decimal.RequireFromString("7.25")) {
		t.Errorf("Price = %s, want 7.25", res.Price)
	}
	if !res.Persisted {
		t.Error("Persisted = false, want true")
	}

	// Second identical query is served from cache without a fetch.
	res2, err := r.Resolve(context.Background(), "0xabc", "ethereum", 5*domain.DaySeconds)
	if err != nil {
		t.Fatalf("second Resolve() error = %v", err)
	}
	if res2.Source != domain.SourceCache {
		t.Errorf("second Source = %q, want %q", res2.Source, domain.SourceCache)
	}
	if source.FetchCalls() != 1 {
		t.Errorf("FetchCalls = %d, want 1", source.FetchCalls())
	}
}

func TestResolveExternalDuplicateDayStillPersisted(t *testing.T) {
	store := memory.NewPriceStore()
	source := stub.New(decimal.RequireFromString("4.0"))
	r := newResolver(t, store, source)

	// The day already holds a point, but it sits outside the cache window
	// and there is no later neighbor, so resolution goes external. The
	// write-back hits the one-point-per-day key and is treated as stored.
	mustInsert(t, store, "0xabc", "ethereum", 5*domain.DaySeconds, "1.0")

	res, err := r.Resolve(context.Background(), "0xabc", "ethereum", 5*domain.DaySeconds+40_000)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Source != domain.SourceExternal {
		t.Fatalf("Source = %q, want %q", res.Source, domain.SourceExternal)
	}
	if !res.Persisted {
		t.Error("Persisted = false, want true when the day is already stored")
	}
}

// failingInsertStore wraps a PriceStore and fails all writes.
type failingInsertStore struct {
	storage.PriceStore
}

func (s *failingInsertStore) Insert(context.Context, *domain.PricePoint) error {
	return errors.New("disk full")
}

func TestResolveExternalWriteBackFailureDegrades(t *testing.T) {
	store := &failingInsertStore{PriceStore: memory.NewPriceStore()}
	source := stub.New(decimal.RequireFromString("3.5"))
	r := newResolver(t, store, source)

	res, err := r.Resolve(context.Background(), "0xabc", "ethereum", domain.DaySeconds)
	if err != nil {
		t.Fatalf("Resolve() error = %v, want degraded success", err)
	}
	if res.Source != domain.SourceExternal {
		t.Errorf("Source = %q, want %q", res.Source, domain.SourceExternal)
	}
	if !res.Price.Equal(decimal.RequireFromString("3.5")) {
		t.Errorf("Price = %s, want 3.5", res.Price)
	}
	if res.Persisted {
		t.Error("Persisted = true, want false when write-back fails")
	}
}

func TestResolveUpstreamFailure(t *testing.T) {
	store := memory.NewPriceStore()
	source := stub.New(decimal.Zero)
	source.FailAt("0xabc", "ethereum", domain.DaySeconds, nil)
	r := newResolver(t, store, source)

	_, err := r.Resolve(context.Background(), "0xabc", "ethereum", domain.DaySeconds)
	if !errors.Is(err, upstream.ErrUnavailable) {
		t.Fatalf("Resolve() error = %v, want ErrUnavailable", err)
	}
}

func TestResolveInvalidInput(t *testing.T) {
	r := newResolver(t, memory.NewPriceStore(), stub.New(decimal.Zero))

	if _, err := r.Resolve(context.Background(), "", "ethereum", 1000); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty token: error = %v, want ErrInvalidInput", err)
	}
	if _, err := r.Resolve(context.Background(), "0xabc", "", 1000); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("empty network: error = %v, want ErrInvalidInput", err)
	}
	// Non-positive timestamps would derive a wrong day key on write-back.
	if _, err := r.Resolve(context.Background(), "0xabc", "ethereum", 0); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("zero timestamp: error = %v, want ErrInvalidInput", err)
	}
	if _, err := r.Resolve(context.Background(), "0xabc", "ethereum", -5); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("negative timestamp: error = %v, want ErrInvalidInput", err)
	}
}

func TestResolveNormalizesToken(t *testing.T) {
	store := memory.NewPriceStore()
	r := newResolver(t, store, stub.New(decimal.Zero))

	mustInsert(t, store, "0xABC", "ethereum", 10_000, "1.5")

	res, err := r.Resolve(context.Background(), "  0xAbC ", "ethereum", 10_000)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if res.Source != domain.SourceCache {
		t.Errorf("Source = %q, want %q (token case must not matter)", res.Source, domain.SourceCache)
	}
}
