package storage_test

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"price-history/internal/domain"
	"price-history/internal/storage"
	"price-history/internal/storage/memory"
)

// brokenStore fails every operation.
type brokenStore struct{}

var errBroken = errors.New("store down")

func (brokenStore) Insert(context.Context, *domain.PricePoint) error       { return errBroken }
func (brokenStore) InsertBatch(context.Context, []*domain.PricePoint) error { return errBroken }
func (brokenStore) QueryNear(context.Context, string, string, int64, int64) ([]*domain.PricePoint, error) {
	return nil, errBroken
}
func (brokenStore) QueryBefore(context.Context, string, string, int64) (*domain.PricePoint, error) {
	return nil, errBroken
}
func (brokenStore) QueryAfter(context.Context, string, string, int64) (*domain.PricePoint, error) {
	return nil, errBroken
}
func (brokenStore) QueryLatestDate(context.Context, string, string) (int64, error) {
	return 0, errBroken
}
func (brokenStore) QueryRange(context.Context, string, string, int64, int64) ([]*domain.PricePoint, error) {
	return nil, errBroken
}

func TestMirroredPriceStore_WritesBoth(t *testing.T) {
	primary := memory.NewPriceStore()
	archive := memory.NewPriceStore()
	mirror := storage.NewMirroredPriceStore(primary, archive, nil)
	ctx := context.Background()

	p := domain.NewPricePoint("0xabc", "ethereum", 86400, decimal.NewFromInt(1))
	if err := mirror.Insert(ctx, p); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	for name, store := range map[string]storage.PriceStore{"primary": primary, "archive": archive} {
		got, err := store.QueryRange(ctx, "0xabc", "ethereum", 0, 200000)
		if err != nil {
			t.Fatalf("%s QueryRange failed: %v", name, err)
		}
		if len(got) != 1 {
			t.Errorf("%s has %d points, want 1", name, len(got))
		}
	}
}

func TestMirroredPriceStore_ArchiveFailureIsNonFatal(t *testing.T) {
	primary := memory.NewPriceStore()
	mirror := storage.NewMirroredPriceStore(primary, brokenStore{}, nil)
	ctx := context.Background()

	p := domain.NewPricePoint("0xabc", "ethereum", 86400, decimal.NewFromInt(1))
	if err := mirror.Insert(ctx, p); err != nil {
		t.Fatalf("Insert should succeed when only the archive fails: %v", err)
	}

	// Range query falls back to the primary.
	got, err := mirror.QueryRange(ctx, "0xabc", "ethereum", 0, 200000)
	if err != nil {
		t.Fatalf("QueryRange fallback failed: %v", err)
	}
	if len(got) != 1 {
		t.Errorf("QueryRange fallback returned %d points, want 1", len(got))
	}
}

func TestMirroredPriceStore_PrimaryFailureAborts(t *testing.T) {
	archive := memory.NewPriceStore()
	mirror := storage.NewMirroredPriceStore(brokenStore{}, archive, nil)
	ctx := context.Background()

	p := domain.NewPricePoint("0xabc", "ethereum", 86400, decimal.NewFromInt(1))
	if err := mirror.Insert(ctx, p); !errors.Is(err, errBroken) {
		t.Fatalf("expected primary error, got %v", err)
	}

	// The archive must not have been written.
	got, _ := archive.QueryRange(ctx, "0xabc", "ethereum", 0, 200000)
	if len(got) != 0 {
		t.Errorf("archive written despite primary failure: %d points", len(got))
	}
}
