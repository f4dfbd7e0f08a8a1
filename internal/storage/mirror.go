package storage

import (
	"context"
	"log"

	"price-history/internal/domain"
)

// MirroredPriceStore writes points to a primary store and mirrors them to an
// analytics archive. Point lookups are served by the primary; bulk range
// queries prefer the archive. An archive failure is logged and never fails
// the operation, so the primary remains the source of truth.
type MirroredPriceStore struct {
	primary PriceStore
	archive PriceStore
	logger  *log.Logger
}

// NewMirroredPriceStore creates a mirrored store. The logger defaults to
// log.Default().
func NewMirroredPriceStore(primary, archive PriceStore, logger *log.Logger) *MirroredPriceStore {
	if logger == nil {
		logger = log.Default()
	}
	return &MirroredPriceStore{primary: primary, archive: archive, logger: logger}
}

// Compile-time interface check.
var _ PriceStore = (*MirroredPriceStore)(nil)

func (s *MirroredPriceStore) Insert(ctx context.Context, p *domain.PricePoint) error {
	err := s.primary.Insert(ctx, p)
	if err != nil {
		return err
	}
	if archiveErr := s.archive.Insert(ctx, p); archiveErr != nil {
		s.logger.Printf("archive insert failed (primary committed): %v", archiveErr)
	}
	return nil
}

func (s *MirroredPriceStore) InsertBatch(ctx context.Context, points []*domain.PricePoint) error {
	if err := s.primary.InsertBatch(ctx, points); err != nil {
		return err
	}
	if archiveErr := s.archive.InsertBatch(ctx, points); archiveErr != nil {
		s.logger.Printf("archive batch insert failed (primary committed): %v", archiveErr)
	}
	return nil
}

func (s *MirroredPriceStore) QueryNear(ctx context.Context, token, network string, ts, tolerance int64) ([]*domain.PricePoint, error) {
	return s.primary.QueryNear(ctx, token, network, ts, tolerance)
}

func (s *MirroredPriceStore) QueryBefore(ctx context.Context, token, network string, ts int64) (*domain.PricePoint, error) {
	return s.primary.QueryBefore(ctx, token, network, ts)
}

func (s *MirroredPriceStore) QueryAfter(ctx context.Context, token, network string, ts int64) (*domain.PricePoint, error) {
	return s.primary.QueryAfter(ctx, token, network, ts)
}

func (s *MirroredPriceStore) QueryLatestDate(ctx context.Context, token, network string) (int64, error) {
	return s.primary.QueryLatestDate(ctx, token, network)
}

// QueryRange serves bulk history reads from the archive, falling back to the
// primary when the archive query fails.
func (s *MirroredPriceStore) QueryRange(ctx context.Context, token, network string, from, to int64) ([]*domain.PricePoint, error) {
	points, err := s.archive.QueryRange(ctx, token, network, from, to)
	if err != nil {
		s.logger.Printf("archive range query failed, falling back to primary: %v", err)
		return s.primary.QueryRange(ctx, token, network, from, to)
	}
	return points, nil
}
