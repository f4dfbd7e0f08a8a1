package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"price-history/internal/domain"
	"price-history/internal/storage"
)

// PriceStore is an in-memory implementation of storage.PriceStore.
type PriceStore struct {
	mu   sync.RWMutex
	data map[string]*domain.PricePoint // keyed by (token, network, date)
}

// NewPriceStore creates a new in-memory price store.
func NewPriceStore() *PriceStore {
	return &PriceStore{
		data: make(map[string]*domain.PricePoint),
	}
}

// Compile-time interface check.
var _ storage.PriceStore = (*PriceStore)(nil)

// pointKey generates the uniqueness key for a price point.
func pointKey(token, network string, date int64) string {
	return fmt.Sprintf("%s|%s|%d", token, network, date)
}

// Insert adds a single point. Returns ErrDuplicateKey if a point for
// (token, network, date) already exists.
func (s *PriceStore) Insert(_ context.Context, p *domain.PricePoint) error {
	if p == nil || p.Token == "" || p.Network == "" {
		return storage.ErrInvalidInput
	}
	if p.Price.IsNegative() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := pointKey(p.Token, p.Network, p.Date)
	if _, exists := s.data[key]; exists {
		return storage.ErrDuplicateKey
	}

	pointCopy := *p
	s.data[key] = &pointCopy
	return nil
}

// InsertBatch adds multiple points, silently skipping those whose
// (token, network, date) key already exists.
func (s *PriceStore) InsertBatch(_ context.Context, points []*domain.PricePoint) error {
	if len(points) == 0 {
		return nil
	}

	for _, p := range points {
		if p == nil || p.Token == "" || p.Network == "" || p.Price.IsNegative() {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range points {
		key := pointKey(p.Token, p.Network, p.Date)
		if _, exists := s.data[key]; exists {
			continue
		}
		pointCopy := *p
		s.data[key] = &pointCopy
	}

	return nil
}

// QueryNear retrieves points within [ts-tolerance, ts+tolerance], ordered by
// timestamp ASC.
func (s *PriceStore) QueryNear(_ context.Context, token, network string, ts, tolerance int64) ([]*domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PricePoint
	for _, p := range s.data {
		if p.Token == token && p.Network == network &&
			p.Timestamp >= ts-tolerance && p.Timestamp <= ts+tolerance {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})

	return result, nil
}

// QueryBefore retrieves the nearest point strictly before ts.
func (s *PriceStore) QueryBefore(_ context.Context, token, network string, ts int64) (*domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.PricePoint
	for _, p := range s.data {
		if p.Token == token && p.Network == network && p.Timestamp < ts {
			if best == nil || p.Timestamp > best.Timestamp {
				best = p
			}
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}

	pointCopy := *best
	return &pointCopy, nil
}

// QueryAfter retrieves the nearest point strictly after ts.
func (s *PriceStore) QueryAfter(_ context.Context, token, network string, ts int64) (*domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *domain.PricePoint
	for _, p := range s.data {
		if p.Token == token && p.Network == network && p.Timestamp > ts {
			if best == nil || p.Timestamp < best.Timestamp {
				best = p
			}
		}
	}
	if best == nil {
		return nil, storage.ErrNotFound
	}

	pointCopy := *best
	return &pointCopy, nil
}

// QueryLatestDate returns the latest stored date for the pair.
func (s *PriceStore) QueryLatestDate(_ context.Context, token, network string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest int64
	found := false
	for _, p := range s.data {
		if p.Token == token && p.Network == network {
			if !found || p.Date > latest {
				latest = p.Date
				found = true
			}
		}
	}
	if !found {
		return 0, storage.ErrNotFound
	}

	return latest, nil
}

// QueryRange retrieves points within [from, to] (inclusive), ordered by
// timestamp ASC.
func (s *PriceStore) QueryRange(_ context.Context, token, network string, from, to int64) ([]*domain.PricePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.PricePoint
	for _, p := range s.data {
		if p.Token == token && p.Network == network && p.Timestamp >= from && p.Timestamp <= to {
			pointCopy := *p
			result = append(result, &pointCopy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})

	return result, nil
}
