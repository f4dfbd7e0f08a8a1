package clickhouse

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/shopspring/decimal"

	"price-history/internal/domain"
	"price-history/internal/observability"
	"price-history/internal/storage"
)

// PriceStore implements storage.PriceStore using ClickHouse. It serves as
// the analytics archive for bulk history reads; duplicate (token, network,
// date) rows are collapsed eventually by the ReplacingMergeTree engine, so
// reads deduplicate with FINAL.
type PriceStore struct {
	conn *Conn
}

// NewPriceStore creates a new PriceStore.
func NewPriceStore(conn *Conn) *PriceStore {
	return &PriceStore{conn: conn}
}

// Compile-time interface check.
var _ storage.PriceStore = (*PriceStore)(nil)

// Insert adds a single point. The engine deduplicates by (token, network,
// date), so re-inserting an existing day is a no-op after merges; Insert
// therefore never reports ErrDuplicateKey.
func (s *PriceStore) Insert(ctx context.Context, p *domain.PricePoint) error {
	if p == nil || p.Token == "" || p.Network == "" || p.Price.IsNegative() {
		return storage.ErrInvalidInput
	}
	return s.InsertBatch(ctx, []*domain.PricePoint{p})
}

// InsertBatch adds multiple points via a native batch.
func (s *PriceStore) InsertBatch(ctx context.Context, points []*domain.PricePoint) (err error) {
	if len(points) == 0 {
		return nil
	}

	for _, p := range points {
		if p == nil || p.Token == "" || p.Network == "" || p.Price.IsNegative() {
			return storage.ErrInvalidInput
		}
	}

	start := time.Now()
	defer func() {
		observability.RecordDBQuery("clickhouse", "insert_batch", time.Since(start).Seconds(), err)
	}()

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO price_points (token, network, timestamp, price, date)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, p := range points {
		if err := batch.Append(p.Token, p.Network, p.Timestamp, p.Price, p.Date); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// QueryNear retrieves points within [ts-tolerance, ts+tolerance], ordered by
// timestamp ASC.
func (s *PriceStore) QueryNear(ctx context.Context, token, network string, ts, tolerance int64) ([]*domain.PricePoint, error) {
	query := `
		SELECT token, network, timestamp, price, date
		FROM price_points FINAL
		WHERE token = ? AND network = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query, token, network, ts-tolerance, ts+tolerance)
	observability.RecordDBQuery("clickhouse", "query_near", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query near points: %w", err)
	}
	defer rows.Close()

	return scanPoints(rows)
}

// QueryBefore retrieves the nearest point strictly before ts.
func (s *PriceStore) QueryBefore(ctx context.Context, token, network string, ts int64) (*domain.PricePoint, error) {
	query := `
		SELECT token, network, timestamp, price, date
		FROM price_points FINAL
		WHERE token = ? AND network = ? AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT 1
	`
	return s.queryOne(ctx, "query_before", query, token, network, ts)
}

// QueryAfter retrieves the nearest point strictly after ts.
func (s *PriceStore) QueryAfter(ctx context.Context, token, network string, ts int64) (*domain.PricePoint, error) {
	query := `
		SELECT token, network, timestamp, price, date
		FROM price_points FINAL
		WHERE token = ? AND network = ? AND timestamp > ?
		ORDER BY timestamp ASC
		LIMIT 1
	`
	return s.queryOne(ctx, "query_after", query, token, network, ts)
}

// QueryLatestDate returns the latest stored date for the pair.
func (s *PriceStore) QueryLatestDate(ctx context.Context, token, network string) (int64, error) {
	query := `
		SELECT date
		FROM price_points FINAL
		WHERE token = ? AND network = ?
		ORDER BY date DESC
		LIMIT 1
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query, token, network)
	observability.RecordDBQuery("clickhouse", "query_latest_date", time.Since(start).Seconds(), err)
	if err != nil {
		return 0, fmt.Errorf("query latest date: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return 0, storage.ErrNotFound
	}

	var date int64
	if err := rows.Scan(&date); err != nil {
		return 0, fmt.Errorf("scan latest date: %w", err)
	}
	return date, rows.Err()
}

// QueryRange retrieves points within [from, to] (inclusive), ordered by
// timestamp ASC.
func (s *PriceStore) QueryRange(ctx context.Context, token, network string, from, to int64) ([]*domain.PricePoint, error) {
	query := `
		SELECT token, network, timestamp, price, date
		FROM price_points FINAL
		WHERE token = ? AND network = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`

	start := time.Now()
	rows, err := s.conn.Query(ctx, query, token, network, from, to)
	observability.RecordDBQuery("clickhouse", "query_range", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query range points: %w", err)
	}
	defer rows.Close()

	return scanPoints(rows)
}

// queryOne runs a single-row point query, mapping no-rows to ErrNotFound.
func (s *PriceStore) queryOne(ctx context.Context, op, query, token, network string, ts int64) (*domain.PricePoint, error) {
	start := time.Now()
	rows, err := s.conn.Query(ctx, query, token, network, ts)
	observability.RecordDBQuery("clickhouse", op, time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query point: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, storage.ErrNotFound
	}

	p, err := scanPoint(rows)
	if err != nil {
		return nil, err
	}
	return p, rows.Err()
}

// scanPoint scans the current row into a PricePoint.
func scanPoint(rows driver.Rows) (*domain.PricePoint, error) {
	var p domain.PricePoint
	var price decimal.Decimal

	if err := rows.Scan(&p.Token, &p.Network, &p.Timestamp, &price, &p.Date); err != nil {
		return nil, fmt.Errorf("scan price point row: %w", err)
	}
	p.Price = price

	return &p, nil
}

// scanPoints scans all remaining rows.
func scanPoints(rows driver.Rows) ([]*domain.PricePoint, error) {
	var points []*domain.PricePoint

	for rows.Next() {
		p, err := scanPoint(rows)
		if err != nil {
			return nil, err
		}
		points = append(points, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price point rows: %w", err)
	}

	return points, nil
}
