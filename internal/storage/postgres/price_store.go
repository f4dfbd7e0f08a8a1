package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"price-history/internal/domain"
	"price-history/internal/observability"
	"price-history/internal/storage"
)

// PriceStore implements storage.PriceStore using PostgreSQL.
type PriceStore struct {
	pool *Pool
}

// NewPriceStore creates a new PriceStore.
func NewPriceStore(pool *Pool) *PriceStore {
	return &PriceStore{pool: pool}
}

// Compile-time interface check.
var _ storage.PriceStore = (*PriceStore)(nil)

const insertPointQuery = `
	INSERT INTO price_points (token, network, timestamp, price, date)
	VALUES ($1, $2, $3, $4, $5)
	ON CONFLICT (token, network, date) DO NOTHING
`

// Insert adds a single point. Returns ErrDuplicateKey if a point for
// (token, network, date) already exists.
func (s *PriceStore) Insert(ctx context.Context, p *domain.PricePoint) error {
	if p == nil || p.Token == "" || p.Network == "" || p.Price.IsNegative() {
		return storage.ErrInvalidInput
	}

	start := time.Now()
	tag, err := s.pool.Exec(ctx, insertPointQuery,
		p.Token, p.Network, p.Timestamp, p.Price.String(), p.Date)
	observability.RecordDBQuery("postgres", "insert_price_point", time.Since(start).Seconds(), err)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert price point: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrDuplicateKey
	}
	return nil
}

// InsertBatch adds multiple points atomically, silently skipping points whose
// (token, network, date) key already exists.
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
		observability.RecordDBQuery("postgres", "insert_batch", time.Since(start).Seconds(), err)
	}()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, p := range points {
		if _, err := tx.Exec(ctx, insertPointQuery,
			p.Token, p.Network, p.Timestamp, p.Price.String(), p.Date); err != nil {
			return fmt.Errorf("insert price point in batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}

	return nil
}

// QueryNear retrieves points within [ts-tolerance, ts+tolerance], ordered by
// timestamp ASC.
func (s *PriceStore) QueryNear(ctx context.Context, token, network string, ts, tolerance int64) ([]*domain.PricePoint, error) {
	query := `
		SELECT token, network, timestamp, price::text, date
		FROM price_points
		WHERE token = $1 AND network = $2 AND timestamp >= $3 AND timestamp <= $4
		ORDER BY timestamp ASC
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, token, network, ts-tolerance, ts+tolerance)
	observability.RecordDBQuery("postgres", "query_near", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query near points: %w", err)
	}
	defer rows.Close()

	return scanPoints(rows)
}

// QueryBefore retrieves the nearest point strictly before ts.
func (s *PriceStore) QueryBefore(ctx context.Context, token, network string, ts int64) (*domain.PricePoint, error) {
	query := `
		SELECT token, network, timestamp, price::text, date
		FROM price_points
		WHERE token = $1 AND network = $2 AND timestamp < $3
		ORDER BY timestamp DESC
		LIMIT 1
	`
	return s.queryOne(ctx, "query_before", query, token, network, ts)
}

// QueryAfter retrieves the nearest point strictly after ts.
func (s *PriceStore) QueryAfter(ctx context.Context, token, network string, ts int64) (*domain.PricePoint, error) {
	query := `
		SELECT token, network, timestamp, price::text, date
		FROM price_points
		WHERE token = $1 AND network = $2 AND timestamp > $3
		ORDER BY timestamp ASC
		LIMIT 1
	`
	return s.queryOne(ctx, "query_after", query, token, network, ts)
}

// QueryLatestDate returns the latest stored date for the pair.
func (s *PriceStore) QueryLatestDate(ctx context.Context, token, network string) (int64, error) {
	query := `
		SELECT date
		FROM price_points
		WHERE token = $1 AND network = $2
		ORDER BY date DESC
		LIMIT 1
	`

	var date int64
	start := time.Now()
	err := s.pool.QueryRow(ctx, query, token, network).Scan(&date)
	if isNotFoundError(err) {
		observability.RecordDBQuery("postgres", "query_latest_date", time.Since(start).Seconds(), nil)
		return 0, storage.ErrNotFound
	}
	observability.RecordDBQuery("postgres", "query_latest_date", time.Since(start).Seconds(), err)
	if err != nil {
		return 0, fmt.Errorf("query latest date: %w", err)
	}
	return date, nil
}

// QueryRange retrieves points within [from, to] (inclusive), ordered by
// timestamp ASC.
func (s *PriceStore) QueryRange(ctx context.Context, token, network string, from, to int64) ([]*domain.PricePoint, error) {
	query := `
		SELECT token, network, timestamp, price::text, date
		FROM price_points
		WHERE token = $1 AND network = $2 AND timestamp >= $3 AND timestamp <= $4
		ORDER BY timestamp ASC
	`

	start := time.Now()
	rows, err := s.pool.Query(ctx, query, token, network, from, to)
	observability.RecordDBQuery("postgres", "query_range", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query range points: %w", err)
	}
	defer rows.Close()

	return scanPoints(rows)
}

// queryOne runs a single-row point query, mapping no-rows to ErrNotFound.
// A missing neighbor is a normal outcome and is not counted as a query error.
func (s *PriceStore) queryOne(ctx context.Context, op, query, token, network string, ts int64) (*domain.PricePoint, error) {
	var p domain.PricePoint
	var priceText string

	start := time.Now()
	err := s.pool.QueryRow(ctx, query, token, network, ts).Scan(
		&p.Token, &p.Network, &p.Timestamp, &priceText, &p.Date)
	if isNotFoundError(err) {
		observability.RecordDBQuery("postgres", op, time.Since(start).Seconds(), nil)
		return nil, storage.ErrNotFound
	}
	observability.RecordDBQuery("postgres", op, time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("query point: %w", err)
	}

	price, err := decimal.NewFromString(priceText)
	if err != nil {
		return nil, fmt.Errorf("parse stored price %q: %w", priceText, err)
	}
	p.Price = price

	return &p, nil
}

// scanPoints scans multiple rows into a slice of PricePoint.
func scanPoints(rows pgx.Rows) ([]*domain.PricePoint, error) {
	var points []*domain.PricePoint

	for rows.Next() {
		var p domain.PricePoint
		var priceText string

		if err := rows.Scan(&p.Token, &p.Network, &p.Timestamp, &priceText, &p.Date); err != nil {
			return nil, fmt.Errorf("scan price point row: %w", err)
		}

		price, err := decimal.NewFromString(priceText)
		if err != nil {
			return nil, fmt.Errorf("parse stored price %q: %w", priceText, err)
		}
		p.Price = price

		points = append(points, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate price point rows: %w", err)
	}

	return points, nil
}
