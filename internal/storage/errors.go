package storage

import "errors"

// Storage errors shared by all implementations.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned by Insert when a point for the same
	// (token, network, date) already exists. Price points are immutable,
	// so callers treat this as an idempotent no-op.
	ErrDuplicateKey = errors.New("duplicate key: price points are immutable")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
