// Package migrations ships the schema for both backends inside the binary,
// applied in lexical filename order.
package migrations

import "embed"

// PostgresFS holds the price_points and backfill_jobs DDL.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the analytics archive DDL.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
