// Package main runs the price history service: the HTTP resolver API plus
// the background backfill runner.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"price-history/internal/backfill"
	"price-history/internal/resolver"
	"price-history/internal/server"
	"price-history/internal/storage"
	chstore "price-history/internal/storage/clickhouse"
	"price-history/internal/storage/memory"
	"price-history/internal/storage/migrations"
	pgstore "price-history/internal/storage/postgres"
	"price-history/internal/upstream"
	"price-history/internal/upstream/stub"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Parse flags (env vars as defaults)
	listenAddr := flag.String("listen-addr", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string (optional archive)")
	useMemory := flag.Bool("use-memory", envBool("USE_MEMORY"), "Use in-memory storage instead of PostgreSQL")
	upstreamURL := flag.String("upstream-url", os.Getenv("UPSTREAM_URL"), "External price source base URL")
	upstreamKey := flag.String("upstream-api-key", os.Getenv("UPSTREAM_API_KEY"), "External price source API key")
	useStub := flag.Bool("use-stub-upstream", envBool("USE_STUB_UPSTREAM"), "Use a deterministic stub price source")
	chunkSize := flag.Int("chunk-size", envInt("BACKFILL_CHUNK_SIZE", backfill.DefaultChunkSize), "Days fetched concurrently per backfill chunk")
	chunkInterval := flag.Duration("chunk-interval", envDuration("BACKFILL_CHUNK_INTERVAL", backfill.DefaultChunkInterval), "Minimum spacing between backfill chunks")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	ctx := context.Background()

	priceStore, jobStore, historyStore, cleanup, err := buildStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, logger)
	if err != nil {
		logger.Fatalf("storage setup: %v", err)
	}
	defer cleanup()

	source, origin, err := buildUpstream(*upstreamURL, *upstreamKey, *useStub, logger)
	if err != nil {
		logger.Fatalf("upstream setup: %v", err)
	}

	res, err := resolver.New(resolver.Options{
		PriceStore: priceStore,
		Source:     source,
		Logger:     logger,
	})
	if err != nil {
		logger.Fatalf("resolver setup: %v", err)
	}

	runner, err := backfill.New(backfill.Options{
		PriceStore: priceStore,
		JobStore:   jobStore,
		Source:     source,
		Origin:     origin,
		ChunkSize:  *chunkSize,
		Limiter:    backfill.PacingLimiter(*chunkInterval),
		Logger:     logger,
	})
	if err != nil {
		logger.Fatalf("backfill setup: %v", err)
	}

	srv, err := server.New(server.Options{
		Resolver: res,
		Runner:   runner,
		History:  historyStore,
		JobStore: jobStore,
		Logger:   logger,
	})
	if err != nil {
		logger.Fatalf("server setup: %v", err)
	}

	httpServer := &http.Server{
		Addr:              *listenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Printf("listening on %s", *listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http server: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Println("shutting down, send signal again to force exit")

	go func() {
		<-sigCh
		logger.Fatal("forced exit")
	}()

	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("WARN: http shutdown: %v", err)
	}

	// Let in-flight backfill jobs reach a terminal, persisted state.
	runner.Drain()
	logger.Println("shutdown complete")
}

// buildStores wires the storage layer: memory for local runs, PostgreSQL as
// the system of record, and ClickHouse as an optional mirror that serves
// bulk history reads.
func buildStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool, logger *log.Logger) (storage.PriceStore, storage.BackfillJobStore, storage.PriceStore, func(), error) {
	if useMemory {
		logger.Println("using in-memory storage")
		prices := memory.NewPriceStore()
		return prices, memory.NewJobStore(), prices, func() {}, nil
	}

	if postgresDSN == "" {
		return nil, nil, nil, nil, errors.New("--postgres-dsn is required unless --use-memory is set")
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	var prices storage.PriceStore = pgstore.NewPriceStore(pool)
	history := prices
	jobs := pgstore.NewJobStore(pool)
	cleanup := func() { pool.Close() }

	if clickhouseDSN != "" {
		conn, err := chstore.NewConn(ctx, clickhouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, nil, nil, fmt.Errorf("connect clickhouse: %w", err)
		}
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			conn.Close()
			pool.Close()
			return nil, nil, nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}

		archive := chstore.NewPriceStore(conn)
		mirrored := storage.NewMirroredPriceStore(prices, archive, logger)
		prices = mirrored
		history = mirrored
		cleanup = func() {
			conn.Close()
			pool.Close()
		}
		logger.Println("clickhouse archive enabled")
	}

	return prices, jobs, history, cleanup, nil
}

// buildUpstream wires the external price source: the HTTP client against a
// real endpoint, or the deterministic stub for local runs.
func buildUpstream(baseURL, apiKey string, useStub bool, logger *log.Logger) (upstream.PriceSource, upstream.OriginLookup, error) {
	if useStub {
		logger.Println("using stub upstream source")
		s := stub.New(decimal.NewFromInt(1))
		return s, s, nil
	}

	if baseURL == "" {
		return nil, nil, errors.New("--upstream-url is required unless --use-stub-upstream is set")
	}

	client := upstream.NewClient(upstream.ClientConfig{
		BaseURL: baseURL,
		APIKey:  apiKey,
		Logger:  logger,
	})
	return client, client, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string) bool {
	v, _ := strconv.ParseBool(os.Getenv(key))
	return v
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
