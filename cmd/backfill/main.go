// Package main runs a single backfill job to completion and reports its
// outcome. Intended for operational catch-up runs outside the server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"price-history/internal/backfill"
	"price-history/internal/domain"
	"price-history/internal/storage/migrations"
	pgstore "price-history/internal/storage/postgres"
	"price-history/internal/upstream"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	token := flag.String("token", "", "Token address to backfill")
	network := flag.String("network", "", "Network identifier")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	upstreamURL := flag.String("upstream-url", os.Getenv("UPSTREAM_URL"), "External price source base URL")
	upstreamKey := flag.String("upstream-api-key", os.Getenv("UPSTREAM_API_KEY"), "External price source API key")
	chunkSize := flag.Int("chunk-size", backfill.DefaultChunkSize, "Days fetched concurrently per chunk")
	chunkInterval := flag.Duration("chunk-interval", backfill.DefaultChunkInterval, "Minimum spacing between chunks")

	flag.Parse()

	logger := log.New(os.Stdout, "[backfill] ", log.LstdFlags)

	if *token == "" || *network == "" {
		logger.Fatal("--token and --network are required")
	}
	if *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required")
	}
	if *upstreamURL == "" {
		logger.Fatal("--upstream-url is required")
	}

	ctx := context.Background()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Fatalf("postgres migrations: %v", err)
	}

	client := upstream.NewClient(upstream.ClientConfig{
		BaseURL: *upstreamURL,
		APIKey:  *upstreamKey,
		Logger:  logger,
	})

	runner, err := backfill.New(backfill.Options{
		PriceStore: pgstore.NewPriceStore(pool),
		JobStore:   pgstore.NewJobStore(pool),
		Source:     client,
		Origin:     client,
		ChunkSize:  *chunkSize,
		Limiter:    backfill.PacingLimiter(*chunkInterval),
		Logger:     logger,
	})
	if err != nil {
		logger.Fatalf("backfill setup: %v", err)
	}

	start := time.Now()
	jobID, days, err := runner.Schedule(ctx, *token, *network)
	if err != nil {
		logger.Fatalf("schedule: %v", err)
	}
	if jobID == backfill.JobIDUpToDate {
		fmt.Printf("%s/%s is already up to date\n", *network, *token)
		return
	}

	logger.Printf("job %s: fetching %d days", jobID[:12], days)
	runner.Wait(jobID)

	job, err := runner.Status(ctx, jobID)
	if err != nil {
		logger.Fatalf("job status: %v", err)
	}

	fmt.Printf("job %s finished in %s\n", job.JobID, time.Since(start).Round(time.Second))
	fmt.Printf("  status:    %s\n", job.Status)
	fmt.Printf("  progress:  %d/%d days\n", job.CompletedDays, job.TotalDays)
	if job.Status == domain.JobError {
		fmt.Printf("  error:     %s\n", job.ErrorMessage)
		os.Exit(1)
	}
}
