// Package store imports saved ring records into PostgreSQL.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aluiziolira/go-ring-crawler/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS rings (
	id            UUID PRIMARY KEY,
	name          TEXT NOT NULL,
	description   TEXT,
	metal_type    TEXT NOT NULL,
	stone_type    TEXT NOT NULL,
	carat_weight  DOUBLE PRECISION NOT NULL,
	style         TEXT NOT NULL,
	rating        DOUBLE PRECISION NOT NULL DEFAULT 0,
	review_count  INTEGER NOT NULL DEFAULT 0,
	price_eur     DOUBLE PRECISION,
	brand         TEXT NOT NULL,
	tier          TEXT NOT NULL,
	source_url    TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS rings_name_idx ON rings (name);
CREATE TABLE IF NOT EXISTS ring_images (
	id        UUID PRIMARY KEY,
	ring_id   UUID NOT NULL REFERENCES rings (id) ON DELETE CASCADE,
	url       TEXT NOT NULL,
	position  INTEGER NOT NULL,
	UNIQUE (ring_id, position)
);`

// Config holds connection pool settings.
type Config struct {
	URL         string
	MaxConns    int32
	MaxConnLife time.Duration
}

// Store writes rings through a pgx pool.
type Store struct {
	pool *pgxpool.Pool
}

// ImportReport counts the outcome of one Import.
type ImportReport struct {
	Imported int
	Skipped  int
	Errors   int
}

// Total is the number of records considered.
func (r ImportReport) Total() int {
	return r.Imported + r.Skipped + r.Errors
}

// New connects and pings the database.
func New(ctx context.Context, cfg Config) (*Store, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLife > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLife
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Migrate creates the tables if they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// ImageURLs lists the URLs to publish for r in position order, preferring
// the CDN copy of each image.
func ImageURLs(r models.CanonicalRecord) []string {
	out := make([]string, 0, len(r.Images))
	for _, img := range r.Images {
		u := img.URL
		if img.CDNURL != nil && strings.TrimSpace(*img.CDNURL) != "" {
			u = *img.CDNURL
		}
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

// Import inserts records one by one. Records without images and names that
// already exist are skipped. A failing record is counted and does not stop
// the import.
func (s *Store) Import(ctx context.Context, records []models.CanonicalRecord) (ImportReport, error) {
	var report ImportReport
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		urls := ImageURLs(r)
		if len(urls) == 0 {
			slog.Debug("skip ring without images", slog.String("name", r.Name))
			report.Skipped++
			continue
		}

		var exists bool
		if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rings WHERE name = $1)`, r.Name).Scan(&exists); err != nil {
			slog.Error("duplicate check failed", slog.String("name", r.Name), slog.Any("error", err))
			report.Errors++
			continue
		}
		if exists {
			slog.Debug("skip duplicate ring", slog.String("name", r.Name))
			report.Skipped++
			continue
		}

		if err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
			return insertRing(ctx, tx, r, urls)
		}); err != nil {
			slog.Error("import ring failed", slog.String("name", r.Name), slog.Any("error", err))
			report.Errors++
			continue
		}
		report.Imported++
	}
	return report, nil
}

func insertRing(ctx context.Context, tx pgx.Tx, r models.CanonicalRecord, urls []string) error {
	ringID := uuid.New()
	carat := r.CaratWeight
	if carat <= 0 {
		carat = 0.5
	}

	batch := &pgx.Batch{}
	batch.Queue(`INSERT INTO rings
		(id, name, description, metal_type, stone_type, carat_weight, style, rating, review_count, price_eur, brand, tier, source_url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		ringID, r.Name, r.Description, string(r.MetalType), string(r.StoneType), carat,
		string(r.Style), r.Rating, r.ReviewCount, r.PriceEUR, r.Brand, string(r.Tier), r.SourceURL,
	)
	for i, u := range urls {
		batch.Queue(`INSERT INTO ring_images (id, ring_id, url, position) VALUES ($1, $2, $3, $4)`,
			uuid.New(), ringID, u, i)
	}

	results := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("insert ring %q: %w", r.Name, err)
		}
	}
	return results.Close()
}
