package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/user/listing-harvester/internal/domain"
)

const listingsSchema = `
CREATE TABLE IF NOT EXISTS harvested_listings (
	id BIGSERIAL PRIMARY KEY,
	region TEXT NOT NULL,
	furnishing_filter TEXT NOT NULL,
	page INT NOT NULL,
	bedrooms TEXT,
	bathrooms TEXT,
	area TEXT,
	price TEXT,
	location TEXT,
	property_type TEXT,
	title TEXT,
	furnished BOOLEAN,
	description TEXT,
	amenities JSONB,
	harvested_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_harvested_listings_region ON harvested_listings(region);
`

const insertListing = `
INSERT INTO harvested_listings (region, furnishing_filter, page, bedrooms, bathrooms, area, price,
	location, property_type, title, furnished, description, amenities)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

// PostgresSink mirrors harvested rows into Postgres. Sentinel fields are
// stored as NULL. The pool is owned by the caller.
type PostgresSink struct {
	pool   *pgxpool.Pool
	region domain.Region
	filter domain.Filter
}

func NewPostgresSink(pool *pgxpool.Pool, region domain.Region, filter domain.Filter) *PostgresSink {
	return &PostgresSink{pool: pool, region: region, filter: filter}
}

// Prepare ensures the listings table exists.
func (s *PostgresSink) Prepare(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()
	if _, err := s.pool.Exec(ctx, listingsSchema); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}

// Append inserts one page in a single batch.
func (s *PostgresSink) Append(ctx context.Context, page int, rows []domain.ListingRecord) error {
	if len(rows) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(insertListing, rowArgs(s.region, s.filter, page, r)...)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for i := range rows {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch insert failed at page %d row %d: %w", page, i, err)
		}
	}
	return nil
}

func (s *PostgresSink) Close() error { return nil }

func rowArgs(region domain.Region, filter domain.Filter, page int, r domain.ListingRecord) []any {
	args := []any{string(region), string(filter), page}
	for _, name := range domain.ScalarFields {
		args = append(args, nullable(r.Scalar(name)))
	}
	return append(args, r.Furnished, nullable(r.Description), amenitiesJSON(r.Amenities))
}

func nullable(f domain.Field) *string {
	if !f.Valid {
		return nil
	}
	v := f.Value
	return &v
}

func amenitiesJSON(a domain.Amenities) []byte {
	if !a.Valid {
		return nil
	}
	return []byte(amenitiesCell(a))
}
