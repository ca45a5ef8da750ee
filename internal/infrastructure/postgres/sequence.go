package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// NumberSequencer allocates per-year order sequence values with a single
// upsert, so the increment is atomic across processes and survives restarts.
//
// Schema:
//
//	CREATE TABLE order_sequences (
//	    year     INT PRIMARY KEY,
//	    next_seq BIGINT NOT NULL
//	);
type NumberSequencer struct {
	pool *pgxpool.Pool
}

func NewNumberSequencer(pool *pgxpool.Pool) *NumberSequencer {
	return &NumberSequencer{pool: pool}
}

func (s *NumberSequencer) Next(ctx context.Context, year int) (int64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO order_sequences (year, next_seq)
		 VALUES ($1, 1)
		 ON CONFLICT (year) DO UPDATE SET next_seq = order_sequences.next_seq + 1
		 RETURNING next_seq`,
		year,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("postgres: next order sequence: %w", err)
	}
	return seq, nil
}
