package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SequenceStore hands out document numbers from a per-entity row in the
// sequences table. The increment happens in the database so concurrent
// requests and restarts can never reuse a number.
type SequenceStore struct {
	pool *pgxpool.Pool
}

// NewSequenceStore constructs the store.
func NewSequenceStore(pool *pgxpool.Pool) *SequenceStore {
	return &SequenceStore{pool: pool}
}

// Next atomically increments and returns the counter for the given entity key.
func (s *SequenceStore) Next(ctx context.Context, entity string) (int64, error) {
	if s == nil {
		return 0, errors.New("sequence store not initialised")
	}
	if entity == "" {
		return 0, errors.New("sequence entity required")
	}
	var value int64
	err := s.pool.QueryRow(ctx, `INSERT INTO sequences (entity, current) VALUES ($1, 1)
ON CONFLICT (entity) DO UPDATE SET current = sequences.current + 1
RETURNING current`, entity).Scan(&value)
	if err != nil {
		return 0, err
	}
	return value, nil
}

// NextDocNumber formats a dated document number such as INV-2026-000042.
func (s *SequenceStore) NextDocNumber(ctx context.Context, entity, prefix string, at time.Time) (string, error) {
	n, err := s.Next(ctx, entity)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%d-%06d", prefix, at.Year(), n), nil
}
