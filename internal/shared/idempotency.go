package shared

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-erp/odyssey-quote/internal/platform/db"
)

// ErrIdempotencyConflict indicates the key was already claimed.
var ErrIdempotencyConflict = errors.New("idempotent request already processed")

// IdempotencyStore records request keys per scope so a retried request is
// processed at most once.
type IdempotencyStore struct {
	db  db.DBTX
	now func() time.Time
}

// NewIdempotencyStore constructs the store.
func NewIdempotencyStore(conn db.DBTX) *IdempotencyStore {
	return &IdempotencyStore{db: conn, now: time.Now}
}

func checkKey(scope, key string) error {
	if scope == "" || key == "" {
		return fmt.Errorf("%w: idempotency scope and key are required", ErrValidation)
	}
	return nil
}

// Claim records key under scope. A second claim of the same pair fails with
// ErrIdempotencyConflict.
func (s *IdempotencyStore) Claim(ctx context.Context, scope, key string) error {
	if err := checkKey(scope, key); err != nil {
		return err
	}
	const stmt = `INSERT INTO idempotency_keys (scope, key, created_at) VALUES ($1, $2, $3)`
	if _, err := s.db.Exec(ctx, stmt, scope, key, s.now()); err != nil {
		if db.IsUniqueViolation(err) {
			return ErrIdempotencyConflict
		}
		return fmt.Errorf("idempotency: claim: %w", err)
	}
	return nil
}

// Release forgets a claim so the request can be retried after a failure.
func (s *IdempotencyStore) Release(ctx context.Context, scope, key string) error {
	if err := checkKey(scope, key); err != nil {
		return err
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE scope = $1 AND key = $2`, scope, key); err != nil {
		return fmt.Errorf("idempotency: release: %w", err)
	}
	return nil
}

// Cleanup removes claims older than the retention window and reports how
// many were removed.
func (s *IdempotencyStore) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, fmt.Errorf("%w: retention must be positive", ErrValidation)
	}
	tag, err := s.db.Exec(ctx, `DELETE FROM idempotency_keys WHERE created_at < $1`, s.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("idempotency: cleanup: %w", err)
	}
	return tag.RowsAffected(), nil
}
