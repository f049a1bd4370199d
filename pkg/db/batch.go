package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrBatchClosed is returned when a committed or rolled back batch is reused.
var ErrBatchClosed = &BatchError{"batch closed"}

// BatchError reports misuse of a Batch.
type BatchError struct{ msg string }

func (e *BatchError) Error() string { return e.msg }

// Batch runs a sequence of writes inside one transaction. Each Step gets its
// own savepoint: a failing step is rolled back alone and later steps still
// run, so Commit persists every step that succeeded.
type Batch struct {
	tx *sql.Tx
	queries
	steps  int
	failed int
	closed bool
}

// BeginBatch opens a transaction for a run of mutations.
func (s *Store) BeginBatch(ctx context.Context) (*Batch, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin batch tx: %w", err)
	}
	return &Batch{tx: tx, queries: queries{ex: tx}}, nil
}

// Step runs fn inside a savepoint. If fn fails its writes are undone and the
// error is returned; the batch stays usable.
func (b *Batch) Step(ctx context.Context, fn func(ctx context.Context) error) error {
	if b.closed {
		return ErrBatchClosed
	}
	b.steps++
	name := fmt.Sprintf("step_%d", b.steps)
	if _, err := b.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return fmt.Errorf("savepoint: %w", err)
	}
	if err := fn(ctx); err != nil {
		b.failed++
		if _, rbErr := b.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, fmt.Errorf("rollback to savepoint: %w", rbErr))
		}
		if _, relErr := b.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); relErr != nil {
			return errors.Join(err, fmt.Errorf("release savepoint: %w", relErr))
		}
		return err
	}
	if _, err := b.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name); err != nil {
		return fmt.Errorf("release savepoint: %w", err)
	}
	return nil
}

// Commit persists all successful steps.
func (b *Batch) Commit() error {
	if b.closed {
		return ErrBatchClosed
	}
	b.closed = true
	if err := b.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch (%d steps, %d failed): %w", b.steps, b.failed, err)
	}
	return nil
}

// Rollback discards the whole batch. It is a no-op after Commit.
func (b *Batch) Rollback() error {
	if b.closed {
		return nil
	}
	b.closed = true
	return b.tx.Rollback()
}
