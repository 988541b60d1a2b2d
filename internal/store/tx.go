package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrReadAfterWrite is returned when a transaction attempts a read after its
// first write. The engine was built for a store whose transactions require
// all reads to precede all writes; keeping the discipline in Postgres means
// any code path here ports back cleanly and never grows the read-after-write
// shape that was the most common bug in the old system.
var ErrReadAfterWrite = errors.New("transaction read attempted after a write")

// Tx wraps pgx.Tx and enforces the read-before-write phase ordering.
type Tx struct {
	tx    pgx.Tx
	wrote bool
}

// QueryRow performs a read. Fails once the transaction has written.
func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if t.wrote {
		return errRow{ErrReadAfterWrite}
	}
	return t.tx.QueryRow(ctx, sql, args...)
}

// Query performs a read. Fails once the transaction has written.
func (t *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if t.wrote {
		return nil, ErrReadAfterWrite
	}
	return t.tx.Query(ctx, sql, args...)
}

// Exec performs a write and moves the transaction into its write phase.
func (t *Tx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	t.wrote = true
	return t.tx.Exec(ctx, sql, args...)
}

// SendBatch issues a batch of writes and drains the results, surfacing the
// first error. Batches count as writes regardless of their contents.
func (t *Tx) SendBatch(ctx context.Context, b *pgx.Batch) error {
	t.wrote = true
	results := t.tx.SendBatch(ctx, b)
	defer results.Close()
	for i := 0; i < b.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("batch op %d: %w", i, err)
		}
	}
	return results.Close()
}

// InTx runs fn inside a transaction with the phase guard, committing on nil
// and rolling back otherwise.
func (s *Store) InTx(ctx context.Context, fn func(tx *Tx) error) error {
	pgtx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	tx := &Tx{tx: pgtx}
	if err := fn(tx); err != nil {
		_ = pgtx.Rollback(ctx)
		return err
	}
	if err := pgtx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// errRow satisfies pgx.Row for a read refused by the phase guard.
type errRow struct{ err error }

func (r errRow) Scan(...any) error { return r.err }
