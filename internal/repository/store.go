package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Tx is the transactional view of the database used by the services.
// Every method runs inside the transaction opened by Store.WithinTx, so
// a service can combine reads, row locks and writes atomically.  The
// method groups live next to their SQL in the *_repository.go files.
type Tx interface {
	UserTx
	TokenTx
	CartTx
	OrderTx
	PaymentTx
}

// Store opens transactions over MySQL.
type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

// DB exposes the pool for read-only repositories.
func (s *Store) DB() *sql.DB { return s.db }

// WithinTx runs fn in a transaction.  The transaction commits when fn
// returns nil and rolls back otherwise, including on panic.  Deadlocks
// come back as ErrRetryable.
func (s *Store) WithinTx(ctx context.Context, fn func(Tx) error) error {
	return retryable(s.withinTx(ctx, fn))
}

func (s *Store) withinTx(ctx context.Context, fn func(Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&sqlTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// sqlTx implements Tx on top of *sql.Tx.
type sqlTx struct{ tx *sql.Tx }

// placeholders returns "?,?,…" with n marks.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func idArgs(ids []uint64) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
