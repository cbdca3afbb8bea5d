// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as
// services and handlers to distinguish between different failure
// scenarios without inspecting driver errors.
package repository

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup by id or unique key matches no row.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when an insert violates a unique index
// (MySQL error 1062).  Callers decide whether that is a conflict, a
// race to retry or an idempotent no-op.
var ErrDuplicate = errors.New("duplicate key")

// ErrConflict is returned when a delete or update cannot be performed
// because of dependent records, such as deleting a movie that has
// already been purchased.  Handlers translate this into HTTP 409.
var ErrConflict = errors.New("conflict")

// ErrEmailExists is the users.email flavour of ErrDuplicate.
var ErrEmailExists = errors.New("email already exists")

// ErrRetryable is returned by Store.WithinTx when InnoDB aborted the
// transaction on a deadlock (1213) or a lock wait timeout (1205).  Running
// the same work again in a new transaction is safe.
var ErrRetryable = errors.New("transaction aborted, retry")

const (
	mysqlDuplicateEntry   = 1062
	mysqlLockWaitTimeout  = 1205
	mysqlDeadlockDetected = 1213
)

// isDuplicate reports whether err is a MySQL unique violation.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}

// retryable wraps deadlocks and lock wait timeouts in ErrRetryable.
func retryable(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && (me.Number == mysqlDeadlockDetected || me.Number == mysqlLockWaitTimeout) {
		return fmt.Errorf("%w: %v", ErrRetryable, err)
	}
	return err
}

// notFound maps sql.ErrNoRows to ErrNotFound and passes other errors through.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
