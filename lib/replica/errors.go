package replica

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// UnavailableError is a connectivity or engine failure local to one replica.
type UnavailableError struct {
	ReplicaID string
	Op        string
	Err       error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("replica %s unavailable (%s): %v", e.ReplicaID, e.Op, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Timeout reports whether the failure was a timeout or cancellation. The outcome
// of a statement that timed out is unknown: it may or may not have been applied.
func (e *UnavailableError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded) || errors.Is(e.Err, context.Canceled)
}

// StatementError is a deterministic rejection of a statement by the engine
// (syntax error, constraint violation, missing table, ...).
type StatementError struct {
	ReplicaID string
	Err       error
}

func (e *StatementError) Error() string {
	return fmt.Sprintf("statement rejected by replica %s: %v", e.ReplicaID, e.Err)
}

func (e *StatementError) Unwrap() error { return e.Err }

// wrapError converts a driver error into a *StatementError or *UnavailableError
func wrapError(replicaID, op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StatementError
	var ue *UnavailableError
	if errors.As(err, &se) || errors.As(err, &ue) {
		return err
	}
	if isStatementError(err) {
		return &StatementError{ReplicaID: replicaID, Err: err}
	}
	return &UnavailableError{ReplicaID: replicaID, Op: op, Err: err}
}

// isStatementError reports whether err is a statement level error of one of the supported drivers
func isStatementError(err error) bool {
	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrError, sqlite3.ErrConstraint, sqlite3.ErrMismatch, sqlite3.ErrRange, sqlite3.ErrTooBig:
			return true
		}
		return false
	}

	var pgErr *pq.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Code.Class() {
		case "22", // data exception
			"23", // integrity constraint violation
			"42": // syntax error or access rule violation
			return true
		}
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case 1048, // column cannot be null
			1054, // unknown column
			1062, // duplicate entry
			1064, // syntax error
			1146, // table does not exist
			1264, // out of range
			1451, // foreign key parent
			1452: // foreign key child
			return true
		}
		return false
	}

	return false
}
