package durability

import (
	"context"
	"errors"
	"fmt"

	"github.com/ValentinKolb/dHA/lib/replica"
)

var (
	// ErrDuplicateInvocation is returned when an invocation for the same transaction id is still outstanding.
	ErrDuplicateInvocation = errors.New("invocation for transaction already outstanding")
	// ErrIncompleteInvocation is returned when an invocation is completed before every replica reported a result.
	ErrIncompleteInvocation = errors.New("invocation has replicas without result")
	// ErrInvocationClosed is returned when a result is recorded for a closed invocation.
	ErrInvocationClosed = errors.New("invocation already closed")
	// ErrUnknownReplica is returned when a result is recorded for a replica that was not invoked.
	ErrUnknownReplica = errors.New("replica is not part of the invocation")
)

// DurabilityError is returned when the log could not be written. An operation whose
// INVOKE event could not be persisted must not be dispatched.
type DurabilityError struct {
	Op   string
	TxID string
	Err  error
}

func (e *DurabilityError) Error() string {
	return fmt.Sprintf("durability log: %s %s failed: %v", e.Op, e.TxID, e.Err)
}

func (e *DurabilityError) Unwrap() error { return e.Err }

// Classify maps an error returned by a replica to an exception type.
func Classify(err error) ExceptionType {
	if err == nil {
		return ExceptionNone
	}
	var se *replica.StatementError
	if errors.As(err, &se) {
		return ExceptionStatement
	}
	var ue *replica.UnavailableError
	if errors.As(err, &ue) && ue.Timeout() {
		return ExceptionUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ExceptionUnknown
	}
	return ExceptionLocal
}

// Outcome returns the phase and exception to record for a replica that answered with err.
// success is the phase recorded when err is nil (COMMIT for writes and commits, ROLLBACK for rollbacks).
func Outcome(success Phase, err error) (Phase, ExceptionType) {
	exc := Classify(err)
	switch exc {
	case ExceptionNone:
		return success, exc
	case ExceptionUnknown:
		return PhaseForget, exc
	default:
		return PhaseRollback, exc
	}
}
