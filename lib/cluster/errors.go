package cluster

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/ValentinKolb/dHA/lib/balancer"
)

// NoActiveReplicaError is returned when no replica is left to serve an operation.
type NoActiveReplicaError = balancer.NoActiveReplicaError

var (
	// ErrClusterInactive is returned for operations issued while the cluster is not started.
	ErrClusterInactive = &ClusterUnavailableError{Reason: "cluster is not active"}
	// ErrUnknownReplica is returned when an id does not name a configured replica.
	ErrUnknownReplica = errors.New("unknown replica")
	// ErrTxDone is returned when a finished transaction is used.
	ErrTxDone = errors.New("transaction already committed or rolled back")
	// ErrAlreadyStarted is returned by Start on a running cluster.
	ErrAlreadyStarted = errors.New("cluster already started")
)

// ClusterUnavailableError is returned when an operation found no replica able to serve it.
type ClusterUnavailableError struct {
	Cluster string
	Reason  string
	Errs    []error // per replica failures
}

func (e *ClusterUnavailableError) Error() string {
	msg := "cluster unavailable: " + e.Reason
	if e.Cluster != "" {
		msg = fmt.Sprintf("cluster %s unavailable: %s", e.Cluster, e.Reason)
	}
	if len(e.Errs) > 0 {
		parts := make([]string, len(e.Errs))
		for i, err := range e.Errs {
			parts[i] = err.Error()
		}
		msg += " (" + strings.Join(parts, "; ") + ")"
	}
	return msg
}

func (e *ClusterUnavailableError) Unwrap() []error { return e.Errs }

// ConsistencyDivergenceError is returned when replicas that all succeeded report different outcomes.
// No replica is deactivated, resolving the divergence is left to the administrator.
type ConsistencyDivergenceError struct {
	TxID         string
	RowsAffected map[string]int64 // replica id -> affected rows
}

func (e *ConsistencyDivergenceError) Error() string {
	ids := make([]string, 0, len(e.RowsAffected))
	for id := range e.RowsAffected {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%s=%d", id, e.RowsAffected[id])
	}
	return fmt.Sprintf("replicas diverged on %s: rows affected %s", e.TxID, strings.Join(parts, ", "))
}

// RecoveryAmbiguityError is returned when a replica whose state could not be determined
// after a crash would be activated. The replica must be resolved (Cluster.Resolve) first.
type RecoveryAmbiguityError struct {
	ReplicaID string
}

func (e *RecoveryAmbiguityError) Error() string {
	return fmt.Sprintf("replica %s requires resynchronization before it can be activated", e.ReplicaID)
}
