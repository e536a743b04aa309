package state

import (
	"github.com/ValentinKolb/dHA/lib/durability"
)

// IStateManager is the persistent state of one cluster.
// It implements durability.Journal.
type IStateManager interface {
	durability.Journal

	// ActiveReplicas returns the persisted active set. The boolean is false if it was never written.
	ActiveReplicas() (ids []string, loaded bool, err error)
	// SetActiveReplicas persists the active set.
	SetActiveReplicas(ids []string) error

	// ResyncRequired returns the replicas flagged for resynchronization.
	ResyncRequired() (ids []string, err error)
	// SetResyncRequired persists the replicas flagged for resynchronization.
	SetResyncRequired(ids []string) error

	// Events returns all persisted durability events ordered by sequence number.
	Events() ([]durability.Event, error)

	// Close closes the underlying store.
	Close() error
}
