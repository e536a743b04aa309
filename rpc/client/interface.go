package client

import (
	"github.com/ValentinKolb/dHA/lib/cluster"
	"github.com/ValentinKolb/dHA/lib/replica"
)

// IAdmin is the remote interface of one cluster served by a dHA server
type IAdmin interface {
	// List returns the status of every configured replica, sorted by id
	List() ([]cluster.ReplicaStatus, error)
	// Status returns the status of the cluster
	Status() (cluster.Status, error)
	// Activate adds a replica to the active set and reports whether the set changed
	Activate(replicaID string) (changed bool, err error)
	// Deactivate removes a replica from the active set and reports whether the set changed
	Deactivate(replicaID string) (changed bool, err error)
	// Resolve clears the resync flag of a replica and activates it
	Resolve(replicaID string) (changed bool, err error)
	// Exec runs a write on all active replicas
	Exec(op cluster.Operation) (replica.Result, error)
	// Query runs a read on one active replica
	Query(stmt replica.Statement) (replica.Result, error)
	// Close releases the transport
	Close() error
}
