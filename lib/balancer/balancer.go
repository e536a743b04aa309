package balancer

import (
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dHA/lib/replica"
	"github.com/puzpuzpuz/xsync/v3"
)

// Policy names a selection strategy.
type Policy string

const (
	PolicySimple         Policy = "simple"
	PolicyRoundRobin     Policy = "round-robin"
	PolicyWeightedRandom Policy = "weighted-random"
	PolicyLeastLoaded    Policy = "least-loaded"
)

// Policies lists all known policies.
var Policies = []Policy{PolicySimple, PolicyRoundRobin, PolicyWeightedRandom, PolicyLeastLoaded}

// ParsePolicy parses a policy name.
func ParsePolicy(s string) (Policy, error) {
	for _, p := range Policies {
		if string(p) == s {
			return p, nil
		}
	}
	return "", fmt.Errorf("invalid balancer policy %q (expected one of %v)", s, Policies)
}

// NoActiveReplicaError is returned by Next when the active set is empty.
type NoActiveReplicaError struct {
	Policy Policy
}

func (e *NoActiveReplicaError) Error() string {
	return fmt.Sprintf("balancer (%s): no active replica", e.Policy)
}

// Snapshot is an immutable view of the active set. Do not modify Replicas.
type Snapshot struct {
	Version  uint64
	Replicas []*replica.Replica
}

// Len returns the number of replicas in the snapshot.
func (s *Snapshot) Len() int { return len(s.Replicas) }

// IDs returns the replica ids in stable order.
func (s *Snapshot) IDs() []string { return replica.IDs(s.Replicas) }

// Contains reports whether a replica with the given id is part of the snapshot.
func (s *Snapshot) Contains(id string) bool {
	i := sort.Search(len(s.Replicas), func(i int) bool { return s.Replicas[i].ID >= id })
	return i < len(s.Replicas) && s.Replicas[i].ID == id
}

// Balancer holds the active set and picks replicas from it. It is safe for concurrent use.
type Balancer struct {
	policy Policy

	mu       sync.Mutex // serializes writers
	snap     atomic.Pointer[Snapshot]
	next     atomic.Uint64
	inflight *xsync.MapOf[string, *atomic.Int64]
}

// New creates an empty balancer using the given policy.
func New(policy Policy) (*Balancer, error) {
	if _, err := ParsePolicy(string(policy)); err != nil {
		return nil, err
	}
	b := &Balancer{
		policy:   policy,
		inflight: xsync.NewMapOf[string, *atomic.Int64](),
	}
	b.snap.Store(&Snapshot{})
	return b, nil
}

// Policy returns the selection policy.
func (b *Balancer) Policy() Policy { return b.policy }

// All returns the current snapshot of the active set.
func (b *Balancer) All() *Snapshot { return b.snap.Load() }

// Contains reports whether r is in the active set.
func (b *Balancer) Contains(r *replica.Replica) bool {
	return b.snap.Load().Contains(r.ID)
}

// Add adds r to the active set and reports whether the set changed.
func (b *Balancer) Add(r *replica.Replica) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.snap.Load()
	if cur.Contains(r.ID) {
		return false
	}
	replicas := make([]*replica.Replica, 0, len(cur.Replicas)+1)
	replicas = append(replicas, cur.Replicas...)
	replicas = append(replicas, r)
	sort.Slice(replicas, func(i, j int) bool { return replicas[i].ID < replicas[j].ID })

	b.snap.Store(&Snapshot{Version: cur.Version + 1, Replicas: replicas})
	return true
}

// Remove removes r from the active set and reports whether the set changed.
func (b *Balancer) Remove(r *replica.Replica) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.snap.Load()
	if !cur.Contains(r.ID) {
		return false
	}
	replicas := make([]*replica.Replica, 0, len(cur.Replicas)-1)
	for _, x := range cur.Replicas {
		if x.ID != r.ID {
			replicas = append(replicas, x)
		}
	}

	b.snap.Store(&Snapshot{Version: cur.Version + 1, Replicas: replicas})
	return true
}

// Track marks one operation on r as in flight. The returned func ends it and is safe to call more than once.
func (b *Balancer) Track(r *replica.Replica) (done func()) {
	counter, _ := b.inflight.LoadOrCompute(r.ID, func() *atomic.Int64 { return new(atomic.Int64) })
	counter.Add(1)
	var once sync.Once
	return func() {
		once.Do(func() { counter.Add(-1) })
	}
}

// InFlight returns the number of tracked operations currently running on r.
func (b *Balancer) InFlight(r *replica.Replica) int64 {
	if counter, ok := b.inflight.Load(r.ID); ok {
		return counter.Load()
	}
	return 0
}

// Next selects a replica from the active set.
func (b *Balancer) Next() (*replica.Replica, error) {
	return b.NextOf(b.snap.Load())
}

// NextOf selects a replica from the given snapshot.
func (b *Balancer) NextOf(snap *Snapshot) (*replica.Replica, error) {
	replicas := snap.Replicas
	if len(replicas) == 0 {
		return nil, &NoActiveReplicaError{Policy: b.policy}
	}

	switch b.policy {
	case PolicyRoundRobin:
		return replicas[(b.next.Add(1)-1)%uint64(len(replicas))], nil
	case PolicyWeightedRandom:
		return weighted(replicas), nil
	case PolicyLeastLoaded:
		best := replicas[0]
		bestLoad := b.InFlight(best)
		for _, r := range replicas[1:] {
			if load := b.InFlight(r); load < bestLoad {
				best, bestLoad = r, load
			}
		}
		return best, nil
	default:
		return replicas[0], nil
	}
}

// weighted picks a replica with probability proportional to its weight
func weighted(replicas []*replica.Replica) *replica.Replica {
	var total int64
	for _, r := range replicas {
		if r.Weight > 0 {
			total += int64(r.Weight)
		}
	}
	if total == 0 {
		return replicas[rand.IntN(len(replicas))]
	}

	n := rand.Int64N(total)
	for _, r := range replicas {
		if r.Weight <= 0 {
			continue
		}
		n -= int64(r.Weight)
		if n < 0 {
			return r
		}
	}
	// unreachable, total is the sum of all positive weights
	return replicas[len(replicas)-1]
}
