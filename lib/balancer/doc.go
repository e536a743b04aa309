// Package balancer selects one replica out of the active set for a read.
//
// The active set is kept as an immutable, versioned Snapshot ordered by replica ID.
// Add and Remove build a new snapshot under a mutex and publish it atomically,
// selection only ever reads a single snapshot and never blocks on mutations.
//
// Policies:
//   - simple: always the first replica of the stable order
//   - round-robin: cycles through the snapshot
//   - weighted-random: probability proportional to the replica weight. Replicas with a
//     weight <= 0 are never picked, unless every weight is <= 0 (then uniform)
//   - least-loaded: fewest in-flight operations (see Track), ties go to the stable order
package balancer
