// Package state persists the membership and durability state of a cluster in a
// store.IStore.
//
// Layout (one cluster per key prefix, so several clusters can share a store):
//
//	<cluster>/active           newline separated ids of the active replicas
//	<cluster>/resync           newline separated ids of replicas that need resynchronization
//	<cluster>/log/<seq>        one serialized durability.Event, seq zero padded to 20 digits
//
// Zero padding keeps the byte-wise key order of the store equal to the append order.
// Sequence numbers resume from the highest persisted sequence when the manager is opened.
package state
