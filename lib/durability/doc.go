// Package durability records the lifecycle of every replicated operation so that,
// after a crash, the cluster can tell which replicas may have missed an operation.
//
// Every write is an invocation. Before anything is sent to a replica an INVOKE event
// with the list of target replicas is persisted (BeginInvocation). After the outcome on
// one replica is known its result is persisted (RecordResult). When every replica
// answered, the invocation is closed and its events are truncated (CompleteInvocation).
//
//	OPEN --RecordResult--> PARTIAL --CompleteInvocation--> CLOSED
//
// Results are recorded as phases:
//   - COMMIT: the operation was applied
//   - ROLLBACK: the operation was not applied (statement rejected, local failure or explicit rollback)
//   - FORGET: the outcome is unknown (timeout). FORGET is not a terminal result during recovery.
//
// Recover folds the events that survived a crash into a Report. Any invoked replica
// without a terminal result is an orphan and must be resynchronized before it can
// serve traffic again. Invocations marked idempotent are safe to repeat and never
// produce orphans.
//
// Events are encoded with a compact big endian binary format (see Event.Serialize).
package durability
