// Package statelistener implements the Partition State Machine (spec §4.3):
// the StateChangeListener interface a cluster participant drives with
// transition callbacks named <from>→<to>, and the storage manager's own
// listener, the only implementation the core ships.
//
// Every callback that can fail raises a *TransitionError carrying one of
// four kinds (ReplicaNotFound, ReplicaOperationFailure, StoreNotStarted,
// HelixUpdateFailure); the cluster coordinator is expected to interpret a
// raised TransitionError as "move this replica to ERROR on this node".
//
// A listener is instantiated once per cluster participant on this node
// (ordinarily one, occasionally two). Each instance carries an isPrimary
// flag; only the primary instance is allowed to mutate a blob store's
// internal state, so that a secondary observing the same transitions never
// races the replication manager driving STANDBY/LEADER.
package statelistener
