// Package listeners supplies reference implementations of the two
// collaborators spec §6 names but leaves opaque: the Replication Manager
// Listener and the Stats Manager Listener. Both satisfy
// statelistener.StateChangeListener so the core's OFFLINE→DROPPED sequence
// (statelistener §4.3.4, steps 2 and 5) has real objects to invoke during
// tests and when running cmd/silo-node standalone.
//
// Production deployments are expected to swap these for listeners backed by
// an actual replication protocol and a stats aggregation pipeline; these
// default implementations log every callback and otherwise do nothing,
// following the teacher's convention of small, swappable per-concern
// interfaces (pkg/volume's VolumeDriver, pkg/health's Checker).
package listeners
