// Package syncup implements the Replica Sync-Up Manager collaborator
// (spec §6): waitDeactivationCompleted(name) and
// waitDisconnectionCompleted(name), the only intentionally-unbounded waits
// in the core. Both are blocking barriers that return on success and raise
// on abort; the resume-decommission branch of OFFLINE→DROPPED is the only
// caller.
//
// The manager itself never decides when a wait resolves — some other part
// of the system calls SignalDeactivationComplete /
// SignalDisconnectionComplete once replication has actually caught up, or
// AbortDeactivation / AbortDisconnection if it gives up. The reference
// listeners in pkg/listeners call none of these. This mirrors the teacher's pkg/worker health monitor, which
// also separates "the loop driving a goroutine" from "the channel a waiter
// blocks on" via a stopCh/cancelFunc pair per tracked entity.
package syncup
