// Package clustermap implements the Cluster Map collaborator (spec §6):
// getReplicaIds(node), getBootstrapReplica(name, node),
// isDataNodeInFullAutoMode(node). It is backed by a hashicorp/raft group
// whose FSM holds a small table of replica assignments and per-node
// full-auto-mode flags, replicated the same way the teacher's pkg/manager
// replicates cluster state: a raft-boltdb log and stable store, a
// raft.FileSnapshotStore, and a JSON-encoded FSM snapshot.
//
// Unlike the teacher's WarrenFSM, which delegates every Apply to a bbolt
// Store, this FSM keeps its (tiny) state in memory and only touches bbolt
// indirectly through raft-boltdb's log/stable stores — there is no
// separate cluster-map database file, since the whole table comfortably
// fits in a raft snapshot.
package clustermap
