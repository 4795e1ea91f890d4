// Package participant implements the Cluster Participant collaborator
// (spec §6): registerPartitionStateChangeListener, setInitialLocalPartitions,
// updateDataNodeInfoInCluster, getReplicaSyncUpManager, and
// getPartitionStateChangeListeners.
//
// Participant is a thin raft-backed adapter: updateDataNodeInfoInCluster
// turns into an Apply against pkg/clustermap (AssignReplica/UnassignReplica
// keyed by this node's ID), and the listener registry and sync-up manager
// accessor are what lets statelistener.Listener find the Replication and
// Stats listeners it must invoke during OFFLINE→DROPPED. This follows the
// teacher's pkg/manager.go pattern of wrapping every mutating call in a
// raft Apply while keeping read paths direct.
package participant
