package storagemanager

import (
	"github.com/cuemby/silo/pkg/clustermap"
	"github.com/cuemby/silo/pkg/statelistener"
	"github.com/cuemby/silo/pkg/syncup"
	"github.com/cuemby/silo/pkg/types"
)

// ClusterMap is the subset of pkg/clustermap.ClusterMap the storage
// manager and the listener it builds consume.
type ClusterMap interface {
	GetReplicaIds(nodeID string) []clustermap.ReplicaAssignment
	GetBootstrapReplica(partitionName, nodeID string) (clustermap.ReplicaAssignment, bool)
	IsDataNodeInFullAutoMode(nodeID string) bool
}

// Participant is the subset of pkg/participant.Participant the storage
// manager drives at Start: registering its own listener, seeding the
// initial local-partition set, and finding the Replication/Stats listeners
// a caller registered ahead of Start.
type Participant interface {
	RegisterPartitionStateChangeListener(listenerType string, listener statelistener.StateChangeListener)
	GetPartitionStateChangeListeners() map[string]statelistener.StateChangeListener
	SetInitialLocalPartitions(partitionNames []string) error
	GetReplicaSyncUpManager() *syncup.Manager
	UpdateDataNodeInfoInCluster(replica *types.Replica, add bool) error
}
