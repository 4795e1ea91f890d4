package statelistener

import (
	"context"

	"github.com/cuemby/silo/pkg/clustermap"
	"github.com/cuemby/silo/pkg/types"
)

// StateChangeListener is the callback surface a cluster participant drives,
// named by <from>→<to> per spec §6. Implementations that have nothing to do
// for a given transition simply return nil.
type StateChangeListener interface {
	OnBecomeBootstrapFromOffline(partitionName string) error
	OnBecomeStandbyFromBootstrap(partitionName string) error
	OnBecomeLeaderFromStandby(partitionName string) error
	OnBecomeStandbyFromLeader(partitionName string) error
	OnBecomeInactiveFromStandby(partitionName string) error
	OnBecomeOfflineFromInactive(partitionName string) error
	OnBecomeDroppedFromOffline(partitionName string) error
}

// ClusterMap is the subset of pkg/clustermap.ClusterMap this listener
// consumes.
type ClusterMap interface {
	GetBootstrapReplica(partitionName, nodeID string) (clustermap.ReplicaAssignment, bool)
	IsDataNodeInFullAutoMode(nodeID string) bool
}

// Participant is the subset of the cluster participant contract this
// listener needs in order to propagate a local add/remove to the primary
// participant's view of this data node.
type Participant interface {
	UpdateDataNodeInfoInCluster(replica *types.Replica, add bool) error
}

// SyncUpManager is the replica sync-up collaborator the resume-decommission
// branch of OFFLINE→DROPPED blocks on.
type SyncUpManager interface {
	WaitDeactivationCompleted(ctx context.Context, partitionName string) error
	WaitDisconnectionCompleted(ctx context.Context, partitionName string) error
}

// StorageManager is the subset of the storage manager core this listener
// drives directly, rather than through the cluster participant.
type StorageManager interface {
	GetReplica(partitionName string) (*types.Replica, bool)
	GetStore(partitionName string, skipStateCheck bool) (types.BlobStore, bool)
	AddBlobStore(replica *types.Replica) error
	RemoveBlobStore(partitionName string) error
	ControlCompactionForBlobStore(partitionName string, enabled bool) bool
	RemoveResidualDirectory(partitionName string) error
	// ResolveDiskForBootstrap reserves capacityBytes on the disk mounted at
	// mountPath and returns it, so a failed AddBlobStore can release
	// exactly what was reserved.
	ResolveDiskForBootstrap(mountPath string, capacityBytes int64) (*types.Disk, error)
}
