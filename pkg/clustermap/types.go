package clustermap

// ReplicaAssignment is the cluster map's record of one replica placed on
// one node, the unit the Storage Manager asks for at construction
// (getReplicaIds) and during dynamic OFFLINE→BOOTSTRAP handling
// (getBootstrapReplica).
type ReplicaAssignment struct {
	NodeID        string
	PartitionName string
	PartitionID   string
	CapacityBytes int64
	DiskMountPath string
	ReplicaPath   string
	ClusterState  string
}
