package storage

// Store persists the two things a Storage Manager needs to survive a
// restart without re-deriving them from scratch: which replicas were
// administratively stopped, and which directories turned up on disk that
// the cluster map does not account for.
//
// BoltStore's stopped-replica methods satisfy types.ReplicaStatusDelegate
// directly, so a *BoltStore can be handed to diskmanager.DiskManager and
// the participant layer without an adapter.
type Store interface {
	// GetStoppedReplicas returns the set of partition names currently
	// marked administratively stopped.
	GetStoppedReplicas() (map[string]struct{}, error)

	// SetReplicaStoppedState marks or unmarks partitions as
	// administratively stopped in a single transaction.
	SetReplicaStoppedState(partitions []string, stop bool) error

	// RecordUnexpectedDir appends a sighting of a directory found on disk
	// that does not correspond to any known replica.
	RecordUnexpectedDir(diskMountPath, dirPath string) error

	// ListUnexpectedDirs returns every unexpected-directory sighting ever
	// recorded, most recent last.
	ListUnexpectedDirs() ([]UnexpectedDirSighting, error)

	Close() error
}

// UnexpectedDirSighting is one entry in the unexpected-directory audit
// log.
type UnexpectedDirSighting struct {
	DiskMountPath string
	DirPath       string
	SeenAtUnix    int64
}
