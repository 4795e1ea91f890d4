// Package storagemanager implements the Storage Manager core (spec §4.1):
// the node-level owner of the replica/disk bookkeeping, the one Disk
// Manager per disk, and the per-partition/per-disk operation table callers
// drive. It is the component statelistener.Listener calls into to resolve
// replicas and stores, and the component that implements
// statelistener.StorageManager.
//
// Concurrent map discipline follows "publish after success": AddBlobStore
// only inserts into partitionToDiskManager/partitionNameToReplicaID after
// the disk manager reports success, and RemoveBlobStore removes from those
// maps only after the disk manager's own removal succeeds. Grounded on the
// same concurrent-map-plus-snapshot discipline as cubefs's SpaceManager
// (GetDisks/WalkDisks-style snapshot-then-iterate), and on the teacher's
// pkg/manager/manager.go for the Config+constructor+best-effort-teardown
// shape.
package storagemanager
