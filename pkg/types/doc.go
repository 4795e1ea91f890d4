/*
Package types defines the core data structures shared by the storage node
control plane: partitions, replicas, disks, the blob store contract, and the
small error-kind vocabulary the rest of the pkg/ tree builds on.

# Core Types

Data model:
  - Partition: identity of a replicated unit.
  - Replica: this node's copy of a partition, placed on one Disk.
  - Disk: a physical mount point with raw/available capacity bookkeeping.
  - BlobStore: the data-plane object attached to a Replica (an interface;
    the concrete implementation lives in pkg/blobstore).
  - ReplicaState: the lifecycle enum a BlobStore's current/previous state is
    drawn from.

# Thread Safety

Disk's capacity bookkeeping (Reserve/Release) is safe for concurrent use;
everything else in this package is a plain value or pointer type whose
mutation is synchronized by its owner (see pkg/storagemanager).
*/
package types
