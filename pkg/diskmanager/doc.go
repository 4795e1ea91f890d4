// Package diskmanager implements the per-disk control-plane contract (spec
// §4.2): opening and closing the blob stores resident on one physical
// disk, running a compaction scheduler for them, and reporting disk-level
// health and unexpected directories back to the storage manager.
//
// Grounded on the cubefs SpaceManager's disk-ownership shape (concurrent
// map under an RWMutex, parallel load, snapshot-then-iterate reads) and on
// the teacher's reconciler ticker-loop for the compaction scheduler.
package diskmanager
