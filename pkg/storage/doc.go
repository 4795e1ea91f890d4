/*
Package storage provides bbolt-backed persistence for the two pieces of
Storage Manager state that must survive a process restart: the set of
administratively stopped replicas, and an append-only log of
unexpected-directory sightings. Entries reach that log only through
RecordUnexpectedDir; the disk manager's directory scans do not write to it.

BoltStore satisfies types.ReplicaStatusDelegate, so it plugs directly into
pkg/diskmanager and pkg/participant without an adapter layer. Cluster map
replication state (the raft log, stable store, and FSM snapshots) is a
separate concern handled by pkg/clustermap using raft-boltdb directly,
the same way the teacher's pkg/manager keeps cluster storage and raft
storage as distinct bbolt files.
*/
package storage
