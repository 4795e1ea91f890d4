package clustermap

import (
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/hashicorp/raft"
)

// Command is one entry in the cluster map's raft log.
type Command struct {
	Op   string          `json:"op"`
	Data json.RawMessage `json:"data"`
}

const (
	opAssignReplica   = "assign_replica"
	opUnassignReplica = "unassign_replica"
	opSetFullAuto     = "set_full_auto"
)

type assignReplicaArgs struct {
	Assignment ReplicaAssignment `json:"assignment"`
}

type unassignReplicaArgs struct {
	NodeID        string `json:"node_id"`
	PartitionName string `json:"partition_name"`
}

type setFullAutoArgs struct {
	NodeID   string `json:"node_id"`
	FullAuto bool   `json:"full_auto"`
}

// fsm is the raft.FSM backing ClusterMap. It holds replica assignments
// keyed by (node, partition) and a full-auto-mode flag per node.
type fsm struct {
	mu sync.RWMutex

	// assignments[nodeID][partitionName] = assignment
	assignments map[string]map[string]ReplicaAssignment
	fullAuto    map[string]bool
}

func newFSM() *fsm {
	return &fsm{
		assignments: make(map[string]map[string]ReplicaAssignment),
		fullAuto:    make(map[string]bool),
	}
}

func (f *fsm) Apply(log *raft.Log) interface{} {
	var cmd Command
	if err := json.Unmarshal(log.Data, &cmd); err != nil {
		return fmt.Errorf("clustermap: unmarshal command: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch cmd.Op {
	case opAssignReplica:
		var args assignReplicaArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		byNode, ok := f.assignments[args.Assignment.NodeID]
		if !ok {
			byNode = make(map[string]ReplicaAssignment)
			f.assignments[args.Assignment.NodeID] = byNode
		}
		byNode[args.Assignment.PartitionName] = args.Assignment
		return nil

	case opUnassignReplica:
		var args unassignReplicaArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		if byNode, ok := f.assignments[args.NodeID]; ok {
			delete(byNode, args.PartitionName)
		}
		return nil

	case opSetFullAuto:
		var args setFullAutoArgs
		if err := json.Unmarshal(cmd.Data, &args); err != nil {
			return err
		}
		f.fullAuto[args.NodeID] = args.FullAuto
		return nil

	default:
		return fmt.Errorf("clustermap: unknown command %q", cmd.Op)
	}
}

func (f *fsm) Snapshot() (raft.FSMSnapshot, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	snap := &fsmSnapshot{
		Assignments: make(map[string]map[string]ReplicaAssignment, len(f.assignments)),
		FullAuto:    make(map[string]bool, len(f.fullAuto)),
	}
	for node, byPartition := range f.assignments {
		cp := make(map[string]ReplicaAssignment, len(byPartition))
		for k, v := range byPartition {
			cp[k] = v
		}
		snap.Assignments[node] = cp
	}
	for node, v := range f.fullAuto {
		snap.FullAuto[node] = v
	}
	return snap, nil
}

func (f *fsm) Restore(rc io.ReadCloser) error {
	defer rc.Close()

	var snap fsmSnapshot
	if err := json.NewDecoder(rc).Decode(&snap); err != nil {
		return fmt.Errorf("clustermap: decode snapshot: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.assignments = snap.Assignments
	if f.assignments == nil {
		f.assignments = make(map[string]map[string]ReplicaAssignment)
	}
	f.fullAuto = snap.FullAuto
	if f.fullAuto == nil {
		f.fullAuto = make(map[string]bool)
	}
	return nil
}

// fsmSnapshot is the JSON-serializable point-in-time copy persisted by
// raft's snapshotting machinery.
type fsmSnapshot struct {
	Assignments map[string]map[string]ReplicaAssignment `json:"assignments"`
	FullAuto    map[string]bool                         `json:"full_auto"`
}

func (s *fsmSnapshot) Persist(sink raft.SnapshotSink) error {
	err := func() error {
		if err := json.NewEncoder(sink).Encode(s); err != nil {
			return err
		}
		return sink.Close()
	}()
	if err != nil {
		sink.Cancel()
	}
	return err
}

func (s *fsmSnapshot) Release() {}
