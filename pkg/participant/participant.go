package participant

import (
	"fmt"
	"sync"

	"github.com/cuemby/silo/pkg/clustermap"
	"github.com/cuemby/silo/pkg/statelistener"
	"github.com/cuemby/silo/pkg/storage"
	"github.com/cuemby/silo/pkg/syncup"
	"github.com/cuemby/silo/pkg/types"
)

// Listener type keys under which the state machine's own listener and the
// reference Replication/Stats listeners register themselves, matching
// spec §6's "getPartitionStateChangeListeners returning a mapping of
// listener-type → listener".
const (
	ListenerTypeStorageManager = "storage-manager"
	ListenerTypeReplication    = "replication"
	ListenerTypeStats          = "stats"
)

// Config wires a Participant to its collaborators.
type Config struct {
	NodeID     string
	ClusterMap *clustermap.ClusterMap
	SyncUp     *syncup.Manager
	Storage    storage.Store
}

// Participant is a raft-backed ClusterParticipant: mutating calls Apply
// against the cluster map's raft group, read paths go straight to the
// cluster map's local FSM state.
type Participant struct {
	cfg Config

	mu              sync.RWMutex
	listeners       map[string]statelistener.StateChangeListener
	localPartitions map[string]struct{}
}

// New constructs a Participant.
func New(cfg Config) *Participant {
	return &Participant{
		cfg:             cfg,
		listeners:       make(map[string]statelistener.StateChangeListener),
		localPartitions: make(map[string]struct{}),
	}
}

// RegisterPartitionStateChangeListener associates listenerType with
// listener, so later OFFLINE→DROPPED callbacks can find the Replication
// and Stats listeners by type.
func (p *Participant) RegisterPartitionStateChangeListener(listenerType string, listener statelistener.StateChangeListener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners[listenerType] = listener
}

// GetPartitionStateChangeListeners returns a snapshot of the registered
// listener-type → listener mapping.
func (p *Participant) GetPartitionStateChangeListeners() map[string]statelistener.StateChangeListener {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]statelistener.StateChangeListener, len(p.listeners))
	for k, v := range p.listeners {
		out[k] = v
	}
	return out
}

// SetInitialLocalPartitions records the set of partitions this node starts
// up with, filtering out any partition an installed ReplicaStatusDelegate
// reports as administratively stopped.
func (p *Participant) SetInitialLocalPartitions(partitionNames []string) error {
	stopped, err := p.cfg.Storage.GetStoppedReplicas()
	if err != nil {
		return fmt.Errorf("participant: load stopped replicas: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.localPartitions = make(map[string]struct{}, len(partitionNames))
	for _, name := range partitionNames {
		if _, isStopped := stopped[name]; isStopped {
			continue
		}
		p.localPartitions[name] = struct{}{}
	}
	return nil
}

// LocalPartitions returns the partitions this node considers locally
// active, after the stopped-replica filter SetInitialLocalPartitions
// applies.
func (p *Participant) LocalPartitions() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]string, 0, len(p.localPartitions))
	for name := range p.localPartitions {
		out = append(out, name)
	}
	return out
}

// UpdateDataNodeInfoInCluster adds or removes replica from this node's
// entry in the cluster map. It satisfies statelistener.Participant.
func (p *Participant) UpdateDataNodeInfoInCluster(replica *types.Replica, add bool) error {
	if add {
		assignment := clustermap.ReplicaAssignment{
			NodeID:        p.cfg.NodeID,
			PartitionName: replica.PartitionName,
			PartitionID:   replica.PartitionID,
			CapacityBytes: replica.CapacityBytes,
			ReplicaPath:   replica.Path,
		}
		if replica.Disk != nil {
			assignment.DiskMountPath = replica.Disk.MountPath
		}
		return p.cfg.ClusterMap.AssignReplica(assignment)
	}
	return p.cfg.ClusterMap.UnassignReplica(p.cfg.NodeID, replica.PartitionName)
}

// GetReplicaSyncUpManager returns this participant's sync-up manager.
func (p *Participant) GetReplicaSyncUpManager() *syncup.Manager {
	return p.cfg.SyncUp
}
