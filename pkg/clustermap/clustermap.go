package clustermap

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/silo/pkg/log"
	"github.com/cuemby/silo/pkg/metrics"
	"github.com/google/uuid"
	"github.com/hashicorp/raft"
	raftboltdb "github.com/hashicorp/raft-boltdb"
	"github.com/rs/zerolog"
)

// Config configures a ClusterMap node.
type Config struct {
	NodeID   string
	BindAddr string
	DataDir  string

	ApplyTimeout time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{ApplyTimeout: 5 * time.Second}
}

// ClusterMap is a raft-replicated table of replica assignments and
// per-node full-auto-mode flags, satisfying the Cluster Map collaborator
// contract consumed by the storage manager.
type ClusterMap struct {
	cfg    Config
	raft   *raft.Raft
	fsm    *fsm
	logger zerolog.Logger

	wasLeader bool
}

// New constructs a ClusterMap. Bootstrap must be called before it is
// usable.
func New(cfg Config) (*ClusterMap, error) {
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("clustermap: create data dir: %w", err)
	}
	if cfg.ApplyTimeout == 0 {
		cfg.ApplyTimeout = 5 * time.Second
	}
	return &ClusterMap{
		cfg:    cfg,
		fsm:    newFSM(),
		logger: log.WithComponent("clustermap").With().Str("node", cfg.NodeID).Logger(),
	}, nil
}

func (c *ClusterMap) newRaft() (*raft.Raft, error) {
	config := raft.DefaultConfig()
	config.LocalID = raft.ServerID(c.cfg.NodeID)
	config.HeartbeatTimeout = 500 * time.Millisecond
	config.ElectionTimeout = 500 * time.Millisecond
	config.LeaderLeaseTimeout = 250 * time.Millisecond

	addr, err := net.ResolveTCPAddr("tcp", c.cfg.BindAddr)
	if err != nil {
		return nil, fmt.Errorf("clustermap: resolve bind address: %w", err)
	}
	transport, err := raft.NewTCPTransport(c.cfg.BindAddr, addr, 3, 10*time.Second, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("clustermap: create transport: %w", err)
	}

	snapshotStore, err := raft.NewFileSnapshotStore(c.cfg.DataDir, 2, os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("clustermap: create snapshot store: %w", err)
	}

	logStore, err := raftboltdb.NewBoltStore(filepath.Join(c.cfg.DataDir, "clustermap-raft-log.db"))
	if err != nil {
		return nil, fmt.Errorf("clustermap: create log store: %w", err)
	}
	stableStore, err := raftboltdb.NewBoltStore(filepath.Join(c.cfg.DataDir, "clustermap-raft-stable.db"))
	if err != nil {
		return nil, fmt.Errorf("clustermap: create stable store: %w", err)
	}

	r, err := raft.NewRaft(config, c.fsm, logStore, stableStore, snapshotStore, transport)
	if err != nil {
		return nil, fmt.Errorf("clustermap: create raft: %w", err)
	}
	return r, nil
}

// Bootstrap initializes a new single-node raft group.
func (c *ClusterMap) Bootstrap() error {
	r, err := c.newRaft()
	if err != nil {
		return err
	}
	c.raft = r

	configuration := raft.Configuration{
		Servers: []raft.Server{
			{ID: raft.ServerID(c.cfg.NodeID), Address: raft.ServerAddress(c.cfg.BindAddr)},
		},
	}
	future := c.raft.BootstrapCluster(configuration)
	if err := future.Error(); err != nil {
		return err
	}
	c.logger.Info().Str("bind_addr", c.cfg.BindAddr).Msg("bootstrapped single-node raft group")
	return nil
}

// IsLeader reports whether this node is the raft leader.
func (c *ClusterMap) IsLeader() bool {
	return c.raft != nil && c.raft.State() == raft.Leader
}

// LeaderAddr returns the current raft leader's address.
func (c *ClusterMap) LeaderAddr() string {
	if c.raft == nil {
		return ""
	}
	return string(c.raft.Leader())
}

func (c *ClusterMap) apply(op string, args interface{}) error {
	timer := metrics.NewTimer()
	defer timer.ObserveDuration(metrics.RaftApplyDuration)

	if c.raft == nil {
		return fmt.Errorf("clustermap: raft not initialized")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	cmd := Command{Op: op, Data: data}
	payload, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	future := c.raft.Apply(payload, c.cfg.ApplyTimeout)
	if err := future.Error(); err != nil {
		return fmt.Errorf("clustermap: apply %s: %w", op, err)
	}
	if resp := future.Response(); resp != nil {
		if err, ok := resp.(error); ok && err != nil {
			return err
		}
	}
	return nil
}

// AssignReplica records that partition is placed on node, at the given
// disk and path, with the given capacity. Administrative operation
// exercised by tests and by an external placement controller; production
// assignment data ordinarily arrives from the coordinator this cluster
// map mirrors. A caller that does not already have a partition ID (e.g. a
// synthetic test fixture or a first-time placement) gets one generated.
func (c *ClusterMap) AssignReplica(assignment ReplicaAssignment) error {
	if assignment.PartitionID == "" {
		assignment.PartitionID = uuid.NewString()
	}
	return c.apply(opAssignReplica, assignReplicaArgs{Assignment: assignment})
}

// UnassignReplica removes partition's assignment on node.
func (c *ClusterMap) UnassignReplica(nodeID, partitionName string) error {
	return c.apply(opUnassignReplica, unassignReplicaArgs{NodeID: nodeID, PartitionName: partitionName})
}

// SetFullAutoMode flips the full-auto-mode flag for node.
func (c *ClusterMap) SetFullAutoMode(nodeID string, fullAuto bool) error {
	return c.apply(opSetFullAuto, setFullAutoArgs{NodeID: nodeID, FullAuto: fullAuto})
}

// GetReplicaIds returns every replica assignment known for node.
func (c *ClusterMap) GetReplicaIds(nodeID string) []ReplicaAssignment {
	c.fsm.mu.RLock()
	defer c.fsm.mu.RUnlock()
	byPartition, ok := c.fsm.assignments[nodeID]
	if !ok {
		return nil
	}
	out := make([]ReplicaAssignment, 0, len(byPartition))
	for _, a := range byPartition {
		out = append(out, a)
	}
	return out
}

// GetBootstrapReplica returns the assignment for partitionName on node,
// used by the OFFLINE→BOOTSTRAP unknown-partition branch to discover a
// replica that was not present at construction time.
func (c *ClusterMap) GetBootstrapReplica(partitionName, nodeID string) (ReplicaAssignment, bool) {
	c.fsm.mu.RLock()
	defer c.fsm.mu.RUnlock()
	byPartition, ok := c.fsm.assignments[nodeID]
	if !ok {
		return ReplicaAssignment{}, false
	}
	a, ok := byPartition[partitionName]
	return a, ok
}

// IsDataNodeInFullAutoMode reports whether node operates under the
// coordinator's full-auto-mode placement policy.
func (c *ClusterMap) IsDataNodeInFullAutoMode(nodeID string) bool {
	c.fsm.mu.RLock()
	defer c.fsm.mu.RUnlock()
	return c.fsm.fullAuto[nodeID]
}

// Shutdown stops the raft group.
func (c *ClusterMap) Shutdown() error {
	if c.raft == nil {
		return nil
	}
	metrics.RaftLeader.Set(0)
	future := c.raft.Shutdown()
	if err := future.Error(); err != nil {
		return err
	}
	c.logger.Info().Msg("raft group shut down")
	return nil
}

// ReportLeadership updates the raft-leader gauge and logs on every
// leadership transition; intended to be polled periodically by the owning
// node process.
func (c *ClusterMap) ReportLeadership() {
	isLeader := c.IsLeader()
	if isLeader {
		metrics.RaftLeader.Set(1)
	} else {
		metrics.RaftLeader.Set(0)
	}
	if isLeader != c.wasLeader {
		if isLeader {
			c.logger.Info().Msg("became raft leader")
		} else {
			c.logger.Info().Str("leader_addr", c.LeaderAddr()).Msg("lost raft leadership")
		}
		c.wasLeader = isLeader
	}
}
