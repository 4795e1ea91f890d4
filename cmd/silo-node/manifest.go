package main

import (
	"fmt"
	"os"
	"time"

	"github.com/cuemby/silo/pkg/blobstore"
	"github.com/cuemby/silo/pkg/clustermap"
	"github.com/cuemby/silo/pkg/diskmanager"
	"github.com/cuemby/silo/pkg/storagemanager"
	"gopkg.in/yaml.v3"
)

// NodeManifest is the on-disk YAML shape `silo-node start -f` reads: a
// single node's identity, its raft addressing, its disks, and the
// storage-manager policy knobs spec.md §4.1's construction contract
// requires.
type NodeManifest struct {
	NodeID string `yaml:"nodeId"`

	Raft struct {
		BindAddr  string `yaml:"bindAddr"`
		DataDir   string `yaml:"dataDir"`
		Bootstrap bool   `yaml:"bootstrap"`
	} `yaml:"raft"`

	StorageDataDir string `yaml:"storageDataDir"`
	OpsAddr        string `yaml:"opsAddr"`

	// Disks maps mount path to raw capacity in bytes.
	Disks map[string]int64 `yaml:"disks"`

	ReservedFileDirName string `yaml:"reservedFileDirName"`

	HardDeleteEnabled              bool `yaml:"hardDeleteEnabled"`
	DeletedMessageRetentionMinutes int  `yaml:"deletedMessageRetentionMinutes"`
	FlushIntervalSeconds           int  `yaml:"flushIntervalSeconds"`

	DiskManager struct {
		CompactionIntervalSeconds int `yaml:"compactionIntervalSeconds"`
		HealthCheck               struct {
			IntervalSeconds    int `yaml:"intervalSeconds"`
			Retries            int `yaml:"retries"`
			StartPeriodSeconds int `yaml:"startPeriodSeconds"`
		} `yaml:"healthCheck"`
		InitialPreviousStateIsOffline *bool `yaml:"initialPreviousStateIsOffline"`
	} `yaml:"diskManager"`
}

// loadManifest reads and validates a node manifest from path.
func loadManifest(path string) (*NodeManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m NodeManifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}

	if m.NodeID == "" {
		return nil, fmt.Errorf("manifest: nodeId is required")
	}
	if m.Raft.BindAddr == "" {
		return nil, fmt.Errorf("manifest: raft.bindAddr is required")
	}
	if m.Raft.DataDir == "" {
		return nil, fmt.Errorf("manifest: raft.dataDir is required")
	}
	if m.StorageDataDir == "" {
		return nil, fmt.Errorf("manifest: storageDataDir is required")
	}
	if len(m.Disks) == 0 {
		return nil, fmt.Errorf("manifest: at least one disk is required")
	}
	if m.ReservedFileDirName == "" {
		m.ReservedFileDirName = ".silo-reserved"
	}
	if m.OpsAddr == "" {
		m.OpsAddr = "127.0.0.1:9190"
	}

	return &m, nil
}

// diskManagerConfig builds a diskmanager.Config from the manifest, falling
// back to diskmanager.DefaultConfig() for anything left at zero.
func (m *NodeManifest) diskManagerConfig() diskmanager.Config {
	cfg := diskmanager.DefaultConfig()

	if s := m.DiskManager.CompactionIntervalSeconds; s > 0 {
		cfg.CompactionInterval = time.Duration(s) * time.Second
	}
	hc := m.DiskManager.HealthCheck
	if hc.IntervalSeconds > 0 {
		cfg.HealthCheck.Interval = time.Duration(hc.IntervalSeconds) * time.Second
	}
	if hc.Retries > 0 {
		cfg.HealthCheck.Retries = hc.Retries
	}
	if hc.StartPeriodSeconds > 0 {
		cfg.HealthCheck.StartPeriod = time.Duration(hc.StartPeriodSeconds) * time.Second
	}

	cfg.BlobStore = blobstore.DefaultConfig()
	if m.DiskManager.InitialPreviousStateIsOffline != nil {
		cfg.BlobStore.InitialPreviousStateIsOffline = *m.DiskManager.InitialPreviousStateIsOffline
	}

	return cfg
}

// clusterMapConfig builds a clustermap.Config from the manifest.
func (m *NodeManifest) clusterMapConfig() clustermap.Config {
	return clustermap.Config{
		NodeID:   m.NodeID,
		BindAddr: m.Raft.BindAddr,
		DataDir:  m.Raft.DataDir,
	}
}

// storageManagerConfig builds the storagemanager.Config skeleton from the
// manifest. Callers still need to fill in ClusterMap, Participants, and
// ReplicaStatusDelegates, which depend on collaborators constructed after
// the manifest is parsed.
func (m *NodeManifest) storageManagerConfig() storagemanager.Config {
	return storagemanager.Config{
		NodeID:                         m.NodeID,
		Disks:                          m.Disks,
		ReservedFileDirName:            m.ReservedFileDirName,
		DiskManager:                    m.diskManagerConfig(),
		HardDeleteEnabled:              m.HardDeleteEnabled,
		DeletedMessageRetentionMinutes: m.DeletedMessageRetentionMinutes,
		FlushIntervalSeconds:           m.FlushIntervalSeconds,
	}
}
