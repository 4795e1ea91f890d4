package storagemanager

import (
	"fmt"

	"github.com/cuemby/silo/pkg/diskmanager"
	"github.com/cuemby/silo/pkg/types"
)

// Config is the Storage Manager's construction contract (spec §4.1): store
// and disk-manager configuration, the cluster map, this node's identity,
// recovery/hard-delete policy, an ordered list of cluster participants (the
// first is primary), a clock, and an account service placeholder.
type Config struct {
	NodeID string

	// Disks lists this node's configured mount points and their raw
	// capacity in bytes; the disk-manager configuration input from the
	// construction contract.
	Disks map[string]int64

	ReservedFileDirName string
	DiskManager         diskmanager.Config
	ClusterMap          ClusterMap

	HardDeleteEnabled              bool
	DeletedMessageRetentionMinutes int
	FlushIntervalSeconds           int

	// Participants is ordered; Participants[0] is primary and supplies the
	// replica-sync-up manager, all others are secondary.
	Participants []Participant

	Clock          types.Clock
	AccountService types.AccountService

	// ReplicaStatusDelegates persist the stop flag on setBlobStoreStoppedState,
	// one per participant in production wiring.
	ReplicaStatusDelegates []types.ReplicaStatusDelegate
}

func (cfg *Config) applyDefaults() {
	if cfg.Clock == nil {
		cfg.Clock = types.SystemClock{}
	}
}

// validate enforces the config invariants spec §4.1 requires construction
// to fail fast on.
func validate(cfg Config) error {
	if cfg.ReservedFileDirName == "" {
		return types.NewError(types.InitializationError, fmt.Errorf("reserved file directory name must not be empty"))
	}
	if cfg.HardDeleteEnabled {
		required := cfg.FlushIntervalSeconds/60 + 1
		if cfg.DeletedMessageRetentionMinutes < required {
			return types.NewError(types.InitializationError, fmt.Errorf(
				"deleted-message retention (%d min) must be >= floor(flush-interval-seconds/60)+1 = %d",
				cfg.DeletedMessageRetentionMinutes, required))
		}
	}
	return nil
}
