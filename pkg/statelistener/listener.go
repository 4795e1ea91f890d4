package statelistener

import (
	"context"
	"fmt"

	"github.com/cuemby/silo/pkg/blobstore"
	"github.com/cuemby/silo/pkg/log"
	"github.com/cuemby/silo/pkg/metrics"
	"github.com/cuemby/silo/pkg/types"
	"github.com/rs/zerolog"
)

// Config wires a Listener to its collaborators. Replication and Stats are
// optional; when nil, the steps that would invoke them are skipped.
type Config struct {
	NodeID      string
	IsPrimary   bool
	ClusterMap  ClusterMap
	Primary     Participant // nil if no primary participant is registered on this node
	SyncUp      SyncUpManager
	Storage     StorageManager
	Replication StateChangeListener
	Stats       StateChangeListener
}

// Listener is the storage manager's own StateChangeListener, implementing
// the Partition State Machine per spec §4.3. Two instances exist when two
// cluster participants are registered on this node; only the instance
// constructed with IsPrimary true may mutate a blob store's internal state.
type Listener struct {
	cfg    Config
	logger zerolog.Logger
}

// New constructs a Listener from cfg.
func New(cfg Config) *Listener {
	return &Listener{
		cfg:    cfg,
		logger: log.WithComponent("statelistener").With().Str("node", cfg.NodeID).Bool("primary", cfg.IsPrimary).Logger(),
	}
}

func (l *Listener) instrument(transition string, fn func() error) error {
	timer := metrics.NewTimer()
	err := fn()
	timer.ObserveDurationVec(metrics.StateTransitionDuration, transition)
	if err != nil {
		kind := "unknown"
		var te *TransitionError
		if asTransitionError(err, &te) {
			kind = string(te.Kind)
		}
		metrics.StateTransitionFailuresTotal.WithLabelValues(transition, kind).Inc()
		l.logger.Warn().Err(err).Str("transition", transition).Msg("state transition callback failed")
	}
	return err
}

func asTransitionError(err error, out **TransitionError) bool {
	te, ok := err.(*TransitionError)
	if ok {
		*out = te
	}
	return ok
}

// OnBecomeBootstrapFromOffline implements spec §4.3.1.
func (l *Listener) OnBecomeBootstrapFromOffline(partitionName string) error {
	return l.instrument("offline->bootstrap", func() error {
		replica, known := l.cfg.Storage.GetReplica(partitionName)
		if !known {
			if err := l.bootstrapUnknownPartition(partitionName); err != nil {
				return err
			}
		} else {
			if err := l.bootstrapKnownPartition(partitionName, replica); err != nil {
				return err
			}
		}

		if l.cfg.IsPrimary {
			if store, ok := l.cfg.Storage.GetStore(partitionName, true); ok {
				cur := store.CurrentState()
				if cur != types.Leader && cur != types.Standby {
					store.SetCurrentState(types.Bootstrap)
				}
			}
		}
		return nil
	})
}

func (l *Listener) bootstrapUnknownPartition(partitionName string) error {
	info, ok := l.cfg.ClusterMap.GetBootstrapReplica(partitionName, l.cfg.NodeID)
	if !ok {
		return NewTransitionError(ReplicaNotFound, partitionName, nil)
	}

	disk, err := l.cfg.Storage.ResolveDiskForBootstrap(info.DiskMountPath, info.CapacityBytes)
	if err != nil {
		return NewTransitionError(ReplicaOperationFailure, partitionName, err)
	}

	replica := &types.Replica{
		PartitionName: info.PartitionName,
		PartitionID:   info.PartitionID,
		CapacityBytes: info.CapacityBytes,
		Disk:          disk,
		Path:          info.ReplicaPath,
	}

	if err := l.cfg.Storage.AddBlobStore(replica); err != nil {
		disk.Release(info.CapacityBytes)
		return NewTransitionError(ReplicaOperationFailure, partitionName, err)
	}

	if l.cfg.Primary != nil {
		if err := l.cfg.Primary.UpdateDataNodeInfoInCluster(replica, true); err != nil {
			return NewTransitionError(HelixUpdateFailure, partitionName, err)
		}
	}

	if _, ok := l.cfg.Storage.GetStore(partitionName, true); !ok {
		return NewTransitionError(ReplicaOperationFailure, partitionName, fmt.Errorf("store missing immediately after successful add"))
	}
	return nil
}

func (l *Listener) bootstrapKnownPartition(partitionName string, replica *types.Replica) error {
	store, ok := l.cfg.Storage.GetStore(partitionName, true)
	if !ok {
		return NewTransitionError(StoreNotStarted, partitionName, nil)
	}

	if blobstore.HasDecommissionMarker(replica.Path) {
		if err := blobstore.RemoveDecommissionMarker(replica.Path); err != nil {
			return NewTransitionError(ReplicaOperationFailure, partitionName, err)
		}
		store.SetRecoverFromDecommission(false)
	}

	if store.SizeInBytes() <= blobstore.HeaderSizeBytes {
		if err := blobstore.EnsureBootstrapMarker(replica.Path); err != nil {
			return NewTransitionError(ReplicaOperationFailure, partitionName, err)
		}
	}
	return nil
}

// OnBecomeStandbyFromBootstrap is a no-op in the core.
func (l *Listener) OnBecomeStandbyFromBootstrap(string) error { return nil }

// OnBecomeLeaderFromStandby is a no-op in the core.
func (l *Listener) OnBecomeLeaderFromStandby(string) error { return nil }

// OnBecomeStandbyFromLeader is a no-op in the core.
func (l *Listener) OnBecomeStandbyFromLeader(string) error { return nil }

// OnBecomeInactiveFromStandby implements spec §4.3.2.
func (l *Listener) OnBecomeInactiveFromStandby(partitionName string) error {
	return l.instrument("standby->inactive", func() error {
		replica, ok := l.cfg.Storage.GetReplica(partitionName)
		if !ok {
			return NewTransitionError(ReplicaNotFound, partitionName, nil)
		}

		store, ok := l.cfg.Storage.GetStore(partitionName, true)
		if !ok {
			return NewTransitionError(ReplicaNotFound, partitionName, nil)
		}
		if store.IsDisabled() {
			return NewTransitionError(ReplicaOperationFailure, partitionName, fmt.Errorf("store is disabled"))
		}
		if !store.IsStarted() {
			return NewTransitionError(StoreNotStarted, partitionName, nil)
		}

		if err := blobstore.EnsureDecommissionMarker(replica.Path); err != nil {
			return NewTransitionError(ReplicaOperationFailure, partitionName, err)
		}

		if l.cfg.IsPrimary {
			store.SetCurrentState(types.Inactive)
		}

		if !l.cfg.Storage.ControlCompactionForBlobStore(partitionName, false) {
			return NewTransitionError(ReplicaNotFound, partitionName, fmt.Errorf("disk manager no longer owns partition"))
		}
		return nil
	})
}

// OnBecomeOfflineFromInactive is a no-op in the core; the Replication
// Manager Listener is responsible for this transition.
func (l *Listener) OnBecomeOfflineFromInactive(string) error { return nil }

// OnBecomeDroppedFromOffline implements spec §4.3.4, the full numbered
// decommission sequence.
func (l *Listener) OnBecomeDroppedFromOffline(partitionName string) error {
	return l.instrument("offline->dropped", func() error {
		replica, ok := l.cfg.Storage.GetReplica(partitionName)
		if !ok {
			// Step 0: the coordinator already forgot this replica.
			if err := l.cfg.Storage.RemoveResidualDirectory(partitionName); err != nil {
				return NewTransitionError(ReplicaOperationFailure, partitionName, err)
			}
			return nil
		}

		store, ok := l.cfg.Storage.GetStore(partitionName, true)
		if !ok {
			return NewTransitionError(ReplicaNotFound, partitionName, nil)
		}

		if l.shouldResumeDecommission(store) {
			if err := l.resumeDecommission(partitionName); err != nil {
				metrics.ResumeDecommissionErrorsTotal.Inc()
				return NewTransitionError(ReplicaOperationFailure, partitionName, err)
			}
		}

		if err := store.Shutdown(); err != nil {
			return NewTransitionError(ReplicaOperationFailure, partitionName, err)
		}

		if l.cfg.Primary != nil {
			if err := l.cfg.Primary.UpdateDataNodeInfoInCluster(replica, false); err != nil {
				return NewTransitionError(HelixUpdateFailure, partitionName, err)
			}
		}

		if l.cfg.Stats != nil {
			if err := l.cfg.Stats.OnBecomeDroppedFromOffline(partitionName); err != nil {
				l.logger.Warn().Err(err).Str("partition", partitionName).Msg("stats manager listener failed on drop")
			}
		}
		if l.cfg.Replication != nil {
			if err := l.cfg.Replication.OnBecomeDroppedFromOffline(partitionName); err != nil {
				l.logger.Warn().Err(err).Str("partition", partitionName).Msg("replication manager listener failed on drop")
			}
		}

		if err := l.cfg.Storage.RemoveBlobStore(partitionName); err != nil {
			return NewTransitionError(ReplicaOperationFailure, partitionName, err)
		}
		return nil
	})
}

func (l *Listener) shouldResumeDecommission(store types.BlobStore) bool {
	if store.RecoverFromDecommission() {
		return true
	}
	return l.cfg.ClusterMap.IsDataNodeInFullAutoMode(l.cfg.NodeID) && store.PreviousState() == types.Offline
}

// resumeDecommission repeats §4.3.2 then walks the replica through the
// Replication Manager Listener's STANDBY→INACTIVE and INACTIVE→OFFLINE,
// blocking on the sync-up manager between them, per §4.3.4 step 2.
func (l *Listener) resumeDecommission(partitionName string) error {
	if err := l.OnBecomeInactiveFromStandby(partitionName); err != nil {
		return err
	}
	if l.cfg.Replication != nil {
		if err := l.cfg.Replication.OnBecomeInactiveFromStandby(partitionName); err != nil {
			return err
		}
	}

	ctx := context.Background()
	if err := l.cfg.SyncUp.WaitDeactivationCompleted(ctx, partitionName); err != nil {
		return err
	}

	if l.cfg.Replication != nil {
		if err := l.cfg.Replication.OnBecomeOfflineFromInactive(partitionName); err != nil {
			return err
		}
	}

	if err := l.cfg.SyncUp.WaitDisconnectionCompleted(ctx, partitionName); err != nil {
		return err
	}

	return l.OnBecomeOfflineFromInactive(partitionName)
}
