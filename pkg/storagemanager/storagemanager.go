package storagemanager

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/silo/pkg/diskmanager"
	"github.com/cuemby/silo/pkg/log"
	"github.com/cuemby/silo/pkg/metrics"
	"github.com/cuemby/silo/pkg/participant"
	"github.com/cuemby/silo/pkg/statelistener"
	"github.com/cuemby/silo/pkg/types"
	"github.com/rs/zerolog"
)

// StorageManager owns every disk, replica, and blob store resident on one
// node, per spec §4.1.
type StorageManager struct {
	cfg    Config
	logger zerolog.Logger

	mu                       sync.RWMutex
	disks                    map[string]*types.Disk
	partitionToDiskManager   map[string]*diskmanager.DiskManager
	diskToDiskManager        map[string]*diskmanager.DiskManager
	partitionNameToReplicaID map[string]*types.Replica

	startedAt time.Time
	listeners []*statelistener.Listener
}

// New validates cfg, groups this node's assigned replicas by disk, and
// constructs one Disk Manager per non-empty disk. Stores are not opened
// until Start.
func New(cfg Config) (*StorageManager, error) {
	cfg.applyDefaults()
	if err := validate(cfg); err != nil {
		return nil, err
	}

	logger := log.WithComponent("storagemanager").With().Str("node", cfg.NodeID).Logger()

	disks := make(map[string]*types.Disk, len(cfg.Disks))
	for mount, raw := range cfg.Disks {
		disks[mount] = types.NewDisk(mount, raw, cfg.ReservedFileDirName)
	}

	assignments := cfg.ClusterMap.GetReplicaIds(cfg.NodeID)
	byDisk := make(map[string][]*types.Replica)
	for _, a := range assignments {
		disk, ok := disks[a.DiskMountPath]
		if !ok {
			logger.Warn().Str("partition", a.PartitionName).Str("disk", a.DiskMountPath).
				Msg("replica assigned to an unconfigured disk; skipping")
			continue
		}
		if err := disk.Reserve(a.CapacityBytes); err != nil {
			logger.Warn().Err(err).Str("partition", a.PartitionName).
				Msg("insufficient disk capacity for assigned replica; skipping")
			continue
		}
		replica := &types.Replica{
			PartitionName: a.PartitionName,
			PartitionID:   a.PartitionID,
			CapacityBytes: a.CapacityBytes,
			Disk:          disk,
			Path:          a.ReplicaPath,
		}
		byDisk[a.DiskMountPath] = append(byDisk[a.DiskMountPath], replica)
	}

	sm := &StorageManager{
		cfg:                      cfg,
		logger:                   logger,
		disks:                    disks,
		partitionToDiskManager:   make(map[string]*diskmanager.DiskManager),
		diskToDiskManager:        make(map[string]*diskmanager.DiskManager),
		partitionNameToReplicaID: make(map[string]*types.Replica),
	}

	for mount, replicas := range byDisk {
		if len(replicas) == 0 {
			continue
		}
		dm := diskmanager.New(disks[mount], replicas, cfg.DiskManager)
		sm.diskToDiskManager[mount] = dm
		for _, r := range replicas {
			sm.partitionToDiskManager[r.PartitionName] = dm
			sm.partitionNameToReplicaID[r.PartitionName] = r
		}
	}

	return sm, nil
}

// Start fans out to one goroutine per disk manager, joins unconditionally,
// then registers a state-change listener with every participant and seeds
// each with the initial local-partition set. Per spec §4.4, an individual
// disk manager failure is logged and does not abort Start.
func (sm *StorageManager) Start() error {
	timer := metrics.NewTimer()

	sm.mu.RLock()
	dms := make(map[string]*diskmanager.DiskManager, len(sm.diskToDiskManager))
	for mount, dm := range sm.diskToDiskManager {
		dms[mount] = dm
	}
	sm.mu.RUnlock()

	var wg sync.WaitGroup
	for mount, dm := range dms {
		wg.Add(1)
		go func(mount string, dm *diskmanager.DiskManager) {
			defer wg.Done()
			dmTimer := metrics.NewTimer()
			if err := dm.Start(); err != nil {
				sm.logger.Error().Err(err).Str("disk", mount).Msg("disk manager failed to start")
			}
			dmTimer.ObserveDurationVec(metrics.DiskManagerStartDuration, mount)
		}(mount, dm)
	}
	wg.Wait()

	sm.startedAt = sm.cfg.Clock.Now()
	metrics.DisksTotal.Set(float64(len(dms)))

	sm.registerListeners()

	localPartitions := sm.GetLocalPartitions()
	for _, p := range sm.cfg.Participants {
		if err := p.SetInitialLocalPartitions(localPartitions); err != nil {
			sm.logger.Error().Err(err).Msg("failed to seed participant with initial local partitions")
		}
	}

	timer.ObserveDuration(metrics.StorageManagerStartDuration)
	return nil
}

// registerListeners builds one statelistener.Listener per participant
// (Participants[0] is primary) and registers it on its owning participant.
// Replication and Stats listeners are looked up on the primary participant,
// where wiring code is expected to have registered them before Start.
func (sm *StorageManager) registerListeners() {
	if len(sm.cfg.Participants) == 0 {
		return
	}
	primary := sm.cfg.Participants[0]
	registered := primary.GetPartitionStateChangeListeners()

	for i, p := range sm.cfg.Participants {
		listener := statelistener.New(statelistener.Config{
			NodeID:      sm.cfg.NodeID,
			IsPrimary:   i == 0,
			ClusterMap:  sm.cfg.ClusterMap,
			Primary:     primary,
			SyncUp:      primary.GetReplicaSyncUpManager(),
			Storage:     sm,
			Replication: registered[participant.ListenerTypeReplication],
			Stats:       registered[participant.ListenerTypeStats],
		})
		sm.listeners = append(sm.listeners, listener)
		p.RegisterPartitionStateChangeListener(participant.ListenerTypeStorageManager, listener)
	}
}

// Shutdown fans out to one goroutine per disk manager and joins
// unconditionally, logging (never returning) individual disk manager
// failures.
func (sm *StorageManager) Shutdown() error {
	sm.mu.RLock()
	dms := make([]*diskmanager.DiskManager, 0, len(sm.diskToDiskManager))
	for _, dm := range sm.diskToDiskManager {
		dms = append(dms, dm)
	}
	sm.mu.RUnlock()

	var wg sync.WaitGroup
	for _, dm := range dms {
		wg.Add(1)
		go func(dm *diskmanager.DiskManager) {
			defer wg.Done()
			if err := dm.Shutdown(); err != nil {
				sm.logger.Error().Err(err).Str("disk", dm.MountPath()).Msg("disk manager failed to shut down")
			}
		}(dm)
	}
	wg.Wait()
	return nil
}

// GetStore returns the store owning partition if a disk manager owns it
// and (the store is started or skipStateCheck is set).
func (sm *StorageManager) GetStore(partition string, skipStateCheck bool) (types.BlobStore, bool) {
	sm.mu.RLock()
	dm, ok := sm.partitionToDiskManager[partition]
	sm.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return dm.GetStore(partition, skipStateCheck)
}

// GetReplica looks partition up in partitionNameToReplicaID.
func (sm *StorageManager) GetReplica(partition string) (*types.Replica, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	r, ok := sm.partitionNameToReplicaID[partition]
	return r, ok
}

// GetLocalPartitions returns a read-only snapshot of partition keys.
func (sm *StorageManager) GetLocalPartitions() []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make([]string, 0, len(sm.partitionNameToReplicaID))
	for name := range sm.partitionNameToReplicaID {
		out = append(out, name)
	}
	return out
}

// CheckLocalPartitionStatus reports whether partition is currently
// servable on this node.
func (sm *StorageManager) CheckLocalPartitionStatus(partition string) types.PartitionStatus {
	sm.mu.RLock()
	_, hasReplica := sm.partitionNameToReplicaID[partition]
	dm, hasDM := sm.partitionToDiskManager[partition]
	sm.mu.RUnlock()

	if !hasReplica {
		return types.PartitionStatusPartitionUnknown
	}
	if hasDM {
		if store, ok := dm.GetStore(partition, false); ok && store.IsStarted() {
			return types.PartitionStatusNoError
		}
		if !dm.IsAvailable() {
			return types.PartitionStatusDiskUnavailable
		}
	}
	return types.PartitionStatusReplicaUnavailable
}

// ScheduleNextForCompaction delegates to the owning disk manager; returns
// false if none owns partition.
func (sm *StorageManager) ScheduleNextForCompaction(partition string) bool {
	sm.mu.RLock()
	dm, ok := sm.partitionToDiskManager[partition]
	sm.mu.RUnlock()
	return ok && dm.ScheduleNextForCompaction(partition)
}

// ControlCompactionForBlobStore delegates to the owning disk manager;
// returns false if none owns partition.
func (sm *StorageManager) ControlCompactionForBlobStore(partition string, enabled bool) bool {
	sm.mu.RLock()
	dm, ok := sm.partitionToDiskManager[partition]
	sm.mu.RUnlock()
	return ok && dm.ControlCompactionForBlobStore(partition, enabled)
}

// StartBlobStore delegates to the owning disk manager.
func (sm *StorageManager) StartBlobStore(partition string) error {
	sm.mu.RLock()
	dm, ok := sm.partitionToDiskManager[partition]
	sm.mu.RUnlock()
	if !ok {
		return fmt.Errorf("storagemanager: start unknown partition %s", partition)
	}
	return dm.StartBlobStore(partition)
}

// ShutdownBlobStore delegates to the owning disk manager.
func (sm *StorageManager) ShutdownBlobStore(partition string) error {
	sm.mu.RLock()
	dm, ok := sm.partitionToDiskManager[partition]
	sm.mu.RUnlock()
	if !ok {
		return fmt.Errorf("storagemanager: shutdown unknown partition %s", partition)
	}
	return dm.ShutdownBlobStore(partition)
}

// AddBlobStore implements spec §4.1's addBlobStore algorithm: reject if
// already mapped, atomically look up or create the owning disk manager and
// start it immediately on creation, ask it to add the store, and only on
// success publish into both maps.
func (sm *StorageManager) AddBlobStore(replica *types.Replica) error {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if _, exists := sm.partitionNameToReplicaID[replica.PartitionName]; exists {
		return fmt.Errorf("storagemanager: partition %s already mapped", replica.PartitionName)
	}
	dm, existed := sm.diskToDiskManager[replica.Disk.MountPath]

	created := false
	if !existed {
		dm = diskmanager.New(replica.Disk, nil, sm.cfg.DiskManager)
		if err := dm.Start(); err != nil {
			return fmt.Errorf("storagemanager: start new disk manager for %s: %w", replica.Disk.MountPath, err)
		}
		created = true
	}

	if err := dm.AddBlobStore(replica); err != nil {
		if created {
			_ = dm.Shutdown()
		}
		return fmt.Errorf("storagemanager: add blob store for %s: %w", replica.PartitionName, err)
	}

	sm.diskToDiskManager[replica.Disk.MountPath] = dm
	sm.partitionToDiskManager[replica.PartitionName] = dm
	sm.partitionNameToReplicaID[replica.PartitionName] = replica
	return nil
}

// RemoveBlobStore delegates to the owning disk manager, then prunes this
// partition from both maps only after the disk manager succeeds.
func (sm *StorageManager) RemoveBlobStore(partition string) error {
	sm.mu.RLock()
	dm, ok := sm.partitionToDiskManager[partition]
	sm.mu.RUnlock()
	if !ok {
		return fmt.Errorf("storagemanager: remove unknown partition %s", partition)
	}

	if err := dm.RemoveBlobStore(partition); err != nil {
		return fmt.Errorf("storagemanager: %w", err)
	}

	sm.mu.Lock()
	delete(sm.partitionToDiskManager, partition)
	delete(sm.partitionNameToReplicaID, partition)
	sm.mu.Unlock()
	return nil
}

// SetBlobStoreStoppedState groups partitions by owning disk manager,
// delegates to each, and returns the union of failures.
func (sm *StorageManager) SetBlobStoreStoppedState(partitions []string, stop bool) []string {
	sm.mu.RLock()
	byDM := make(map[*diskmanager.DiskManager][]string)
	for _, p := range partitions {
		if dm, ok := sm.partitionToDiskManager[p]; ok {
			byDM[dm] = append(byDM[dm], p)
		}
	}
	sm.mu.RUnlock()

	var failed []string
	for dm, group := range byDM {
		failed = append(failed, dm.SetBlobStoreStoppedState(group, stop, sm.cfg.ReplicaStatusDelegates)...)
	}
	return failed
}

// RemoveResidualDirectory deletes the first unexpected directory across any
// disk whose base name matches partitionName, per §4.3.4 step 0. A miss is
// not an error: there may simply be nothing to clean up.
func (sm *StorageManager) RemoveResidualDirectory(partitionName string) error {
	sm.mu.RLock()
	dms := make([]*diskmanager.DiskManager, 0, len(sm.diskToDiskManager))
	for _, dm := range sm.diskToDiskManager {
		dms = append(dms, dm)
	}
	sm.mu.RUnlock()

	for _, dm := range dms {
		for _, dir := range dm.GetUnexpectedDirs() {
			if filepath.Base(dir) != partitionName {
				continue
			}
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("storagemanager: remove residual directory %s: %w", dir, err)
			}
			return nil
		}
	}
	return nil
}

// ResolveDiskForBootstrap reserves capacityBytes on the disk configured at
// mountPath and returns it, so a caller whose subsequent AddBlobStore fails
// can release exactly what was reserved.
func (sm *StorageManager) ResolveDiskForBootstrap(mountPath string, capacityBytes int64) (*types.Disk, error) {
	sm.mu.RLock()
	disk, ok := sm.disks[mountPath]
	sm.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("storagemanager: disk %s is not configured on this node", mountPath)
	}
	if err := disk.Reserve(capacityBytes); err != nil {
		return nil, err
	}
	return disk, nil
}

// GetUnexpectedDirs aggregates unexpected directories across every disk
// manager.
func (sm *StorageManager) GetUnexpectedDirs() []string {
	sm.mu.RLock()
	dms := make([]*diskmanager.DiskManager, 0, len(sm.diskToDiskManager))
	for _, dm := range sm.diskToDiskManager {
		dms = append(dms, dm)
	}
	sm.mu.RUnlock()

	var out []string
	for _, dm := range dms {
		out = append(out, dm.GetUnexpectedDirs()...)
	}
	return out
}

// GetDisks returns a snapshot of every disk manager this node owns, keyed
// by mount path.
func (sm *StorageManager) GetDisks() map[string]*diskmanager.DiskManager {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	out := make(map[string]*diskmanager.DiskManager, len(sm.diskToDiskManager))
	for mount, dm := range sm.diskToDiskManager {
		out[mount] = dm
	}
	return out
}

// WalkDisks calls fn for every disk manager this node owns. fn must not
// call back into StorageManager methods that take the write lock.
func (sm *StorageManager) WalkDisks(fn func(mountPath string, dm *diskmanager.DiskManager)) {
	for mount, dm := range sm.GetDisks() {
		fn(mount, dm)
	}
}

// DisksAvailableCount returns how many configured disks currently satisfy
// the availability predicate in spec §4.1.
func (sm *StorageManager) DisksAvailableCount() int {
	count := 0
	sm.WalkDisks(func(_ string, dm *diskmanager.DiskManager) {
		if dm.IsAvailable() {
			count++
		}
	})
	return count
}

// DisksTotalCount returns how many disks this node constructed a disk
// manager for.
func (sm *StorageManager) DisksTotalCount() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.diskToDiskManager)
}

// StartedAt returns when Start completed, the zero time if never started.
func (sm *StorageManager) StartedAt() time.Time {
	return sm.startedAt
}

// DiskAvailability reports the availability predicate for every configured
// disk, keyed by mount path, for operator-facing inspection.
func (sm *StorageManager) DiskAvailability() map[string]bool {
	out := make(map[string]bool)
	sm.WalkDisks(func(mountPath string, dm *diskmanager.DiskManager) {
		out[mountPath] = dm.IsAvailable()
	})
	return out
}

// StoppedReplicas returns the administratively-stopped partition set, read
// through the first configured replica-status delegate. Returns an empty
// set if no delegate is configured.
func (sm *StorageManager) StoppedReplicas() (map[string]struct{}, error) {
	if len(sm.cfg.ReplicaStatusDelegates) == 0 {
		return map[string]struct{}{}, nil
	}
	return sm.cfg.ReplicaStatusDelegates[0].GetStoppedReplicas()
}
