package diskmanager

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/cuemby/silo/pkg/blobstore"
	"github.com/cuemby/silo/pkg/health"
	"github.com/cuemby/silo/pkg/log"
	"github.com/cuemby/silo/pkg/metrics"
	"github.com/cuemby/silo/pkg/types"
	"github.com/rs/zerolog"
)

// Config controls a DiskManager's compaction scheduling and store
// construction.
type Config struct {
	BlobStore          blobstore.Config
	CompactionInterval time.Duration
	HealthCheck        health.Config
}

// DefaultConfig returns sensible defaults for a DiskManager.
func DefaultConfig() Config {
	return Config{
		BlobStore:          blobstore.DefaultConfig(),
		CompactionInterval: time.Minute,
		HealthCheck:        health.DefaultConfig(),
	}
}

type entry struct {
	replica *types.Replica
	store   *blobstore.FileBlobStore
}

// DiskManager owns every blob store resident on one disk, per spec §4.2.
type DiskManager struct {
	disk   *types.Disk
	cfg    Config
	logger zerolog.Logger

	mu                sync.RWMutex
	stores            map[string]*entry // partition name -> entry
	compactionEnabled map[string]bool
	unexpectedDirs    []string

	compactionRunning bool
	health            *health.Status
	stopCh            chan struct{}
	wg                sync.WaitGroup
}

// New constructs a DiskManager pre-registered with the replicas the cluster
// map reports for this disk. Stores are not opened until Start.
func New(disk *types.Disk, replicas []*types.Replica, cfg Config) *DiskManager {
	stores := make(map[string]*entry, len(replicas))
	enabled := make(map[string]bool, len(replicas))
	for _, r := range replicas {
		stores[r.PartitionName] = &entry{replica: r}
		enabled[r.PartitionName] = true
	}
	return &DiskManager{
		disk:              disk,
		cfg:               cfg,
		logger:            log.WithComponent("diskmanager").With().Str("disk", disk.MountPath).Logger(),
		stores:            stores,
		compactionEnabled: enabled,
		health:            health.NewStatus(),
		stopCh:            make(chan struct{}),
	}
}

// Start opens every pre-registered replica's store in parallel, publishes
// unexpectedDirs, and launches the compaction scheduler. Individual store
// failures are logged and do not fail Start.
func (dm *DiskManager) Start() error {
	dm.mu.Lock()
	known := make(map[string]struct{}, len(dm.stores))
	entries := make([]*entry, 0, len(dm.stores))
	for name, e := range dm.stores {
		known[name] = struct{}{}
		entries = append(entries, e)
	}
	dm.mu.Unlock()

	var wg sync.WaitGroup
	for _, e := range entries {
		wg.Add(1)
		go func(e *entry) {
			defer wg.Done()
			store, err := blobstore.New(e.replica.Path, e.replica.CapacityBytes, dm.cfg.BlobStore, types.Offline)
			if err != nil {
				dm.logger.Error().Err(err).Str("partition", e.replica.PartitionName).Msg("failed to open store")
				return
			}
			if err := store.Start(); err != nil {
				dm.logger.Error().Err(err).Str("partition", e.replica.PartitionName).Msg("failed to start store")
				return
			}
			dm.mu.Lock()
			e.store = store
			dm.mu.Unlock()
		}(e)
	}
	wg.Wait()

	dirs, err := dm.scanUnexpectedDirs(known)
	dm.mu.Lock()
	dm.unexpectedDirs = dirs
	dm.health.Update(health.Result{
		Healthy:   err == nil,
		Message:   scanErrMessage(err),
		CheckedAt: time.Now(),
	}, dm.cfg.HealthCheck)
	dm.compactionRunning = true
	dm.mu.Unlock()
	if err != nil {
		dm.logger.Warn().Err(err).Msg("failed to scan disk for unexpected directories")
	}

	dm.wg.Add(1)
	go dm.compactionLoop()

	return nil
}

func (dm *DiskManager) scanUnexpectedDirs(known map[string]struct{}) ([]string, error) {
	entries, err := os.ReadDir(dm.disk.MountPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("diskmanager: scan %s: %w", dm.disk.MountPath, err)
	}
	var unexpected []string
	for _, e := range entries {
		if !e.IsDir() || e.Name() == dm.disk.ReservedFileDirName {
			continue
		}
		if _, ok := known[e.Name()]; ok {
			continue
		}
		unexpected = append(unexpected, filepath.Join(dm.disk.MountPath, e.Name()))
	}
	return unexpected, nil
}

func (dm *DiskManager) compactionLoop() {
	defer dm.wg.Done()
	ticker := time.NewTicker(dm.cfg.CompactionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-dm.stopCh:
			return
		case <-ticker.C:
			timer := metrics.NewTimer()
			dm.runCompactionCycle()
			timer.ObserveDuration(metrics.CompactionCycleDuration)
			metrics.CompactionCyclesTotal.Inc()

			dirs, err := dm.scanUnexpectedDirs(dm.knownPartitions())
			dm.mu.Lock()
			dm.unexpectedDirs = dirs
			dm.health.Update(health.Result{
				Healthy:   err == nil,
				Message:   scanErrMessage(err),
				CheckedAt: time.Now(),
				Duration:  timer.Duration(),
			}, dm.cfg.HealthCheck)
			dm.mu.Unlock()
			if err != nil {
				dm.logger.Warn().Err(err).Msg("failed to rescan disk for unexpected directories")
			}
		}
	}
}

func (dm *DiskManager) knownPartitions() map[string]struct{} {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	known := make(map[string]struct{}, len(dm.stores))
	for name := range dm.stores {
		known[name] = struct{}{}
	}
	return known
}

func scanErrMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (dm *DiskManager) runCompactionCycle() {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	for name, e := range dm.stores {
		if !dm.compactionEnabled[name] || e.store == nil || !e.store.IsStarted() {
			continue
		}
		// Compaction internals are out of scope; the scheduler exists to
		// demonstrate the per-store enable/disable and cycle accounting
		// contract the storage manager depends on.
	}
}

// Shutdown cancels compaction and closes every store. Individual store
// shutdown failures are logged, not returned.
func (dm *DiskManager) Shutdown() error {
	dm.mu.Lock()
	if dm.compactionRunning {
		close(dm.stopCh)
		dm.compactionRunning = false
	}
	entries := make([]*entry, 0, len(dm.stores))
	for _, e := range dm.stores {
		entries = append(entries, e)
	}
	dm.mu.Unlock()

	dm.wg.Wait()

	for _, e := range entries {
		if e.store == nil {
			continue
		}
		if err := e.store.Shutdown(); err != nil {
			dm.logger.Error().Err(err).Str("partition", e.replica.PartitionName).Msg("failed to shut down store")
		}
	}
	return nil
}

// GetStore returns the store owning partition if this DM has it and it is
// either started or skipStateCheck is set.
func (dm *DiskManager) GetStore(partition string, skipStateCheck bool) (types.BlobStore, bool) {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	e, ok := dm.stores[partition]
	if !ok || e.store == nil {
		return nil, false
	}
	if !skipStateCheck && !e.store.IsStarted() {
		return nil, false
	}
	return e.store, true
}

// AddBlobStore creates the on-disk directory for replica if absent and
// starts a new store for it.
func (dm *DiskManager) AddBlobStore(replica *types.Replica) error {
	dm.mu.Lock()
	if _, exists := dm.stores[replica.PartitionName]; exists {
		dm.mu.Unlock()
		return fmt.Errorf("diskmanager: partition %s already present", replica.PartitionName)
	}
	dm.mu.Unlock()

	store, err := blobstore.New(replica.Path, replica.CapacityBytes, dm.cfg.BlobStore, types.Offline)
	if err != nil {
		return fmt.Errorf("diskmanager: add %s: %w", replica.PartitionName, err)
	}
	if err := store.Start(); err != nil {
		return fmt.Errorf("diskmanager: start %s: %w", replica.PartitionName, err)
	}

	dm.mu.Lock()
	dm.stores[replica.PartitionName] = &entry{replica: replica, store: store}
	dm.compactionEnabled[replica.PartitionName] = true
	dm.mu.Unlock()
	return nil
}

// RemoveBlobStore shuts the store down if started, then deletes its
// directory tree. Fails if the partition is unknown to this DM.
func (dm *DiskManager) RemoveBlobStore(partition string) error {
	dm.mu.Lock()
	e, ok := dm.stores[partition]
	if !ok {
		dm.mu.Unlock()
		return fmt.Errorf("diskmanager: remove unknown partition %s", partition)
	}
	delete(dm.stores, partition)
	delete(dm.compactionEnabled, partition)
	dm.mu.Unlock()

	if e.store != nil && e.store.IsStarted() {
		if err := e.store.Shutdown(); err != nil {
			return fmt.Errorf("diskmanager: shutdown during remove %s: %w", partition, err)
		}
	}
	if err := os.RemoveAll(e.replica.Path); err != nil {
		return fmt.Errorf("diskmanager: delete directory for %s: %w", partition, err)
	}
	return nil
}

// StartBlobStore starts an already-registered store.
func (dm *DiskManager) StartBlobStore(partition string) error {
	dm.mu.RLock()
	e, ok := dm.stores[partition]
	dm.mu.RUnlock()
	if !ok || e.store == nil {
		return fmt.Errorf("diskmanager: start unknown partition %s", partition)
	}
	return e.store.Start()
}

// ShutdownBlobStore shuts down an already-registered store.
func (dm *DiskManager) ShutdownBlobStore(partition string) error {
	dm.mu.RLock()
	e, ok := dm.stores[partition]
	dm.mu.RUnlock()
	if !ok || e.store == nil {
		return fmt.Errorf("diskmanager: shutdown unknown partition %s", partition)
	}
	return e.store.Shutdown()
}

// SetBlobStoreStoppedState persists the stop flag via every delegate and
// returns the partitions that could not be persisted: the whole input list
// once for each delegate that failed, so a partition can appear more than
// once. The disk manager keeps no in-memory stopped set of its own and does
// not change compaction settings here.
func (dm *DiskManager) SetBlobStoreStoppedState(partitions []string, stop bool, delegates []types.ReplicaStatusDelegate) []string {
	var failed []string
	for _, delegate := range delegates {
		if err := delegate.SetReplicaStoppedState(partitions, stop); err != nil {
			dm.logger.Error().Err(err).Bool("stop", stop).Msg("replica status delegate failed to persist stop state")
			failed = append(failed, partitions...)
		}
	}
	return failed
}

// ScheduleNextForCompaction returns true if partition exists and its store
// is up (compaction scheduling delegates to a healthy store).
func (dm *DiskManager) ScheduleNextForCompaction(partition string) bool {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	e, ok := dm.stores[partition]
	return ok && e.store != nil && e.store.IsStarted()
}

// ControlCompactionForBlobStore enables or disables compaction for
// partition; returns false if the partition is unknown.
func (dm *DiskManager) ControlCompactionForBlobStore(partition string, enabled bool) bool {
	dm.mu.Lock()
	defer dm.mu.Unlock()
	if _, ok := dm.stores[partition]; !ok {
		return false
	}
	dm.compactionEnabled[partition] = enabled
	return true
}

// AreAllStoresDown reports whether every owned store is stopped (or there
// are none).
func (dm *DiskManager) AreAllStoresDown() bool {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	for _, e := range dm.stores {
		if e.store != nil && e.store.IsStarted() {
			return false
		}
	}
	return true
}

// IsAvailable reports whether this disk counts as available per spec §4.1:
// the DM exists and not all of its stores are down, gated by the scan
// health hysteresis so a single failed directory scan does not flip
// availability.
func (dm *DiskManager) IsAvailable() bool {
	dm.mu.RLock()
	healthy := dm.health.Healthy || dm.health.InStartPeriod(dm.cfg.HealthCheck)
	dm.mu.RUnlock()
	return healthy && !dm.AreAllStoresDown()
}

// IsCompactionExecutorRunning reports whether the compaction loop is alive.
func (dm *DiskManager) IsCompactionExecutorRunning() bool {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	return dm.compactionRunning
}

// GetUnexpectedDirs returns absolute paths under the mount that do not
// correspond to any owned replica, as of the most recent scan (at Start,
// then on each compaction cycle).
func (dm *DiskManager) GetUnexpectedDirs() []string {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	out := make([]string, len(dm.unexpectedDirs))
	copy(out, dm.unexpectedDirs)
	return out
}

// MountPath returns the mount path of the disk this DM owns.
func (dm *DiskManager) MountPath() string {
	return dm.disk.MountPath
}

// OwnsPartition reports whether this DM currently owns partition.
func (dm *DiskManager) OwnsPartition(partition string) bool {
	dm.mu.RLock()
	defer dm.mu.RUnlock()
	_, ok := dm.stores[partition]
	return ok
}
