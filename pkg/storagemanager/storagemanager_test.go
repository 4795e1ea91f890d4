package storagemanager

import (
	"path/filepath"
	"testing"

	"github.com/cuemby/silo/pkg/clustermap"
	"github.com/cuemby/silo/pkg/diskmanager"
	"github.com/cuemby/silo/pkg/statelistener"
	"github.com/cuemby/silo/pkg/syncup"
	"github.com/cuemby/silo/pkg/types"
)

type fakeClusterMap struct {
	assignments       []clustermap.ReplicaAssignment
	bootstrapReplicas map[string]clustermap.ReplicaAssignment
	fullAuto          bool
}

func (f *fakeClusterMap) GetReplicaIds(nodeID string) []clustermap.ReplicaAssignment {
	return f.assignments
}

func (f *fakeClusterMap) GetBootstrapReplica(partitionName, nodeID string) (clustermap.ReplicaAssignment, bool) {
	a, ok := f.bootstrapReplicas[partitionName]
	return a, ok
}

func (f *fakeClusterMap) IsDataNodeInFullAutoMode(nodeID string) bool {
	return f.fullAuto
}

type fakeParticipant struct {
	listeners       map[string]statelistener.StateChangeListener
	localPartitions []string
	syncUp          *syncup.Manager
	updateCalls     []struct {
		partition string
		add       bool
	}
}

func newFakeParticipant() *fakeParticipant {
	return &fakeParticipant{
		listeners: make(map[string]statelistener.StateChangeListener),
		syncUp:    syncup.New(),
	}
}

func (f *fakeParticipant) RegisterPartitionStateChangeListener(listenerType string, listener statelistener.StateChangeListener) {
	f.listeners[listenerType] = listener
}

func (f *fakeParticipant) GetPartitionStateChangeListeners() map[string]statelistener.StateChangeListener {
	return f.listeners
}

func (f *fakeParticipant) SetInitialLocalPartitions(partitionNames []string) error {
	f.localPartitions = partitionNames
	return nil
}

func (f *fakeParticipant) GetReplicaSyncUpManager() *syncup.Manager {
	return f.syncUp
}

func (f *fakeParticipant) UpdateDataNodeInfoInCluster(replica *types.Replica, add bool) error {
	f.updateCalls = append(f.updateCalls, struct {
		partition string
		add       bool
	}{replica.PartitionName, add})
	return nil
}

type fakeDelegate struct {
	stopped map[string]bool
}

func newFakeDelegate() *fakeDelegate { return &fakeDelegate{stopped: make(map[string]bool)} }

func (d *fakeDelegate) GetStoppedReplicas() (map[string]struct{}, error) {
	out := make(map[string]struct{})
	for name, stopped := range d.stopped {
		if stopped {
			out[name] = struct{}{}
		}
	}
	return out, nil
}

func (d *fakeDelegate) SetReplicaStoppedState(partitions []string, stop bool) error {
	for _, p := range partitions {
		d.stopped[p] = stop
	}
	return nil
}

func testConfig(t *testing.T, cm ClusterMap, participants []Participant, assignments []clustermap.ReplicaAssignment) Config {
	t.Helper()
	root := t.TempDir()
	return Config{
		NodeID: "node-1",
		Disks: map[string]int64{
			filepath.Join(root, "disk0"): 1 << 30,
			filepath.Join(root, "disk1"): 1 << 30,
		},
		ReservedFileDirName: ".reserved",
		DiskManager:         diskmanager.DefaultConfig(),
		ClusterMap:          cm,
		Participants:        participants,
		Clock:               types.SystemClock{},
	}
}

// TestNew_GroupsReplicasByDisk covers spec §8 scenario 1: a node with
// replicas assigned to two different disks ends up with one disk manager
// per disk and every partition resolvable to its replica.
func TestNew_GroupsReplicasByDisk(t *testing.T) {
	root := t.TempDir()
	disk0 := filepath.Join(root, "disk0")
	disk1 := filepath.Join(root, "disk1")

	cm := &fakeClusterMap{assignments: []clustermap.ReplicaAssignment{
		{NodeID: "node-1", PartitionName: "p-a", PartitionID: "1", CapacityBytes: 1000, DiskMountPath: disk0, ReplicaPath: filepath.Join(disk0, "p-a")},
		{NodeID: "node-1", PartitionName: "p-b", PartitionID: "2", CapacityBytes: 1000, DiskMountPath: disk1, ReplicaPath: filepath.Join(disk1, "p-b")},
	}}
	participant := newFakeParticipant()
	cfg := testConfig(t, cm, []Participant{participant}, cm.assignments)
	cfg.Disks = map[string]int64{disk0: 1 << 30, disk1: 1 << 30}

	sm, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := len(sm.GetDisks()); got != 2 {
		t.Fatalf("GetDisks() len = %d, want 2", got)
	}
	if _, ok := sm.GetReplica("p-a"); !ok {
		t.Error("expected p-a to resolve to a replica")
	}
	if _, ok := sm.GetReplica("p-b"); !ok {
		t.Error("expected p-b to resolve to a replica")
	}

	disk0Avail := sm.disks[disk0].AvailableBytes()
	if disk0Avail != (1<<30)-1000 {
		t.Errorf("disk0 available bytes = %d, want %d", disk0Avail, (1<<30)-1000)
	}
}

// TestStart_StartsDisksAndSeedsParticipants covers the rest of scenario 1:
// Start opens every store, registers a listener per participant, and seeds
// each participant with the local-partition set.
func TestStart_StartsDisksAndSeedsParticipants(t *testing.T) {
	root := t.TempDir()
	disk0 := filepath.Join(root, "disk0")

	cm := &fakeClusterMap{assignments: []clustermap.ReplicaAssignment{
		{NodeID: "node-1", PartitionName: "p-a", PartitionID: "1", CapacityBytes: 1000, DiskMountPath: disk0, ReplicaPath: filepath.Join(disk0, "p-a")},
	}}
	primary := newFakeParticipant()
	secondary := newFakeParticipant()
	cfg := testConfig(t, cm, []Participant{primary, secondary}, cm.assignments)
	cfg.Disks = map[string]int64{disk0: 1 << 30}

	sm, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := sm.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer sm.Shutdown()

	store, ok := sm.GetStore("p-a", false)
	if !ok || !store.IsStarted() {
		t.Fatal("expected p-a's store to be started")
	}

	if len(primary.listeners) != 1 {
		t.Errorf("primary listeners = %d, want 1", len(primary.listeners))
	}
	if len(secondary.listeners) != 1 {
		t.Errorf("secondary listeners = %d, want 1", len(secondary.listeners))
	}
	if len(primary.localPartitions) != 1 || primary.localPartitions[0] != "p-a" {
		t.Errorf("primary.localPartitions = %v, want [p-a]", primary.localPartitions)
	}
	if len(secondary.localPartitions) != 1 || secondary.localPartitions[0] != "p-a" {
		t.Errorf("secondary.localPartitions = %v, want [p-a]", secondary.localPartitions)
	}
}

// TestAddThenRemoveBlobStore_RoundTrips exercises the round-trip law: adding
// a replica and then removing its partition restores the storage manager's
// maps to their pre-add state.
func TestAddThenRemoveBlobStore_RoundTrips(t *testing.T) {
	root := t.TempDir()
	disk0 := filepath.Join(root, "disk0")

	cm := &fakeClusterMap{}
	participant := newFakeParticipant()
	cfg := testConfig(t, cm, []Participant{participant}, nil)
	cfg.Disks = map[string]int64{disk0: 1 << 30}

	sm, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := sm.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer sm.Shutdown()

	disk, err := sm.ResolveDiskForBootstrap(disk0, 500)
	if err != nil {
		t.Fatalf("ResolveDiskForBootstrap() error = %v", err)
	}
	replica := &types.Replica{
		PartitionName: "p-new",
		PartitionID:   "new",
		CapacityBytes: 500,
		Disk:          disk,
		Path:          filepath.Join(disk0, "p-new"),
	}

	if err := sm.AddBlobStore(replica); err != nil {
		t.Fatalf("AddBlobStore() error = %v", err)
	}
	if _, ok := sm.GetReplica("p-new"); !ok {
		t.Fatal("expected p-new to be resolvable after AddBlobStore")
	}

	if err := sm.RemoveBlobStore("p-new"); err != nil {
		t.Fatalf("RemoveBlobStore() error = %v", err)
	}
	if _, ok := sm.GetReplica("p-new"); ok {
		t.Error("expected p-new to be gone after RemoveBlobStore")
	}
	if _, ok := sm.partitionToDiskManager["p-new"]; ok {
		t.Error("expected p-new removed from partitionToDiskManager")
	}
	if _, ok := sm.partitionNameToReplicaID["p-new"]; ok {
		t.Error("expected p-new removed from partitionNameToReplicaID")
	}
}

// TestAddBlobStore_RejectsDuplicatePartition covers the reject-if-already-
// mapped branch of addBlobStore.
func TestAddBlobStore_RejectsDuplicatePartition(t *testing.T) {
	root := t.TempDir()
	disk0 := filepath.Join(root, "disk0")

	cm := &fakeClusterMap{assignments: []clustermap.ReplicaAssignment{
		{NodeID: "node-1", PartitionName: "p-a", PartitionID: "1", CapacityBytes: 1000, DiskMountPath: disk0, ReplicaPath: filepath.Join(disk0, "p-a")},
	}}
	participant := newFakeParticipant()
	cfg := testConfig(t, cm, []Participant{participant}, cm.assignments)
	cfg.Disks = map[string]int64{disk0: 1 << 30}

	sm, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := sm.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer sm.Shutdown()

	replica, ok := sm.GetReplica("p-a")
	if !ok {
		t.Fatal("expected p-a to already be mapped")
	}
	if err := sm.AddBlobStore(replica); err == nil {
		t.Error("expected AddBlobStore to reject an already-mapped partition")
	}
}

// TestSetBlobStoreStoppedState_PersistsAcrossDelegates covers the stop flag
// reaching the configured replica-status delegate, and a partition that no
// disk manager owns being skipped without being reported as failed.
func TestSetBlobStoreStoppedState_PersistsAcrossDelegates(t *testing.T) {
	root := t.TempDir()
	disk0 := filepath.Join(root, "disk0")

	cm := &fakeClusterMap{assignments: []clustermap.ReplicaAssignment{
		{NodeID: "node-1", PartitionName: "p-a", PartitionID: "1", CapacityBytes: 1000, DiskMountPath: disk0, ReplicaPath: filepath.Join(disk0, "p-a")},
	}}
	participant := newFakeParticipant()
	cfg := testConfig(t, cm, []Participant{participant}, cm.assignments)
	cfg.Disks = map[string]int64{disk0: 1 << 30}
	delegate := newFakeDelegate()
	cfg.ReplicaStatusDelegates = []types.ReplicaStatusDelegate{delegate}

	sm, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := sm.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer sm.Shutdown()

	if failed := sm.SetBlobStoreStoppedState([]string{"p-a"}, true); len(failed) != 0 {
		t.Fatalf("SetBlobStoreStoppedState() failed = %v, want none", failed)
	}
	if !delegate.stopped["p-a"] {
		t.Error("expected delegate to record p-a as stopped")
	}

	if failed := sm.SetBlobStoreStoppedState([]string{"p-unknown"}, true); len(failed) != 0 {
		t.Errorf("unknown partition should be silently skipped, got failed = %v", failed)
	}
}

// TestCheckLocalPartitionStatus covers the status lookups
// CheckLocalPartitionStatus reports across unknown, started, and
// not-yet-started partitions.
func TestCheckLocalPartitionStatus(t *testing.T) {
	root := t.TempDir()
	disk0 := filepath.Join(root, "disk0")

	cm := &fakeClusterMap{assignments: []clustermap.ReplicaAssignment{
		{NodeID: "node-1", PartitionName: "p-a", PartitionID: "1", CapacityBytes: 1000, DiskMountPath: disk0, ReplicaPath: filepath.Join(disk0, "p-a")},
	}}
	participant := newFakeParticipant()
	cfg := testConfig(t, cm, []Participant{participant}, cm.assignments)
	cfg.Disks = map[string]int64{disk0: 1 << 30}

	sm, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if got := sm.CheckLocalPartitionStatus("p-unknown"); got != types.PartitionStatusPartitionUnknown {
		t.Errorf("CheckLocalPartitionStatus(unknown) = %v, want PARTITION_UNKNOWN", got)
	}
	if got := sm.CheckLocalPartitionStatus("p-a"); got != types.PartitionStatusDiskUnavailable {
		t.Errorf("CheckLocalPartitionStatus(not started) = %v, want DISK_UNAVAILABLE", got)
	}

	if err := sm.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer sm.Shutdown()

	if got := sm.CheckLocalPartitionStatus("p-a"); got != types.PartitionStatusNoError {
		t.Errorf("CheckLocalPartitionStatus(started) = %v, want NO_ERROR", got)
	}
}

// TestRemoveResidualDirectory_NoMatchIsNotAnError covers the miss branch of
// RemoveResidualDirectory: there is nothing to clean up, and that is fine.
func TestRemoveResidualDirectory_NoMatchIsNotAnError(t *testing.T) {
	root := t.TempDir()
	disk0 := filepath.Join(root, "disk0")

	cm := &fakeClusterMap{}
	participant := newFakeParticipant()
	cfg := testConfig(t, cm, []Participant{participant}, nil)
	cfg.Disks = map[string]int64{disk0: 1 << 30}

	sm, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := sm.RemoveResidualDirectory("does-not-exist"); err != nil {
		t.Errorf("RemoveResidualDirectory() error = %v, want nil", err)
	}
}
