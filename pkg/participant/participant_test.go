package participant

import (
	"testing"
	"time"

	"github.com/cuemby/silo/pkg/clustermap"
	"github.com/cuemby/silo/pkg/storage"
	"github.com/cuemby/silo/pkg/syncup"
	"github.com/cuemby/silo/pkg/types"
)

type fakeListener struct{}

func (fakeListener) OnBecomeBootstrapFromOffline(string) error { return nil }
func (fakeListener) OnBecomeStandbyFromBootstrap(string) error { return nil }
func (fakeListener) OnBecomeLeaderFromStandby(string) error    { return nil }
func (fakeListener) OnBecomeStandbyFromLeader(string) error    { return nil }
func (fakeListener) OnBecomeInactiveFromStandby(string) error  { return nil }
func (fakeListener) OnBecomeOfflineFromInactive(string) error  { return nil }
func (fakeListener) OnBecomeDroppedFromOffline(string) error   { return nil }

func newTestParticipant(t *testing.T, bindAddr string) (*Participant, *clustermap.ClusterMap) {
	t.Helper()
	cm, err := clustermap.New(clustermap.Config{NodeID: "node-1", BindAddr: bindAddr, DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("clustermap.New() error = %v", err)
	}
	if err := cm.Bootstrap(); err != nil {
		t.Fatalf("Bootstrap() error = %v", err)
	}
	t.Cleanup(func() { cm.Shutdown() })

	for attempt := 0; !cm.IsLeader(); attempt++ {
		if attempt > 100 {
			t.Fatal("timed out waiting for leadership")
		}
		time.Sleep(10 * time.Millisecond)
	}

	store, err := storage.NewBoltStore(t.TempDir())
	if err != nil {
		t.Fatalf("storage.NewBoltStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	p := New(Config{
		NodeID:     "node-1",
		ClusterMap: cm,
		SyncUp:     syncup.New(),
		Storage:    store,
	})
	return p, cm
}

func TestParticipant_RegisterAndListListeners(t *testing.T) {
	p, _ := newTestParticipant(t, "127.0.0.1:17191")

	p.RegisterPartitionStateChangeListener(ListenerTypeStorageManager, fakeListener{})
	p.RegisterPartitionStateChangeListener(ListenerTypeReplication, fakeListener{})

	got := p.GetPartitionStateChangeListeners()
	if len(got) != 2 {
		t.Fatalf("expected 2 listeners, got %d", len(got))
	}
	if _, ok := got[ListenerTypeReplication]; !ok {
		t.Error("expected replication listener to be registered")
	}
}

func TestParticipant_SetInitialLocalPartitionsFiltersStopped(t *testing.T) {
	p, _ := newTestParticipant(t, "127.0.0.1:17192")

	if err := p.cfg.Storage.SetReplicaStoppedState([]string{"partition-b"}, true); err != nil {
		t.Fatalf("SetReplicaStoppedState() error = %v", err)
	}

	if err := p.SetInitialLocalPartitions([]string{"partition-a", "partition-b"}); err != nil {
		t.Fatalf("SetInitialLocalPartitions() error = %v", err)
	}

	got := p.LocalPartitions()
	if len(got) != 1 || got[0] != "partition-a" {
		t.Errorf("LocalPartitions() = %v, want [partition-a]", got)
	}
}

func TestParticipant_UpdateDataNodeInfoInCluster(t *testing.T) {
	p, cm := newTestParticipant(t, "127.0.0.1:17193")

	disk := types.NewDisk("/mnt/disk0", 10000, "reserved")
	replica := &types.Replica{
		PartitionName: "partition-a",
		PartitionID:   "p-a",
		CapacityBytes: 1000,
		Disk:          disk,
		Path:          "/mnt/disk0/partition-a",
	}

	if err := p.UpdateDataNodeInfoInCluster(replica, true); err != nil {
		t.Fatalf("UpdateDataNodeInfoInCluster(add) error = %v", err)
	}
	assignments := cm.GetReplicaIds("node-1")
	if len(assignments) != 1 || assignments[0].PartitionName != "partition-a" {
		t.Fatalf("GetReplicaIds() = %v, want one assignment for partition-a", assignments)
	}

	if err := p.UpdateDataNodeInfoInCluster(replica, false); err != nil {
		t.Fatalf("UpdateDataNodeInfoInCluster(remove) error = %v", err)
	}
	if len(cm.GetReplicaIds("node-1")) != 0 {
		t.Error("expected no assignments after remove")
	}
}

func TestParticipant_GetReplicaSyncUpManager(t *testing.T) {
	p, _ := newTestParticipant(t, "127.0.0.1:17194")
	if p.GetReplicaSyncUpManager() == nil {
		t.Fatal("expected non-nil sync-up manager")
	}
}
