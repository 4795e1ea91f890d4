package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cuemby/silo/pkg/clustermap"
	"github.com/cuemby/silo/pkg/listeners"
	"github.com/cuemby/silo/pkg/log"
	"github.com/cuemby/silo/pkg/participant"
	"github.com/cuemby/silo/pkg/storage"
	"github.com/cuemby/silo/pkg/storagemanager"
	"github.com/cuemby/silo/pkg/syncup"
	"github.com/cuemby/silo/pkg/types"

	"github.com/cuemby/silo/pkg/api"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "silo-node",
	Short:   "silo-node runs one storage node's disk/replica control plane",
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("silo-node version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	startCmd.Flags().StringP("file", "f", "", "Node manifest YAML file (required)")
	_ = startCmd.MarkFlagRequired("file")

	statusCmd.Flags().String("addr", "127.0.0.1:9190", "Ops address of the running silo-node")
	disksCmd.Flags().String("addr", "127.0.0.1:9190", "Ops address of the running silo-node")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(disksCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start this storage node",
	RunE: func(cmd *cobra.Command, args []string) error {
		file, _ := cmd.Flags().GetString("file")

		m, err := loadManifest(file)
		if err != nil {
			return err
		}

		node, err := bootNode(m)
		if err != nil {
			return err
		}
		defer node.shutdown()

		fmt.Printf("✓ Cluster map bootstrapped (node %s, raft %s)\n", m.NodeID, m.Raft.BindAddr)
		fmt.Printf("✓ Storage manager started (%d disks)\n", node.sm.DisksTotalCount())
		fmt.Printf("✓ Ops server listening on http://%s (/healthz, /readyz, /metrics)\n", m.OpsAddr)
		fmt.Println("silo-node is running. Press Ctrl+C to stop.")

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

		select {
		case <-sigCh:
			fmt.Println("\nShutting down...")
		case err := <-node.opsErrCh:
			fmt.Fprintf(os.Stderr, "\nops server error: %v\n", err)
		}

		fmt.Println("✓ Shutdown complete")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print local partitions and stopped replicas for a running node",
	Long: `status queries a running silo-node's ops surface for its local
partition set and administratively-stopped replicas. There is no RPC layer
in this module, so it talks to the same HTTP server /healthz and /readyz
are served from.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		var resp StatusResponse
		if err := getJSON(addr, "/v1/status", &resp); err != nil {
			return err
		}

		fmt.Printf("started:    %v\n", resp.NodeStarted)
		fmt.Printf("partitions: %d local\n", len(resp.Partitions))
		for _, p := range resp.Partitions {
			fmt.Printf("  - %s\n", p)
		}
		fmt.Printf("stopped:    %d\n", len(resp.Stopped))
		for _, p := range resp.Stopped {
			fmt.Printf("  - %s\n", p)
		}

		return nil
	},
}

var disksCmd = &cobra.Command{
	Use:   "disks",
	Short: "Print per-disk availability for a running node",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		var resp DisksResponse
		if err := getJSON(addr, "/v1/disks", &resp); err != nil {
			return err
		}

		for mountPath, available := range resp.Disks {
			fmt.Printf("%-24s available=%v\n", mountPath, available)
		}

		return nil
	},
}

// StatusResponse and DisksResponse mirror pkg/api's wire shapes for the
// two read-only CLI subcommands; there is no shared client package since
// this module has no RPC layer to generate one from.
type StatusResponse struct {
	NodeStarted bool     `json:"nodeStarted"`
	Partitions  []string `json:"partitions"`
	Stopped     []string `json:"stopped"`
}

type DisksResponse struct {
	Disks map[string]bool `json:"disks"`
}

func getJSON(addr, path string, out interface{}) error {
	resp, err := http.Get("http://" + addr + path)
	if err != nil {
		return fmt.Errorf("connect to %s: %w", addr, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned %s", path, resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// node bundles a booted node's long-lived collaborators so start has one
// construction path and one shutdown sequence.
type node struct {
	cm             *clustermap.ClusterMap
	store          *storage.BoltStore
	sm             *storagemanager.StorageManager
	ops            *http.Server
	opsErrCh       chan error
	leadershipStop chan struct{}
}

func bootNode(m *NodeManifest) (*node, error) {
	cm, err := clustermap.New(m.clusterMapConfig())
	if err != nil {
		return nil, fmt.Errorf("create cluster map: %w", err)
	}
	if m.Raft.Bootstrap {
		if err := cm.Bootstrap(); err != nil {
			cm.Shutdown()
			return nil, fmt.Errorf("bootstrap cluster map: %w", err)
		}
	}

	store, err := storage.NewBoltStore(m.StorageDataDir)
	if err != nil {
		cm.Shutdown()
		return nil, fmt.Errorf("open storage: %w", err)
	}

	p := participant.New(participant.Config{
		NodeID:     m.NodeID,
		ClusterMap: cm,
		SyncUp:     syncup.New(),
		Storage:    store,
	})
	p.RegisterPartitionStateChangeListener(participant.ListenerTypeReplication, listeners.NewReplicationManagerListener())
	p.RegisterPartitionStateChangeListener(participant.ListenerTypeStats, listeners.NewStatsManagerListener())

	cfg := m.storageManagerConfig()
	cfg.ClusterMap = cm
	cfg.Participants = []storagemanager.Participant{p}
	cfg.ReplicaStatusDelegates = []types.ReplicaStatusDelegate{store}

	sm, err := storagemanager.New(cfg)
	if err != nil {
		store.Close()
		cm.Shutdown()
		return nil, fmt.Errorf("create storage manager: %w", err)
	}
	if err := sm.Start(); err != nil {
		store.Close()
		cm.Shutdown()
		return nil, fmt.Errorf("start storage manager: %w", err)
	}

	leadershipStop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				cm.ReportLeadership()
			case <-leadershipStop:
				return
			}
		}
	}()

	hs := api.NewHealthServer(sm)
	ops := &http.Server{Addr: m.OpsAddr, Handler: hs.GetHandler()}
	opsErrCh := make(chan error, 1)
	go func() {
		if err := ops.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			opsErrCh <- fmt.Errorf("ops server: %w", err)
		}
	}()

	return &node{cm: cm, store: store, sm: sm, ops: ops, opsErrCh: opsErrCh, leadershipStop: leadershipStop}, nil
}

func (n *node) shutdown() {
	close(n.leadershipStop)
	if err := n.ops.Close(); err != nil {
		log.Logger.Warn().Err(err).Msg("ops server close error")
	}
	if err := n.sm.Shutdown(); err != nil {
		log.Logger.Warn().Err(err).Msg("storage manager shutdown error")
	}
	if err := n.store.Close(); err != nil {
		log.Logger.Warn().Err(err).Msg("storage close error")
	}
	if err := n.cm.Shutdown(); err != nil {
		log.Logger.Warn().Err(err).Msg("cluster map shutdown error")
	}
}
