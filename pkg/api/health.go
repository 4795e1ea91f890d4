package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cuemby/silo/pkg/metrics"
)

// StorageManager is the subset of pkg/storagemanager.StorageManager the ops
// server needs to answer readiness checks.
type StorageManager interface {
	DisksAvailableCount() int
	DisksTotalCount() int
	GetLocalPartitions() []string
	StartedAt() time.Time
	DiskAvailability() map[string]bool
	StoppedReplicas() (map[string]struct{}, error)
}

// HealthServer serves liveness, readiness, and metrics over HTTP for one
// storage node.
type HealthServer struct {
	sm  StorageManager
	mux *http.ServeMux
}

// NewHealthServer wires up /healthz, /readyz, /v1/status, /v1/disks, and
// /metrics. sm may be nil; readiness then reports not-ready for the life of
// the server, since sm cannot be set afterwards.
func NewHealthServer(sm StorageManager) *HealthServer {
	mux := http.NewServeMux()
	hs := &HealthServer{sm: sm, mux: mux}

	mux.HandleFunc("/healthz", hs.healthHandler)
	mux.HandleFunc("/readyz", hs.readyHandler)
	mux.HandleFunc("/v1/status", hs.statusHandler)
	mux.HandleFunc("/v1/disks", hs.disksHandler)
	mux.Handle("/metrics", metrics.Handler())

	return hs
}

// HealthResponse is the /healthz response body.
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}

// ReadyResponse is the /readyz response body.
type ReadyResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Message   string            `json:"message,omitempty"`
}

// healthHandler is a pure liveness check: 200 as long as the process can
// answer HTTP requests.
func (hs *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Timestamp: time.Now()})
}

// readyHandler reports ready only once the storage manager has started and
// at least one configured disk is available, per spec §4.1's availability
// predicate.
func (hs *HealthServer) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string)
	ready := true
	var message string

	if hs.sm == nil {
		checks["storage_manager"] = "not initialized"
		ready = false
		message = "storage manager not started"
	} else {
		total := hs.sm.DisksTotalCount()
		available := hs.sm.DisksAvailableCount()
		checks["disks"] = strconv.Itoa(available) + "/" + strconv.Itoa(total) + " available"
		if available == 0 {
			ready = false
			message = "no disks available"
		}
		checks["partitions"] = strconv.Itoa(len(hs.sm.GetLocalPartitions())) + " local"
		if hs.sm.StartedAt().IsZero() {
			checks["storage_manager"] = "not started"
			ready = false
			if message == "" {
				message = "storage manager not started"
			}
		} else {
			checks["storage_manager"] = "started"
		}
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, ReadyResponse{
		Status:    status,
		Timestamp: time.Now(),
		Checks:    checks,
		Message:   message,
	})
}

// GetHandler returns the HTTP handler for embedding in other servers.
func (hs *HealthServer) GetHandler() http.Handler {
	return hs.mux
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
