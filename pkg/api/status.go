package api

import "net/http"

// StatusResponse is the /v1/status response body: a snapshot of what
// `silo-node status` prints, served over the ops HTTP surface since this
// module exposes no RPC layer for the CLI to call into instead.
type StatusResponse struct {
	NodeStarted bool     `json:"nodeStarted"`
	Partitions  []string `json:"partitions"`
	Stopped     []string `json:"stopped"`
}

// DisksResponse is the /v1/disks response body.
type DisksResponse struct {
	Disks map[string]bool `json:"disks"` // mount path -> available
}

func (hs *HealthServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if hs.sm == nil {
		writeJSON(w, http.StatusServiceUnavailable, StatusResponse{})
		return
	}

	stopped, err := hs.sm.StoppedReplicas()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	stoppedList := make([]string, 0, len(stopped))
	for p := range stopped {
		stoppedList = append(stoppedList, p)
	}

	writeJSON(w, http.StatusOK, StatusResponse{
		NodeStarted: !hs.sm.StartedAt().IsZero(),
		Partitions:  hs.sm.GetLocalPartitions(),
		Stopped:     stoppedList,
	})
}

func (hs *HealthServer) disksHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if hs.sm == nil {
		writeJSON(w, http.StatusServiceUnavailable, DisksResponse{})
		return
	}
	writeJSON(w, http.StatusOK, DisksResponse{Disks: hs.sm.DiskAvailability()})
}
