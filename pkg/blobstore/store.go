package blobstore

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cuemby/silo/pkg/types"
)

// HeaderSizeBytes is the smallest possible non-empty store size, used only
// for the "treat as empty" comparison during OFFLINE->BOOTSTRAP.
const HeaderSizeBytes int64 = 58

const (
	markerBootstrapInProgress    = "bootstrap_in_progress"
	markerDecommissionInProgress = "decommission_in_progress"
)

// FileBlobStore is a minimal, directory-backed implementation of
// types.BlobStore.
type FileBlobStore struct {
	dir           string
	capacityBytes int64

	mu                      sync.Mutex
	started                 bool
	disabled                bool
	currentState            types.ReplicaState
	previousState           types.ReplicaState
	recoverFromDecommission bool
}

// Config controls how a freshly constructed store initializes its previous
// state. This resolves the open question in spec §9 about the ambiguity of
// "previous state" on first boot.
type Config struct {
	// InitialPreviousStateIsOffline, when true (the default), seeds a
	// freshly loaded store's previous state to OFFLINE regardless of its
	// current state. When false, previous state starts equal to current
	// state, so a brand-new replica cannot trigger a resume-decommission
	// on its very first bootstrap.
	InitialPreviousStateIsOffline bool
}

// DefaultConfig returns the conservative default: previous state starts
// OFFLINE, matching a coordinator that may immediately attempt a
// resume-decommission against a freshly attached replica.
func DefaultConfig() Config {
	return Config{InitialPreviousStateIsOffline: true}
}

// New opens or creates the replica directory at dir and returns a store
// with its current state set to OFFLINE. initialCurrentState lets a caller
// that has recovered state from a crash (e.g. a disk manager scan finding a
// decommission marker) seed a different starting current state; ordinary
// dynamic adds pass types.Offline.
//
// cfg.InitialPreviousStateIsOffline governs the seam spec §9 leaves open:
// when true, previous state always starts OFFLINE, independent of
// initialCurrentState; when false, previous state starts equal to
// initialCurrentState, so a replica recovered mid-decommission does not
// look like it just came from OFFLINE.
func New(dir string, capacityBytes int64, cfg Config, initialCurrentState types.ReplicaState) (*FileBlobStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("blobstore: create replica directory %s: %w", dir, err)
	}
	s := &FileBlobStore{
		dir:           dir,
		capacityBytes: capacityBytes,
		currentState:  initialCurrentState,
	}
	if cfg.InitialPreviousStateIsOffline {
		s.previousState = types.Offline
	} else {
		s.previousState = initialCurrentState
	}
	return s, nil
}

// Dir returns the replica directory this store is backed by.
func (s *FileBlobStore) Dir() string { return s.dir }

func (s *FileBlobStore) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("blobstore: start %s: %w", s.dir, err)
	}
	s.started = true
	return nil
}

func (s *FileBlobStore) Shutdown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = false
	return nil
}

// SizeInBytes sums the size of every regular file directly under the
// replica directory, excluding the marker files.
func (s *FileBlobStore) SizeInBytes() int64 {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() || e.Name() == markerBootstrapInProgress || e.Name() == markerDecommissionInProgress {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		total += info.Size()
	}
	return total
}

func (s *FileBlobStore) CurrentState() types.ReplicaState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentState
}

func (s *FileBlobStore) SetCurrentState(state types.ReplicaState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.previousState = s.currentState
	s.currentState = state
}

func (s *FileBlobStore) PreviousState() types.ReplicaState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.previousState
}

func (s *FileBlobStore) IsStarted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

func (s *FileBlobStore) IsDisabled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disabled
}

// SetDisabled exists for tests that need to exercise the disabled-store
// failure path (spec §8 scenario 4); production code never disables a
// store directly through this package.
func (s *FileBlobStore) SetDisabled(disabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disabled = disabled
}

func (s *FileBlobStore) RecoverFromDecommission() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recoverFromDecommission
}

func (s *FileBlobStore) SetRecoverFromDecommission(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recoverFromDecommission = v
}

// EnsureBootstrapMarker creates the bootstrap_in_progress marker file under
// dir if it does not already exist. Idempotent.
func EnsureBootstrapMarker(dir string) error {
	return ensureMarker(dir, markerBootstrapInProgress)
}

// EnsureDecommissionMarker creates the decommission_in_progress marker file
// under dir if it does not already exist. Idempotent.
func EnsureDecommissionMarker(dir string) error {
	return ensureMarker(dir, markerDecommissionInProgress)
}

// RemoveDecommissionMarker removes the decommission_in_progress marker if
// present.
func RemoveDecommissionMarker(dir string) error {
	return removeMarker(dir, markerDecommissionInProgress)
}

// HasDecommissionMarker reports whether the decommission_in_progress marker
// exists under dir.
func HasDecommissionMarker(dir string) bool {
	return hasMarker(dir, markerDecommissionInProgress)
}

func ensureMarker(dir, name string) error {
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("blobstore: create marker %s: %w", path, err)
	}
	return f.Close()
}

func removeMarker(dir, name string) error {
	path := filepath.Join(dir, name)
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("blobstore: remove marker %s: %w", path, err)
	}
	return nil
}

func hasMarker(dir, name string) bool {
	_, err := os.Stat(filepath.Join(dir, name))
	return err == nil
}
