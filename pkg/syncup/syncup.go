package syncup

import (
	"context"
	"fmt"
	"sync"
)

// kind distinguishes the two barrier types a partition can wait on.
type kind int

const (
	kindDeactivation kind = iota
	kindDisconnection
)

func (k kind) String() string {
	if k == kindDeactivation {
		return "deactivation"
	}
	return "disconnection"
}

// barrier is a one-shot gate: it is either pending, completed, or aborted
// with an error. Completion and abort are idempotent past the first call,
// since a slow caller and a retrying caller can race to resolve the same
// partition.
type barrier struct {
	done chan struct{}
	err  error
	once sync.Once
}

func newBarrier() *barrier {
	return &barrier{done: make(chan struct{})}
}

func (b *barrier) resolve(err error) {
	b.once.Do(func() {
		b.err = err
		close(b.done)
	})
}

func (b *barrier) wait(ctx context.Context) error {
	select {
	case <-b.done:
		return b.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Manager is a ReplicaSyncUpManager: it hands out a barrier per
// (partition, kind) on first wait or first signal, whichever happens
// first, and lets either side race without losing a signal sent before
// the waiter arrives.
type Manager struct {
	mu       sync.Mutex
	barriers map[string]map[kind]*barrier
}

// New constructs an empty Manager.
func New() *Manager {
	return &Manager{barriers: make(map[string]map[kind]*barrier)}
}

func (m *Manager) barrierFor(partitionName string, k kind) *barrier {
	m.mu.Lock()
	defer m.mu.Unlock()
	byKind, ok := m.barriers[partitionName]
	if !ok {
		byKind = make(map[kind]*barrier)
		m.barriers[partitionName] = byKind
	}
	b, ok := byKind[k]
	if !ok {
		b = newBarrier()
		byKind[k] = b
	}
	return b
}

// WaitDeactivationCompleted blocks until SignalDeactivationComplete or
// AbortDeactivation is called for partitionName, or ctx is canceled.
func (m *Manager) WaitDeactivationCompleted(ctx context.Context, partitionName string) error {
	return m.barrierFor(partitionName, kindDeactivation).wait(ctx)
}

// WaitDisconnectionCompleted blocks until SignalDisconnectionComplete or
// AbortDisconnection is called for partitionName, or ctx is canceled.
func (m *Manager) WaitDisconnectionCompleted(ctx context.Context, partitionName string) error {
	return m.barrierFor(partitionName, kindDisconnection).wait(ctx)
}

// SignalDeactivationComplete releases any waiter blocked in
// WaitDeactivationCompleted for partitionName.
func (m *Manager) SignalDeactivationComplete(partitionName string) {
	m.barrierFor(partitionName, kindDeactivation).resolve(nil)
}

// SignalDisconnectionComplete releases any waiter blocked in
// WaitDisconnectionCompleted for partitionName.
func (m *Manager) SignalDisconnectionComplete(partitionName string) {
	m.barrierFor(partitionName, kindDisconnection).resolve(nil)
}

// AbortDeactivation releases a blocked WaitDeactivationCompleted with an
// error instead of success.
func (m *Manager) AbortDeactivation(partitionName string, cause error) {
	m.barrierFor(partitionName, kindDeactivation).resolve(deactivationError(partitionName, cause))
}

// AbortDisconnection releases a blocked WaitDisconnectionCompleted with an
// error instead of success.
func (m *Manager) AbortDisconnection(partitionName string, cause error) {
	m.barrierFor(partitionName, kindDisconnection).resolve(disconnectionError(partitionName, cause))
}

// Forget drops both barriers for partitionName, allowing a later
// bootstrap of the same partition to start from a clean slate instead of
// replaying a stale barrier's resolution.
func (m *Manager) Forget(partitionName string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.barriers, partitionName)
}

func deactivationError(partitionName string, cause error) error {
	return fmt.Errorf("syncup: deactivation aborted for partition %s: %w", partitionName, cause)
}

func disconnectionError(partitionName string, cause error) error {
	return fmt.Errorf("syncup: disconnection aborted for partition %s: %w", partitionName, cause)
}
