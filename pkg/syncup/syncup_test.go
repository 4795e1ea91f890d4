package syncup

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestManager_SignalBeforeWait(t *testing.T) {
	m := New()
	m.SignalDeactivationComplete("partition-a")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := m.WaitDeactivationCompleted(ctx, "partition-a"); err != nil {
		t.Fatalf("WaitDeactivationCompleted() error = %v", err)
	}
}

func TestManager_WaitThenSignal(t *testing.T) {
	m := New()
	errCh := make(chan error, 1)
	go func() {
		errCh <- m.WaitDisconnectionCompleted(context.Background(), "partition-a")
	}()

	time.Sleep(10 * time.Millisecond)
	m.SignalDisconnectionComplete("partition-a")

	select {
	case err := <-errCh:
		if err != nil {
			t.Fatalf("WaitDisconnectionCompleted() error = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for barrier to resolve")
	}
}

func TestManager_Abort(t *testing.T) {
	m := New()
	cause := errors.New("replication fell behind")
	m.AbortDeactivation("partition-a", cause)

	err := m.WaitDeactivationCompleted(context.Background(), "partition-a")
	if err == nil {
		t.Fatal("expected error from aborted barrier")
	}
	if !errors.Is(err, cause) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
}

func TestManager_ContextCancellation(t *testing.T) {
	m := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := m.WaitDeactivationCompleted(ctx, "partition-a"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestManager_DeactivationAndDisconnectionAreIndependent(t *testing.T) {
	m := New()
	m.SignalDeactivationComplete("partition-a")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := m.WaitDisconnectionCompleted(ctx, "partition-a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected disconnection wait to still block, got %v", err)
	}
}

func TestManager_Forget(t *testing.T) {
	m := New()
	m.SignalDeactivationComplete("partition-a")
	m.Forget("partition-a")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := m.WaitDeactivationCompleted(ctx, "partition-a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected fresh barrier after Forget to block, got %v", err)
	}
}
