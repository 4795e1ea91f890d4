package clustermap

import (
	"bytes"
	"io"
)

// memorySnapshotSink is a minimal raft.SnapshotSink backed by a buffer,
// used so fsm.Snapshot's Persist/Restore round trip can be tested without
// a real raft.FileSnapshotStore.
type memorySnapshotSink struct {
	buf bytes.Buffer
}

func newMemorySnapshotSink() *memorySnapshotSink {
	return &memorySnapshotSink{}
}

func (s *memorySnapshotSink) Write(p []byte) (int, error) { return s.buf.Write(p) }
func (s *memorySnapshotSink) Close() error                { return nil }
func (s *memorySnapshotSink) ID() string                  { return "test-snapshot" }
func (s *memorySnapshotSink) Cancel() error                { return nil }

func (s *memorySnapshotSink) reader() io.ReadCloser {
	return io.NopCloser(bytes.NewReader(s.buf.Bytes()))
}
