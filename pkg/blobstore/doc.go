// Package blobstore supplies the concrete data-plane collaborator the
// control plane drives: a directory per replica plus the two crash-safe
// marker files (bootstrap_in_progress, decommission_in_progress) the state
// machine reads and writes directly.
//
// The spec treats the blob store as opaque beyond the operation set in
// types.BlobStore; FileBlobStore implements exactly that set and nothing
// about log segments, indexes, or compaction.
package blobstore
