// Package blob provides a unified interface over object/blob storage.
//
// The engine stores each message's body as a blob object keyed by message
// ID (spec.md §3 BlobObject, §4.4), keeping the table-store row small and
// within the backend's per-item size limit.
//
// Supported backends:
//   - Memory: in-memory store for testing
//   - Local: local filesystem store for development
//   - Azure Blob Storage: production backend (adapters/azureblob)
package blob

import (
	"context"
	"io"
	"time"
)

// Config configures a blob store adapter.
type Config struct {
	// Driver selects the backend ("memory", "local", "azure").
	Driver string `env:"BLOB_DRIVER" env-default:"memory"`

	// LocalDir is the root directory for the local filesystem backend.
	LocalDir string `env:"BLOB_LOCAL_DIR" env-default:"./data/blobs"`

	// AccountName is the Azure Storage account for the azureblob backend.
	AccountName string `env:"BLOB_AZURE_ACCOUNT"`

	// Container is the container/bucket name blobs are written under.
	Container string `env:"BLOB_CONTAINER" env-default:"reliable-queue-bodies"`

	// Timeout bounds a single Upload/Download/Delete call.
	Timeout time.Duration `env:"BLOB_TIMEOUT" env-default:"30s"`
}

// Store abstracts a key-addressed blob store.
type Store interface {
	// Upload writes data under key, replacing any existing object.
	Upload(ctx context.Context, key string, data io.Reader) error

	// Download returns a reader for the object at key. The caller must
	// close it. Returns errors.NotFound if the object does not exist.
	Download(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object at key. Returns errors.NotFound if the
	// object does not exist.
	Delete(ctx context.Context, key string) error

	// URL returns a backend-specific locator for key, for diagnostics.
	URL(key string) string
}
