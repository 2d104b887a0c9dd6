// Package table provides a unified interface over partition-keyed table
// stores supporting optimistic-concurrency writes via ETags.
//
// The engine uses a Table to persist MessageRecord and TopicAffinityRecord
// rows: Insert for first-write-wins creation, Replace for compare-and-swap
// updates gated on a previously read ETag, and Query for partition scans
// ordered by row key (spec.md §4.1, §4.6).
//
// # Architecture
//
// Table is defined here with zero external dependencies; each backend
// lives in its own sub-package (pkg/storage/table/adapters/{driver}).
package table

import (
	"context"
)

// Item is a single row. PartitionKey groups rows for range queries
// (a topic, in the engine's usage); RowKey orders rows within a
// partition and must be unique within it. ETag is set by the backend on
// read and must be supplied unchanged to Replace for it to succeed only
// against that exact version.
type Item struct {
	PartitionKey string
	RowKey       string
	ETag         string
	Properties   map[string]any
}

// QueryOptions configures a partition scan.
type QueryOptions struct {
	// PartitionKey restricts the scan to a single partition. Required by
	// most backends (Cosmos DB partitions are the unit of cross-partition
	// query cost).
	PartitionKey string

	// RowKeyPrefix, if set, restricts results to rows whose RowKey has
	// this prefix.
	RowKeyPrefix string

	// Limit caps the number of rows returned; 0 means no cap.
	Limit int
}

// Table abstracts a partition-keyed table store with ETag-gated writes.
type Table interface {
	// Insert creates item. Returns errors.Conflict if a row with the same
	// PartitionKey/RowKey already exists.
	Insert(ctx context.Context, item Item) (*Item, error)

	// Replace overwrites the row at item.PartitionKey/item.RowKey,
	// succeeding only if its current ETag matches item.ETag. Returns
	// errors.Conflict on an ETag mismatch and errors.NotFound if the row
	// does not exist.
	Replace(ctx context.Context, item Item) (*Item, error)

	// Get retrieves a single row. Returns errors.NotFound if absent.
	Get(ctx context.Context, partitionKey, rowKey string) (*Item, error)

	// Query returns rows within a partition ordered by RowKey ascending.
	Query(ctx context.Context, opts QueryOptions) ([]*Item, error)

	// Delete removes a row unconditionally. Returns errors.NotFound if
	// absent.
	Delete(ctx context.Context, partitionKey, rowKey string) error

	// Close releases resources held by the table client.
	Close() error
}

// Provisioner is implemented by adapters that can create the backend
// container/table resource itself.
type Provisioner interface {
	EnsureTable(ctx context.Context, name, partitionKeyPath string) error
}
