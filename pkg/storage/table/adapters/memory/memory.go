// Package memory provides an in-memory table.Table implementation with
// exact ETag-based optimistic concurrency, used by the reliable-queue
// engine's test suite.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"

	"github.com/open-collar/reliablequeue/pkg/storage/table"
)

type row struct {
	item    table.Item
	version int64
}

// Table is an in-memory, goroutine-safe table.Table.
type Table struct {
	mu     sync.Mutex
	rows   map[string]map[string]*row // partitionKey -> rowKey -> row
	closed bool
}

// New creates an empty in-memory table.
func New() *Table {
	return &Table{rows: make(map[string]map[string]*row)}
}

func etagFor(version int64) string {
	return strconv.FormatInt(version, 10)
}

func (t *Table) Insert(ctx context.Context, item table.Item) (*table.Item, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, table.ErrClosed()
	}

	partition, ok := t.rows[item.PartitionKey]
	if !ok {
		partition = make(map[string]*row)
		t.rows[item.PartitionKey] = partition
	}

	if _, exists := partition[item.RowKey]; exists {
		return nil, table.ErrAlreadyExists(item.PartitionKey, item.RowKey)
	}

	stored := cloneItem(item)
	stored.ETag = etagFor(1)
	partition[item.RowKey] = &row{item: stored, version: 1}

	out := cloneItem(stored)
	return &out, nil
}

func (t *Table) Replace(ctx context.Context, item table.Item) (*table.Item, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, table.ErrClosed()
	}

	partition, ok := t.rows[item.PartitionKey]
	if !ok {
		return nil, table.ErrNotFound(item.PartitionKey, item.RowKey, nil)
	}
	existing, ok := partition[item.RowKey]
	if !ok {
		return nil, table.ErrNotFound(item.PartitionKey, item.RowKey, nil)
	}
	if item.ETag != "" && item.ETag != existing.item.ETag {
		return nil, table.ErrETagMismatch(item.PartitionKey, item.RowKey)
	}

	newVersion := existing.version + 1
	stored := cloneItem(item)
	stored.ETag = etagFor(newVersion)
	partition[item.RowKey] = &row{item: stored, version: newVersion}

	out := cloneItem(stored)
	return &out, nil
}

func (t *Table) Get(ctx context.Context, partitionKey, rowKey string) (*table.Item, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, table.ErrClosed()
	}

	partition, ok := t.rows[partitionKey]
	if !ok {
		return nil, table.ErrNotFound(partitionKey, rowKey, nil)
	}
	r, ok := partition[rowKey]
	if !ok {
		return nil, table.ErrNotFound(partitionKey, rowKey, nil)
	}

	out := cloneItem(r.item)
	return &out, nil
}

func (t *Table) Query(ctx context.Context, opts table.QueryOptions) ([]*table.Item, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, table.ErrClosed()
	}

	partition := t.rows[opts.PartitionKey]
	rowKeys := make([]string, 0, len(partition))
	for k := range partition {
		rowKeys = append(rowKeys, k)
	}
	sort.Strings(rowKeys)

	var results []*table.Item
	for _, k := range rowKeys {
		if opts.RowKeyPrefix != "" && !hasPrefix(k, opts.RowKeyPrefix) {
			continue
		}
		out := cloneItem(partition[k].item)
		results = append(results, &out)
		if opts.Limit > 0 && len(results) >= opts.Limit {
			break
		}
	}
	return results, nil
}

func (t *Table) Delete(ctx context.Context, partitionKey, rowKey string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return table.ErrClosed()
	}

	partition, ok := t.rows[partitionKey]
	if !ok {
		return table.ErrNotFound(partitionKey, rowKey, nil)
	}
	if _, ok := partition[rowKey]; !ok {
		return table.ErrNotFound(partitionKey, rowKey, nil)
	}
	delete(partition, rowKey)
	return nil
}

func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// EnsureTable is a no-op for the in-memory backend.
func (t *Table) EnsureTable(ctx context.Context, name, partitionKeyPath string) error {
	return nil
}

func cloneItem(item table.Item) table.Item {
	props := make(map[string]any, len(item.Properties))
	for k, v := range item.Properties {
		props[k] = v
	}
	item.Properties = props
	return item
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}
