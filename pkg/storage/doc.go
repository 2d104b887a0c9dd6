/*
Package storage provides unified interfaces for the storage primitives the
reliable-queue engine is built on.

Subpackages:

  - blob: Object/blob storage (Azure Blob, local filesystem, in-memory)
  - queue: At-least-once FIFO queue with leased delivery (Azure Service Bus, in-memory)
  - table: Partition-keyed table with ETag-gated writes (Azure Cosmos DB, in-memory)

Usage:

	import (
		"github.com/open-collar/reliablequeue/pkg/storage/blob"
		"github.com/open-collar/reliablequeue/pkg/storage/blob/adapters/memory"
	)

	store := memory.New(blob.Config{})
	err := store.Upload(ctx, "key", reader)
*/
package storage
