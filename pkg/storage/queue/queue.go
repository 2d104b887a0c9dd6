// Package queue provides a unified abstraction over at-least-once,
// unordered FIFO queues with visibility-timeout-based leasing.
//
// This package defines the core interface the reliable-queue engine
// uses as its notification channel: a message is dequeued with a lease
// (the "handle"), and the receiving side must ack, extend, or release
// the lease before it expires and the backend makes the message
// visible again.
//
// # Architecture
//
// The package follows the adapter pattern used throughout this module:
//   - Queue is defined here with zero external dependencies.
//   - Each backend lives in its own sub-package (pkg/storage/queue/adapters/{driver}).
//   - Callers import only the adapter they need.
//
// # Usage
//
//	import (
//	    "github.com/open-collar/reliablequeue/pkg/storage/queue"
//	    "github.com/open-collar/reliablequeue/pkg/storage/queue/adapters/azservicebus"
//	)
//
//	q, err := azservicebus.New(azservicebus.Config{Namespace: "...", Queue: "reliable-queue-orders"})
//	err = q.Enqueue(ctx, payload)
//	d, err := q.Dequeue(ctx, 30*time.Second)
//	if d != nil {
//	    err = q.Ack(ctx, d.Handle)
//	}
package queue

import (
	"context"
	"time"
)

// Delivery is a single dequeued message together with the lease handle
// needed to ack, extend, or release it.
type Delivery struct {
	// Handle identifies the in-flight lease. Its shape is backend-specific
	// (a lock token for Service Bus, a receipt for SQS-like systems).
	Handle string

	// Payload is the raw message body as enqueued.
	Payload []byte

	// DeliveryCount is how many times the backend has handed out this
	// message (including this delivery).
	DeliveryCount int32
}

// EnqueueOptions configures a single Enqueue call.
type EnqueueOptions struct {
	// Delay defers the message's initial visibility.
	Delay time.Duration

	// DeduplicationID, if the backend supports duplicate detection,
	// suppresses a second enqueue carrying the same ID within the
	// backend's dedup window.
	DeduplicationID string
}

// EnqueueOption mutates EnqueueOptions.
type EnqueueOption func(*EnqueueOptions)

// WithDelay defers the message's initial visibility.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *EnqueueOptions) { o.Delay = d }
}

// WithDeduplicationID sets a backend-level duplicate-detection key.
func WithDeduplicationID(id string) EnqueueOption {
	return func(o *EnqueueOptions) { o.DeduplicationID = id }
}

// Queue abstracts a single at-least-once, unordered FIFO queue with
// leased (visibility-timeout) delivery.
type Queue interface {
	// Enqueue places a new message on the queue.
	Enqueue(ctx context.Context, payload []byte, opts ...EnqueueOption) error

	// Dequeue leases the next available message for visibilityTimeout.
	// Returns (nil, nil) if no message is currently available.
	Dequeue(ctx context.Context, visibilityTimeout time.Duration) (*Delivery, error)

	// Ack permanently removes the leased message.
	Ack(ctx context.Context, handle string) error

	// Extend pushes the lease's expiry further into the future.
	Extend(ctx context.Context, handle string, visibilityTimeout time.Duration) error

	// Release returns the message to the queue without completing it,
	// optionally deferring its next visibility by delay. A zero delay
	// makes the message immediately visible to other dequeuers.
	Release(ctx context.Context, handle string, delay time.Duration) error

	// Close releases resources held by the queue client.
	Close() error
}

// Provisioner is implemented by adapters that can create the backend
// queue resource itself (as opposed to assuming out-of-band provisioning).
type Provisioner interface {
	EnsureQueue(ctx context.Context, name string) error
}
