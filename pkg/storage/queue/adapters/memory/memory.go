// Package memory provides an in-memory queue.Queue implementation with
// exact delay semantics and test-driven lease expiry (a leased message
// becomes visible again only when ExpireLeases is called), used by the reliable-queue
// engine's test suite to exercise sliding-window and redelivery scenarios
// deterministically (spec.md §8 scenarios S2/S3).
package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/open-collar/reliablequeue/pkg/storage/queue"
)

type message struct {
	id            string
	payload       []byte
	dedupID       string
	deliveryCount int32

	visibleAt time.Time // message is eligible for Dequeue once now >= visibleAt
	handle    string    // non-empty while leased
	leaseUntil time.Time
}

// Queue is an in-memory, goroutine-safe queue.Queue.
type Queue struct {
	mu      sync.Mutex
	order   *list.List // of *message, FIFO arrival order
	byID    map[string]*list.Element
	leased  map[string]*list.Element // handle -> element
	dedup   map[string]time.Time     // dedup id -> expiry
	closed  bool

	// Clock allows tests to control time; defaults to time.Now.
	Clock func() time.Time

	// DedupWindow is how long a DeduplicationID suppresses repeat enqueues.
	DedupWindow time.Duration
}

// New creates an empty in-memory queue.
func New() *Queue {
	return &Queue{
		order:       list.New(),
		byID:        make(map[string]*list.Element),
		leased:      make(map[string]*list.Element),
		dedup:       make(map[string]time.Time),
		Clock:       time.Now,
		DedupWindow: 5 * time.Minute,
	}
}

func (q *Queue) now() time.Time { return q.Clock() }

func (q *Queue) Enqueue(ctx context.Context, payload []byte, opts ...queue.EnqueueOption) error {
	o := queue.EnqueueOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return queue.ErrClosed()
	}

	now := q.now()
	if o.DeduplicationID != "" {
		if expiry, ok := q.dedup[o.DeduplicationID]; ok && now.Before(expiry) {
			return nil
		}
		q.dedup[o.DeduplicationID] = now.Add(q.DedupWindow)
	}

	body := make([]byte, len(payload))
	copy(body, payload)

	m := &message{
		id:        uuid.NewString(),
		payload:   body,
		dedupID:   o.DeduplicationID,
		visibleAt: now.Add(o.Delay),
	}
	el := q.order.PushBack(m)
	q.byID[m.id] = el
	return nil
}

func (q *Queue) Dequeue(ctx context.Context, visibilityTimeout time.Duration) (*queue.Delivery, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, queue.ErrClosed()
	}

	now := q.now()
	for el := q.order.Front(); el != nil; el = el.Next() {
		m := el.Value.(*message)
		if m.handle != "" {
			continue // already leased
		}
		if m.visibleAt.After(now) {
			continue // delayed / not yet visible
		}

		m.handle = uuid.NewString()
		m.leaseUntil = now.Add(visibilityTimeout)
		m.deliveryCount++
		q.leased[m.handle] = el

		body := make([]byte, len(m.payload))
		copy(body, m.payload)
		return &queue.Delivery{
			Handle:        m.handle,
			Payload:       body,
			DeliveryCount: m.deliveryCount,
		}, nil
	}
	return nil, nil
}

func (q *Queue) Ack(ctx context.Context, handle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return queue.ErrClosed()
	}

	el, ok := q.leased[handle]
	if !ok {
		return queue.ErrLeaseExpired(nil)
	}
	delete(q.leased, handle)
	m := el.Value.(*message)
	delete(q.byID, m.id)
	q.order.Remove(el)
	return nil
}

func (q *Queue) Extend(ctx context.Context, handle string, visibilityTimeout time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return queue.ErrClosed()
	}

	el, ok := q.leased[handle]
	if !ok {
		return queue.ErrLeaseExpired(nil)
	}
	m := el.Value.(*message)
	m.leaseUntil = q.now().Add(visibilityTimeout)
	return nil
}

func (q *Queue) Release(ctx context.Context, handle string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return queue.ErrClosed()
	}

	el, ok := q.leased[handle]
	if !ok {
		return queue.ErrLeaseExpired(nil)
	}
	delete(q.leased, handle)
	m := el.Value.(*message)
	m.handle = ""
	m.visibleAt = q.now().Add(delay)
	return nil
}

func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	return nil
}

// ExpireLeases sweeps leased messages whose lease has passed now, making
// them visible again with handle cleared. Tests drive this explicitly since
// the in-memory adapter has no background goroutine; the azservicebus
// adapter's visibility timeout is enforced server-side.
func (q *Queue) ExpireLeases(now time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for handle, el := range q.leased {
		m := el.Value.(*message)
		if !m.leaseUntil.After(now) {
			delete(q.leased, handle)
			m.handle = ""
			m.visibleAt = now
		}
	}
}

// Len returns the number of messages currently held (leased or not).
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.order.Len()
}
