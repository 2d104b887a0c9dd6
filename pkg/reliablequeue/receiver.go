package reliablequeue

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/open-collar/reliablequeue/pkg/concurrency"
	"github.com/open-collar/reliablequeue/pkg/events"
	"github.com/open-collar/reliablequeue/pkg/logger"
	"github.com/open-collar/reliablequeue/pkg/storage/blob"
	"github.com/open-collar/reliablequeue/pkg/storage/queue"
	"github.com/open-collar/reliablequeue/pkg/storage/table"
)

// Handler processes a single delivered message. Handled must be set true
// only once the message has been durably acted upon by the caller;
// returning an error or Handled=false routes the record through a nack
// (retry or poison) (spec.md §4.5).
type Handler func(ctx context.Context, d Delivery) (handled bool, err error)

// Delivery is what a Handler observes for one message (spec.md §6.4).
type Delivery struct {
	Topic    Topic
	Body     []byte
	Metadata map[string]string
}

// Subscription represents a running Receiver worker loop. Cancel stops it;
// Wait blocks until it has stopped.
type Subscription struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Wait blocks until the worker loop has fully stopped.
func (s *Subscription) Wait() { <-s.done }

// Cancel stops the worker loop; in-flight handlers run to completion.
func (s *Subscription) Cancel() { s.cancel() }

// Receiver dequeues notifications, leases the corresponding record,
// consults the OrderingEngine, invokes the handler, and drives the
// record's state transition (spec.md §4.5).
type Receiver struct {
	queueKey   QueueKey
	cfg        QueueConfig
	endpointID string

	blobStore  blob.Store
	stateTable table.Table
	topicTable table.Table
	notifyQ    queue.Queue

	sm       *StateMachine
	ordering *OrderingEngine

	sem      *concurrency.Semaphore
	eventBus events.Bus
}

// SetEventBus attaches an optional domain-event publisher. Unset by
// default, in which case delivery outcomes publish nothing.
func (r *Receiver) SetEventBus(bus events.Bus) { r.eventBus = bus }

func (r *Receiver) publish(ctx context.Context, eventType string, record *MessageRecord) {
	if r.eventBus == nil {
		return
	}
	_ = r.eventBus.Publish(ctx, eventType, events.Event{
		Type:      eventType,
		Source:    r.queueKey.Display(),
		Timestamp: time.Now().UTC(),
		Payload: map[string]any{
			"message_id": record.MessageID,
			"topic":      record.Topic.Display(),
			"attempts":   record.Attempts,
		},
	})
}

// NewReceiver constructs a Receiver bound to a single queue's backend
// resources. endpointID identifies this process/node for leasing and
// topic-affinity purposes.
func NewReceiver(queueKey QueueKey, cfg QueueConfig, endpointID string, blobStore blob.Store, stateTable, topicTable table.Table, notifyQ queue.Queue, ordering *OrderingEngine) *Receiver {
	return &Receiver{
		queueKey:   queueKey,
		cfg:        cfg,
		endpointID: endpointID,
		blobStore:  blobStore,
		stateTable: stateTable,
		topicTable: topicTable,
		notifyQ:    notifyQ,
		sm:         NewStateMachine(cfg.MaxAttempts),
		ordering:   ordering,
		sem:        concurrency.NewSemaphore(int64(cfg.MaxConcurrentDeliveries)),
	}
}

// Subscribe starts the pull-loop worker (only meaningful when
// CreateListener=true and Mode permits receive): a single dequeue loop
// feeding a bounded pool of concurrent handler invocations (spec.md §4.5,
// §5 backpressure).
func (r *Receiver) Subscribe(ctx context.Context, handler Handler) (*Subscription, error) {
	if !r.cfg.CreateListener {
		return nil, ErrCreateListenerDisabled(r.queueKey.Display())
	}
	if !r.cfg.Mode.permitsReceive() {
		return nil, ErrModeDoesNotPermitReceive(r.queueKey.Display())
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		var wg sync.WaitGroup
		defer wg.Wait()

		visibility := r.cfg.DefaultTimeout
		for {
			select {
			case <-ctx.Done():
				return
			default:
			}

			d, err := r.notifyQ.Dequeue(ctx, visibility)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.L().ErrorContext(ctx, "receiver dequeue failed", "queue", r.queueKey.Display(), "error", err)
				continue
			}
			if d == nil {
				// Adapters that don't block (e.g. memory) would otherwise
				// spin this loop hot; a short idle backoff costs nothing
				// against adapters that do block.
				select {
				case <-ctx.Done():
					return
				case <-time.After(10 * time.Millisecond):
				}
				continue
			}

			if err := r.sem.Acquire(ctx, 1); err != nil {
				return
			}
			wg.Add(1)
			go func(delivery *queue.Delivery) {
				defer wg.Done()
				defer r.sem.Release(1)
				r.handleNotification(ctx, delivery, handler)
			}(d)
		}
	}()

	return &Subscription{cancel: cancel, done: done}, nil
}

// OnReceived implements the external push path: an environment without a
// listener invokes this directly with a dequeued notification handle and
// payload (spec.md §4.5, §6.4).
func (r *Receiver) OnReceived(ctx context.Context, d *queue.Delivery, handler Handler) error {
	if !r.cfg.Mode.permitsReceive() {
		return ErrModeDoesNotPermitReceive(r.queueKey.Display())
	}
	r.handleNotification(ctx, d, handler)
	return nil
}

// handleNotification implements the per-notification steps of spec.md
// §4.5's worker loop (steps 2-7).
func (r *Receiver) handleNotification(ctx context.Context, d *queue.Delivery, handler Handler) {
	var notification Notification
	if err := notification.UnmarshalJSON(d.Payload); err != nil {
		logger.L().ErrorContext(ctx, "dropping malformed notification", "error", err)
		_ = r.notifyQ.Ack(ctx, d.Handle)
		return
	}

	now := time.Now().UTC()
	partition := topicPartition(notification.Topic)

	item, err := r.stateTable.Get(ctx, partition, notification.MessageID)
	if err != nil {
		// Missing record: ack and move on (spec.md §4.5 step 2).
		_ = r.notifyQ.Ack(ctx, d.Handle)
		return
	}
	record, err := itemToRecord(item)
	if err != nil {
		_ = r.notifyQ.Ack(ctx, d.Handle)
		return
	}
	if record.State.IsTerminal() {
		_ = r.notifyQ.Ack(ctx, d.Handle)
		return
	}

	affinity, _ := r.getAffinity(ctx, notification.Topic)
	if r.ordering.AffinityDecision(affinity, r.endpointID, now) == Defer {
		r.defer_(ctx, d)
		return
	}

	switch r.ordering.Admit(notification.Topic, notification.Sequence, record.State.IsTerminal(), now) {
	case Defer:
		r.defer_(ctx, d)
		return
	case Drop:
		_ = r.notifyQ.Ack(ctx, d.Handle)
		return
	}

	if err := r.sm.Claim(record, r.endpointID, now, r.cfg.DefaultTimeout); err != nil {
		// Someone else claimed it first; this node steps aside.
		_ = r.notifyQ.Ack(ctx, d.Handle)
		return
	}
	if err := Replace(ctx, r.stateTable, record); err != nil {
		// Lost the conditional race to another claimant.
		_ = r.notifyQ.Ack(ctx, d.Handle)
		return
	}

	renewalDone := make(chan struct{})
	go r.renewLease(ctx, d, record, renewalDone)
	defer close(renewalDone)

	if err := r.sm.BeginProcessing(record); err != nil {
		_ = Replace(ctx, r.stateTable, record)
		_ = r.notifyQ.Ack(ctx, d.Handle)
		return
	}
	if err := Replace(ctx, r.stateTable, record); err != nil {
		_ = r.notifyQ.Ack(ctx, d.Handle)
		return
	}

	body, err := r.readBody(ctx, record.BodyBlobPath)
	if err != nil {
		r.nack(ctx, record, d)
		return
	}

	handled, handlerErr := handler(ctx, Delivery{Topic: notification.Topic, Body: body, Metadata: record.Metadata})
	if handlerErr != nil || !handled {
		r.nack(ctx, record, d)
		return
	}

	if err := r.sm.Ack(record); err != nil {
		r.nack(ctx, record, d)
		return
	}
	if err := Replace(ctx, r.stateTable, record); err != nil {
		logger.L().WarnContext(ctx, "ack replace lost race, record already mutated elsewhere", "message_id", record.MessageID, "error", err)
	}
	r.publish(ctx, "message.delivered", record)

	r.refreshAffinity(ctx, notification.Topic, now)

	// Best-effort: the Janitor covers any orphan left by a failed delete.
	_ = r.blobStore.Delete(ctx, record.BodyBlobPath)
	_ = r.notifyQ.Ack(ctx, d.Handle)
}

func (r *Receiver) nack(ctx context.Context, record *MessageRecord, d *queue.Delivery) {
	poisoned, err := r.sm.Nack(record)
	if err != nil {
		_ = r.notifyQ.Ack(ctx, d.Handle)
		return
	}
	if err := Replace(ctx, r.stateTable, record); err != nil {
		logger.L().WarnContext(ctx, "nack replace lost race", "message_id", record.MessageID, "error", err)
	}
	if poisoned {
		logger.L().WarnContext(ctx, "message poisoned", "message_id", record.MessageID, "attempts", record.Attempts)
		r.publish(ctx, "message.poisoned", record)
	}
	_ = r.notifyQ.Ack(ctx, d.Handle)
}

// defer_ implements spec.md §4.5 step 3's "no" branch: release the
// notification with a short visibility delay so another dequeue reassesses
// it later. Named with a trailing underscore since "defer" is a keyword.
func (r *Receiver) defer_(ctx context.Context, d *queue.Delivery) {
	_ = r.notifyQ.Release(ctx, d.Handle, 200*time.Millisecond)
}

func (r *Receiver) readBody(ctx context.Context, path string) ([]byte, error) {
	rc, err := r.blobStore.Download(ctx, path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// renewLease extends the record's lease and the notification's visibility
// at half the lease duration until done is closed (spec.md §4.5 step 8,
// §5 "lease renewal runs at ½ of lease duration").
func (r *Receiver) renewLease(ctx context.Context, d *queue.Delivery, record *MessageRecord, done <-chan struct{}) {
	interval := r.cfg.DefaultTimeout / 2
	if interval <= 0 {
		interval = 5 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now().UTC()
			record.Lease.LeaseExpiresAt = now.Add(r.cfg.DefaultTimeout)
			if err := Replace(ctx, r.stateTable, record); err != nil {
				return
			}
			_ = r.notifyQ.Extend(ctx, d.Handle, r.cfg.DefaultTimeout)
		}
	}
}

func (r *Receiver) getAffinity(ctx context.Context, topic Topic) (*TopicAffinityRecord, error) {
	item, err := r.topicTable.Get(ctx, topicPartition(topic), affinityRowKey)
	if err != nil {
		return nil, err
	}
	return itemToAffinity(r.queueKey, topic, item), nil
}

func (r *Receiver) refreshAffinity(ctx context.Context, topic Topic, now time.Time) {
	record := &TopicAffinityRecord{
		QueueKey:            r.queueKey,
		Topic:               topic,
		LastOwnerEndpointID: r.endpointID,
		LastActivityAt:      now,
		ExpiresAt:           now.Add(r.cfg.TopicAffinityTtl),
	}

	partition := topicPartition(topic)
	existing, err := r.topicTable.Get(ctx, partition, affinityRowKey)
	if err != nil {
		_, _ = r.topicTable.Insert(ctx, affinityToItem(record, ""))
		return
	}
	_, _ = r.topicTable.Replace(ctx, affinityToItem(record, existing.ETag))
}
