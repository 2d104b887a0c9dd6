package reliablequeue

import (
	"context"
	"time"

	"github.com/open-collar/reliablequeue/pkg/events"
	"github.com/open-collar/reliablequeue/pkg/logger"
	"github.com/open-collar/reliablequeue/pkg/storage/blob"
	"github.com/open-collar/reliablequeue/pkg/storage/queue"
	"github.com/open-collar/reliablequeue/pkg/storage/table"
)

// Janitor runs the periodic per-queue sweeps from spec.md §4.8: TTL
// expiry, abandoned-lease reclaim, orphan-notification re-enqueue, and
// orphan-blob deletion. It holds no in-process lock beyond what
// OrderingEngine already serializes; every mutation is a conditional
// replace on the record it touches.
type Janitor struct {
	queueKey   QueueKey
	cfg        QueueConfig
	sm         *StateMachine
	blobStore  blob.Store
	stateTable table.Table
	topicTable table.Table
	notifyQ    queue.Queue

	// NotifyOrphanThreshold is how long a Queued record may sit without a
	// fresh notification before the Janitor assumes the original enqueue
	// was lost and re-enqueues one (spec.md §4.4 "Partial failure").
	NotifyOrphanThreshold time.Duration

	// BlobOrphanGrace is how long past its ExpiresAt a terminal record's
	// blob is kept before deletion, to tolerate the Receiver's own
	// best-effort delete racing this sweep. Only blobs of records still
	// present in the state table are swept; a blob whose record is missing
	// is not deleted.
	BlobOrphanGrace time.Duration

	eventBus events.Bus
}

// SetEventBus attaches an optional domain-event publisher. Unset by
// default, in which case sweeps publish nothing.
func (j *Janitor) SetEventBus(bus events.Bus) { j.eventBus = bus }

func (j *Janitor) publish(ctx context.Context, eventType string, record *MessageRecord) {
	if j.eventBus == nil {
		return
	}
	_ = j.eventBus.Publish(ctx, eventType, events.Event{
		Type:      eventType,
		Source:    j.queueKey.Display(),
		Timestamp: time.Now().UTC(),
		Payload: map[string]any{
			"message_id": record.MessageID,
			"topic":      record.Topic.Display(),
			"attempts":   record.Attempts,
		},
	})
}

// NewJanitor constructs a Janitor bound to a single queue's backend
// resources.
func NewJanitor(queueKey QueueKey, cfg QueueConfig, blobStore blob.Store, stateTable, topicTable table.Table, notifyQ queue.Queue) *Janitor {
	return &Janitor{
		queueKey:              queueKey,
		cfg:                   cfg,
		sm:                    NewStateMachine(cfg.MaxAttempts),
		blobStore:             blobStore,
		stateTable:            stateTable,
		topicTable:            topicTable,
		notifyQ:               notifyQ,
		NotifyOrphanThreshold: cfg.DefaultTimeout * 4,
		BlobOrphanGrace:       cfg.MessageTimeToLive,
	}
}

// Run performs one full sweep across every topic partition present in the
// state table. Callers typically invoke this from a ticker.
func (j *Janitor) Run(ctx context.Context, topics []Topic) {
	now := time.Now().UTC()
	for _, topic := range topics {
		items, err := j.stateTable.Query(ctx, table.QueryOptions{PartitionKey: topicPartition(topic)})
		if err != nil {
			logger.L().ErrorContext(ctx, "janitor query failed", "queue", j.queueKey.Display(), "topic", topic.Display(), "error", err)
			continue
		}

		for _, item := range items {
			record, err := itemToRecord(item)
			if err != nil {
				continue
			}
			j.sweepRecord(ctx, record, now)
		}

		j.sweepAffinity(ctx, topic, now)
	}
}

func (j *Janitor) sweepRecord(ctx context.Context, record *MessageRecord, now time.Time) {
	// TTL expiry.
	if !record.State.IsTerminal() && !record.ExpiresAt.After(now) {
		if err := j.sm.ExpireTTL(record, now); err == nil {
			if err := Replace(ctx, j.stateTable, record); err != nil {
				logger.L().WarnContext(ctx, "janitor ttl-expire replace lost race", "message_id", record.MessageID, "error", err)
				return
			}
			_ = j.blobStore.Delete(ctx, record.BodyBlobPath)
			j.publish(ctx, "message.expired", record)
		}
		return
	}

	// Lease reclaim.
	if (record.State == StateClaimed || record.State == StateProcessing) && !record.Lease.LeaseExpiresAt.After(now) {
		if err := j.sm.ReclaimExpiredLease(record, now); err == nil {
			if err := Replace(ctx, j.stateTable, record); err != nil {
				logger.L().WarnContext(ctx, "janitor lease-reclaim replace lost race", "message_id", record.MessageID, "error", err)
				return
			}
			j.reenqueue(ctx, record)
			j.publish(ctx, "message.lease_reclaimed", record)
		}
		return
	}

	// Notify-orphan: Queued with no recent activity gets a fresh notification.
	if record.State == StateQueued && now.Sub(record.LastAttemptedAt) >= j.NotifyOrphanThreshold {
		j.reenqueue(ctx, record)
		return
	}

	// Blob orphans: terminal record whose blob has outlived its grace period.
	if record.State.IsTerminal() && record.BodyBlobPath != "" && now.Sub(record.ExpiresAt) >= j.BlobOrphanGrace {
		_ = j.blobStore.Delete(ctx, record.BodyBlobPath)
	}
}

func (j *Janitor) reenqueue(ctx context.Context, record *MessageRecord) {
	notification := Notification{
		QueueKey:    j.queueKey,
		MessageID:   record.MessageID,
		Topic:       record.Topic,
		Sequence:    record.SequenceNumber,
		AttemptHint: record.Attempts,
	}
	payload, err := notification.MarshalJSON()
	if err != nil {
		return
	}
	if err := j.notifyQ.Enqueue(ctx, payload); err != nil {
		logger.L().ErrorContext(ctx, "janitor re-enqueue failed", "message_id", record.MessageID, "error", err)
	}
}

// sweepAffinity removes an affinity row once it has expired (spec.md
// §4.8 "Affinity expiry").
func (j *Janitor) sweepAffinity(ctx context.Context, topic Topic, now time.Time) {
	partition := topicPartition(topic)
	item, err := j.topicTable.Get(ctx, partition, affinityRowKey)
	if err != nil {
		return
	}
	affinity := itemToAffinity(j.queueKey, topic, item)
	if !affinity.ExpiresAt.After(now) {
		_ = j.topicTable.Delete(ctx, partition, affinityRowKey)
	}
}
