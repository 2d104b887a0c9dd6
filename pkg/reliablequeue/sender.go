package reliablequeue

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/open-collar/reliablequeue/pkg/storage/blob"
	"github.com/open-collar/reliablequeue/pkg/storage/queue"
	"github.com/open-collar/reliablequeue/pkg/storage/table"
)

// SendOptions configures a single send() call.
type SendOptions struct {
	Topic       string
	ContentType string
	Metadata    map[string]string
	Timeout     time.Duration
}

// Sender serializes a message body to blob, inserts its MessageRecord in
// Queued, and enqueues a Notification (spec.md §4.4).
type Sender struct {
	queueKey   QueueKey
	cfg        QueueConfig
	blobStore  blob.Store
	stateTable table.Table
	topicTable table.Table
	notifyQ    queue.Queue
}

// NewSender constructs a Sender bound to a single queue's backend
// resources.
func NewSender(queueKey QueueKey, cfg QueueConfig, blobStore blob.Store, stateTable, topicTable table.Table, notifyQ queue.Queue) *Sender {
	return &Sender{
		queueKey:   queueKey,
		cfg:        cfg,
		blobStore:  blobStore,
		stateTable: stateTable,
		topicTable: topicTable,
		notifyQ:    notifyQ,
	}
}

// Send implements spec.md §4.4's send operation.
func (s *Sender) Send(ctx context.Context, body []byte, opts SendOptions) (string, error) {
	if !s.cfg.IsEnabled {
		return "", ErrQueueDisabled(s.queueKey.Display())
	}
	if !s.cfg.Mode.permitsSend() {
		return "", ErrModeDoesNotPermitSend(s.queueKey.Display())
	}
	if s.cfg.MaxPayloadBytes > 0 && len(body) > s.cfg.MaxPayloadBytes {
		return "", ErrPayloadTooLarge(len(body), s.cfg.MaxPayloadBytes)
	}
	if err := validateMetadata(opts.Metadata); err != nil {
		return "", err
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.cfg.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	topic := NewTopic(opts.Topic)
	messageID := uuid.NewString()
	now := time.Now().UTC()

	sequence, err := nextSequence(ctx, s.topicTable, topic)
	if err != nil {
		return "", err
	}

	bodyPath := messageID
	if err := s.blobStore.Upload(ctx, bodyPath, bytes.NewReader(body)); err != nil {
		return "", err
	}

	record := &MessageRecord{
		MessageID:       messageID,
		QueueKey:        s.queueKey,
		Topic:           topic,
		SequenceNumber:  sequence,
		State:           StateQueued,
		Attempts:        0,
		LastAttemptedAt: now,
		CreatedAt:       now,
		ExpiresAt:       now.Add(s.cfg.MessageTimeToLive),
		BodyBlobPath:    bodyPath,
		SizeBytes:       int64(len(body)),
		ContentType:     opts.ContentType,
		Metadata:        opts.Metadata,
	}

	if err := Insert(ctx, s.stateTable, record); err != nil {
		return "", err
	}

	notification := Notification{
		QueueKey:  s.queueKey,
		MessageID: messageID,
		Topic:     topic,
		Sequence:  sequence,
	}
	payload, err := notification.MarshalJSON()
	if err != nil {
		return "", err
	}

	// Partial failure: if this enqueue fails, the record stays Queued and
	// the Janitor's notify-orphan sweep re-enqueues it later (spec.md §4.4).
	if err := s.notifyQ.Enqueue(ctx, payload, queue.WithDeduplicationID(messageID)); err != nil {
		return messageID, nil
	}

	return messageID, nil
}

// nextSequence performs the sender's atomic nextSequence(queueKey, topic)
// against a dedicated per-(queue,topic) counter row via a conditional
// replace loop (spec.md §4.4). Gaps may occur if a sender crashes after
// obtaining a sequence and before inserting the record; OrderingEngine
// tolerates gaps (spec.md §4.6, §9 Open Question (a)).
func nextSequence(ctx context.Context, topicTable table.Table, topic Topic) (int64, error) {
	partition := topicPartition(topic)

	for {
		existing, err := topicTable.Get(ctx, partition, sequenceCounterRowKey)
		if err != nil {
			if errIsNotFound(err) {
				item, insertErr := topicTable.Insert(ctx, table.Item{
					PartitionKey: partition,
					RowKey:       sequenceCounterRowKey,
					Properties:   map[string]any{"value": int64(1)},
				})
				if insertErr != nil {
					if errIsConflict(insertErr) {
						continue // lost the race to another sender; re-read
					}
					return 0, insertErr
				}
				_ = item
				return 1, nil
			}
			return 0, err
		}

		current := int64Prop(existing.Properties, "value")
		next := current + 1

		_, err = topicTable.Replace(ctx, table.Item{
			PartitionKey: partition,
			RowKey:       sequenceCounterRowKey,
			ETag:         existing.ETag,
			Properties:   map[string]any{"value": next},
		})
		if err != nil {
			if errIsConflict(err) {
				continue // concurrent sender won; retry with fresh read
			}
			return 0, err
		}
		return next, nil
	}
}
