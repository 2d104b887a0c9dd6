package reliablequeue

import (
	"time"

	"github.com/open-collar/reliablequeue/pkg/storage/table"
)

// Storage schema naming, bit-exact per spec.md §6.2 so that existing
// stored data remains addressable under a reimplementation.

// BlobContainerName returns the blob container name for queueKey.
func BlobContainerName(queueKey QueueKey) string {
	return "reliable-queue-body-" + queueKey.Identifier()
}

// QueueName returns the backend FIFO queue name for queueKey.
func QueueName(queueKey QueueKey) string {
	return "reliable-queue-" + queueKey.Identifier()
}

// StateTableName returns the MessageRecord table name for queueKey.
func StateTableName(queueKey QueueKey) string {
	return "ReliableQueueState" + queueKey.TableIdentifier()
}

// TopicTableName returns the TopicAffinityRecord table name for queueKey.
func TopicTableName(queueKey QueueKey) string {
	return "ReliableQueueTopic" + queueKey.TableIdentifier()
}

// affinityRowKey is the fixed row key every TopicAffinityRecord is stored
// under within its topic partition (spec.md §6.2).
const affinityRowKey = "_affinity"

// sequenceCounterRowKey is the fixed row key the Sender's per-(queue,topic)
// sequence counter is stored under, alongside affinity, in the topic table
// (expansion: spec.md §4.4 requires a dedicated counter row but does not
// name its schema; colocating it in the topic table keeps the state table
// limited to MessageRecord rows as §6.2 specifies).
const sequenceCounterRowKey = "_sequence"

func topicPartition(topic Topic) string {
	if topic.IsDefault() {
		return "_default"
	}
	return topic.Identifier()
}

// recordToItem projects a MessageRecord onto a table.Item for the state
// table: partition = topic identifier (or "_default"), row = messageId.
func recordToItem(r *MessageRecord) table.Item {
	metadata := make(map[string]any, len(r.Metadata))
	for k, v := range r.Metadata {
		metadata[k] = v
	}

	return table.Item{
		PartitionKey: topicPartition(r.Topic),
		RowKey:       r.MessageID,
		Properties: map[string]any{
			"queueKeyDisplay": r.QueueKey.Display(),
			"topicDisplay":    r.Topic.Display(),
			"sequenceNumber":  r.SequenceNumber,
			"state":           string(r.State),
			"attempts":        r.Attempts,
			"lastAttemptedAt": r.LastAttemptedAt.Format(time.RFC3339Nano),
			"createdAt":       r.CreatedAt.Format(time.RFC3339Nano),
			"expiresAt":       r.ExpiresAt.Format(time.RFC3339Nano),
			"leaseOwner":      r.Lease.OwnerEndpointID,
			"leaseExpiresAt":  r.Lease.LeaseExpiresAt.Format(time.RFC3339Nano),
			"bodyBlobPath":    r.BodyBlobPath,
			"sizeBytes":       r.SizeBytes,
			"contentType":     r.ContentType,
			"metadata":        metadata,
		},
	}
}

// itemToRecord reconstructs a MessageRecord from a table.Item previously
// produced by recordToItem.
func itemToRecord(item *table.Item) (*MessageRecord, error) {
	queueKey, err := NewQueueKey(stringProp(item.Properties, "queueKeyDisplay"))
	if err != nil {
		return nil, err
	}
	topic := NewTopic(stringProp(item.Properties, "topicDisplay"))

	metadata := make(map[string]string)
	if raw, ok := item.Properties["metadata"]; ok {
		if m, ok := raw.(map[string]any); ok {
			for k, v := range m {
				if s, ok := v.(string); ok {
					metadata[k] = s
				}
			}
		} else if m, ok := raw.(map[string]string); ok {
			for k, v := range m {
				metadata[k] = v
			}
		}
	}

	return &MessageRecord{
		MessageID:       item.RowKey,
		QueueKey:        queueKey,
		Topic:           topic,
		SequenceNumber:  int64Prop(item.Properties, "sequenceNumber"),
		State:           MessageState(stringProp(item.Properties, "state")),
		Attempts:        int(int64Prop(item.Properties, "attempts")),
		LastAttemptedAt: timeProp(item.Properties, "lastAttemptedAt"),
		CreatedAt:       timeProp(item.Properties, "createdAt"),
		ExpiresAt:       timeProp(item.Properties, "expiresAt"),
		Lease: Lease{
			OwnerEndpointID: stringProp(item.Properties, "leaseOwner"),
			LeaseExpiresAt:  timeProp(item.Properties, "leaseExpiresAt"),
		},
		BodyBlobPath: stringProp(item.Properties, "bodyBlobPath"),
		SizeBytes:    int64Prop(item.Properties, "sizeBytes"),
		ContentType:  stringProp(item.Properties, "contentType"),
		Metadata:     metadata,
		ETag:         item.ETag,
	}, nil
}

func stringProp(props map[string]any, key string) string {
	if v, ok := props[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

func int64Prop(props map[string]any, key string) int64 {
	switch v := props[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}

func timeProp(props map[string]any, key string) time.Time {
	s := stringProp(props, key)
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// affinityToItem projects a TopicAffinityRecord onto a table.Item in the
// topic table: partition = topic identifier, row = "_affinity".
func affinityToItem(a *TopicAffinityRecord, etag string) table.Item {
	return table.Item{
		PartitionKey: topicPartition(a.Topic),
		RowKey:       affinityRowKey,
		ETag:         etag,
		Properties: map[string]any{
			"lastOwnerEndpointId": a.LastOwnerEndpointID,
			"lastActivityAt":      a.LastActivityAt.Format(time.RFC3339Nano),
			"expiresAt":           a.ExpiresAt.Format(time.RFC3339Nano),
		},
	}
}

func itemToAffinity(queueKey QueueKey, topic Topic, item *table.Item) *TopicAffinityRecord {
	return &TopicAffinityRecord{
		QueueKey:            queueKey,
		Topic:               topic,
		LastOwnerEndpointID: stringProp(item.Properties, "lastOwnerEndpointId"),
		LastActivityAt:      timeProp(item.Properties, "lastActivityAt"),
		ExpiresAt:            timeProp(item.Properties, "expiresAt"),
	}
}
