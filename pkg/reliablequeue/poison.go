package reliablequeue

import (
	"context"

	"github.com/open-collar/reliablequeue/pkg/storage/table"
)

// PoisonHandler gives operators a read path over a queue's poisoned
// records (spec.md §4.7). The Poison transition itself is performed by
// StateMachine.Nack when attempts reach MaxAttempts inside the Receiver's
// nack path; this type does not mutate records.
type PoisonHandler struct {
	queueKey   QueueKey
	stateTable table.Table
}

// NewPoisonHandler constructs a PoisonHandler bound to queueKey's state
// table.
func NewPoisonHandler(queueKey QueueKey, stateTable table.Table) *PoisonHandler {
	return &PoisonHandler{queueKey: queueKey, stateTable: stateTable}
}

// ListPoisoned returns the poisoned records within a single topic
// partition, for operators to consume out-of-band (spec.md §4.7).
func (p *PoisonHandler) ListPoisoned(ctx context.Context, topic Topic) ([]*MessageRecord, error) {
	items, err := p.stateTable.Query(ctx, table.QueryOptions{PartitionKey: topicPartition(topic)})
	if err != nil {
		return nil, err
	}

	var poisoned []*MessageRecord
	for _, item := range items {
		record, err := itemToRecord(item)
		if err != nil {
			continue
		}
		if record.State == StatePoison {
			poisoned = append(poisoned, record)
		}
	}
	return poisoned, nil
}
