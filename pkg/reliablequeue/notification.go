package reliablequeue

import "encoding/json"

// Notification is the payload placed on the backend FIFO queue (spec.md §3,
// §6.3): a pointer to a MessageRecord, never the source of truth itself.
// QueueKey and Topic serialize as their display form; a nil Topic
// serializes as JSON null and deserializes back to the Default topic.
type Notification struct {
	QueueKey    QueueKey
	MessageID   string
	Topic       Topic
	Sequence    int64
	AttemptHint int
}

// notificationWire is the JSON wire shape (spec.md §6.3).
type notificationWire struct {
	QueueKey    string  `json:"queueKey"`
	MessageID   string  `json:"messageId"`
	Topic       *string `json:"topic"`
	Sequence    int64   `json:"sequence"`
	AttemptHint int     `json:"attemptHint"`
}

// MarshalJSON serializes n per spec.md §6.3: value-object fields as their
// display form, the Default topic as JSON null.
func (n Notification) MarshalJSON() ([]byte, error) {
	wire := notificationWire{
		QueueKey:    n.QueueKey.Display(),
		MessageID:   n.MessageID,
		Sequence:    n.Sequence,
		AttemptHint: n.AttemptHint,
	}
	if !n.Topic.IsDefault() {
		display := n.Topic.Display()
		wire.Topic = &display
	}
	return json.Marshal(wire)
}

// UnmarshalJSON parses the spec.md §6.3 wire format, resolving a null
// topic to the Default topic.
func (n *Notification) UnmarshalJSON(data []byte) error {
	var wire notificationWire
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}

	queueKey, err := NewQueueKey(wire.QueueKey)
	if err != nil {
		return err
	}

	topic := DefaultTopic()
	if wire.Topic != nil {
		topic = NewTopic(*wire.Topic)
	}

	n.QueueKey = queueKey
	n.MessageID = wire.MessageID
	n.Topic = topic
	n.Sequence = wire.Sequence
	n.AttemptHint = wire.AttemptHint
	return nil
}
