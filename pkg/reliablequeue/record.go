package reliablequeue

import "time"

// MessageState is one node in the message lifecycle state machine
// (spec.md §4.3).
type MessageState string

const (
	StateNew        MessageState = "New"
	StateQueued     MessageState = "Queued"
	StateClaimed    MessageState = "Claimed"
	StateProcessing MessageState = "Processing"
	StateDelivered  MessageState = "Delivered"
	StatePoison     MessageState = "Poison"
	StateExpired    MessageState = "Expired"
)

// IsTerminal reports whether s is a terminal state (Delivered or Poison or
// Expired); no further transitions are legal from a terminal state.
func (s MessageState) IsTerminal() bool {
	return s == StateDelivered || s == StatePoison || s == StateExpired
}

func (s MessageState) String() string { return string(s) }

// Lease is a time-bounded claim held by an endpoint on a MessageRecord,
// required to mutate it through Claimed/Processing.
type Lease struct {
	OwnerEndpointID string
	LeaseExpiresAt  time.Time
}

// IsEmpty reports whether the record currently holds no lease.
func (l Lease) IsEmpty() bool { return l.OwnerEndpointID == "" }

// Active reports whether the lease is held and unexpired as of now.
func (l Lease) Active(now time.Time) bool {
	return !l.IsEmpty() && l.LeaseExpiresAt.After(now)
}

// MessageRecord is the durable authority on a message (spec.md §3).
type MessageRecord struct {
	MessageID       string
	QueueKey        QueueKey
	Topic           Topic
	SequenceNumber  int64
	State           MessageState
	Attempts        int
	LastAttemptedAt time.Time
	CreatedAt       time.Time
	ExpiresAt       time.Time
	Lease           Lease
	BodyBlobPath    string
	SizeBytes       int64
	ContentType     string
	Metadata        map[string]string

	// ETag is the backend-supplied optimistic-concurrency token from the
	// last read of this record; required unchanged on any Replace.
	ETag string
}

// HasActiveLease reports whether the record is validly Claimed/Processing
// as of now: lease non-empty and unexpired.
func (r *MessageRecord) HasActiveLease(now time.Time) bool {
	return (r.State == StateClaimed || r.State == StateProcessing) && r.Lease.Active(now)
}

// TopicAffinityRecord is a per (queue, topic) row recording which endpoint
// last successfully delivered a message in that topic (spec.md §3).
type TopicAffinityRecord struct {
	QueueKey            QueueKey
	Topic               Topic
	LastOwnerEndpointID string
	LastActivityAt      time.Time
	ExpiresAt           time.Time
}

// Preferred reports whether endpointID should defer to the affinity
// record's owner as of now: a different owner holds an unexpired affinity.
func (a *TopicAffinityRecord) Preferred(endpointID string, now time.Time) bool {
	return a != nil && a.LastOwnerEndpointID != endpointID && a.ExpiresAt.After(now)
}

// BlobObject is opaque bytes plus content-type, addressed by messageId
// (spec.md §3). The blob store itself (pkg/storage/blob) is the source of
// truth for bytes; this struct is the in-memory view used while building
// or reading a message body.
type BlobObject struct {
	MessageID   string
	ContentType string
	Body        []byte
}
