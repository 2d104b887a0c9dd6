package reliablequeue

import (
	"context"
	"testing"
	"time"

	"github.com/open-collar/reliablequeue/pkg/storage/blob"
	blobmemory "github.com/open-collar/reliablequeue/pkg/storage/blob/adapters/memory"
	"github.com/open-collar/reliablequeue/pkg/storage/queue"
	queuememory "github.com/open-collar/reliablequeue/pkg/storage/queue/adapters/memory"
	"github.com/open-collar/reliablequeue/pkg/storage/table"
	tablememory "github.com/open-collar/reliablequeue/pkg/storage/table/adapters/memory"
	"github.com/open-collar/reliablequeue/pkg/test"
)

type ReceiverTestSuite struct {
	test.Suite

	queueKey   QueueKey
	cfg        QueueConfig
	blobStore  blob.Store
	stateTable table.Table
	topicTable table.Table
	notifyQ    *queuememory.Queue
	ordering   *OrderingEngine
	sender     *Sender
	receiver   *Receiver
}

func TestReceiverTestSuite(t *testing.T) {
	test.Run(t, new(ReceiverTestSuite))
}

func (s *ReceiverTestSuite) SetupTest() {
	s.Suite.SetupTest()

	key, err := NewQueueKey("Orders")
	s.Require().NoError(err)
	s.queueKey = key

	s.cfg = DefaultQueueConfig()
	s.cfg.DefaultTimeout = time.Second
	s.blobStore = blobmemory.New(blob.Config{})
	s.stateTable = tablememory.New()
	s.topicTable = tablememory.New()
	s.notifyQ = queuememory.New()
	s.ordering = NewOrderingEngine(s.cfg.SlidingWindowDuration, s.cfg.TopicAffinityTtl)

	s.sender = NewSender(s.queueKey, s.cfg, s.blobStore, s.stateTable, s.topicTable, s.notifyQ)
	s.receiver = NewReceiver(s.queueKey, s.cfg, "node-a", s.blobStore, s.stateTable, s.topicTable, s.notifyQ, s.ordering)
}

func (s *ReceiverTestSuite) dequeue() *queue.Delivery {
	d, err := s.notifyQ.Dequeue(s.Ctx, s.cfg.DefaultTimeout)
	s.Require().NoError(err)
	s.Require().NotNil(d)
	return d
}

func (s *ReceiverTestSuite) TestOnReceivedDeliversAndAcksRecord() {
	messageID, err := s.sender.Send(s.Ctx, []byte("hello"), SendOptions{Topic: "Shipments"})
	s.Require().NoError(err)

	d := s.dequeue()

	var handled bool
	err = s.receiver.OnReceived(s.Ctx, d, func(ctx context.Context, delivery Delivery) (bool, error) {
		handled = true
		s.Equal([]byte("hello"), delivery.Body)
		return true, nil
	})
	s.Require().NoError(err)
	s.True(handled)

	item, err := s.stateTable.Get(s.Ctx, "shipments", messageID)
	s.Require().NoError(err)
	record, err := itemToRecord(item)
	s.Require().NoError(err)
	s.Equal(StateDelivered, record.State)
}

func (s *ReceiverTestSuite) TestHandlerFailureNacksForRetry() {
	messageID, err := s.sender.Send(s.Ctx, []byte("hello"), SendOptions{Topic: "Shipments"})
	s.Require().NoError(err)

	d := s.dequeue()

	err = s.receiver.OnReceived(s.Ctx, d, func(ctx context.Context, delivery Delivery) (bool, error) {
		return false, nil
	})
	s.Require().NoError(err)

	item, err := s.stateTable.Get(s.Ctx, "shipments", messageID)
	s.Require().NoError(err)
	record, err := itemToRecord(item)
	s.Require().NoError(err)
	s.Equal(StateQueued, record.State)
	s.Equal(1, record.Attempts)
}

func (s *ReceiverTestSuite) TestRepeatedFailuresEventuallyPoison() {
	messageID, err := s.sender.Send(s.Ctx, []byte("hello"), SendOptions{Topic: "Shipments"})
	s.Require().NoError(err)

	fail := func(ctx context.Context, delivery Delivery) (bool, error) { return false, nil }

	// Each nack acks the notification that carried it rather than
	// re-enqueuing one (that is the Janitor's notify-orphan sweep's job);
	// redrive each retry here with a fresh notification for the same
	// record, as the Janitor would.
	notification := Notification{QueueKey: s.queueKey, MessageID: messageID, Topic: NewTopic("Shipments"), Sequence: 1}
	payload, err := notification.MarshalJSON()
	s.Require().NoError(err)

	for i := 0; i < s.cfg.MaxAttempts; i++ {
		s.Require().NoError(s.notifyQ.Enqueue(s.Ctx, payload))
		d := s.dequeue()
		s.Require().NoError(s.receiver.OnReceived(s.Ctx, d, fail))
	}

	poison := NewPoisonHandler(s.queueKey, s.stateTable)
	records, err := poison.ListPoisoned(s.Ctx, NewTopic("Shipments"))
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(StatePoison, records[0].State)
}

func (s *ReceiverTestSuite) TestJanitorReclaimsExpiredLease() {
	messageID, err := s.sender.Send(s.Ctx, []byte("hello"), SendOptions{Topic: "Shipments"})
	s.Require().NoError(err)

	// Claim it directly via the state machine to simulate a crashed worker
	// holding an expired lease, without going through the full receive path.
	item, err := s.stateTable.Get(s.Ctx, "shipments", messageID)
	s.Require().NoError(err)
	record, err := itemToRecord(item)
	s.Require().NoError(err)

	sm := NewStateMachine(s.cfg.MaxAttempts)
	past := time.Now().UTC().Add(-time.Hour)
	s.Require().NoError(sm.Claim(record, "node-a", past, time.Millisecond))
	s.Require().NoError(Replace(s.Ctx, s.stateTable, record))

	janitor := NewJanitor(s.queueKey, s.cfg, s.blobStore, s.stateTable, s.topicTable, s.notifyQ)
	janitor.Run(s.Ctx, []Topic{NewTopic("Shipments")})

	item, err = s.stateTable.Get(s.Ctx, "shipments", messageID)
	s.Require().NoError(err)
	reclaimed, err := itemToRecord(item)
	s.Require().NoError(err)
	s.Equal(StateQueued, reclaimed.State)
	s.True(reclaimed.Lease.IsEmpty())
}
