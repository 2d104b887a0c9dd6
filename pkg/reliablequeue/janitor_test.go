package reliablequeue

import (
	"testing"
	"time"

	"github.com/open-collar/reliablequeue/pkg/storage/blob"
	blobmemory "github.com/open-collar/reliablequeue/pkg/storage/blob/adapters/memory"
	queuememory "github.com/open-collar/reliablequeue/pkg/storage/queue/adapters/memory"
	"github.com/open-collar/reliablequeue/pkg/storage/table"
	tablememory "github.com/open-collar/reliablequeue/pkg/storage/table/adapters/memory"
	"github.com/open-collar/reliablequeue/pkg/test"
)

type JanitorTestSuite struct {
	test.Suite

	queueKey   QueueKey
	cfg        QueueConfig
	blobStore  blob.Store
	stateTable table.Table
	topicTable table.Table
	notifyQ    *queuememory.Queue
	sender     *Sender
	janitor    *Janitor
}

func TestJanitorTestSuite(t *testing.T) {
	test.Run(t, new(JanitorTestSuite))
}

func (s *JanitorTestSuite) SetupTest() {
	s.Suite.SetupTest()

	key, err := NewQueueKey("Orders")
	s.Require().NoError(err)
	s.queueKey = key

	s.cfg = DefaultQueueConfig()
	s.blobStore = blobmemory.New(blob.Config{})
	s.stateTable = tablememory.New()
	s.topicTable = tablememory.New()
	s.notifyQ = queuememory.New()
	s.sender = NewSender(s.queueKey, s.cfg, s.blobStore, s.stateTable, s.topicTable, s.notifyQ)
	s.janitor = NewJanitor(s.queueKey, s.cfg, s.blobStore, s.stateTable, s.topicTable, s.notifyQ)
}

func (s *JanitorTestSuite) TestTTLExpirySweepsStaleRecordAndDeletesBlob() {
	messageID, err := s.sender.Send(s.Ctx, []byte("hello"), SendOptions{Topic: "Shipments"})
	s.Require().NoError(err)

	item, err := s.stateTable.Get(s.Ctx, "shipments", messageID)
	s.Require().NoError(err)
	record, err := itemToRecord(item)
	s.Require().NoError(err)

	record.ExpiresAt = time.Now().UTC().Add(-time.Hour)
	s.Require().NoError(Replace(s.Ctx, s.stateTable, record))

	s.janitor.Run(s.Ctx, []Topic{NewTopic("Shipments")})

	item, err = s.stateTable.Get(s.Ctx, "shipments", messageID)
	s.Require().NoError(err)
	swept, err := itemToRecord(item)
	s.Require().NoError(err)
	s.Equal(StateExpired, swept.State)

	_, err = s.blobStore.Download(s.Ctx, record.BodyBlobPath)
	s.Error(err)
}

func (s *JanitorTestSuite) TestNotifyOrphanSweepReenqueuesStaleQueuedRecord() {
	messageID, err := s.sender.Send(s.Ctx, []byte("hello"), SendOptions{Topic: "Shipments"})
	s.Require().NoError(err)

	// Drain the sender's own notification so only the Janitor's redrive
	// can produce one.
	_, err = s.notifyQ.Dequeue(s.Ctx, time.Millisecond)
	s.Require().NoError(err)

	item, err := s.stateTable.Get(s.Ctx, "shipments", messageID)
	s.Require().NoError(err)
	record, err := itemToRecord(item)
	s.Require().NoError(err)
	record.LastAttemptedAt = time.Now().UTC().Add(-time.Hour)
	s.Require().NoError(Replace(s.Ctx, s.stateTable, record))

	s.janitor.NotifyOrphanThreshold = time.Minute
	s.janitor.Run(s.Ctx, []Topic{NewTopic("Shipments")})

	d, err := s.notifyQ.Dequeue(s.Ctx, time.Second)
	s.Require().NoError(err)
	s.Require().NotNil(d)

	var notification Notification
	s.Require().NoError(notification.UnmarshalJSON(d.Payload))
	s.Equal(messageID, notification.MessageID)
}

func (s *JanitorTestSuite) TestAffinitySweepRemovesExpiredRow() {
	topic := NewTopic("Shipments")
	affinity := &TopicAffinityRecord{
		QueueKey:            s.queueKey,
		Topic:               topic,
		LastOwnerEndpointID: "node-a",
		LastActivityAt:      time.Now().UTC().Add(-time.Hour),
		ExpiresAt:           time.Now().UTC().Add(-time.Minute),
	}
	_, err := s.topicTable.Insert(s.Ctx, affinityToItem(affinity, ""))
	s.Require().NoError(err)

	s.janitor.Run(s.Ctx, []Topic{topic})

	_, err = s.topicTable.Get(s.Ctx, "shipments", affinityRowKey)
	s.Error(err)
}

func (s *JanitorTestSuite) TestAffinitySweepKeepsLiveRow() {
	topic := NewTopic("Shipments")
	affinity := &TopicAffinityRecord{
		QueueKey:            s.queueKey,
		Topic:               topic,
		LastOwnerEndpointID: "node-a",
		LastActivityAt:      time.Now().UTC(),
		ExpiresAt:           time.Now().UTC().Add(time.Hour),
	}
	_, err := s.topicTable.Insert(s.Ctx, affinityToItem(affinity, ""))
	s.Require().NoError(err)

	s.janitor.Run(s.Ctx, []Topic{topic})

	_, err = s.topicTable.Get(s.Ctx, "shipments", affinityRowKey)
	s.Require().NoError(err)
}
