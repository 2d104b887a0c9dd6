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

type SenderTestSuite struct {
	test.Suite

	queueKey   QueueKey
	blobStore  blob.Store
	stateTable table.Table
	topicTable table.Table
	notifyQ    *queuememory.Queue
	sender     *Sender
}

func TestSenderTestSuite(t *testing.T) {
	test.Run(t, new(SenderTestSuite))
}

func (s *SenderTestSuite) SetupTest() {
	s.Suite.SetupTest()

	key, err := NewQueueKey("Orders")
	s.Require().NoError(err)
	s.queueKey = key

	s.blobStore = blobmemory.New(blob.Config{})
	s.stateTable = tablememory.New()
	s.topicTable = tablememory.New()
	s.notifyQ = queuememory.New()

	cfg := DefaultQueueConfig()
	cfg.StorageConnectionString = "memory"
	s.sender = NewSender(s.queueKey, cfg, s.blobStore, s.stateTable, s.topicTable, s.notifyQ)
}

func (s *SenderTestSuite) TestSendPersistsRecordUploadsBodyAndNotifies() {
	messageID, err := s.sender.Send(s.Ctx, []byte("payload"), SendOptions{Topic: "Shipments", ContentType: "text/plain"})
	s.Require().NoError(err)
	s.NotEmpty(messageID)

	item, err := s.stateTable.Get(s.Ctx, "shipments", messageID)
	s.Require().NoError(err)

	record, err := itemToRecord(item)
	s.Require().NoError(err)
	s.Equal(StateQueued, record.State)
	s.Equal(int64(1), record.SequenceNumber)
	s.Equal("text/plain", record.ContentType)

	rc, err := s.blobStore.Download(s.Ctx, record.BodyBlobPath)
	s.Require().NoError(err)
	defer rc.Close()

	d, err := s.notifyQ.Dequeue(s.Ctx, 10*time.Second)
	s.Require().NoError(err)
	s.Require().NotNil(d)

	var notification Notification
	s.Require().NoError(notification.UnmarshalJSON(d.Payload))
	s.Equal(messageID, notification.MessageID)
	s.Equal("Shipments", notification.Topic.Display())
}

func (s *SenderTestSuite) TestSequenceNumbersIncreasePerTopic() {
	id1, err := s.sender.Send(s.Ctx, []byte("a"), SendOptions{Topic: "Shipments"})
	s.Require().NoError(err)
	id2, err := s.sender.Send(s.Ctx, []byte("b"), SendOptions{Topic: "Shipments"})
	s.Require().NoError(err)

	item1, err := s.stateTable.Get(s.Ctx, "shipments", id1)
	s.Require().NoError(err)
	item2, err := s.stateTable.Get(s.Ctx, "shipments", id2)
	s.Require().NoError(err)

	r1, _ := itemToRecord(item1)
	r2, _ := itemToRecord(item2)
	s.Equal(int64(1), r1.SequenceNumber)
	s.Equal(int64(2), r2.SequenceNumber)
}

func (s *SenderTestSuite) TestSendRejectsOversizedPayload() {
	cfg := DefaultQueueConfig()
	cfg.MaxPayloadBytes = 4
	sender := NewSender(s.queueKey, cfg, s.blobStore, s.stateTable, s.topicTable, s.notifyQ)

	_, err := sender.Send(s.Ctx, []byte("too big"), SendOptions{})
	s.Error(err)
}

func (s *SenderTestSuite) TestSendRejectsWhenQueueDisabled() {
	cfg := DefaultQueueConfig()
	cfg.IsEnabled = false
	sender := NewSender(s.queueKey, cfg, s.blobStore, s.stateTable, s.topicTable, s.notifyQ)

	_, err := sender.Send(s.Ctx, []byte("x"), SendOptions{})
	s.Error(err)
}

func (s *SenderTestSuite) TestSendRejectsWhenModeDoesNotPermitSend() {
	cfg := DefaultQueueConfig()
	cfg.Mode = ModeReceive
	sender := NewSender(s.queueKey, cfg, s.blobStore, s.stateTable, s.topicTable, s.notifyQ)

	_, err := sender.Send(s.Ctx, []byte("x"), SendOptions{})
	s.Error(err)
}

func (s *SenderTestSuite) TestSendRejectsTooManyMetadataEntries() {
	metadata := make(map[string]string, maxMetadataEntries+1)
	for i := 0; i <= maxMetadataEntries; i++ {
		metadata[string(rune('a'+i))] = "v"
	}

	_, err := s.sender.Send(s.Ctx, []byte("x"), SendOptions{Metadata: metadata})
	s.Error(err)
}

func (s *SenderTestSuite) TestSendRejectsOversizedMetadataValue() {
	oversized := make([]byte, maxMetadataValueBytes+1)
	for i := range oversized {
		oversized[i] = 'x'
	}

	_, err := s.sender.Send(s.Ctx, []byte("x"), SendOptions{Metadata: map[string]string{"note": string(oversized)}})
	s.Error(err)
}

func (s *SenderTestSuite) TestBlankTopicUsesDefaultPartition() {
	messageID, err := s.sender.Send(s.Ctx, []byte("x"), SendOptions{})
	s.Require().NoError(err)

	_, err = s.stateTable.Get(s.Ctx, "_default", messageID)
	s.Require().NoError(err)
}
