package memory_test

import (
	"testing"
	"time"

	"github.com/open-collar/reliablequeue/pkg/storage/queue"
	"github.com/open-collar/reliablequeue/pkg/storage/queue/adapters/memory"
	"github.com/open-collar/reliablequeue/pkg/test"
)

type MemoryQueueTestSuite struct {
	test.Suite
	q *memory.Queue
}

func (s *MemoryQueueTestSuite) SetupTest() {
	s.Suite.SetupTest()
	s.q = memory.New()
}

func (s *MemoryQueueTestSuite) TestEnqueueDequeueAck() {
	s.NoError(s.q.Enqueue(s.Ctx, []byte("hello")))

	d, err := s.q.Dequeue(s.Ctx, time.Minute)
	s.NoError(err)
	s.Require().NotNil(d)
	s.Equal("hello", string(d.Payload))
	s.Equal(int32(1), d.DeliveryCount)

	s.NoError(s.q.Ack(s.Ctx, d.Handle))
	s.Equal(0, s.q.Len())
}

func (s *MemoryQueueTestSuite) TestDequeueEmpty() {
	d, err := s.q.Dequeue(s.Ctx, time.Minute)
	s.NoError(err)
	s.Nil(d)
}

func (s *MemoryQueueTestSuite) TestLeaseHidesMessageUntilExpiry() {
	s.NoError(s.q.Enqueue(s.Ctx, []byte("a")))

	d, err := s.q.Dequeue(s.Ctx, time.Minute)
	s.NoError(err)
	s.Require().NotNil(d)

	// Still leased: a second dequeue finds nothing.
	again, err := s.q.Dequeue(s.Ctx, time.Minute)
	s.NoError(err)
	s.Nil(again)

	base := time.Now()
	s.q.Clock = func() time.Time { return base.Add(2 * time.Minute) }
	s.q.ExpireLeases(base.Add(2 * time.Minute))

	redelivered, err := s.q.Dequeue(s.Ctx, time.Minute)
	s.NoError(err)
	s.Require().NotNil(redelivered)
	s.Equal(int32(2), redelivered.DeliveryCount)
}

func (s *MemoryQueueTestSuite) TestReleaseWithDelayDefersVisibility() {
	s.NoError(s.q.Enqueue(s.Ctx, []byte("a")))

	d, err := s.q.Dequeue(s.Ctx, time.Minute)
	s.NoError(err)
	s.Require().NotNil(d)

	base := time.Now()
	s.q.Clock = func() time.Time { return base }
	s.NoError(s.q.Release(s.Ctx, d.Handle, 30*time.Second))

	// Not yet visible.
	none, err := s.q.Dequeue(s.Ctx, time.Minute)
	s.NoError(err)
	s.Nil(none)

	s.q.Clock = func() time.Time { return base.Add(31 * time.Second) }
	again, err := s.q.Dequeue(s.Ctx, time.Minute)
	s.NoError(err)
	s.NotNil(again)
}

func (s *MemoryQueueTestSuite) TestDeduplicationSuppressesRepeatEnqueue() {
	s.NoError(s.q.Enqueue(s.Ctx, []byte("a"), queue.WithDeduplicationID("dup-1")))
	s.NoError(s.q.Enqueue(s.Ctx, []byte("a"), queue.WithDeduplicationID("dup-1")))
	s.Equal(1, s.q.Len())
}

func (s *MemoryQueueTestSuite) TestExtendPushesLeaseOut() {
	s.NoError(s.q.Enqueue(s.Ctx, []byte("a")))
	d, err := s.q.Dequeue(s.Ctx, time.Second)
	s.NoError(err)
	s.Require().NotNil(d)

	s.NoError(s.q.Extend(s.Ctx, d.Handle, time.Minute))

	base := time.Now()
	s.q.ExpireLeases(base.Add(2 * time.Second))
	none, err := s.q.Dequeue(s.Ctx, time.Minute)
	s.NoError(err)
	s.Nil(none)
}

func (s *MemoryQueueTestSuite) TestAckUnknownHandleFails() {
	err := s.q.Ack(s.Ctx, "not-a-real-handle")
	s.Error(err)
}

func TestMemoryQueueSuite(t *testing.T) {
	test.Run(t, new(MemoryQueueTestSuite))
}
