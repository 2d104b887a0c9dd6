package reliablequeue

import (
	"testing"
	"time"

	"github.com/open-collar/reliablequeue/pkg/test"
)

type OrderingTestSuite struct {
	test.Suite
}

func TestOrderingTestSuite(t *testing.T) {
	test.Run(t, new(OrderingTestSuite))
}

func (s *OrderingTestSuite) TestInOrderSequenceAlwaysDelivers() {
	e := NewOrderingEngine(time.Second, 30*time.Second)
	topic := NewTopic("Shipments")
	now := time.Now().UTC()

	for seq := int64(1); seq <= 5; seq++ {
		s.Equal(Deliver, e.Admit(topic, seq, false, now))
	}
}

func (s *OrderingTestSuite) TestOutOfOrderDefersUntilGapFills() {
	e := NewOrderingEngine(time.Second, 30*time.Second)
	topic := NewTopic("Shipments")
	now := time.Now().UTC()

	s.Equal(Defer, e.Admit(topic, 2, false, now))
	s.Equal(Defer, e.Admit(topic, 3, false, now))
	s.Equal(Deliver, e.Admit(topic, 1, false, now))
}

func (s *OrderingTestSuite) TestDuplicateOfDeliveredRecordDrops() {
	e := NewOrderingEngine(time.Second, 30*time.Second)
	topic := NewTopic("Shipments")
	now := time.Now().UTC()

	s.Equal(Deliver, e.Admit(topic, 1, false, now))
	s.Equal(Drop, e.Admit(topic, 1, true, now))
}

func (s *OrderingTestSuite) TestDuplicateOfNonTerminalRecordRedelivers() {
	e := NewOrderingEngine(time.Second, 30*time.Second)
	topic := NewTopic("Shipments")
	now := time.Now().UTC()

	s.Equal(Deliver, e.Admit(topic, 1, false, now))
	// Record still Queued/Claimed (e.g. a nack), so a late duplicate
	// notification for the same sequence should still be deliverable.
	s.Equal(Deliver, e.Admit(topic, 1, false, now))
}

func (s *OrderingTestSuite) TestSlidingWindowClosesAndAdvancesPastGap() {
	e := NewOrderingEngine(50*time.Millisecond, 30*time.Second)
	topic := NewTopic("Shipments")
	start := time.Now().UTC()

	s.Equal(Defer, e.Admit(topic, 2, false, start))
	// Window elapses: sequence 1 is considered lost, 2 is delivered now.
	later := start.Add(100 * time.Millisecond)
	s.Equal(Deliver, e.Admit(topic, 2, false, later))
}

func (s *OrderingTestSuite) TestTopicsAreIndependent() {
	e := NewOrderingEngine(time.Second, 30*time.Second)
	now := time.Now().UTC()

	shipments := NewTopic("Shipments")
	payments := NewTopic("Payments")

	s.Equal(Deliver, e.Admit(shipments, 1, false, now))
	s.Equal(Deliver, e.Admit(payments, 1, false, now))
	s.Equal(Defer, e.Admit(shipments, 3, false, now))
	s.Equal(Deliver, e.Admit(payments, 2, false, now))
}

func (s *OrderingTestSuite) TestAffinityDecisionPrefersLiveOwner() {
	e := NewOrderingEngine(time.Second, 30*time.Second)
	now := time.Now().UTC()

	affinity := &TopicAffinityRecord{LastOwnerEndpointID: "node-a", ExpiresAt: now.Add(time.Minute)}
	s.Equal(Defer, e.AffinityDecision(affinity, "node-b", now))
	s.Equal(Deliver, e.AffinityDecision(affinity, "node-a", now))
}

func (s *OrderingTestSuite) TestAffinityDecisionIgnoresExpiredOrMissingAffinity() {
	e := NewOrderingEngine(time.Second, 30*time.Second)
	now := time.Now().UTC()

	s.Equal(Deliver, e.AffinityDecision(nil, "node-b", now))

	expired := &TopicAffinityRecord{LastOwnerEndpointID: "node-a", ExpiresAt: now.Add(-time.Minute)}
	s.Equal(Deliver, e.AffinityDecision(expired, "node-b", now))
}
