package reliablequeue

import (
	"testing"

	"github.com/open-collar/reliablequeue/pkg/test"
)

type IdentifiersTestSuite struct {
	test.Suite
}

func TestIdentifiersTestSuite(t *testing.T) {
	test.Run(t, new(IdentifiersTestSuite))
}

func (s *IdentifiersTestSuite) TestNewQueueKeyRejectsBlank() {
	_, err := NewQueueKey("")
	s.Error(err)

	_, err = NewQueueKey("   ")
	s.Error(err)
}

func (s *IdentifiersTestSuite) TestIdentifierIsIdempotent() {
	k, err := NewQueueKey("Order Events")
	s.Require().NoError(err)
	s.Equal("order-events", k.Identifier())

	k2, err := NewQueueKey(k.Identifier())
	s.Require().NoError(err)
	s.Equal(k.Identifier(), k2.Identifier())
}

func (s *IdentifiersTestSuite) TestIdentifierCollapsesRunsOfNonAlnum() {
	k, err := NewQueueKey("Order -- Events!!")
	s.Require().NoError(err)
	s.Equal("order-events", k.Identifier())
}

func (s *IdentifiersTestSuite) TestTableIdentifierScenarioS7() {
	k, err := NewQueueKey("TEST+NAME+1")
	s.Require().NoError(err)
	s.Equal("TestxNamex1", k.TableIdentifier())
}

func (s *IdentifiersTestSuite) TestTableIdentifierSingleWord() {
	k, err := NewQueueKey("orders")
	s.Require().NoError(err)
	s.Equal("Orders", k.TableIdentifier())
}

func (s *IdentifiersTestSuite) TestQueueKeyEqualityIsOrdinalOnDisplay() {
	a, _ := NewQueueKey("Orders")
	b, _ := NewQueueKey("orders")
	s.False(a.Equal(b))
	s.NotEqual(a.Identifier(), "") // sanity
}

func (s *IdentifiersTestSuite) TestBlankTopicResolvesToDefault() {
	topic := NewTopic("")
	s.True(topic.IsDefault())
	s.Equal(DefaultTopicDisplay, topic.Display())
	s.Equal(DefaultTopicIdentifier, topic.Identifier())

	whitespace := NewTopic("   ")
	s.True(whitespace.IsDefault())
}

func (s *IdentifiersTestSuite) TestNamedTopicIsNotDefault() {
	topic := NewTopic("Shipments")
	s.False(topic.IsDefault())
	s.Equal("shipments", topic.Identifier())
}

func (s *IdentifiersTestSuite) TestDefaultTopicHelper() {
	s.True(DefaultTopic().IsDefault())
	s.True(DefaultTopic().Equal(NewTopic("")))
}
