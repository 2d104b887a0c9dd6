package reliablequeue

import (
	"sync"
	"time"

	"github.com/open-collar/reliablequeue/pkg/datastructures/heap"
)

// Decision is OrderingEngine's answer to "may we deliver this (queue,
// topic, sequence) now?" (spec.md §4.6).
type Decision int

const (
	// Deliver means the receiver should proceed to claim and process the
	// record.
	Deliver Decision = iota
	// Defer means the receiver should release the notification with a
	// short visibility delay and try again later (an earlier sequence is
	// still expected, or another node's affinity is preferred).
	Defer
	// Drop means the receiver should ack the notification without
	// processing: the record already reached a terminal state.
	Drop
)

// topicState is the per-topic ordering state: a sliding-window buffer plus
// sequence tracking (spec.md §4.6). Held in-process per queue; no I/O is
// ever performed while its lock is held (spec.md §5).
type topicState struct {
	nextExpected   int64
	windowOpenedAt time.Time
	pending        map[int64]struct{}
	order          *heap.MinHeap[int64] // lazily-cleaned min-heap of buffered sequences
}

func newTopicState() *topicState {
	return &topicState{
		nextExpected: 1,
		pending:      make(map[int64]struct{}),
		order:        heap.NewMinHeap[int64](),
	}
}

// smallestPending returns the smallest currently-buffered sequence, or
// (0, false) if none remain. Entries popped from order that are no longer
// in pending (already drained) are discarded lazily.
func (t *topicState) smallestPending() (int64, bool) {
	for {
		seq, _, ok := t.order.Peek()
		if !ok {
			return 0, false
		}
		if _, live := t.pending[seq]; !live {
			t.order.PopItem()
			continue
		}
		return seq, true
	}
}

// OrderingEngine gates delivery so that, per (queue, topic), messages are
// observed by the handler in sequence order up to gaps closed by the
// sliding window, and at most one node processes a topic while its
// affinity is live (spec.md §4.6).
type OrderingEngine struct {
	mu                sync.Mutex
	topics            map[string]*topicState
	slidingWindow      time.Duration
	topicAffinityTtl   time.Duration
}

// NewOrderingEngine creates an OrderingEngine for a single queue.
func NewOrderingEngine(slidingWindow, topicAffinityTtl time.Duration) *OrderingEngine {
	return &OrderingEngine{
		topics:           make(map[string]*topicState),
		slidingWindow:    slidingWindow,
		topicAffinityTtl: topicAffinityTtl,
	}
}

func (e *OrderingEngine) stateFor(topicIdentifier string) *topicState {
	t, ok := e.topics[topicIdentifier]
	if !ok {
		t = newTopicState()
		e.topics[topicIdentifier] = t
	}
	return t
}

// Admit decides whether sequence s on topic may be delivered now
// (spec.md §4.6). recordTerminal tells Admit whether the underlying
// record has already reached a terminal state, for the "duplicate/late"
// branch.
func (e *OrderingEngine) Admit(topic Topic, sequence int64, recordTerminal bool, now time.Time) Decision {
	e.mu.Lock()
	defer e.mu.Unlock()

	t := e.stateFor(topic.Identifier())

	switch {
	case sequence == t.nextExpected:
		t.nextExpected++
		delete(t.pending, sequence)
		e.drain(t)
		return Deliver

	case sequence > t.nextExpected:
		if _, already := t.pending[sequence]; !already {
			t.pending[sequence] = struct{}{}
			t.order.PushItem(sequence, float64(sequence))
		}
		if t.windowOpenedAt.IsZero() {
			t.windowOpenedAt = now
		}
		if now.Sub(t.windowOpenedAt) >= e.slidingWindow {
			// Sliding window closed: the gap below sequence is considered
			// lost. Advance nextExpected to sequence+1 and deliver it now.
			delete(t.pending, sequence)
			t.nextExpected = sequence + 1
			e.drain(t)
			return Deliver
		}
		return Defer

	default: // sequence < t.nextExpected: duplicate/late
		delete(t.pending, sequence)
		if recordTerminal {
			return Drop
		}
		return Deliver
	}
}

// drain advances nextExpected past any contiguous run of already-buffered
// sequences. Those buffered entries are not delivered here — they are
// simply forgotten, so that when their own (already in-flight, delayed)
// notification next reaches Admit it falls into the "duplicate/late"
// branch and is delivered then, gated only by the StateMachine's
// conditional claim for exclusivity.
func (e *OrderingEngine) drain(t *topicState) {
	for {
		smallest, ok := t.smallestPending()
		if !ok || smallest != t.nextExpected {
			break
		}
		delete(t.pending, smallest)
		t.nextExpected++
	}
	if len(t.pending) == 0 {
		t.windowOpenedAt = time.Time{}
	}
}

// AffinityDecision reports whether a receiver at endpointID should defer
// to affinity's preferred owner before claiming (spec.md §4.6).
func (e *OrderingEngine) AffinityDecision(affinity *TopicAffinityRecord, endpointID string, now time.Time) Decision {
	if affinity.Preferred(endpointID, now) {
		return Defer
	}
	return Deliver
}
