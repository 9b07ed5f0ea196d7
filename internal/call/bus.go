package call

import (
	"sync"

	"github.com/futureself-ai/futureself/pkg/logging"
)

const defaultSubscriberBuffer = 64

// InsightBus is the per-session publish/subscribe fabric between analyzers
// and the insight consumers (speaker mailbox, persona controller,
// aggregator). Publishes from a single producer are delivered in order;
// there is no ordering guarantee across producers. Delivery is
// non-blocking: a subscriber that falls behind its buffer loses insights
// rather than stalling the call.
type InsightBus struct {
	mu     sync.Mutex
	subs   []chan Insight
	closed bool
	logger *logging.Logger
}

// NewInsightBus creates an empty bus.
func NewInsightBus(logger *logging.Logger) *InsightBus {
	if logger == nil {
		logger = logging.Default()
	}
	return &InsightBus{logger: logger}
}

// Subscribe registers a new consumer and returns its delivery channel. The
// channel is closed when the bus closes.
func (b *InsightBus) Subscribe() <-chan Insight {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Insight, defaultSubscriberBuffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs = append(b.subs, ch)
	return ch
}

// Publish fans the insight out to every subscriber. Publishing to a closed
// bus is a no-op; late analyzer results after hang-up land here.
func (b *InsightBus) Publish(in Insight) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	for _, ch := range b.subs {
		select {
		case ch <- in:
		default:
			b.logger.Warn("insight bus subscriber full, dropping insight",
				"kind", in.Kind,
				"producer", in.Producer,
			)
		}
	}
}

// Close closes every subscriber channel. Safe to call more than once.
func (b *InsightBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, ch := range b.subs {
		close(ch)
	}
	b.subs = nil
}

// insightMailbox accumulates insights for the speaker between turns. The
// speaker drains it atomically right before generating, so each insight
// steers exactly one turn.
type insightMailbox struct {
	mu      sync.Mutex
	pending []Insight
	done    chan struct{}
}

func newInsightMailbox(sub <-chan Insight) *insightMailbox {
	m := &insightMailbox{done: make(chan struct{})}
	go func() {
		defer close(m.done)
		for in := range sub {
			m.mu.Lock()
			m.pending = append(m.pending, in)
			m.mu.Unlock()
		}
	}()
	return m
}

// Drain returns all accumulated insights and clears the mailbox.
func (m *insightMailbox) Drain() []Insight {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.pending
	m.pending = nil
	return out
}

// Wait blocks until the mailbox's subscription has closed.
func (m *insightMailbox) Wait() { <-m.done }
