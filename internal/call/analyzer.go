package call

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/futureself-ai/futureself/internal/observability/metrics"
	"github.com/futureself-ai/futureself/pkg/logging"
)

var analyzerTracer = otel.Tracer("futureself/analyzer-pool")

// TurnEvent is one finalized user transcript delivered to the analyzers.
type TurnEvent struct {
	Index int
	Text  string
}

// Analyzer observes finalized user turns and emits zero or more insights.
// Implementations must be idempotent on duplicate deliveries of the same
// transcript; the bus does not deduplicate.
type Analyzer interface {
	Name() string
	Analyze(ctx context.Context, turn TurnEvent) ([]Insight, error)
}

// AnalyzerPool fans each user turn out to every analyzer concurrently and
// publishes whatever they produce onto the bus. An analyzer error or timeout
// drops that analyzer's output for the turn and nothing else.
type AnalyzerPool struct {
	analyzers []Analyzer
	bus       *InsightBus
	timeout   time.Duration
	logger    *logging.Logger
	metrics   *metrics.CallMetrics

	wg sync.WaitGroup
}

func NewAnalyzerPool(analyzers []Analyzer, bus *InsightBus, timeout time.Duration, logger *logging.Logger, m *metrics.CallMetrics) *AnalyzerPool {
	if bus == nil {
		panic("call: analyzer pool requires a bus")
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AnalyzerPool{
		analyzers: analyzers,
		bus:       bus,
		timeout:   timeout,
		logger:    logger,
		metrics:   m,
	}
}

// Broadcast delivers the turn to every analyzer without waiting for any of
// them. Fast analyzers influence the speaker's current turn; slow ones land
// in the mailbox for the next.
func (p *AnalyzerPool) Broadcast(ctx context.Context, turn TurnEvent) {
	for _, a := range p.analyzers {
		p.wg.Add(1)
		go func(a Analyzer) {
			defer p.wg.Done()
			p.runOne(ctx, a, turn)
		}(a)
	}
}

func (p *AnalyzerPool) runOne(ctx context.Context, a Analyzer, turn TurnEvent) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	ctx, span := analyzerTracer.Start(ctx, "analyzer.analyze")
	span.SetAttributes(attribute.String("analyzer.name", a.Name()), attribute.Int("turn.index", turn.Index))
	defer span.End()

	insights, err := a.Analyze(ctx, turn)
	if err != nil {
		// Missing insight, not a failed call.
		span.RecordError(err)
		p.logger.Debug("analyzer dropped turn", "analyzer", a.Name(), "turn", turn.Index, "error", err)
		return
	}
	for _, in := range insights {
		in.Turn = turn.Index
		in.Producer = a.Name()
		p.bus.Publish(in)
		p.metrics.ObserveInsight(string(in.Kind))
	}
}

// WaitIdle blocks until every in-flight analyzer has finished or ctx
// expires. Used for the end-of-call grace period.
func (p *AnalyzerPool) WaitIdle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
