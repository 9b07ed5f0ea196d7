package call

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/futureself-ai/futureself/internal/observability/metrics"
	"github.com/futureself-ai/futureself/pkg/logging"
)

// ErrCallEnded is returned for transcripts arriving after the call is over.
var ErrCallEnded = errors.New("call: session has ended")

const (
	defaultMaxCallDuration	= 3 * time.Minute
	defaultIdleTimeout	= 30 * time.Second
	defaultGracePeriod	= 5 * time.Second
)

// End reasons recorded into events and metrics.
const (
	EndReasonCompleted	= "completed"
	EndReasonHangup		= "hangup"
	EndReasonCeiling	= "ceiling"
	EndReasonIdle		= "idle"
	EndReasonCancelled	= "cancelled"
)

// SessionConfig wires one call's collaborators. Store is the only hard
// requirement; everything else degrades (fallback utterances, rule-based
// advancement, skipped reporting).
type SessionConfig struct {
	CallID string
	UserID string

	Store		UserStore
	Reporter	ResultReporter

	SpeakerLLM	StreamingLLMClient
	SpeakerModelID	string
	AdvanceLLM	LLMClient
	AdvanceModelID	string
	AnalyzerLLM	LLMClient
	AnalyzerModelID	string

	TypePolicy	CallTypePolicy
	QuoteThreshold	float64

	MaxCallDuration	time.Duration
	IdleTimeout	time.Duration
	GracePeriod	time.Duration
	SpeakerTimeout	time.Duration
	AnalyzerTimeout	time.Duration
	AdvanceTimeout	time.Duration

	SpeakerMaxTokens int32

	Logger	*logging.Logger
	Metrics	*metrics.CallMetrics
	Events	*EventLogger
}

// Session owns one call end to end: component construction, per-transcript
// fan-out, stage advancement, the duration/idle watchdogs, and the single
// finalize-and-persist pass. Sessions never share state; calls running in
// parallel do not communicate.
type Session struct {
	cfg	SessionConfig
	start	time.Time

	user	UserContext
	memory	CallMemory

	callType CallType

	bus		*InsightBus
	pool		*AnalyzerPool
	stages		*StageMachine
	persona		*PersonaController
	speaker		*Speaker
	aggregator	*Aggregator
	checker		*AdvanceChecker

	logger *logging.Logger
	events *EventLogger

	cancel		context.CancelFunc
	activity	chan struct{}

	mu		sync.Mutex
	userTurns	int
	ended		bool
	summary		*CallSummary

	finishOnce	sync.Once
	finished	chan struct{}
}

// NewSession reads the user's context and assembles the call. Read failures
// at call start degrade to defaults; the call still happens.
func NewSession(ctx context.Context, cfg SessionConfig) (*Session, error) {
	if cfg.Store == nil {
		return nil, errors.New("call: session requires a user store")
	}
	if cfg.CallID == "" {
		cfg.CallID = uuid.NewString()
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	if cfg.TypePolicy == nil {
		cfg.TypePolicy = NewDefaultCallTypePolicy()
	}
	if cfg.MaxCallDuration <= 0 {
		cfg.MaxCallDuration = defaultMaxCallDuration
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = defaultGracePeriod
	}

	logger := cfg.Logger.WithCall(cfg.CallID, cfg.UserID)

	user, err := cfg.Store.GetUserContext(ctx, cfg.UserID)
	if err != nil {
		logger.Warn("user context read failed, proceeding with defaults", "error", err)
		user = UserContext{UserID: cfg.UserID}
	}
	memory, err := cfg.Store.GetCallMemory(ctx, cfg.UserID)
	if err != nil {
		logger.Warn("call memory read failed, proceeding with defaults", "error", err)
		memory = CallMemory{}
	}
	history, err := cfg.Store.GetExcuseHistory(ctx, cfg.UserID)
	if err != nil {
		logger.Warn("excuse history read failed, proceeding with defaults", "error", err)
		history = ExcuseHistory{}
	}

	// The arc is a pure function of the streak at call start; the snapshot
	// in memory may be stale.
	memory.NarrativeArc = NarrativeArcForStreak(user.CurrentStreak)

	callType := cfg.TypePolicy.Choose(user, memory)

	sessionCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s := &Session{
		cfg:      cfg,
		start:    time.Now(),
		user:     user,
		memory:   memory,
		callType: callType,
		logger:   logger,
		events:   cfg.Events,
		cancel:   cancel,
		activity: make(chan struct{}, 1),
		finished: make(chan struct{}),
	}

	s.bus = NewInsightBus(logger)
	s.stages = NewStageMachine()
	s.persona = NewPersonaController(memory.CurrentPersona)
	s.aggregator = NewAggregator(cfg.UserID, cfg.CallID, callType, s.bus, s.start)

	// Persona consumes the full stream independently of the speaker mailbox.
	personaSub := s.bus.Subscribe()
	go func() {
		for in := range personaSub {
			s.persona.Apply(in)
		}
	}()

	s.speaker = NewSpeaker(SpeakerConfig{
		LLM:          cfg.SpeakerLLM,
		ModelID:      cfg.SpeakerModelID,
		MaxTokens:    cfg.SpeakerMaxTokens,
		Timeout:      cfg.SpeakerTimeout,
		SystemPrompt: BuildSystemPrompt(user, memory, callType),
		Persona:      s.persona,
		Stages:       s.stages,
		Bus:          s.bus,
		Logger:       logger,
		Metrics:      cfg.Metrics,
	})

	analyzers := []Analyzer{
		NewExcuseDetector(user.Onboarding.FavoriteExcuse, history, logger),
		NewSentimentClassifier(cfg.AnalyzerLLM, cfg.AnalyzerModelID, logger),
		NewPromiseClassifier(),
		NewCommitmentExtractor(user.DailyCommitment),
		NewFrustrationDetector(),
		NewQuoteDetector(cfg.QuoteThreshold),
		NewPatternAnalyzer(history, user.RecentCalls, user.CurrentStreak),
	}
	s.pool = NewAnalyzerPool(analyzers, s.bus, cfg.AnalyzerTimeout, logger, cfg.Metrics)

	if cfg.AdvanceLLM != nil {
		s.checker = NewAdvanceChecker(cfg.AdvanceLLM, cfg.AdvanceModelID, cfg.AdvanceTimeout, logger)
	}

	cfg.Metrics.ObserveCallStarted(string(callType))
	s.events.CallStarted(ctx, cfg.CallID, cfg.UserID, callType, user.CurrentStreak)

	go s.watchdog(sessionCtx)

	return s, nil
}

// CallID returns the session's call identifier.
func (s *Session) CallID() string { return s.cfg.CallID }

// CallType returns the shape chosen for this call.
func (s *Session) CallType() CallType { return s.callType }

// Stages exposes the stage machine for observability.
func (s *Session) Stages() *StageMachine { return s.stages }

// SystemPrompt exposes the static prompt for inspection.
func (s *Session) SystemPrompt() string { return s.speaker.systemPrompt }

// Ended reports whether the call has reached its terminal state.
func (s *Session) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// HandleTranscript processes one finalized user transcript: fan out to the
// analyzers, generate the assistant turn (streaming to sink), then drive
// stage advancement. Returns the full utterance.
func (s *Session) HandleTranscript(ctx context.Context, text string, sink FragmentSink) (string, error) {
	if s.Ended() {
		return "", ErrCallEnded
	}
	s.touch()
	s.events.TranscriptReceived(ctx, s.cfg.CallID, s.cfg.UserID, text)

	text = strings.TrimSpace(text)
	if text == "" {
		// Silence: re-prompt, no analysis, no advancement.
		return s.speaker.NextUtterance(ctx, "", sink)
	}

	s.mu.Lock()
	s.userTurns++
	turnIndex := s.userTurns
	s.mu.Unlock()

	// Analyzers run concurrently with generation. Fast ones land in this
	// turn's mailbox drain; slow ones steer the next turn.
	s.pool.Broadcast(ctx, TurnEvent{Index: turnIndex, Text: text})

	utteranceStart := time.Now()
	utterance, err := s.speaker.NextUtterance(ctx, text, sink)
	if err != nil {
		s.logger.Warn("speaker turn degraded", "error", err)
	}
	s.events.UtteranceGenerated(ctx, s.cfg.CallID, time.Since(utteranceStart).Milliseconds(), len(utterance), utterance == fallbackUtterance)

	s.stages.RecordTurn()
	s.advance(ctx)

	if s.stages.Stage().Terminal() {
		s.finish(ctx, EndReasonCompleted)
	}
	return utterance, nil
}

// advance moves the stage machine forward at most one step, preferring the
// model-driven check and falling back to the rule-based policy.
func (s *Session) advance(ctx context.Context) {
	stage := s.stages.Stage()
	if stage.Terminal() {
		return
	}

	promiseAnswered, commitmentLocked, goodbyeSaid := s.speaker.Flags()
	trigger := "rules"
	should := false

	if s.checker != nil && stage != StageClose {
		ok, err := s.checker.ShouldAdvance(ctx, stage, s.speaker.LastTurns(4))
		if err == nil {
			should, trigger = ok, "model"
		} else {
			s.logger.Debug("advance check failed, using rules", "error", err)
		}
	}
	if trigger == "rules" {
		should = ShouldAdvance(AdvanceInput{
			Stage:            stage,
			TurnsInStage:     s.stages.TurnsInStage(),
			UserSpoke:        true,
			PromiseAnswered:  promiseAnswered,
			CommitmentLocked: commitmentLocked,
			GoodbyeSaid:      goodbyeSaid,
		})
	}
	if !should {
		return
	}

	next := s.stages.Advance()
	s.cfg.Metrics.ObserveStageTransition(next.String(), trigger)
	s.events.StageAdvanced(ctx, s.cfg.CallID, stage, next, trigger)
	s.events.PersonaShifted(ctx, s.cfg.CallID, s.persona.Primary())
}

// Hangup handles the transport's hang-up signal.
func (s *Session) Hangup(ctx context.Context) {
	s.finish(ctx, EndReasonHangup)
}

// Cancel aborts the call; the aggregator is finalized with whatever it has.
func (s *Session) Cancel() {
	s.cancel()
	s.finish(context.Background(), EndReasonCancelled)
}

// Summary blocks until the session has finalized, then returns the call's
// one CallSummary.
func (s *Session) Summary() CallSummary {
	<-s.finished
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.summary
}

// touch resets the idle watchdog.
func (s *Session) touch() {
	select {
	case s.activity <- struct{}{}:
	default:
	}
}

// watchdog enforces the hard duration ceiling and the idle limit. The
// ceiling forces the machine to CLOSE; a second expiry (or idling while
// already closing) ends the call outright.
func (s *Session) watchdog(ctx context.Context) {
	ceiling := time.NewTimer(s.cfg.MaxCallDuration)
	defer ceiling.Stop()
	idle := time.NewTimer(s.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.activity:
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.cfg.IdleTimeout)
		case <-ceiling.C:
			if s.stages.Stage() >= StageClose {
				s.finish(ctx, EndReasonCeiling)
				return
			}
			s.logger.Info("call ceiling reached, forcing close")
			s.stages.ForceClose()
			s.cfg.Metrics.ObserveStageTransition(StageClose.String(), "timeout")
			ceiling.Reset(s.cfg.GracePeriod + s.cfg.IdleTimeout)
		case <-idle.C:
			if s.stages.Stage() >= StageClose {
				s.finish(ctx, EndReasonIdle)
				return
			}
			s.logger.Info("idle limit reached, forcing close")
			s.stages.ForceClose()
			s.cfg.Metrics.ObserveStageTransition(StageClose.String(), "timeout")
			idle.Reset(s.cfg.IdleTimeout)
		}
	}
}

// finish drives the session to ENDED exactly once: walk the remaining
// stages, give in-flight analyzers the grace period, close the bus, take the
// aggregator's summary and persist everything.
func (s *Session) finish(ctx context.Context, reason string) {
	s.finishOnce.Do(func() {
		s.mu.Lock()
		s.ended = true
		s.mu.Unlock()
		s.cancel()

		s.stages.ForceClose()
		s.stages.Advance() // CLOSE → ENDED

		graceCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.GracePeriod)
		defer cancel()
		if err := s.pool.WaitIdle(graceCtx); err != nil {
			s.logger.Debug("grace period expired with analyzers in flight")
		}
		s.bus.Close()
		s.speaker.Close()

		summary := s.aggregator.Finalize(s.speaker.PromiseKept(), s.transcriptSummary())

		s.mu.Lock()
		s.summary = &summary
		s.mu.Unlock()

		s.cfg.Metrics.ObserveCallCompleted(string(s.callType), reason, float64(summary.DurationSeconds))
		s.events.CallEnded(context.WithoutCancel(ctx), s.cfg.CallID, s.cfg.UserID, reason, summary.DurationSeconds, summary.QualityScore)

		s.persist(context.WithoutCancel(ctx), summary)
		close(s.finished)
	})
}

const transcriptSummaryTurns = 6

// transcriptSummary is a cheap extract of the conversation, not a model
// summary: the last few spoken turns, truncated.
func (s *Session) transcriptSummary() string {
	turns := s.speaker.LastTurns(transcriptSummaryTurns)
	if len(turns) == 0 {
		return ""
	}
	var sb strings.Builder
	for i, t := range turns {
		if i > 0 {
			sb.WriteString(" | ")
		}
		text := t.Text
		if len(text) > 120 {
			text = text[:120] + "..."
		}
		sb.WriteString(t.Role)
		sb.WriteString(": ")
		sb.WriteString(text)
	}
	return sb.String()
}

// persist runs the end-of-call writes. Each write is retried once; failures
// are logged and never block the remaining writes.
func (s *Session) persist(ctx context.Context, summary CallSummary) {
	mem := BuildCallMemory(s.memory, summary, s.persona.Primary(), s.user.CurrentStreak)

	s.writeWithRetry(ctx, "call_memory", func(ctx context.Context) error {
		return s.cfg.Store.PutCallMemory(ctx, s.cfg.UserID, mem)
	})

	row := CallAnalytics{
		ID:                   uuid.NewString(),
		UserID:               summary.UserID,
		CallType:             summary.CallType,
		Mood:                 summary.Mood,
		DurationSeconds:      summary.DurationSeconds,
		QualityScore:         summary.QualityScore,
		PromiseKept:          summary.PromiseKept,
		TomorrowCommitment:   summary.TomorrowCommitment,
		CommitmentTime:       summary.CommitmentTime,
		CommitmentIsSpecific: summary.CommitmentIsSpecific,
		SentimentTrajectory:  summary.SentimentTrajectory,
		ExcusesDetected:      summary.ExcusesDetected,
		QuotesCaptured:       summary.QuotesCaptured,
		TranscriptSummary:    summary.TranscriptSummary,
		CreatedAt:            time.Now().UTC(),
	}
	s.writeWithRetry(ctx, "call_analytics", func(ctx context.Context) error {
		return s.cfg.Store.AppendCallAnalytics(ctx, row)
	})

	if len(summary.ExcusesDetected) > 0 {
		s.writeWithRetry(ctx, "excuse_patterns", func(ctx context.Context) error {
			return s.cfg.Store.RecordExcusePatterns(ctx, s.cfg.UserID, summary.ExcusesDetected)
		})
	}

	if s.cfg.Reporter != nil {
		s.writeWithRetry(ctx, "call_result", func(ctx context.Context) error {
			return s.cfg.Reporter.ReportCallResult(ctx, s.cfg.UserID, summary.PromiseKept, summary.TomorrowCommitment)
		})
	}
}

func (s *Session) writeWithRetry(ctx context.Context, name string, write func(context.Context) error) {
	err := write(ctx)
	if err == nil {
		return
	}
	s.logger.Warn("post-call write failed, retrying once", "write", name, "error", err)
	if err = write(ctx); err == nil {
		return
	}
	s.cfg.Metrics.ObservePersistFailure(name)
	s.events.PersistFailed(ctx, s.cfg.CallID, s.cfg.UserID, name, err)
	s.logger.Error("post-call write failed after retry", "write", name, "error", err)
}
