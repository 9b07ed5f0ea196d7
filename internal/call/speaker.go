package call

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/futureself-ai/futureself/internal/observability/metrics"
	"github.com/futureself-ai/futureself/pkg/logging"
)

const (
	defaultSpeakerMaxTokens = 150
	defaultSpeakerTimeout   = 30 * time.Second

	fallbackUtterance = "I'm still here. Tell me about today. Did you do what you said you would?"
	repromptUtterance = "Still with me?"
)

// FragmentSink receives streamed utterance fragments in order. May be nil
// when the caller only wants the full turn.
type FragmentSink func(fragment string)

// Speaker generates one assistant utterance per user turn. It owns the
// append-only conversation history and the keyword-latched promise state;
// everything else it needs (stage, persona, insights) is injected per turn.
type Speaker struct {
	llm          StreamingLLMClient
	modelID      string
	maxTokens    int32
	timeout      time.Duration
	systemPrompt string
	persona      *PersonaController
	stages       *StageMachine
	mailbox      *insightMailbox
	logger       *logging.Logger
	metrics      *metrics.CallMetrics

	mu               sync.Mutex
	history          []TurnRecord
	nextIndex        int
	promiseKept      *bool
	commitmentLocked bool
	goodbyeSaid      bool
}

// SpeakerConfig bundles the per-session wiring.
type SpeakerConfig struct {
	LLM          StreamingLLMClient
	ModelID      string
	MaxTokens    int32
	Timeout      time.Duration
	SystemPrompt string
	Persona      *PersonaController
	Stages       *StageMachine
	Bus          *InsightBus
	Logger       *logging.Logger
	Metrics      *metrics.CallMetrics
}

func NewSpeaker(cfg SpeakerConfig) *Speaker {
	if cfg.Persona == nil || cfg.Stages == nil || cfg.Bus == nil {
		panic("call: speaker requires persona, stages and bus")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = defaultSpeakerMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultSpeakerTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &Speaker{
		llm:          cfg.LLM,
		modelID:      cfg.ModelID,
		maxTokens:    cfg.MaxTokens,
		timeout:      cfg.Timeout,
		systemPrompt: cfg.SystemPrompt,
		persona:      cfg.Persona,
		stages:       cfg.Stages,
		mailbox:      newInsightMailbox(cfg.Bus.Subscribe()),
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
	}
}

// NextUtterance generates the assistant's reply to one finalized user
// transcript, streaming fragments to sink as they arrive and returning the
// full turn. Errors never prevent a usable utterance: an unavailable
// generator yields the canned fallback with a nil error, while a mid-stream
// failure returns the partial text alongside the error and the call goes on.
func (s *Speaker) NextUtterance(ctx context.Context, userText string, sink FragmentSink) (string, error) {
	userText = strings.TrimSpace(userText)
	if userText == "" {
		// Silence on the line. Re-prompt without touching history or
		// the promise latch so the stage policy sees no user turn.
		if sink != nil {
			sink(repromptUtterance)
		}
		return repromptUtterance, nil
	}

	s.appendTurn(RoleUser, userText)
	s.latchPromise(userText)

	stageCtx := s.buildStageContext()
	s.appendTurn(RoleInjection, stageCtx)

	req := LLMRequest{
		Model:     s.modelID,
		System:    []string{s.systemPrompt},
		Messages:  s.chatMessages(),
		MaxTokens: s.maxTokens,
	}

	if s.llm == nil {
		return s.fallback(sink, nil), nil
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	stream, err := s.llm.CompleteStream(ctx, req)
	if err != nil {
		return s.fallback(sink, err), nil
	}

	var full strings.Builder
	var streamErr error
	for chunk := range stream {
		if chunk.Err != nil {
			streamErr = chunk.Err
			break
		}
		if chunk.Text != "" {
			full.WriteString(chunk.Text)
			if sink != nil {
				sink(chunk.Text)
			}
		}
		if chunk.Done {
			break
		}
	}
	s.metrics.ObserveSpeakerLatency(time.Since(start).Seconds())

	text := strings.TrimSpace(full.String())
	if text == "" {
		// Nothing usable arrived before the failure.
		return s.fallback(sink, streamErr), nil
	}

	s.appendTurn(RoleAssistant, text)
	s.inspectAssistantText(text)

	if streamErr != nil {
		s.logger.Warn("speaker stream failed mid-turn", "error", streamErr, "partial_len", len(text))
		return text, streamErr
	}
	return text, nil
}

// fallback records and returns the canned utterance. Stage state is left
// untouched by the speaker either way; the session decides advancement.
func (s *Speaker) fallback(sink FragmentSink, cause error) string {
	if cause != nil {
		s.logger.Warn("speaker generator unavailable, using fallback", "error", cause)
	}
	s.metrics.ObserveSpeakerFallback()
	s.appendTurn(RoleAssistant, fallbackUtterance)
	if sink != nil {
		sink(fallbackUtterance)
	}
	return fallbackUtterance
}

// buildStageContext composes the per-turn injection: stage instruction,
// state flags, persona paragraph, and the atomically drained insights.
func (s *Speaker) buildStageContext() string {
	stage := s.stages.Stage()

	var sb strings.Builder
	sb.WriteString(stageInstructions[stage])

	s.mu.Lock()
	kept := s.promiseKept
	locked := s.commitmentLocked
	s.mu.Unlock()

	if kept != nil {
		if *kept {
			sb.WriteString("\nState: they KEPT yesterday's promise.")
		} else {
			sb.WriteString("\nState: they BROKE yesterday's promise.")
		}
	}
	if stage == StageTomorrowLock && !locked {
		sb.WriteString("\nState: no specific commitment yet. Push for an action AND a time.")
	}
	if stage == StageClose {
		sb.WriteString("\nState: deliver the closing line, then end the call.")
	}

	sb.WriteString("\n\n")
	sb.WriteString(s.persona.Prompt())

	for _, in := range s.mailbox.Drain() {
		if line := in.PromptLine(); line != "" {
			sb.WriteString("\nLive read: ")
			sb.WriteString(line)
		}
		if in.Kind == InsightCommitment && in.Commitment != nil && in.Commitment.IsSpecific {
			s.mu.Lock()
			s.commitmentLocked = true
			s.mu.Unlock()
		}
	}
	return sb.String()
}

// latchPromise pre-sets the promise outcome from the user's own words. First
// clear answer wins; analyzer results never overwrite it.
func (s *Speaker) latchPromise(userText string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.promiseKept != nil {
		return
	}
	if kept := classifyPromise(userText); kept != nil {
		s.promiseKept = kept
	}
}

// inspectAssistantText checks the finished turn for end-call indicators.
func (s *Speaker) inspectAssistantText(text string) {
	if containsClosingPhrase(text) {
		s.mu.Lock()
		s.goodbyeSaid = true
		s.mu.Unlock()
	}
}

func (s *Speaker) appendTurn(role, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = append(s.history, TurnRecord{Role: role, Text: text, Index: s.nextIndex})
	s.nextIndex++
}

// chatMessages renders history for the model. Injections become system
// messages; they are never surfaced to the user.
func (s *Speaker) chatMessages() []ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ChatMessage, 0, len(s.history))
	for _, t := range s.history {
		role := ChatRoleUser
		switch t.Role {
		case RoleAssistant:
			role = ChatRoleAssistant
		case RoleInjection:
			role = ChatRoleSystem
		}
		out = append(out, ChatMessage{Role: role, Content: t.Text})
	}
	return out
}

// History returns a copy of the conversation log.
func (s *Speaker) History() []TurnRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]TurnRecord, len(s.history))
	copy(out, s.history)
	return out
}

// LastTurns returns up to n of the most recent spoken turns, excluding
// injections. Used by the model-driven advance check.
func (s *Speaker) LastTurns(n int) []TurnRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var spoken []TurnRecord
	for _, t := range s.history {
		if t.Role != RoleInjection {
			spoken = append(spoken, t)
		}
	}
	if len(spoken) > n {
		spoken = spoken[len(spoken)-n:]
	}
	return spoken
}

// PromiseKept exposes the keyword-latched promise outcome.
func (s *Speaker) PromiseKept() *bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.promiseKept == nil {
		return nil
	}
	v := *s.promiseKept
	return &v
}

// Flags reports the advancement-relevant state the speaker tracks.
func (s *Speaker) Flags() (promiseAnswered, commitmentLocked, goodbyeSaid bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.promiseKept != nil, s.commitmentLocked, s.goodbyeSaid
}

// Close releases the speaker's bus subscription resources. The bus itself
// is closed by the session.
func (s *Speaker) Close() { s.mailbox.Wait() }
