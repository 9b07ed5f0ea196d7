package call

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/futureself-ai/futureself/internal/observability/metrics"
	"github.com/futureself-ai/futureself/pkg/logging"
)

// ManagerConfig carries the process-wide collaborators shared by every
// session. Per-call state lives in the sessions themselves.
type ManagerConfig struct {
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

// SessionManager tracks the live sessions in this process, keyed by the
// gateway's call control id.
type SessionManager struct {
	cfg ManagerConfig

	mu		sync.Mutex
	sessions	map[string]*Session
}

func NewSessionManager(cfg ManagerConfig) *SessionManager {
	if cfg.Store == nil {
		panic("call: session manager requires a user store")
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Default()
	}
	return &SessionManager{
		cfg:      cfg,
		sessions: make(map[string]*Session),
	}
}

// StartSession creates and registers the session for a newly answered call.
// The call type comes from the configured policy.
func (m *SessionManager) StartSession(ctx context.Context, callID, userID string) (*Session, error) {
	return m.startSession(ctx, callID, userID, m.cfg.TypePolicy)
}

// StartSessionWithType forces tonight's call shape, overriding the policy.
// Used by the outbound-call API when the scheduler pins a type.
func (m *SessionManager) StartSessionWithType(ctx context.Context, callID, userID string, callType CallType) (*Session, error) {
	if callType == "" {
		return m.StartSession(ctx, callID, userID)
	}
	return m.startSession(ctx, callID, userID, StaticCallTypePolicy{Type: callType})
}

func (m *SessionManager) startSession(ctx context.Context, callID, userID string, policy CallTypePolicy) (*Session, error) {
	m.mu.Lock()
	if _, exists := m.sessions[callID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("call: session %s already active", callID)
	}
	m.mu.Unlock()

	s, err := NewSession(ctx, SessionConfig{
		CallID:           callID,
		UserID:           userID,
		Store:            m.cfg.Store,
		Reporter:         m.cfg.Reporter,
		SpeakerLLM:       m.cfg.SpeakerLLM,
		SpeakerModelID:   m.cfg.SpeakerModelID,
		AdvanceLLM:       m.cfg.AdvanceLLM,
		AdvanceModelID:   m.cfg.AdvanceModelID,
		AnalyzerLLM:      m.cfg.AnalyzerLLM,
		AnalyzerModelID:  m.cfg.AnalyzerModelID,
		TypePolicy:       policy,
		QuoteThreshold:   m.cfg.QuoteThreshold,
		MaxCallDuration:  m.cfg.MaxCallDuration,
		IdleTimeout:      m.cfg.IdleTimeout,
		GracePeriod:      m.cfg.GracePeriod,
		SpeakerTimeout:   m.cfg.SpeakerTimeout,
		AnalyzerTimeout:  m.cfg.AnalyzerTimeout,
		AdvanceTimeout:   m.cfg.AdvanceTimeout,
		SpeakerMaxTokens: m.cfg.SpeakerMaxTokens,
		Logger:           m.cfg.Logger,
		Metrics:          m.cfg.Metrics,
		Events:           m.cfg.Events,
	})
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.CallID()] = s
	m.mu.Unlock()
	return s, nil
}

// Get returns the live session for a call id, or nil.
func (m *SessionManager) Get(callID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[callID]
}

// Remove drops a session from the registry. The session itself is
// responsible for its own finalization.
func (m *SessionManager) Remove(callID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, callID)
}

// ActiveCount reports how many calls this process currently owns.
func (m *SessionManager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown cancels every live session. Used on process drain.
func (m *SessionManager) Shutdown() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Cancel()
	}
}
