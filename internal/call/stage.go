package call

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/futureself-ai/futureself/pkg/logging"
)

// StageMachine owns the current conversation stage. Traversal is linear and
// forward-only: HOOK → ACKNOWLEDGE → ACCOUNTABILITY → DIG_DEEPER → PEAK →
// TOMORROW_LOCK → CLOSE → ENDED, one step at a time, at most once per
// speaker turn.
type StageMachine struct {
	mu           sync.Mutex
	stage        CallStage
	turnsInStage int
	totalTurns   int
	observed     []CallStage
}

func NewStageMachine() *StageMachine {
	return &StageMachine{stage: StageHook, observed: []CallStage{StageHook}}
}

func (m *StageMachine) Stage() CallStage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stage
}

func (m *StageMachine) TurnsInStage() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.turnsInStage
}

func (m *StageMachine) TotalTurns() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totalTurns
}

// Observed returns the sequence of stages seen so far.
func (m *StageMachine) Observed() []CallStage {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CallStage, len(m.observed))
	copy(out, m.observed)
	return out
}

// RecordTurn counts one completed user/assistant exchange in the current stage.
func (m *StageMachine) RecordTurn() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turnsInStage++
	m.totalTurns++
}

// Advance moves forward exactly one stage and resets the per-stage turn
// counter. Advancing past ENDED is a logic defect: it is logged by the
// caller and ignored here.
func (m *StageMachine) Advance() CallStage {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stage >= StageEnded {
		return m.stage
	}
	m.stage++
	m.turnsInStage = 0
	m.observed = append(m.observed, m.stage)
	return m.stage
}

// ForceClose walks the machine forward to CLOSE one stage at a time, so the
// observed sequence stays contiguous. Used when the hard call ceiling or the
// idle timeout fires.
func (m *StageMachine) ForceClose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for m.stage < StageClose {
		m.stage++
		m.turnsInStage = 0
		m.observed = append(m.observed, m.stage)
	}
}

// AdvanceInput is everything the rule-based advance policy looks at.
type AdvanceInput struct {
	Stage            CallStage
	TurnsInStage     int
	UserSpoke        bool // a non-empty user reply landed in this stage
	PromiseAnswered  bool
	CommitmentLocked bool // a specific commitment has been captured
	GoodbyeSaid      bool // the assistant's last turn contained a closing phrase
}

// ShouldAdvance is the pure rule-based advance policy, the fallback when the
// model-driven check errors or times out.
func ShouldAdvance(in AdvanceInput) bool {
	switch in.Stage {
	case StageHook:
		return in.TurnsInStage >= 1 && in.UserSpoke
	case StageAcknowledge:
		return in.TurnsInStage >= 1
	case StageAccountability:
		return in.PromiseAnswered || in.TurnsInStage >= 3
	case StageDigDeeper:
		return in.TurnsInStage >= 1
	case StagePeak:
		return in.TurnsInStage >= 1
	case StageTomorrowLock:
		return in.CommitmentLocked || in.TurnsInStage >= 3
	case StageClose:
		return in.GoodbyeSaid
	default:
		return false
	}
}

var closingPhrases = []string{
	"talk tomorrow",
	"talk to you tomorrow",
	"goodnight",
	"good night",
	"take care",
	"sleep well",
	"until tomorrow",
}

// containsClosingPhrase reports whether assistant text reads like a goodbye.
func containsClosingPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, p := range closingPhrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

const advanceCheckSystem = `You supervise a short accountability phone call that moves through fixed stages. Given the current stage and the last few turns, answer with exactly YES if the conversation is ready to move to the next stage, or NO if it should stay. Answer with one word only.`

// AdvanceChecker asks a small reasoning model whether the conversation has
// done its work in the current stage. Any error or timeout is surfaced so
// the caller can fall back to the rule-based policy.
type AdvanceChecker struct {
	llm     LLMClient
	modelID string
	timeout time.Duration
	logger  *logging.Logger
}

func NewAdvanceChecker(llm LLMClient, modelID string, timeout time.Duration, logger *logging.Logger) *AdvanceChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &AdvanceChecker{llm: llm, modelID: modelID, timeout: timeout, logger: logger}
}

// ShouldAdvance returns the model's verdict for the current stage given the
// last turns of conversation.
func (c *AdvanceChecker) ShouldAdvance(ctx context.Context, stage CallStage, lastTurns []TurnRecord) (bool, error) {
	if c == nil || c.llm == nil {
		return false, fmt.Errorf("call: advance checker not configured")
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Current stage: %s\n\nRecent turns:\n", stage)
	for _, t := range lastTurns {
		fmt.Fprintf(&sb, "%s: %s\n", t.Role, t.Text)
	}
	sb.WriteString("\nReady to advance? YES or NO.")

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.llm.Complete(ctx, LLMRequest{
		Model:     c.modelID,
		System:    []string{advanceCheckSystem},
		Messages:  []ChatMessage{{Role: ChatRoleUser, Content: sb.String()}},
		MaxTokens: 3,
	})
	if err != nil {
		return false, fmt.Errorf("call: advance check failed: %w", err)
	}

	answer := strings.ToUpper(strings.TrimSpace(resp.Text))
	return strings.HasPrefix(answer, "YES"), nil
}
