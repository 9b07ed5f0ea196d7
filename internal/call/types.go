package call

import (
	"context"
	"time"
)

// CallStage is one of the eight phases a call moves through. Stages only
// ever advance forward, one step at a time.
type CallStage int

const (
	StageHook CallStage = iota
	StageAcknowledge
	StageAccountability
	StageDigDeeper
	StagePeak
	StageTomorrowLock
	StageClose
	StageEnded
)

var stageNames = [...]string{
	"hook",
	"acknowledge",
	"accountability",
	"dig_deeper",
	"peak",
	"tomorrow_lock",
	"close",
	"ended",
}

func (s CallStage) String() string {
	if s < StageHook || s > StageEnded {
		return "unknown"
	}
	return stageNames[s]
}

// Terminal reports whether the call is over.
func (s CallStage) Terminal() bool { return s >= StageEnded }

// CallType selects the overall shape of a call. Chosen once before the call
// and immutable for its duration.
type CallType string

const (
	CallTypeAudit      CallType = "audit"
	CallTypeReflection CallType = "reflection"
	CallTypeStory      CallType = "story"
	CallTypeChallenge  CallType = "challenge"
	CallTypeMilestone  CallType = "milestone"
)

// Mood summarizes how the user came across on a call.
type Mood string

const (
	MoodMotivated Mood = "motivated"
	MoodNeutral   Mood = "neutral"
	MoodDown      Mood = "down"
	MoodDefensive Mood = "defensive"
	MoodReflect   Mood = "reflective"
)

// Persona is a named behavioral mode for the speaker. The controller keeps a
// weighted mixture over all of them; see persona.go.
type Persona string

const (
	PersonaMentor    Persona = "mentor"
	PersonaHardass   Persona = "hardass"
	PersonaSage      Persona = "sage"
	PersonaConfidant Persona = "confidant"
	PersonaCoach     Persona = "coach"
)

// AllPersonas lists every persona in weight-vector order.
var AllPersonas = [...]Persona{PersonaMentor, PersonaHardass, PersonaSage, PersonaConfidant, PersonaCoach}

// NarrativeArc is derived purely from the user's streak at call start.
type NarrativeArc string

const (
	ArcEarlyStruggle    NarrativeArc = "early_struggle"
	ArcProvingGround    NarrativeArc = "proving_ground"
	ArcBuildingMomentum NarrativeArc = "building_momentum"
	ArcTransformation   NarrativeArc = "transformation"
	ArcMastery          NarrativeArc = "mastery"
)

// Sentiment is the closed set of per-turn sentiment labels.
type Sentiment string

const (
	SentimentEngaged    Sentiment = "engaged"
	SentimentNeutral    Sentiment = "neutral"
	SentimentFrustrated Sentiment = "frustrated"
	SentimentDefensive  Sentiment = "defensive"
	SentimentDeflecting Sentiment = "deflecting"
	SentimentReflective Sentiment = "reflective"
)

// ExcusePattern is the closed excuse taxonomy. Classification is
// keyword-based; family dominates sick when both match.
type ExcusePattern string

const (
	ExcuseTooTired ExcusePattern = "too_tired"
	ExcuseNoTime   ExcusePattern = "no_time"
	ExcuseBusy     ExcusePattern = "busy"
	ExcuseForgot   ExcusePattern = "forgot"
	ExcuseSick     ExcusePattern = "sick"
	ExcuseFamily   ExcusePattern = "family"
	ExcuseWork     ExcusePattern = "work"
	ExcuseTomorrow ExcusePattern = "tomorrow"
	ExcuseStressed ExcusePattern = "stressed"
	ExcuseWeather  ExcusePattern = "weather"
	ExcuseTraffic  ExcusePattern = "traffic"
	ExcuseOther    ExcusePattern = "other"
)

// OnboardingProfile carries the answers collected when the user signed up.
// Every field may be empty; prompt assembly degrades gracefully.
type OnboardingProfile struct {
	FavoriteExcuse  string `json:"favorite_excuse,omitempty"`
	FearIfNoChange  string `json:"fear_if_no_change,omitempty"`
	WhoDisappointed string `json:"who_disappointed,omitempty"`
	BiggestFear     string `json:"biggest_fear,omitempty"`
	SuccessVision   string `json:"success_vision,omitempty"`
	AttemptHistory  string `json:"attempt_history,omitempty"`
}

// CallRecord is one entry of the user's recent call history (≤14 kept).
type CallRecord struct {
	PromiseKept *bool     `json:"promise_kept"`
	Commitment  string    `json:"commitment"`
	Timestamp   time.Time `json:"timestamp"`
	CallType    CallType  `json:"call_type"`
}

// UserContext is the read-only snapshot of the user taken at call start.
type UserContext struct {
	UserID          string            `json:"user_id"`
	Name            string            `json:"name"`
	Phone           string            `json:"phone,omitempty"`
	DailyCommitment string            `json:"daily_commitment"`
	CurrentStreak   int               `json:"current_streak_days"`
	Goal            string            `json:"goal"`
	Onboarding      OnboardingProfile `json:"onboarding"`
	VoiceID         string            `json:"voice_id,omitempty"`
	RecentCalls     []CallRecord      `json:"recent_call_history,omitempty"`
}

// MemorableQuote is a user line worth bringing up on a later call.
type MemorableQuote struct {
	Text       string    `json:"text"`
	ContextTag string    `json:"context"`
	Weight     float64   `json:"emotional_weight"`
	CapturedAt time.Time `json:"captured_at"`
}

// EmotionalPeak marks a high or low point in a call.
type EmotionalPeak struct {
	Description string    `json:"description"`
	Kind        string    `json:"kind"` // "high" or "low"
	OccurredAt  time.Time `json:"occurred_at"`
}

// OpenLoop is an assistant promise to reveal something on a later call.
type OpenLoop struct {
	Text         string `json:"text"`
	ResolveAtDay int    `json:"resolve_at_day"`
	Resolved     bool   `json:"resolved"`
}

const (
	maxMemorableQuotes = 20
	maxEmotionalPeaks  = 10
	maxSeverityLevel   = 5
	minSeverityLevel   = 1
)

// CallMemory is read at call start and rewritten once at call end.
type CallMemory struct {
	MemorableQuotes []MemorableQuote `json:"memorable_quotes,omitempty"`
	EmotionalPeaks  []EmotionalPeak  `json:"emotional_peaks,omitempty"`
	OpenLoops       []OpenLoop       `json:"open_loops,omitempty"`
	LastCallType    CallType         `json:"last_call_type,omitempty"`
	LastMood        Mood             `json:"last_mood,omitempty"`
	CurrentPersona  Persona          `json:"current_persona,omitempty"`
	SeverityLevel   int              `json:"severity_level"`
	LastCommitment  string           `json:"last_commitment,omitempty"`
	LastCommitTime  string           `json:"last_commitment_time,omitempty"`
	NarrativeArc    NarrativeArc     `json:"narrative_arc,omitempty"`
}

// ExcuseStat tracks how often a normalized excuse pattern has been used.
type ExcuseStat struct {
	Pattern       ExcusePattern `json:"normalized_pattern"`
	TimesTotal    int           `json:"times_total"`
	TimesThisWeek int           `json:"times_this_week"`
	DaysUsed      int           `json:"days_used"`
	IsFavorite    bool          `json:"is_favorite"`
}

// ExcuseHistory is the per-user excuse ledger keyed by normalized pattern.
type ExcuseHistory struct {
	Patterns map[ExcusePattern]ExcuseStat `json:"patterns,omitempty"`
}

// Stat returns the stat for a pattern, zero-valued when unseen.
func (h ExcuseHistory) Stat(p ExcusePattern) ExcuseStat {
	if h.Patterns == nil {
		return ExcuseStat{Pattern: p}
	}
	return h.Patterns[p]
}

// Turn roles. Injections are visible to the model but never spoken.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleInjection = "system-injection"
)

// TurnRecord is one entry of the append-only conversation log.
type TurnRecord struct {
	Role  string `json:"role"`
	Text  string `json:"text"`
	Index int    `json:"index"`
}

// DetectedExcuse is one excuse occurrence recorded into analytics.
type DetectedExcuse struct {
	Pattern         ExcusePattern `json:"pattern"`
	MatchesFavorite bool          `json:"matches_favorite"`
}

// CallSummary is the aggregator's terminal output for one call.
type CallSummary struct {
	UserID               string           `json:"user_id"`
	CallID               string           `json:"call_id"`
	CallType             CallType         `json:"call_type"`
	Mood                 Mood             `json:"mood"`
	DurationSeconds      int              `json:"call_duration_seconds"`
	QualityScore         float64          `json:"call_quality_score"`
	PromiseKept          *bool            `json:"promise_kept"`
	TomorrowCommitment   string           `json:"tomorrow_commitment,omitempty"`
	CommitmentTime       string           `json:"commitment_time,omitempty"`
	CommitmentIsSpecific bool             `json:"commitment_is_specific"`
	SentimentTrajectory  []Sentiment      `json:"sentiment_trajectory,omitempty"`
	ExcusesDetected      []DetectedExcuse `json:"excuses_detected,omitempty"`
	QuotesCaptured       []MemorableQuote `json:"quotes_captured,omitempty"`
	EmotionalPeaks       []EmotionalPeak  `json:"emotional_peaks,omitempty"`
	TranscriptSummary    string           `json:"transcript_summary,omitempty"`
}

// CallAnalytics is the write-once analytics row persisted at call end.
// Field semantics are shared with downstream consumers; do not repurpose.
type CallAnalytics struct {
	ID                   string           `json:"id"`
	UserID               string           `json:"user_id"`
	CallType             CallType         `json:"call_type"`
	Mood                 Mood             `json:"mood"`
	DurationSeconds      int              `json:"call_duration_seconds"`
	QualityScore         float64          `json:"call_quality_score"`
	PromiseKept          *bool            `json:"promise_kept"`
	TomorrowCommitment   string           `json:"tomorrow_commitment,omitempty"`
	CommitmentTime       string           `json:"commitment_time,omitempty"`
	CommitmentIsSpecific bool             `json:"commitment_is_specific"`
	SentimentTrajectory  []Sentiment      `json:"sentiment_trajectory,omitempty"`
	ExcusesDetected      []DetectedExcuse `json:"excuses_detected,omitempty"`
	QuotesCaptured       []MemorableQuote `json:"quotes_captured,omitempty"`
	TranscriptSummary    string           `json:"transcript_summary,omitempty"`
	CreatedAt            time.Time        `json:"created_at"`
}

// UserStore is the persistence collaborator the core compiles against.
// Reads happen once at call start, writes once at call end. Every operation
// is idempotent on its payload; write failures are logged and must not block
// the remaining writes.
type UserStore interface {
	GetUserContext(ctx context.Context, userID string) (UserContext, error)
	GetCallMemory(ctx context.Context, userID string) (CallMemory, error)
	GetExcuseHistory(ctx context.Context, userID string) (ExcuseHistory, error)
	PutCallMemory(ctx context.Context, userID string, mem CallMemory) error
	AppendCallAnalytics(ctx context.Context, row CallAnalytics) error
	RecordExcusePatterns(ctx context.Context, userID string, excuses []DetectedExcuse) error
}

// ResultReporter pushes the promise outcome to the backend so streaks and
// scheduling stay in sync.
type ResultReporter interface {
	ReportCallResult(ctx context.Context, userID string, promiseKept *bool, commitment string) error
}
