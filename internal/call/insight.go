package call

import "fmt"

// InsightKind discriminates the Insight union.
type InsightKind string

const (
	InsightExcuseDetected  InsightKind = "excuse_detected"
	InsightSentiment       InsightKind = "sentiment_analysis"
	InsightCommitment      InsightKind = "commitment_identified"
	InsightPromiseResponse InsightKind = "promise_response"
	InsightUserFrustrated  InsightKind = "user_frustrated"
	InsightPatternAlert    InsightKind = "pattern_alert"
	InsightMemorableQuote  InsightKind = "memorable_quote"
	InsightExcuseCallout   InsightKind = "excuse_callout"
)

// ExcuseInsight flags a classified excuse in the user's last turn.
type ExcuseInsight struct {
	Text            string        `json:"text"`
	Pattern         ExcusePattern `json:"pattern"`
	MatchesFavorite bool          `json:"matches_favorite"`
	Confidence      float64       `json:"confidence"`
}

// SentimentInsight labels the turn with one closed-set sentiment.
type SentimentInsight struct {
	Sentiment  Sentiment `json:"sentiment"`
	Indicators []string  `json:"indicators,omitempty"`
}

// CommitmentInsight is an extracted (action, time) pair. Specific iff both
// are non-empty.
type CommitmentInsight struct {
	Action     string `json:"action"`
	Time       string `json:"time,omitempty"`
	IsSpecific bool   `json:"is_specific"`
}

// PromiseInsight classifies the turn as an answer about yesterday's
// commitment. Kept is nil when the turn was ambiguous.
type PromiseInsight struct {
	Kept *bool `json:"kept"`
}

// FrustrationLevel quantizes escalating frustration.
type FrustrationLevel string

const (
	FrustrationLow  FrustrationLevel = "low"
	FrustrationMed  FrustrationLevel = "med"
	FrustrationHigh FrustrationLevel = "high"
)

type FrustrationInsight struct {
	Level           FrustrationLevel `json:"level"`
	SuggestedAction string           `json:"suggested_action"`
}

// PatternInsight cross-references the turn against history.
type PatternInsight struct {
	PatternType       string `json:"pattern_type"`
	Description       string `json:"description"`
	HistoricalContext string `json:"historical_context,omitempty"`
}

// QuoteInsight marks a line worth remembering across calls.
type QuoteInsight struct {
	Text       string  `json:"text"`
	ContextTag string  `json:"context"`
	Weight     float64 `json:"emotional_weight"`
}

// CalloutInsight suggests a line for confronting a repeated excuse.
type CalloutInsight struct {
	CalloutType       string `json:"callout_type"`
	SuggestedResponse string `json:"suggested_response"`
}

// Insight is the closed tagged union emitted by analyzers. Exactly the
// payload named by Kind is non-nil.
type Insight struct {
	Kind     InsightKind `json:"kind"`
	Turn     int         `json:"turn"`
	Producer string      `json:"producer,omitempty"`

	Excuse      *ExcuseInsight      `json:"excuse,omitempty"`
	Sentiment   *SentimentInsight   `json:"sentiment,omitempty"`
	Commitment  *CommitmentInsight  `json:"commitment,omitempty"`
	Promise     *PromiseInsight     `json:"promise,omitempty"`
	Frustration *FrustrationInsight `json:"frustration,omitempty"`
	Pattern     *PatternInsight     `json:"pattern,omitempty"`
	Quote       *QuoteInsight       `json:"quote,omitempty"`
	Callout     *CalloutInsight     `json:"callout,omitempty"`
}

// PromptLine renders the insight as a one-line steering hint for the
// speaker's next turn. Empty when the insight carries nothing actionable.
func (in Insight) PromptLine() string {
	switch in.Kind {
	case InsightExcuseDetected:
		if in.Excuse == nil {
			return ""
		}
		if in.Excuse.MatchesFavorite {
			return fmt.Sprintf("The user just used their FAVORITE excuse (%s). Call it out by name.", in.Excuse.Pattern)
		}
		return fmt.Sprintf("Excuse detected: %s. Don't let it slide.", in.Excuse.Pattern)
	case InsightSentiment:
		if in.Sentiment == nil {
			return ""
		}
		return fmt.Sprintf("User sentiment right now: %s.", in.Sentiment.Sentiment)
	case InsightCommitment:
		if in.Commitment == nil {
			return ""
		}
		if in.Commitment.IsSpecific {
			return fmt.Sprintf("Commitment locked: %q at %q. Repeat it back to seal it.", in.Commitment.Action, in.Commitment.Time)
		}
		return fmt.Sprintf("Commitment %q is VAGUE (no time). Push for a specific time.", in.Commitment.Action)
	case InsightPromiseResponse:
		if in.Promise == nil || in.Promise.Kept == nil {
			return ""
		}
		if *in.Promise.Kept {
			return "They kept yesterday's promise. Acknowledge it, briefly."
		}
		return "They broke yesterday's promise. Do not gloss over it."
	case InsightUserFrustrated:
		if in.Frustration == nil {
			return ""
		}
		return fmt.Sprintf("User frustration is %s. %s", in.Frustration.Level, in.Frustration.SuggestedAction)
	case InsightPatternAlert:
		if in.Pattern == nil {
			return ""
		}
		return fmt.Sprintf("Pattern: %s. %s", in.Pattern.Description, in.Pattern.HistoricalContext)
	case InsightMemorableQuote:
		// Captured for memory, not for steering the current turn.
		return ""
	case InsightExcuseCallout:
		if in.Callout == nil {
			return ""
		}
		return fmt.Sprintf("Suggested callout: %q", in.Callout.SuggestedResponse)
	}
	return ""
}
