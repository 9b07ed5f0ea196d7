package call

import (
	"context"
	"regexp"
	"strings"
)

var (
	promiseNegativeRe = regexp.MustCompile(`(?i)\b(no|nope|nah|didn'?t|did not|couldn'?t|could not|wasn'?t able|failed|missed|skipped|blew it)\b`)
	promiseAffirmRe   = regexp.MustCompile(`(?i)\b(yes|yeah|yep|yup|i did|did it|done|got it done|nailed it|crushed it|completed|finished)\b`)
)

// classifyPromise reads a user turn as an answer about yesterday's
// commitment. Returns nil when the turn is ambiguous. Negative markers win:
// "no, but I did stretch" is still a broken promise.
func classifyPromise(text string) *bool {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if promiseNegativeRe.MatchString(text) {
		kept := false
		return &kept
	}
	if promiseAffirmRe.MatchString(text) {
		kept := true
		return &kept
	}
	return nil
}

// PromiseClassifier emits PromiseResponse for clearly affirmative or
// negative turns; ambiguous turns produce nothing. Consumers latch the
// first non-null answer, so duplicate deliveries are harmless.
type PromiseClassifier struct{}

func NewPromiseClassifier() *PromiseClassifier { return &PromiseClassifier{} }

func (p *PromiseClassifier) Name() string { return "promise" }

func (p *PromiseClassifier) Analyze(_ context.Context, turn TurnEvent) ([]Insight, error) {
	kept := classifyPromise(turn.Text)
	if kept == nil {
		return nil, nil
	}
	return []Insight{{
		Kind:    InsightPromiseResponse,
		Promise: &PromiseInsight{Kept: kept},
	}}, nil
}
