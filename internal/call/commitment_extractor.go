package call

import (
	"context"
	"regexp"
	"strings"
)

var (
	commitSignalRe = regexp.MustCompile(`(?i)\b(i'?ll|i will|i'?m going to|gonna|tomorrow|same thing)\b`)
	sameThingRe    = regexp.MustCompile(`(?i)\b(same thing|same as (today|yesterday)|the usual)\b`)

	clockTimeRe = regexp.MustCompile(`(?i)\b\d{1,2}(:\d{2})?\s*(a\.?m\.?|p\.?m\.?)\b`)
	atHourRe    = regexp.MustCompile(`(?i)\bat \d{1,2}(:\d{2})?\b`)
	namedTimeRe = regexp.MustCompile(`(?i)\b(noon|midnight|first thing|(in the|before|after) (morning|evening|afternoon)|before work|after work|at lunch|before bed)\b`)

	intentPrefixRe   = regexp.MustCompile(`(?i)^(ok(ay)?[,. ]*)?(so[,. ]*)?(i'?ll|i will|i'?m going to|gonna|i'?m gonna)\s+`)
	tomorrowFillerRe = regexp.MustCompile(`(?i)\b(tomorrow|for sure|i promise|again,?\s*$)\b`)
)

// extractCommitmentTime pulls the first time expression out of the text.
func extractCommitmentTime(text string) string {
	if m := clockTimeRe.FindString(text); m != "" {
		return strings.ToLower(strings.Join(strings.Fields(m), ""))
	}
	if m := atHourRe.FindString(text); m != "" {
		return strings.ToLower(m)
	}
	if m := namedTimeRe.FindString(text); m != "" {
		return strings.ToLower(m)
	}
	return ""
}

// CommitmentExtractor pulls (action, time) pairs out of user turns. A
// commitment is specific iff both parts are present. "Same thing" resolves
// to the user's standing daily commitment.
type CommitmentExtractor struct {
	dailyCommitment string
}

func NewCommitmentExtractor(dailyCommitment string) *CommitmentExtractor {
	return &CommitmentExtractor{dailyCommitment: strings.TrimSpace(dailyCommitment)}
}

func (e *CommitmentExtractor) Name() string { return "commitment" }

func (e *CommitmentExtractor) Analyze(_ context.Context, turn TurnEvent) ([]Insight, error) {
	text := strings.TrimSpace(turn.Text)
	if text == "" || !commitSignalRe.MatchString(text) {
		return nil, nil
	}

	timePart := extractCommitmentTime(text)
	action := e.extractAction(text, timePart)
	if action == "" {
		return nil, nil
	}

	return []Insight{{
		Kind: InsightCommitment,
		Commitment: &CommitmentInsight{
			Action:     action,
			Time:       timePart,
			IsSpecific: timePart != "",
		},
	}}, nil
}

func (e *CommitmentExtractor) extractAction(text, timePart string) string {
	if sameThingRe.MatchString(text) {
		if e.dailyCommitment != "" {
			return e.dailyCommitment
		}
		return "same thing"
	}

	action := text
	if timePart != "" {
		for _, re := range []*regexp.Regexp{clockTimeRe, atHourRe, namedTimeRe} {
			action = re.ReplaceAllString(action, "")
		}
	}
	action = intentPrefixRe.ReplaceAllString(action, "")
	action = tomorrowFillerRe.ReplaceAllString(action, "")
	action = strings.Trim(action, " .,!?-")
	action = strings.Join(strings.Fields(action), " ")
	return action
}
