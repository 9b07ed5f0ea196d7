package call

import (
	"context"
	"regexp"
	"strings"
)

// Emotional phrase weights for quote scoring. Summed per turn, clipped to 1.
var quoteSignals = []struct {
	re     *regexp.Regexp
	weight float64
	tag    string
}{
	{regexp.MustCompile(`(?i)\b(first time|never (felt|thought)|finally|breakthrough)\b`), 0.5, "win"},
	{regexp.MustCompile(`(?i)\b(proud|felt (good|great|amazing)|nailed it|crushed it)\b`), 0.45, "win"},
	{regexp.MustCompile(`(?i)\b(cried|crying|broke down|rock bottom|can'?t keep (doing|living like) this)\b`), 0.6, "breakdown"},
	{regexp.MustCompile(`(?i)\b(scared|terrified|ashamed|hate myself|disappointed in myself)\b`), 0.5, "breakdown"},
	{regexp.MustCompile(`(?i)\b(from now on|never again|i'?m done (making excuses|waiting)|no more excuses)\b`), 0.5, "resolution"},
	{regexp.MustCompile(`(?i)\b(i realize[d]?|it hit me|honestly|actually)\b`), 0.2, "resolution"},
}

// scoreQuote returns the emotional weight of a turn and the dominant
// context tag. Pure function of the text.
func scoreQuote(text string) (float64, string) {
	var total float64
	bestTag := ""
	bestWeight := 0.0
	for _, sig := range quoteSignals {
		if sig.re.MatchString(text) {
			total += sig.weight
			if sig.weight > bestWeight {
				bestWeight = sig.weight
				bestTag = sig.tag
			}
		}
	}
	if strings.Contains(text, "!") {
		total += 0.1
	}
	if total > 1 {
		total = 1
	}
	return total, bestTag
}

// QuoteDetector captures lines worth repeating back to the user on a later
// call. The weight threshold is configurable; the default lives in config.
type QuoteDetector struct {
	threshold float64
}

func NewQuoteDetector(threshold float64) *QuoteDetector {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.6
	}
	return &QuoteDetector{threshold: threshold}
}

func (d *QuoteDetector) Name() string { return "quote" }

func (d *QuoteDetector) Analyze(_ context.Context, turn TurnEvent) ([]Insight, error) {
	text := strings.TrimSpace(turn.Text)
	if text == "" {
		return nil, nil
	}

	weight, tag := scoreQuote(text)
	if weight < d.threshold || tag == "" {
		return nil, nil
	}

	return []Insight{{
		Kind: InsightMemorableQuote,
		Quote: &QuoteInsight{
			Text:       text,
			ContextTag: tag,
			Weight:     weight,
		},
	}}, nil
}
