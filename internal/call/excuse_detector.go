package call

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/futureself-ai/futureself/pkg/logging"
)

var excuseTracer = otel.Tracer("futureself/excuse-detector")

type excusePatternRule struct {
	regex  *regexp.Regexp
	weight float64
}

// excuseRules is checked in order; the first matching pattern wins. The
// order encodes the taxonomy priorities: family dominates sick, sick
// dominates weather ("under the weather"), and too_tired dominates work
// ("too tired after work").
var excuseRules = []struct {
	pattern ExcusePattern
	rules   []excusePatternRule
}{
	{ExcuseFamily, []excusePatternRule{
		{regexp.MustCompile(`(?i)\b(family|kids?|my (son|daughter|mom|dad|wife|husband|partner|parents))\b`), 0.85},
	}},
	{ExcuseSick, []excusePatternRule{
		{regexp.MustCompile(`(?i)\b(sick|ill|unwell|not feeling well|under the weather|headache|migraine|fever)\b`), 0.85},
	}},
	{ExcuseTooTired, []excusePatternRule{
		{regexp.MustCompile(`(?i)\b(too )?(tired|exhausted|drained|wiped|worn out)\b`), 0.9},
		{regexp.MustCompile(`(?i)\bno energy\b`), 0.85},
	}},
	{ExcuseNoTime, []excusePatternRule{
		{regexp.MustCompile(`(?i)\b(no|not enough|ran out of|didn'?t have) (the )?time\b`), 0.9},
	}},
	{ExcuseForgot, []excusePatternRule{
		{regexp.MustCompile(`(?i)\b(forgot|forgotten|slipped my mind|didn'?t remember)\b`), 0.9},
	}},
	{ExcuseStressed, []excusePatternRule{
		{regexp.MustCompile(`(?i)\b(stressed|stressful|anxious|overwhelmed|anxiety)\b`), 0.8},
	}},
	{ExcuseTraffic, []excusePatternRule{
		{regexp.MustCompile(`(?i)\b(traffic|commute|stuck on the (road|highway|freeway))\b`), 0.8},
	}},
	{ExcuseWeather, []excusePatternRule{
		{regexp.MustCompile(`(?i)\b(rain(ing|ed)?|snow(ing|ed)?|storm|too (cold|hot) out(side)?|weather)\b`), 0.8},
	}},
	{ExcuseBusy, []excusePatternRule{
		{regexp.MustCompile(`(?i)\b(busy|swamped|slammed|hectic)\b`), 0.8},
	}},
	{ExcuseWork, []excusePatternRule{
		{regexp.MustCompile(`(?i)\b(work ran (late|over)|stuck at work|late meeting|meetings? ran|overtime|work (was|got) (crazy|insane))\b`), 0.8},
	}},
	{ExcuseTomorrow, []excusePatternRule{
		{regexp.MustCompile(`(?i)\b(i'?ll|i will|gonna|going to) (just )?(do|start|get to|try) (it|this|that|again)? ?tomorrow\b`), 0.7},
		{regexp.MustCompile(`(?i)\b(tomorrow instead|put(ting)? it off|push(ed|ing)? (it )?to tomorrow)\b`), 0.7},
	}},
}

// NormalizeExcuse maps free text onto the closed pattern taxonomy. The
// second return is the match confidence; ok is false when no pattern
// matched. Stable: same text always yields the same pattern.
func NormalizeExcuse(text string) (ExcusePattern, float64, bool) {
	text = strings.TrimSpace(text)
	if text == "" {
		return ExcuseOther, 0, false
	}
	for _, entry := range excuseRules {
		for _, rule := range entry.rules {
			if rule.regex.MatchString(text) {
				return entry.pattern, rule.weight, true
			}
		}
	}
	return ExcuseOther, 0, false
}

// ExcuseDetector classifies user turns against the excuse taxonomy, flags
// matches against the onboarding-declared favorite excuse, and escalates to
// a callout when a pattern keeps coming back.
type ExcuseDetector struct {
	favorite ExcusePattern
	history  ExcuseHistory
	logger   *logging.Logger

	// seenThisCall counts per-pattern occurrences within this call; the
	// callout thresholds consider history plus the current call.
	seenThisCall map[ExcusePattern]int
}

// NewExcuseDetector builds a per-call detector. favoriteExcuse is the raw
// onboarding answer; it is normalized with the same taxonomy as live turns.
func NewExcuseDetector(favoriteExcuse string, history ExcuseHistory, logger *logging.Logger) *ExcuseDetector {
	if logger == nil {
		logger = logging.Default()
	}
	fav, _, ok := NormalizeExcuse(favoriteExcuse)
	if !ok {
		fav = ExcuseOther
	}
	return &ExcuseDetector{
		favorite:     fav,
		history:      history,
		logger:       logger,
		seenThisCall: make(map[ExcusePattern]int),
	}
}

func (d *ExcuseDetector) Name() string { return "excuse" }

// Analyze emits ExcuseDetected when the turn matches the taxonomy, plus an
// ExcuseCallout when the pattern has appeared at least twice this week or
// three times overall.
func (d *ExcuseDetector) Analyze(ctx context.Context, turn TurnEvent) ([]Insight, error) {
	_, span := excuseTracer.Start(ctx, "excuse.detect")
	defer span.End()

	pattern, confidence, ok := NormalizeExcuse(turn.Text)
	if !ok {
		return nil, nil
	}

	matchesFavorite := d.favorite != ExcuseOther && pattern == d.favorite
	d.seenThisCall[pattern]++

	span.SetAttributes(
		attribute.String("excuse.pattern", string(pattern)),
		attribute.Bool("excuse.matches_favorite", matchesFavorite),
		attribute.Float64("excuse.confidence", confidence),
	)
	d.logger.Info("excuse detected",
		"pattern", pattern,
		"matches_favorite", matchesFavorite,
		"confidence", confidence,
	)

	insights := []Insight{{
		Kind: InsightExcuseDetected,
		Excuse: &ExcuseInsight{
			Text:            turn.Text,
			Pattern:         pattern,
			MatchesFavorite: matchesFavorite,
			Confidence:      confidence,
		},
	}}

	stat := d.history.Stat(pattern)
	weekCount := stat.TimesThisWeek + d.seenThisCall[pattern]
	totalCount := stat.TimesTotal + d.seenThisCall[pattern]
	// The favorite excuse is always worth confronting; other patterns only
	// once they repeat.
	if matchesFavorite || weekCount >= 2 || totalCount >= 3 {
		insights = append(insights, Insight{
			Kind: InsightExcuseCallout,
			Callout: &CalloutInsight{
				CalloutType:       calloutType(matchesFavorite, weekCount),
				SuggestedResponse: suggestedCallout(pattern, matchesFavorite, weekCount, totalCount),
			},
		})
	}

	return insights, nil
}

func calloutType(matchesFavorite bool, weekCount int) string {
	switch {
	case matchesFavorite:
		return "favorite_excuse"
	case weekCount >= 2:
		return "repeat_this_week"
	default:
		return "repeat_overall"
	}
}

func suggestedCallout(pattern ExcusePattern, matchesFavorite bool, weekCount, totalCount int) string {
	if matchesFavorite {
		return fmt.Sprintf("You told me yourself: %q is your go-to excuse. You predicted this moment.", humanizeExcuse(pattern))
	}
	if weekCount >= 2 {
		return fmt.Sprintf("That's %q %d times this week. At what point does it stop being a reason?", humanizeExcuse(pattern), weekCount)
	}
	return fmt.Sprintf("You've reached for %q %d times now. It's a pattern, not an accident.", humanizeExcuse(pattern), totalCount)
}

func humanizeExcuse(p ExcusePattern) string {
	return strings.ReplaceAll(string(p), "_", " ")
}
