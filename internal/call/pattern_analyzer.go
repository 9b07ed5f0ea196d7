package call

import (
	"context"
	"fmt"
)

// PatternAnalyzer cross-references each turn against the user's excuse
// history and recent calls, surfacing behavioral patterns the speaker can
// name out loud.
type PatternAnalyzer struct {
	history ExcuseHistory
	recent  []CallRecord
	streak  int

	seenThisCall  map[ExcusePattern]int
	promiseCalled bool
}

func NewPatternAnalyzer(history ExcuseHistory, recent []CallRecord, streak int) *PatternAnalyzer {
	return &PatternAnalyzer{
		history:      history,
		recent:       recent,
		streak:       streak,
		seenThisCall: make(map[ExcusePattern]int),
	}
}

func (p *PatternAnalyzer) Name() string { return "pattern" }

func (p *PatternAnalyzer) Analyze(_ context.Context, turn TurnEvent) ([]Insight, error) {
	var insights []Insight

	if pattern, _, ok := NormalizeExcuse(turn.Text); ok {
		p.seenThisCall[pattern]++
		weekCount := p.history.Stat(pattern).TimesThisWeek + p.seenThisCall[pattern]
		if weekCount >= 3 {
			insights = append(insights, Insight{
				Kind: InsightPatternAlert,
				Pattern: &PatternInsight{
					PatternType: "repeat_excuse",
					Description: fmt.Sprintf("same excuse (%s) %s time this week", humanizeExcuse(pattern), ordinal(weekCount)),
					HistoricalContext: fmt.Sprintf("%d uses overall",
						p.history.Stat(pattern).TimesTotal+p.seenThisCall[pattern]),
				},
			})
		}
	}

	if kept := classifyPromise(turn.Text); kept != nil && !*kept && !p.promiseCalled {
		p.promiseCalled = true
		if p.streak >= 5 {
			insights = append(insights, Insight{
				Kind: InsightPatternAlert,
				Pattern: &PatternInsight{
					PatternType:       "streak_break",
					Description:       fmt.Sprintf("broke promise after %d-day streak", p.streak),
					HistoricalContext: p.recentKeptSummary(),
				},
			})
		}
	}

	return insights, nil
}

func (p *PatternAnalyzer) recentKeptSummary() string {
	kept, total := 0, 0
	for _, r := range p.recent {
		if r.PromiseKept == nil {
			continue
		}
		total++
		if *r.PromiseKept {
			kept++
		}
	}
	if total == 0 {
		return ""
	}
	return fmt.Sprintf("kept %d of last %d promises", kept, total)
}

func ordinal(n int) string {
	switch n {
	case 1:
		return "1st"
	case 2:
		return "2nd"
	case 3:
		return "3rd"
	default:
		return fmt.Sprintf("%dth", n)
	}
}
