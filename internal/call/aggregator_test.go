package call

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func finalizedSummary(t *testing.T, callType CallType, publish func(*InsightBus)) CallSummary {
	t.Helper()
	bus := NewInsightBus(nil)
	agg := NewAggregator("user-1", "call-1", callType, bus, time.Now().Add(-90*time.Second))
	publish(bus)
	bus.Close()
	return agg.Finalize(nil, "")
}

func TestAggregatorRequiresBus(t *testing.T) {
	assert.Panics(t, func() {
		NewAggregator("user-1", "call-1", CallTypeAudit, nil, time.Now())
	})
}

func TestAggregatorCollectsTrajectoryAndExcuses(t *testing.T) {
	summary := finalizedSummary(t, CallTypeAudit, func(bus *InsightBus) {
		bus.Publish(Insight{Kind: InsightSentiment, Sentiment: &SentimentInsight{Sentiment: SentimentNeutral}})
		bus.Publish(Insight{Kind: InsightSentiment, Sentiment: &SentimentInsight{Sentiment: SentimentEngaged}})
		bus.Publish(Insight{Kind: InsightExcuseDetected, Excuse: &ExcuseInsight{Pattern: ExcuseTooTired, MatchesFavorite: true}})
	})

	assert.Equal(t, "user-1", summary.UserID)
	assert.Equal(t, "call-1", summary.CallID)
	assert.Equal(t, []Sentiment{SentimentNeutral, SentimentEngaged}, summary.SentimentTrajectory)
	require.Len(t, summary.ExcusesDetected, 1)
	assert.True(t, summary.ExcusesDetected[0].MatchesFavorite)
	assert.Equal(t, 90, summary.DurationSeconds)
}

func TestAggregatorFirstPromiseAnswerWins(t *testing.T) {
	kept := true
	broken := false
	summary := finalizedSummary(t, CallTypeAudit, func(bus *InsightBus) {
		bus.Publish(Insight{Kind: InsightPromiseResponse, Promise: &PromiseInsight{Kept: &broken}})
		bus.Publish(Insight{Kind: InsightPromiseResponse, Promise: &PromiseInsight{Kept: &kept}})
	})

	require.NotNil(t, summary.PromiseKept)
	assert.False(t, *summary.PromiseKept)
}

func TestAggregatorLatestCommitmentWins(t *testing.T) {
	summary := finalizedSummary(t, CallTypeAudit, func(bus *InsightBus) {
		bus.Publish(Insight{Kind: InsightCommitment, Commitment: &CommitmentInsight{Action: "try harder"}})
		bus.Publish(Insight{Kind: InsightCommitment, Commitment: &CommitmentInsight{Action: "run", Time: "7am", IsSpecific: true}})
	})

	assert.Equal(t, "run", summary.TomorrowCommitment)
	assert.Equal(t, "7am", summary.CommitmentTime)
	assert.True(t, summary.CommitmentIsSpecific)
}

func TestAggregatorPromiseFallbackUsedOnlyWhenUnanswered(t *testing.T) {
	bus := NewInsightBus(nil)
	agg := NewAggregator("user-1", "call-1", CallTypeAudit, bus, time.Now())
	bus.Close()

	kept := true
	summary := agg.Finalize(&kept, "")
	require.NotNil(t, summary.PromiseKept)
	assert.True(t, *summary.PromiseKept)
}

func TestAggregatorQuoteCapAndPeakPromotion(t *testing.T) {
	summary := finalizedSummary(t, CallTypeAudit, func(bus *InsightBus) {
		for i := 0; i < maxMemorableQuotes+5; i++ {
			bus.Publish(Insight{Kind: InsightMemorableQuote, Quote: &QuoteInsight{
				Text:       fmt.Sprintf("quote %d", i),
				ContextTag: "win",
				Weight:     0.6,
			}})
		}
		bus.Publish(Insight{Kind: InsightMemorableQuote, Quote: &QuoteInsight{
			Text: "I can't keep living like this", ContextTag: "breakdown", Weight: 0.9,
		}})
	})

	assert.Len(t, summary.QuotesCaptured, maxMemorableQuotes)
	require.Len(t, summary.EmotionalPeaks, 1, "only the heavy quote becomes a peak")
	assert.Equal(t, "low", summary.EmotionalPeaks[0].Kind)
}

func TestAggregatorMilestoneKeptPromiseIsAHighPeak(t *testing.T) {
	kept := true
	summary := finalizedSummary(t, CallTypeMilestone, func(bus *InsightBus) {
		bus.Publish(Insight{Kind: InsightPromiseResponse, Promise: &PromiseInsight{Kept: &kept}})
	})

	require.Len(t, summary.EmotionalPeaks, 1)
	assert.Equal(t, "high", summary.EmotionalPeaks[0].Kind)
	assert.Contains(t, summary.EmotionalPeaks[0].Description, "milestone")
}

func TestAggregatorStreakBreakPatternIsALowPeak(t *testing.T) {
	summary := finalizedSummary(t, CallTypeAudit, func(bus *InsightBus) {
		bus.Publish(Insight{Kind: InsightPatternAlert, Pattern: &PatternInsight{
			PatternType: "streak_break", Description: "broke promise after 12-day streak",
		}})
	})

	require.Len(t, summary.EmotionalPeaks, 1)
	assert.Equal(t, "low", summary.EmotionalPeaks[0].Kind)
}

func TestAggregatorQualityScore(t *testing.T) {
	kept := true
	summary := finalizedSummary(t, CallTypeAudit, func(bus *InsightBus) {
		bus.Publish(Insight{Kind: InsightSentiment, Sentiment: &SentimentInsight{Sentiment: SentimentEngaged}})
		bus.Publish(Insight{Kind: InsightSentiment, Sentiment: &SentimentInsight{Sentiment: SentimentEngaged}})
		bus.Publish(Insight{Kind: InsightCommitment, Commitment: &CommitmentInsight{Action: "run", Time: "7am", IsSpecific: true}})
		bus.Publish(Insight{Kind: InsightMemorableQuote, Quote: &QuoteInsight{Text: "finally proud", ContextTag: "win", Weight: 0.8}})
		bus.Publish(Insight{Kind: InsightPromiseResponse, Promise: &PromiseInsight{Kept: &kept}})
	})

	// Full marks on every component.
	assert.InDelta(t, 1.0, summary.QualityScore, 1e-9)
}

func TestAggregatorQualityScorePartial(t *testing.T) {
	summary := finalizedSummary(t, CallTypeAudit, func(bus *InsightBus) {
		bus.Publish(Insight{Kind: InsightSentiment, Sentiment: &SentimentInsight{Sentiment: SentimentNeutral}})
		bus.Publish(Insight{Kind: InsightSentiment, Sentiment: &SentimentInsight{Sentiment: SentimentEngaged}})
	})

	// Half the turns engaged, nothing else scored.
	assert.InDelta(t, 0.20, summary.QualityScore, 1e-9)
}

func TestAggregatorMoodDerivation(t *testing.T) {
	kept := true
	broken := false
	tests := []struct {
		name       string
		sentiments []Sentiment
		promise    *bool
		want       Mood
	}{
		{"no signal", nil, nil, MoodNeutral},
		{"mostly hostile", []Sentiment{SentimentFrustrated, SentimentDefensive, SentimentNeutral}, nil, MoodDefensive},
		{"mostly reflective", []Sentiment{SentimentReflective, SentimentReflective, SentimentNeutral}, nil, MoodReflect},
		{"engaged and kept", []Sentiment{SentimentEngaged, SentimentNeutral}, &kept, MoodMotivated},
		{"broken and flat", []Sentiment{SentimentNeutral, SentimentDeflecting}, &broken, MoodDown},
		{"mixed", []Sentiment{SentimentNeutral, SentimentNeutral, SentimentEngaged}, nil, MoodNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			summary := finalizedSummary(t, CallTypeAudit, func(bus *InsightBus) {
				for _, s := range tt.sentiments {
					bus.Publish(Insight{Kind: InsightSentiment, Sentiment: &SentimentInsight{Sentiment: s}})
				}
				if tt.promise != nil {
					bus.Publish(Insight{Kind: InsightPromiseResponse, Promise: &PromiseInsight{Kept: tt.promise}})
				}
			})
			assert.Equal(t, tt.want, summary.Mood)
		})
	}
}

func TestAggregatorMinimumDuration(t *testing.T) {
	bus := NewInsightBus(nil)
	agg := NewAggregator("user-1", "call-1", CallTypeAudit, bus, time.Now())
	bus.Close()
	summary := agg.Finalize(nil, "summary text")
	assert.GreaterOrEqual(t, summary.DurationSeconds, 1)
	assert.Equal(t, "summary text", summary.TranscriptSummary)
}
