package call

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNarrativeArcForStreak(t *testing.T) {
	tests := []struct {
		streak int
		want   NarrativeArc
	}{
		{0, ArcEarlyStruggle},
		{6, ArcEarlyStruggle},
		{7, ArcProvingGround},
		{13, ArcProvingGround},
		{14, ArcBuildingMomentum},
		{29, ArcBuildingMomentum},
		{30, ArcTransformation},
		{59, ArcTransformation},
		{60, ArcMastery},
		{365, ArcMastery},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NarrativeArcForStreak(tt.streak), "streak %d", tt.streak)
	}
}

func TestBuildCallMemoryCarriesSummaryForward(t *testing.T) {
	kept := true
	prev := CallMemory{SeverityLevel: 3}
	summary := CallSummary{
		CallType:           CallTypeReflection,
		Mood:               MoodMotivated,
		PromiseKept:        &kept,
		TomorrowCommitment: "run",
		CommitmentTime:     "7am",
		QuotesCaptured:     []MemorableQuote{{Text: "finally proud", ContextTag: "win", Weight: 0.8}},
		EmotionalPeaks:     []EmotionalPeak{{Description: "breakthrough", Kind: "high"}},
	}

	next := BuildCallMemory(prev, summary, PersonaMentor, 31)

	assert.Equal(t, CallTypeReflection, next.LastCallType)
	assert.Equal(t, MoodMotivated, next.LastMood)
	assert.Equal(t, PersonaMentor, next.CurrentPersona)
	assert.Equal(t, "run", next.LastCommitment)
	assert.Equal(t, "7am", next.LastCommitTime)
	assert.Equal(t, ArcTransformation, next.NarrativeArc)
	assert.Equal(t, 2, next.SeverityLevel, "kept promise dials severity down")
	require.Len(t, next.MemorableQuotes, 1)
	require.Len(t, next.EmotionalPeaks, 1)
}

func TestBuildCallMemoryCapsQuotesAndPeaks(t *testing.T) {
	var prev CallMemory
	for i := 0; i < maxMemorableQuotes; i++ {
		prev.MemorableQuotes = append(prev.MemorableQuotes, MemorableQuote{Text: fmt.Sprintf("old %d", i)})
	}
	for i := 0; i < maxEmotionalPeaks; i++ {
		prev.EmotionalPeaks = append(prev.EmotionalPeaks, EmotionalPeak{Description: fmt.Sprintf("old %d", i)})
	}
	summary := CallSummary{
		QuotesCaptured: []MemorableQuote{{Text: "new quote"}},
		EmotionalPeaks: []EmotionalPeak{{Description: "new peak"}},
	}

	next := BuildCallMemory(prev, summary, PersonaCoach, 1)

	require.Len(t, next.MemorableQuotes, maxMemorableQuotes)
	assert.Equal(t, "new quote", next.MemorableQuotes[len(next.MemorableQuotes)-1].Text)
	assert.Equal(t, "old 1", next.MemorableQuotes[0].Text, "oldest entries fall off first")

	require.Len(t, next.EmotionalPeaks, maxEmotionalPeaks)
	assert.Equal(t, "new peak", next.EmotionalPeaks[len(next.EmotionalPeaks)-1].Description)
}

func TestBuildCallMemoryResolvesDueOpenLoops(t *testing.T) {
	prev := CallMemory{OpenLoops: []OpenLoop{
		{Text: "I'll tell you about day 30 when you get there", ResolveAtDay: 30},
		{Text: "something for day 60", ResolveAtDay: 60},
		{Text: "already paid off", ResolveAtDay: 10, Resolved: true},
	}}

	next := BuildCallMemory(prev, CallSummary{}, PersonaMentor, 30)

	require.Len(t, next.OpenLoops, 2, "resolved loops from before are dropped")
	assert.True(t, next.OpenLoops[0].Resolved, "day-30 loop resolves on day 30")
	assert.False(t, next.OpenLoops[1].Resolved)
}

func TestNextSeverity(t *testing.T) {
	kept := true
	broken := false
	tests := []struct {
		name     string
		current  int
		promise  *bool
		favorite bool
		want     int
	}{
		{"unanswered stays", 3, nil, false, 3},
		{"kept steps down", 3, &kept, false, 2},
		{"broken with favorite excuse steps up", 3, &broken, true, 4},
		{"broken without favorite excuse stays", 3, &broken, false, 3},
		{"floor at one", 1, &kept, false, 1},
		{"ceiling at five", 5, &broken, true, 5},
		{"zero value clamps to floor", 0, nil, false, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, nextSeverity(tt.current, tt.promise, tt.favorite))
		})
	}
}

func TestBuildCallMemorySeverityNeedsFavoriteExcuse(t *testing.T) {
	broken := false
	prev := CallMemory{SeverityLevel: 2}

	fresh := BuildCallMemory(prev, CallSummary{
		PromiseKept:     &broken,
		ExcusesDetected: []DetectedExcuse{{Pattern: ExcuseSick, MatchesFavorite: false}},
	}, PersonaCoach, 5)
	assert.Equal(t, 2, fresh.SeverityLevel, "a fresh excuse does not escalate")

	repeat := BuildCallMemory(prev, CallSummary{
		PromiseKept:     &broken,
		ExcusesDetected: []DetectedExcuse{{Pattern: ExcuseTooTired, MatchesFavorite: true}},
	}, PersonaCoach, 5)
	assert.Equal(t, 3, repeat.SeverityLevel, "falling back on the favorite excuse escalates")
}
