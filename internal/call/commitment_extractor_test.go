package call

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractCommitmentTime(t *testing.T) {
	tests := []struct {
		text string
		want string
	}{
		{"I'll run at 7am", "7am"},
		{"gym at 6:30 pm tomorrow", "6:30pm"},
		{"I'll do it at 7", "at 7"},
		{"first thing in the morning", "first thing"},
		{"right after work", "after work"},
		{"I'll try harder tomorrow", ""},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, extractCommitmentTime(tt.text))
		})
	}
}

func TestCommitmentExtractorSpecific(t *testing.T) {
	e := NewCommitmentExtractor("30 minute run")

	insights, err := e.Analyze(context.Background(), TurnEvent{Index: 5, Text: "Okay, I'll run before work tomorrow"})
	require.NoError(t, err)
	require.Len(t, insights, 1)

	c := insights[0].Commitment
	require.NotNil(t, c)
	assert.Equal(t, "run", c.Action)
	assert.Equal(t, "before work", c.Time)
	assert.True(t, c.IsSpecific)
}

func TestCommitmentExtractorVagueWithoutTime(t *testing.T) {
	e := NewCommitmentExtractor("30 minute run")

	insights, err := e.Analyze(context.Background(), TurnEvent{Index: 5, Text: "I'll try to fit it in tomorrow, I promise"})
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.False(t, insights[0].Commitment.IsSpecific, "no time expression, not specific")
	assert.NotEmpty(t, insights[0].Commitment.Action)
}

func TestCommitmentExtractorSameThingResolvesDaily(t *testing.T) {
	e := NewCommitmentExtractor("30 minute run")

	insights, err := e.Analyze(context.Background(), TurnEvent{Index: 5, Text: "same thing tomorrow, 7am"})
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, "30 minute run", insights[0].Commitment.Action)
	assert.Equal(t, "7am", insights[0].Commitment.Time)
	assert.True(t, insights[0].Commitment.IsSpecific)
}

func TestCommitmentExtractorSameThingWithoutProfile(t *testing.T) {
	e := NewCommitmentExtractor("")
	insights, err := e.Analyze(context.Background(), TurnEvent{Index: 5, Text: "I'll do the same thing tomorrow"})
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, "same thing", insights[0].Commitment.Action)
}

func TestCommitmentExtractorIgnoresNonCommitments(t *testing.T) {
	e := NewCommitmentExtractor("run")
	insights, err := e.Analyze(context.Background(), TurnEvent{Index: 5, Text: "today was rough"})
	require.NoError(t, err)
	assert.Empty(t, insights)

	insights, err = e.Analyze(context.Background(), TurnEvent{Index: 6, Text: ""})
	require.NoError(t, err)
	assert.Empty(t, insights)
}
