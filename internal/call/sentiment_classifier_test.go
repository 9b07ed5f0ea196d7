package call

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifySentimentKeywords(t *testing.T) {
	tests := []struct {
		text string
		want Sentiment
	}{
		{"stop calling me every night", SentimentFrustrated},
		{"it's not my fault, the gym was closed", SentimentDefensive},
		{"anyway, can we talk about something else", SentimentDeflecting},
		{"honestly I've been thinking about why I keep skipping", SentimentReflective},
		{"crushed it today, felt amazing", SentimentEngaged},
		{"it happened", SentimentNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, _ := classifySentimentKeywords(tt.text)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSentimentClassifierKeywordFallback(t *testing.T) {
	c := NewSentimentClassifier(nil, "", nil)

	insights, err := c.Analyze(context.Background(), TurnEvent{Index: 1, Text: "proud of myself today, let's go"})
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, InsightSentiment, insights[0].Kind)
	assert.Equal(t, SentimentEngaged, insights[0].Sentiment.Sentiment)
}

func TestSentimentClassifierUsesModel(t *testing.T) {
	llm := &fakeLLM{response: LLMResponse{Text: "reflective: self-aware, slow pace"}}
	c := NewSentimentClassifier(llm, "fast-model", nil)

	insights, err := c.Analyze(context.Background(), TurnEvent{Index: 2, Text: "I've been thinking about this a lot"})
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, SentimentReflective, insights[0].Sentiment.Sentiment)
	assert.Equal(t, []string{"self-aware", "slow pace"}, insights[0].Sentiment.Indicators)
	assert.Equal(t, "fast-model", llm.lastReq.Model)
}

func TestSentimentClassifierModelErrorDropsTurn(t *testing.T) {
	llm := &fakeLLM{err: errors.New("blackout")}
	c := NewSentimentClassifier(llm, "fast-model", nil)

	insights, err := c.Analyze(context.Background(), TurnEvent{Index: 2, Text: "today was fine"})
	assert.Error(t, err)
	assert.Empty(t, insights, "model failures drop the turn instead of degrading")
}

func TestSentimentClassifierRejectsLabelOutsideClosedSet(t *testing.T) {
	llm := &fakeLLM{response: LLMResponse{Text: "melancholic: rainy vibes"}}
	c := NewSentimentClassifier(llm, "fast-model", nil)

	_, err := c.Analyze(context.Background(), TurnEvent{Index: 2, Text: "today was fine"})
	assert.Error(t, err)
}

func TestSentimentClassifierSkipsEmptyTurn(t *testing.T) {
	c := NewSentimentClassifier(&fakeLLM{}, "fast-model", nil)
	insights, err := c.Analyze(context.Background(), TurnEvent{Index: 1, Text: "   "})
	require.NoError(t, err)
	assert.Empty(t, insights)
}
