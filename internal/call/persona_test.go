package call

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func weightsSum(c *PersonaController) float64 {
	var sum float64
	for _, w := range c.Weights() {
		sum += w
	}
	return sum
}

func TestNewPersonaControllerSeedsPrimary(t *testing.T) {
	c := NewPersonaController(PersonaSage)
	w := c.Weights()

	assert.InDelta(t, initialPrimaryWeight, w[PersonaSage], 1e-9)
	assert.Equal(t, PersonaSage, c.Primary())
	assert.InDelta(t, 1.0, weightsSum(c), 1e-9)
}

func TestNewPersonaControllerUniformWhenUnknown(t *testing.T) {
	c := NewPersonaController("")
	for p, w := range c.Weights() {
		assert.InDelta(t, 0.2, w, 1e-9, string(p))
	}
}

func TestPersonaApplyFavoriteExcuseShiftsHardass(t *testing.T) {
	c := NewPersonaController("")
	before := c.Weights()[PersonaHardass]

	c.Apply(Insight{Kind: InsightExcuseDetected, Excuse: &ExcuseInsight{
		Pattern: ExcuseTooTired, MatchesFavorite: true,
	}})

	after := c.Weights()[PersonaHardass]
	assert.Greater(t, after, before)
	assert.InDelta(t, 1.0, weightsSum(c), 1e-9, "weights renormalize to sum 1")
	// +0.25 before renormalization: 0.45 / 1.25.
	assert.InDelta(t, 0.36, after, 1e-9)
}

func TestPersonaApplyOtherExcuseShiftsCoach(t *testing.T) {
	c := NewPersonaController("")
	c.Apply(Insight{Kind: InsightExcuseDetected, Excuse: &ExcuseInsight{Pattern: ExcuseBusy}})
	assert.Equal(t, PersonaCoach, c.Primary())
}

func TestPersonaApplySentimentShifts(t *testing.T) {
	tests := []struct {
		name      string
		sentiment Sentiment
		winner    Persona
	}{
		{"engaged favors mentor", SentimentEngaged, PersonaMentor},
		{"frustrated favors confidant", SentimentFrustrated, PersonaConfidant},
		{"defensive favors confidant", SentimentDefensive, PersonaConfidant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewPersonaController("")
			c.Apply(Insight{Kind: InsightSentiment, Sentiment: &SentimentInsight{Sentiment: tt.sentiment}})
			assert.Equal(t, tt.winner, c.Primary())
			assert.InDelta(t, 1.0, weightsSum(c), 1e-9)
		})
	}
}

func TestPersonaApplyReflectiveLiftsMentorAndSage(t *testing.T) {
	c := NewPersonaController("")
	c.Apply(Insight{Kind: InsightSentiment, Sentiment: &SentimentInsight{Sentiment: SentimentReflective}})

	w := c.Weights()
	assert.Equal(t, w[PersonaMentor], w[PersonaSage])
	assert.Greater(t, w[PersonaMentor], w[PersonaCoach])
}

func TestPersonaApplyNeutralSentimentIsIgnored(t *testing.T) {
	c := NewPersonaController("")
	before := c.Weights()
	c.Apply(Insight{Kind: InsightSentiment, Sentiment: &SentimentInsight{Sentiment: SentimentNeutral}})
	assert.Equal(t, before, c.Weights())
}

func TestPersonaBrokenPromiseCapsHardass(t *testing.T) {
	c := NewPersonaController(PersonaHardass)
	broken := false
	for i := 0; i < 10; i++ {
		c.Apply(Insight{Kind: InsightPromiseResponse, Promise: &PromiseInsight{Kept: &broken}})
	}

	w := c.Weights()
	assert.LessOrEqual(t, w[PersonaHardass], hardassCap+1e-9,
		"broken promises never make hardass the sole voice")
	assert.InDelta(t, 1.0, weightsSum(c), 1e-9)
	for p, weight := range w {
		assert.GreaterOrEqual(t, weight, minPersonaWeight-1e-9, string(p))
	}
}

func TestPersonaKeptPromiseShiftsMentor(t *testing.T) {
	c := NewPersonaController("")
	kept := true
	c.Apply(Insight{Kind: InsightPromiseResponse, Promise: &PromiseInsight{Kept: &kept}})
	assert.Equal(t, PersonaMentor, c.Primary())
}

func TestPersonaPatternAlertShiftsSage(t *testing.T) {
	c := NewPersonaController("")
	c.Apply(Insight{Kind: InsightPatternAlert, Pattern: &PatternInsight{PatternType: "repeat_excuse"}})
	assert.Equal(t, PersonaSage, c.Primary())
}

func TestPersonaApplyIgnoresNilPayloads(t *testing.T) {
	c := NewPersonaController("")
	before := c.Weights()
	c.Apply(Insight{Kind: InsightExcuseDetected})
	c.Apply(Insight{Kind: InsightSentiment})
	c.Apply(Insight{Kind: InsightPromiseResponse, Promise: &PromiseInsight{}})
	c.Apply(Insight{Kind: InsightMemorableQuote, Quote: &QuoteInsight{Weight: 1}})
	assert.Equal(t, before, c.Weights())
}

func TestPersonaPromptIncludesSecondaryVoice(t *testing.T) {
	c := NewPersonaController(PersonaMentor)
	prompt := c.Prompt()
	require.Contains(t, prompt, "mentor")
	assert.NotContains(t, prompt, "Undertone", "no secondary above the cutoff yet")

	// Push confidant over the cutoff without dethroning mentor.
	c.Apply(Insight{Kind: InsightSentiment, Sentiment: &SentimentInsight{Sentiment: SentimentFrustrated}})
	kept := true
	c.Apply(Insight{Kind: InsightPromiseResponse, Promise: &PromiseInsight{Kept: &kept}})

	if c.Weights()[PersonaConfidant] >= secondaryVoiceCutoff && c.Primary() == PersonaMentor {
		assert.Contains(t, c.Prompt(), "Undertone (confidant)")
	}
}
