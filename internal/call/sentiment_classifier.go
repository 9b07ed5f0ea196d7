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

var sentimentTracer = otel.Tracer("futureself/sentiment-classifier")

const sentimentSystemPrompt = `You label a single utterance from an accountability phone call with exactly one sentiment from this set: engaged, neutral, frustrated, defensive, deflecting, reflective. Reply on one line in the form "label: indicator1, indicator2" where indicators are one-or-two-word tags explaining the label. No other text.`

var validSentiments = map[Sentiment]bool{
	SentimentEngaged:    true,
	SentimentNeutral:    true,
	SentimentFrustrated: true,
	SentimentDefensive:  true,
	SentimentDeflecting: true,
	SentimentReflective: true,
}

// SentimentClassifier labels each user turn with one closed-set sentiment.
// It prefers the analyzer LLM and falls back to keyword heuristics when no
// model is configured; a model error drops the turn (spec'd analyzer
// failure mode) rather than degrading to the heuristic mid-call.
type SentimentClassifier struct {
	llm     LLMClient
	modelID string
	logger  *logging.Logger
}

func NewSentimentClassifier(llm LLMClient, modelID string, logger *logging.Logger) *SentimentClassifier {
	if logger == nil {
		logger = logging.Default()
	}
	return &SentimentClassifier{llm: llm, modelID: modelID, logger: logger}
}

func (c *SentimentClassifier) Name() string { return "sentiment" }

func (c *SentimentClassifier) Analyze(ctx context.Context, turn TurnEvent) ([]Insight, error) {
	if strings.TrimSpace(turn.Text) == "" {
		return nil, nil
	}

	ctx, span := sentimentTracer.Start(ctx, "sentiment.classify")
	defer span.End()

	var (
		sentiment  Sentiment
		indicators []string
		err        error
	)
	if c.llm != nil {
		sentiment, indicators, err = c.classifyLLM(ctx, turn.Text)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
	} else {
		sentiment, indicators = classifySentimentKeywords(turn.Text)
	}

	span.SetAttributes(attribute.String("sentiment.label", string(sentiment)))

	return []Insight{{
		Kind:      InsightSentiment,
		Sentiment: &SentimentInsight{Sentiment: sentiment, Indicators: indicators},
	}}, nil
}

func (c *SentimentClassifier) classifyLLM(ctx context.Context, text string) (Sentiment, []string, error) {
	resp, err := c.llm.Complete(ctx, LLMRequest{
		Model:     c.modelID,
		System:    []string{sentimentSystemPrompt},
		Messages:  []ChatMessage{{Role: ChatRoleUser, Content: text}},
		MaxTokens: 30,
	})
	if err != nil {
		return "", nil, fmt.Errorf("call: sentiment classification failed: %w", err)
	}

	label, rest, _ := strings.Cut(strings.TrimSpace(resp.Text), ":")
	sentiment := Sentiment(strings.ToLower(strings.TrimSpace(label)))
	if !validSentiments[sentiment] {
		return "", nil, fmt.Errorf("call: sentiment %q outside closed set", label)
	}

	var indicators []string
	for _, tag := range strings.Split(rest, ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			indicators = append(indicators, tag)
		}
	}
	return sentiment, indicators, nil
}

var (
	frustratedRe = regexp.MustCompile(`(?i)\b(stop calling|leave me alone|whatever|this is (annoying|pointless)|i don'?t care)\b`)
	defensiveRe  = regexp.MustCompile(`(?i)\b(not my fault|i told you|get off my (back|case)|you don'?t (get|understand) it|stop judging)\b`)
	deflectingRe = regexp.MustCompile(`(?i)\b(anyway|can we (talk about|do) something else|doesn'?t matter|whatever you say|moving on)\b`)
	reflectiveRe = regexp.MustCompile(`(?i)\b(i realize[d]?|i'?ve been thinking|looking back|honestly|i guess i|actually)\b`)
	engagedRe    = regexp.MustCompile(`(?i)\b(felt (good|great|amazing)|proud|excited|let'?s go|can'?t wait|absolutely|for sure|nailed|crushed)\b`)
)

// classifySentimentKeywords is the deterministic fallback used when no
// analyzer model is configured. Priority mirrors how misreadings hurt:
// missing frustration is worse than missing engagement.
func classifySentimentKeywords(text string) (Sentiment, []string) {
	switch {
	case frustratedRe.MatchString(text):
		return SentimentFrustrated, []string{"hostile phrasing"}
	case defensiveRe.MatchString(text):
		return SentimentDefensive, []string{"blame shifting"}
	case deflectingRe.MatchString(text):
		return SentimentDeflecting, []string{"topic dodge"}
	case engagedRe.MatchString(text) && reflectiveRe.MatchString(text):
		return SentimentEngaged, []string{"positive language", "self-aware"}
	case engagedRe.MatchString(text):
		return SentimentEngaged, []string{"positive language"}
	case reflectiveRe.MatchString(text):
		return SentimentReflective, []string{"self-examination"}
	default:
		return SentimentNeutral, nil
	}
}
