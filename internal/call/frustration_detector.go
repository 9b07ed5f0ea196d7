package call

import (
	"context"
	"regexp"
)

var (
	frustrationMildRe   = regexp.MustCompile(`(?i)\b(ugh|fine\.|sigh|here we go|do we have to|not (now|today))\b`)
	frustrationStrongRe = regexp.MustCompile(`(?i)\b(stop calling|leave me alone|i'?m done with this|shut up|this is (bullshit|stupid|pointless))\b`)
)

// FrustrationDetector tracks escalating frustration across the call. The
// level is quantized: a single mild signal is low, repetition is med, and a
// strong signal (or three of any kind) is high.
type FrustrationDetector struct {
	signals int
}

func NewFrustrationDetector() *FrustrationDetector { return &FrustrationDetector{} }

func (d *FrustrationDetector) Name() string { return "frustration" }

func (d *FrustrationDetector) Analyze(_ context.Context, turn TurnEvent) ([]Insight, error) {
	strong := frustrationStrongRe.MatchString(turn.Text)
	mild := frustrationMildRe.MatchString(turn.Text)
	if !strong && !mild {
		return nil, nil
	}

	d.signals++

	level := FrustrationLow
	action := "Soften the tone; one short question, no pushing."
	switch {
	case strong || d.signals >= 3:
		level = FrustrationHigh
		action = "Back off. Validate once, lock tomorrow fast, wrap up early."
	case d.signals == 2:
		level = FrustrationMed
		action = "De-escalate: acknowledge the annoyance before anything else."
	}

	return []Insight{{
		Kind:        InsightUserFrustrated,
		Frustration: &FrustrationInsight{Level: level, SuggestedAction: action},
	}}, nil
}
