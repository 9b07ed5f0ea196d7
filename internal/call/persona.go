package call

import (
	"fmt"
	"strings"
	"sync"
)

// Persona update deltas. Qualitative rules ("shift toward ...") are pinned
// to these concrete magnitudes and locked by tests.
const (
	deltaFavoriteExcuse	= 0.25 // toward hardass
	deltaOtherExcuse	= 0.10 // toward coach
	deltaEngaged		= 0.15 // toward mentor
	deltaReflective		= 0.10 // toward mentor and sage, each
	deltaFrustrated		= 0.20 // toward confidant
	deltaPromiseKept	= 0.20 // toward mentor
	deltaPromiseBroken	= 0.15 // toward hardass
	deltaPatternAlert	= 0.15 // toward sage
	hardassCap		= 0.50 // broken promises never make hardass the sole voice
	minPersonaWeight	= 0.02
	secondaryVoiceCutoff	= 0.25
	initialPrimaryWeight	= 0.40
)

var personaVoices = map[Persona]string{
	PersonaMentor:    "Speak as the mentor: steady and warm. You've seen who they become and you believe in them out loud. Celebrate real wins without inflating them.",
	PersonaHardass:   "Speak as the hardass: blunt and unsentimental. Name excuses for what they are. You're hard on them because nobody else will be.",
	PersonaSage:      "Speak as the sage: calm and unhurried. Point at the pattern, not the day. One question from you should land heavier than a lecture.",
	PersonaConfidant: "Speak as the confidant: quiet and close. Lower the temperature. You're the only one who knows how hard this actually is for them.",
	PersonaCoach:     "Speak as the coach: energetic and tactical. Turn feelings into logistics — what, when, how long. Keep them moving.",
}

// PersonaController keeps a weighted mixture over the closed persona set
// and re-weights it from selected insights. Weights always sum to 1.
type PersonaController struct {
	mu	sync.Mutex
	weights	[len(AllPersonas)]float64
}

// NewPersonaController seeds the mixture. A known initial persona (from the
// previous call's memory) starts dominant; otherwise the mixture is uniform.
func NewPersonaController(initial Persona) *PersonaController {
	c := &PersonaController{}
	idx := personaIndex(initial)
	if idx < 0 {
		for i := range c.weights {
			c.weights[i] = 1.0 / float64(len(c.weights))
		}
		return c
	}
	rest := (1.0 - initialPrimaryWeight) / float64(len(c.weights)-1)
	for i := range c.weights {
		c.weights[i] = rest
	}
	c.weights[idx] = initialPrimaryWeight
	return c
}

func personaIndex(p Persona) int {
	for i, candidate := range AllPersonas {
		if candidate == p {
			return i
		}
	}
	return -1
}

// Apply folds one insight into the mixture. Insights outside the documented
// update set are ignored.
func (c *PersonaController) Apply(in Insight) {
	c.mu.Lock()
	defer c.mu.Unlock()

	capHardass := false
	switch in.Kind {
	case InsightExcuseDetected:
		if in.Excuse == nil {
			return
		}
		if in.Excuse.MatchesFavorite {
			c.weights[personaIndex(PersonaHardass)] += deltaFavoriteExcuse
		} else {
			c.weights[personaIndex(PersonaCoach)] += deltaOtherExcuse
		}
	case InsightSentiment:
		if in.Sentiment == nil {
			return
		}
		switch in.Sentiment.Sentiment {
		case SentimentEngaged:
			c.weights[personaIndex(PersonaMentor)] += deltaEngaged
		case SentimentReflective:
			c.weights[personaIndex(PersonaMentor)] += deltaReflective
			c.weights[personaIndex(PersonaSage)] += deltaReflective
		case SentimentFrustrated, SentimentDefensive:
			c.weights[personaIndex(PersonaConfidant)] += deltaFrustrated
		default:
			return
		}
	case InsightPromiseResponse:
		if in.Promise == nil || in.Promise.Kept == nil {
			return
		}
		if *in.Promise.Kept {
			c.weights[personaIndex(PersonaMentor)] += deltaPromiseKept
		} else {
			c.weights[personaIndex(PersonaHardass)] += deltaPromiseBroken
			capHardass = true
		}
	case InsightPatternAlert:
		c.weights[personaIndex(PersonaSage)] += deltaPatternAlert
	default:
		return
	}

	c.renormalize(capHardass)
}

// renormalize clips weights to [minPersonaWeight, 1] and rescales to sum 1.
// Caller holds the lock.
func (c *PersonaController) renormalize(capHardass bool) {
	var sum float64
	for i := range c.weights {
		if c.weights[i] < minPersonaWeight {
			c.weights[i] = minPersonaWeight
		}
		if c.weights[i] > 1 {
			c.weights[i] = 1
		}
		sum += c.weights[i]
	}
	for i := range c.weights {
		c.weights[i] /= sum
	}
	if capHardass {
		idx := personaIndex(PersonaHardass)
		if c.weights[idx] > hardassCap {
			excess := c.weights[idx] - hardassCap
			c.weights[idx] = hardassCap
			// Spread the excess over the other voices.
			share := excess / float64(len(c.weights)-1)
			for i := range c.weights {
				if i != idx {
					c.weights[i] += share
				}
			}
		}
	}
}

// Primary returns the argmax persona.
func (c *PersonaController) Primary() Persona {
	c.mu.Lock()
	defer c.mu.Unlock()
	best := 0
	for i := range c.weights {
		if c.weights[i] > c.weights[best] {
			best = i
		}
	}
	return AllPersonas[best]
}

// Weights returns a copy of the current mixture.
func (c *PersonaController) Weights() map[Persona]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[Persona]float64, len(c.weights))
	for i, p := range AllPersonas {
		out[p] = c.weights[i]
	}
	return out
}

// Prompt composes the persona paragraph for the speaker: the primary voice
// plus any secondary whose weight clears the cutoff.
func (c *PersonaController) Prompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	best := 0
	for i := range c.weights {
		if c.weights[i] > c.weights[best] {
			best = i
		}
	}

	var sb strings.Builder
	sb.WriteString(personaVoices[AllPersonas[best]])
	for i, p := range AllPersonas {
		if i == best || c.weights[i] < secondaryVoiceCutoff {
			continue
		}
		fmt.Fprintf(&sb, "\nUndertone (%s): %s", p, personaVoices[p])
	}
	return sb.String()
}
