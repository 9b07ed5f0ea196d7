package call

import (
	"fmt"
	"sync"
	"time"
)

// Quality score weighting. The score is a coarse health signal for ops
// dashboards, not a product metric.
const (
	qualityEngagementWeight = 0.40
	qualitySpecificWeight   = 0.25
	qualityQuoteWeight      = 0.15
	qualityAnsweredWeight   = 0.20

	peakQuoteWeight = 0.75
)

// Aggregator folds the full insight stream into one CallSummary. After
// construction it is a pure function of the insights it receives; the session
// finalizes it exactly once after the bus closes.
type Aggregator struct {
	userID   string
	callID   string
	callType CallType
	start    time.Time

	done chan struct{}

	mu          sync.Mutex
	sentiments  []Sentiment
	excuses     []DetectedExcuse
	quotes      []MemorableQuote
	peaks       []EmotionalPeak
	promiseKept *bool
	commitment  *CommitmentInsight
}

func NewAggregator(userID, callID string, callType CallType, bus *InsightBus, start time.Time) *Aggregator {
	if bus == nil {
		panic("call: aggregator requires a bus")
	}
	if start.IsZero() {
		start = time.Now()
	}
	a := &Aggregator{
		userID:   userID,
		callID:   callID,
		callType: callType,
		start:    start,
		done:     make(chan struct{}),
	}
	sub := bus.Subscribe()
	go func() {
		defer close(a.done)
		for in := range sub {
			a.apply(in)
		}
	}()
	return a
}

func (a *Aggregator) apply(in Insight) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch in.Kind {
	case InsightSentiment:
		if in.Sentiment != nil {
			a.sentiments = append(a.sentiments, in.Sentiment.Sentiment)
		}
	case InsightExcuseDetected:
		if in.Excuse != nil {
			a.excuses = append(a.excuses, DetectedExcuse{
				Pattern:         in.Excuse.Pattern,
				MatchesFavorite: in.Excuse.MatchesFavorite,
			})
		}
	case InsightMemorableQuote:
		if in.Quote == nil {
			return
		}
		a.quotes = append(a.quotes, MemorableQuote{
			Text:       in.Quote.Text,
			ContextTag: in.Quote.ContextTag,
			Weight:     in.Quote.Weight,
			CapturedAt: time.Now().UTC(),
		})
		if len(a.quotes) > maxMemorableQuotes {
			a.quotes = a.quotes[len(a.quotes)-maxMemorableQuotes:]
		}
		if in.Quote.Weight >= peakQuoteWeight {
			kind := "high"
			if in.Quote.ContextTag == "breakdown" {
				kind = "low"
			}
			a.addPeak(fmt.Sprintf("said %q", in.Quote.Text), kind)
		}
	case InsightPromiseResponse:
		if in.Promise == nil || in.Promise.Kept == nil {
			return
		}
		// First clear answer wins for the whole call.
		if a.promiseKept == nil {
			v := *in.Promise.Kept
			a.promiseKept = &v
			if v && a.callType == CallTypeMilestone {
				a.addPeak("kept the promise on a milestone day", "high")
			}
		}
	case InsightCommitment:
		if in.Commitment != nil {
			// Latest commitment wins; users revise mid-call.
			c := *in.Commitment
			a.commitment = &c
		}
	case InsightPatternAlert:
		if in.Pattern != nil && in.Pattern.PatternType == "streak_break" {
			a.addPeak(in.Pattern.Description, "low")
		}
	}
}

// addPeak appends under the FIFO cap. Caller holds the lock.
func (a *Aggregator) addPeak(description, kind string) {
	a.peaks = append(a.peaks, EmotionalPeak{
		Description: description,
		Kind:        kind,
		OccurredAt:  time.Now().UTC(),
	})
	if len(a.peaks) > maxEmotionalPeaks {
		a.peaks = a.peaks[len(a.peaks)-maxEmotionalPeaks:]
	}
}

// Finalize waits for the insight stream to drain (the bus must already be
// closed) and emits the call's one summary. promiseFallback is the speaker's
// own keyword read, used only when no analyzer answered.
func (a *Aggregator) Finalize(promiseFallback *bool, transcriptSummary string) CallSummary {
	<-a.done

	a.mu.Lock()
	defer a.mu.Unlock()

	kept := a.promiseKept
	if kept == nil && promiseFallback != nil {
		v := *promiseFallback
		kept = &v
	}

	secs := int(time.Since(a.start).Round(time.Second).Seconds())
	if secs <= 0 {
		secs = 1
	}

	summary := CallSummary{
		UserID:              a.userID,
		CallID:              a.callID,
		CallType:            a.callType,
		Mood:                a.deriveMood(kept),
		DurationSeconds:     secs,
		QualityScore:        a.qualityScore(kept),
		PromiseKept:         kept,
		SentimentTrajectory: append([]Sentiment(nil), a.sentiments...),
		ExcusesDetected:     append([]DetectedExcuse(nil), a.excuses...),
		QuotesCaptured:      append([]MemorableQuote(nil), a.quotes...),
		EmotionalPeaks:      append([]EmotionalPeak(nil), a.peaks...),
		TranscriptSummary:   transcriptSummary,
	}
	if a.commitment != nil {
		summary.TomorrowCommitment = a.commitment.Action
		summary.CommitmentTime = a.commitment.Time
		summary.CommitmentIsSpecific = a.commitment.IsSpecific
	}
	return summary
}

// qualityScore blends engagement share, commitment specificity, memorable
// quotes and whether the promise question got answered. Caller holds the lock.
func (a *Aggregator) qualityScore(kept *bool) float64 {
	var engaged int
	for _, s := range a.sentiments {
		if s == SentimentEngaged || s == SentimentReflective {
			engaged++
		}
	}
	var engagedShare float64
	if len(a.sentiments) > 0 {
		engagedShare = float64(engaged) / float64(len(a.sentiments))
	}

	score := qualityEngagementWeight * engagedShare
	if a.commitment != nil && a.commitment.IsSpecific {
		score += qualitySpecificWeight
	}
	if len(a.quotes) > 0 {
		score += qualityQuoteWeight
	}
	if kept != nil {
		score += qualityAnsweredWeight
	}
	if score > 1 {
		score = 1
	}
	return score
}

// deriveMood maps the trajectory and promise outcome onto the closed mood
// set. Caller holds the lock.
func (a *Aggregator) deriveMood(kept *bool) Mood {
	counts := map[Sentiment]int{}
	for _, s := range a.sentiments {
		counts[s]++
	}
	total := len(a.sentiments)
	if total == 0 {
		return MoodNeutral
	}

	switch {
	case counts[SentimentFrustrated]+counts[SentimentDefensive] > total/2:
		return MoodDefensive
	case counts[SentimentReflective] > total/2:
		return MoodReflect
	case counts[SentimentEngaged] >= total/2 && kept != nil && *kept:
		return MoodMotivated
	case kept != nil && !*kept && counts[SentimentEngaged] == 0:
		return MoodDown
	default:
		return MoodNeutral
	}
}
