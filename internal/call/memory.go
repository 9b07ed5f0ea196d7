package call

// NarrativeArcForStreak maps a streak length onto the closed arc set. Pure
// function; the arc is computed at call start and persisted at call end.
func NarrativeArcForStreak(streak int) NarrativeArc {
	switch {
	case streak >= 60:
		return ArcMastery
	case streak >= 30:
		return ArcTransformation
	case streak >= 14:
		return ArcBuildingMomentum
	case streak >= 7:
		return ArcProvingGround
	default:
		return ArcEarlyStruggle
	}
}

// BuildCallMemory folds one finished call into the user's long-lived memory.
// Quotes and peaks are FIFO-capped, the severity dial moves one notch per
// call, and open loops whose day has come are retired.
func BuildCallMemory(prev CallMemory, summary CallSummary, persona Persona, streak int) CallMemory {
	next := CallMemory{
		LastCallType:   summary.CallType,
		LastMood:       summary.Mood,
		CurrentPersona: persona,
		SeverityLevel:  nextSeverity(prev.SeverityLevel, summary.PromiseKept, hasFavoriteExcuse(summary.ExcusesDetected)),
		LastCommitment: summary.TomorrowCommitment,
		LastCommitTime: summary.CommitmentTime,
		NarrativeArc:   NarrativeArcForStreak(streak),
	}

	next.MemorableQuotes = append(append([]MemorableQuote(nil), prev.MemorableQuotes...), summary.QuotesCaptured...)
	if len(next.MemorableQuotes) > maxMemorableQuotes {
		next.MemorableQuotes = next.MemorableQuotes[len(next.MemorableQuotes)-maxMemorableQuotes:]
	}

	next.EmotionalPeaks = append(append([]EmotionalPeak(nil), prev.EmotionalPeaks...), summary.EmotionalPeaks...)
	if len(next.EmotionalPeaks) > maxEmotionalPeaks {
		next.EmotionalPeaks = next.EmotionalPeaks[len(next.EmotionalPeaks)-maxEmotionalPeaks:]
	}

	for _, loop := range prev.OpenLoops {
		if loop.Resolved {
			continue
		}
		if streak >= loop.ResolveAtDay {
			loop.Resolved = true
		}
		next.OpenLoops = append(next.OpenLoops, loop)
	}

	return next
}

// hasFavoriteExcuse reports whether any detected excuse matched the user's
// stated favorite from onboarding.
func hasFavoriteExcuse(excuses []DetectedExcuse) bool {
	for _, e := range excuses {
		if e.MatchesFavorite {
			return true
		}
	}
	return false
}

// nextSeverity moves the tone dial one notch: down after a kept promise, up
// after a broken one only when the user also reached for their favorite
// excuse. A broken promise with a fresh excuse, or no answer at all, leaves
// the dial alone.
func nextSeverity(current int, promiseKept *bool, favoriteExcuse bool) int {
	if current < minSeverityLevel {
		current = minSeverityLevel
	}
	if promiseKept == nil {
		return current
	}
	if *promiseKept {
		current--
	} else if favoriteExcuse {
		current++
	}
	if current < minSeverityLevel {
		current = minSeverityLevel
	}
	if current > maxSeverityLevel {
		current = maxSeverityLevel
	}
	return current
}
