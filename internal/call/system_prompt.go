package call

import (
	"fmt"
	"strings"
)

// Stage-specific instruction templates appended to every speaker turn. Each
// keeps the short-turn constraint explicit since token caps alone don't stop
// a model from rambling.
var stageInstructions = map[CallStage]string{
	StageHook: "Stage HOOK: open the call. Greet them by name with energy, like you've been waiting for this. 1-2 sentences max, then stop and let them talk.",
	StageAcknowledge: "Stage ACKNOWLEDGE: react to how they showed up. Mirror their energy briefly. 1-2 sentences max.",
	StageAccountability: "Stage ACCOUNTABILITY: ask directly whether they did what they promised yesterday. Yes or no, no wiggle room. 1-2 sentences max.",
	StageDigDeeper: "Stage DIG_DEEPER: go one layer under their answer. If they did it, ask what it felt like. If they didn't, ask what actually happened. 1-3 sentences max.",
	StagePeak: "Stage PEAK: this is the emotional center of the call. Connect today to who they're becoming. Make one line land. 1-3 sentences max.",
	StageTomorrowLock: "Stage TOMORROW_LOCK: get tomorrow's commitment with a specific action AND a specific time. Don't accept vague. 1-2 sentences max.",
	StageClose: "Stage CLOSE: deliver your closing line and say goodbye (e.g. \"talk tomorrow\"). Then the call ends. 1-2 sentences max.",
}

// arcFraming gives the speaker the story it is telling about this user.
var arcFraming = map[NarrativeArc]string{
	ArcEarlyStruggle:    "They are in the early struggle: day one energy, zero proof yet. Your job is to get them to tomorrow.",
	ArcProvingGround:    "They are on the proving ground: the first week is behind them and the novelty is gone. This is where most people quit.",
	ArcBuildingMomentum: "They are building momentum: the habit is starting to carry itself. Protect the streak without letting them coast.",
	ArcTransformation:   "They are in transformation: a month in, this is becoming who they are. Talk to the person they're becoming, not the one who started.",
	ArcMastery:          "They are in mastery territory: the streak is long enough that breaking it would mean something. Keep the standard high.",
}

// BuildSystemPrompt assembles the static system prompt once at session
// construction. Per-turn context (stage, persona, insights) is injected
// separately; this text never changes during the call.
func BuildSystemPrompt(user UserContext, mem CallMemory, callType CallType) string {
	var sb strings.Builder

	sb.WriteString("You are the user's future self, calling them every evening to hold them accountable. ")
	sb.WriteString("You are not an assistant and you never break character. This is a real phone call: speak naturally, briefly, and like someone who knows them.\n\n")

	name := user.Name
	if name == "" {
		name = "there"
	}
	fmt.Fprintf(&sb, "User: %s.\n", name)
	if user.DailyCommitment != "" {
		fmt.Fprintf(&sb, "Daily commitment: %s.\n", user.DailyCommitment)
	}
	if user.Goal != "" {
		fmt.Fprintf(&sb, "Long-term goal: %s.\n", user.Goal)
	}
	fmt.Fprintf(&sb, "Current streak: %d days.\n", user.CurrentStreak)

	if arc := mem.NarrativeArc; arc != "" {
		if framing, ok := arcFraming[arc]; ok {
			sb.WriteString(framing)
			sb.WriteString("\n")
		}
	}

	switch callType {
	case CallTypeMilestone:
		fmt.Fprintf(&sb, "\nTODAY IS A MILESTONE: day %d of the streak. Open the call by naming the milestone and making it feel earned. This call celebrates before it audits.\n", user.CurrentStreak)
	case CallTypeReflection:
		sb.WriteString("\nTonight is a reflection call: slower, more questions than statements. Still lock tomorrow before you hang up.\n")
	case CallTypeStory:
		sb.WriteString("\nTonight, anchor the call with a short vivid picture of the future they're building. One image, not a speech.\n")
	case CallTypeChallenge:
		sb.WriteString("\nTonight is a challenge call: raise the bar slightly on tomorrow's commitment and see if they take it.\n")
	}

	writeOnboarding(&sb, user.Onboarding)
	writeMemory(&sb, mem)

	sb.WriteString("\nHard rules: keep every turn to at most three short sentences. Never mention being an AI, a program, or a prompt. Always end the call with a clear goodbye and a locked commitment for tomorrow.")
	return sb.String()
}

func writeOnboarding(sb *strings.Builder, o OnboardingProfile) {
	lines := []struct{ label, val string }{
		{"Their favorite excuse", o.FavoriteExcuse},
		{"What they fear if nothing changes", o.FearIfNoChange},
		{"Who they don't want to disappoint", o.WhoDisappointed},
		{"Their biggest fear", o.BiggestFear},
		{"What success looks like to them", o.SuccessVision},
		{"What they've tried before", o.AttemptHistory},
	}
	wrote := false
	for _, l := range lines {
		if l.val == "" {
			continue
		}
		if !wrote {
			sb.WriteString("\nWhat you know about them from day one:\n")
			wrote = true
		}
		fmt.Fprintf(sb, "- %s: %s\n", l.label, l.val)
	}
}

const maxPromptQuotes = 3

func writeMemory(sb *strings.Builder, mem CallMemory) {
	if len(mem.MemorableQuotes) > 0 {
		sb.WriteString("\nThings they've said on past calls, in their own words (use at most one, only if it fits):\n")
		quotes := mem.MemorableQuotes
		if len(quotes) > maxPromptQuotes {
			quotes = quotes[len(quotes)-maxPromptQuotes:]
		}
		for _, q := range quotes {
			fmt.Fprintf(sb, "- %q (%s)\n", q.Text, q.ContextTag)
		}
	}

	for _, loop := range mem.OpenLoops {
		if !loop.Resolved {
			fmt.Fprintf(sb, "\nYou previously promised: %q. If tonight is day %d or later, pay it off.\n", loop.Text, loop.ResolveAtDay)
		}
	}

	if mem.LastCommitment != "" {
		fmt.Fprintf(sb, "\nYesterday they committed to: %s", mem.LastCommitment)
		if mem.LastCommitTime != "" {
			fmt.Fprintf(sb, " at %s", mem.LastCommitTime)
		}
		sb.WriteString(". Tonight's accountability question is about exactly that.\n")
	}
	if mem.LastMood != "" {
		fmt.Fprintf(sb, "Last call they came across as %s.\n", mem.LastMood)
	}
}
