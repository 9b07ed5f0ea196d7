package call

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStreamer scripts one streamed response per call.
type fakeStreamer struct {
	chunks   [][]StreamChunk
	callErrs []error
	calls    int
	lastReq  LLMRequest
}

func (f *fakeStreamer) Complete(_ context.Context, req LLMRequest) (LLMResponse, error) {
	return LLMResponse{Text: "ok"}, nil
}

func (f *fakeStreamer) CompleteStream(_ context.Context, req LLMRequest) (<-chan StreamChunk, error) {
	f.lastReq = req
	idx := f.calls
	f.calls++
	if idx < len(f.callErrs) && f.callErrs[idx] != nil {
		return nil, f.callErrs[idx]
	}
	var script []StreamChunk
	if idx < len(f.chunks) {
		script = f.chunks[idx]
	}
	ch := make(chan StreamChunk, len(script)+1)
	for _, c := range script {
		ch <- c
	}
	close(ch)
	return ch, nil
}

func streamOf(texts ...string) []StreamChunk {
	out := make([]StreamChunk, 0, len(texts)+1)
	for _, t := range texts {
		out = append(out, StreamChunk{Text: t})
	}
	return append(out, StreamChunk{Done: true})
}

func newTestSpeaker(t *testing.T, llm StreamingLLMClient) (*Speaker, *InsightBus) {
	t.Helper()
	bus := NewInsightBus(nil)
	sp := NewSpeaker(SpeakerConfig{
		LLM:          llm,
		ModelID:      "speaker-model",
		SystemPrompt: "You are the user's future self.",
		Persona:      NewPersonaController(PersonaMentor),
		Stages:       NewStageMachine(),
		Bus:          bus,
	})
	return sp, bus
}

func TestNewSpeakerPanicsWithoutCollaborators(t *testing.T) {
	assert.Panics(t, func() {
		NewSpeaker(SpeakerConfig{Stages: NewStageMachine(), Bus: NewInsightBus(nil)})
	})
}

func TestSpeakerStreamsAndRecordsTurn(t *testing.T) {
	llm := &fakeStreamer{chunks: [][]StreamChunk{streamOf("Hey! ", "You made it.")}}
	sp, bus := newTestSpeaker(t, llm)
	defer bus.Close()

	var fragments []string
	got, err := sp.NextUtterance(context.Background(), "hey, it's me", func(f string) {
		fragments = append(fragments, f)
	})
	require.NoError(t, err)
	assert.Equal(t, "Hey! You made it.", got)
	assert.Equal(t, []string{"Hey! ", "You made it."}, fragments)

	history := sp.History()
	require.Len(t, history, 3)
	assert.Equal(t, RoleUser, history[0].Role)
	assert.Equal(t, RoleInjection, history[1].Role)
	assert.Equal(t, RoleAssistant, history[2].Role)

	// The injection carries stage instruction and persona voice.
	assert.Contains(t, history[1].Text, "Stage HOOK")
	assert.Contains(t, history[1].Text, "mentor")

	// Injections render as system messages for the model, never as spoken turns.
	assert.Equal(t, "speaker-model", llm.lastReq.Model)
	require.Len(t, llm.lastReq.Messages, 2)
	assert.Equal(t, ChatRoleSystem, llm.lastReq.Messages[1].Role)
}

func TestSpeakerEmptyInputReprompts(t *testing.T) {
	llm := &fakeStreamer{}
	sp, bus := newTestSpeaker(t, llm)
	defer bus.Close()

	got, err := sp.NextUtterance(context.Background(), "   ", nil)
	require.NoError(t, err)
	assert.Equal(t, repromptUtterance, got)
	assert.Empty(t, sp.History(), "silence leaves history untouched")
	assert.Zero(t, llm.calls)
}

func TestSpeakerFallbackWhenStreamUnavailable(t *testing.T) {
	llm := &fakeStreamer{callErrs: []error{errors.New("model down")}}
	sp, bus := newTestSpeaker(t, llm)
	defer bus.Close()

	var fragments []string
	got, err := sp.NextUtterance(context.Background(), "hello?", func(f string) { fragments = append(fragments, f) })
	require.NoError(t, err, "fallback is not an error, the call goes on")
	assert.Equal(t, fallbackUtterance, got)
	assert.Equal(t, []string{fallbackUtterance}, fragments)

	history := sp.History()
	assert.Equal(t, fallbackUtterance, history[len(history)-1].Text)
}

func TestSpeakerFallbackWithoutLLM(t *testing.T) {
	sp, bus := newTestSpeaker(t, nil)
	defer bus.Close()

	got, err := sp.NextUtterance(context.Background(), "hello?", nil)
	require.NoError(t, err)
	assert.Equal(t, fallbackUtterance, got)
}

func TestSpeakerPartialStreamReturnsTextAndError(t *testing.T) {
	llm := &fakeStreamer{chunks: [][]StreamChunk{{
		{Text: "You said you'd"},
		{Err: errors.New("connection reset")},
	}}}
	sp, bus := newTestSpeaker(t, llm)
	defer bus.Close()

	got, err := sp.NextUtterance(context.Background(), "so about today", nil)
	assert.Error(t, err)
	assert.Equal(t, "You said you'd", got, "partial text is kept")

	history := sp.History()
	assert.Equal(t, "You said you'd", history[len(history)-1].Text)
}

func TestSpeakerEmptyStreamFallsBack(t *testing.T) {
	llm := &fakeStreamer{chunks: [][]StreamChunk{{{Done: true}}}}
	sp, bus := newTestSpeaker(t, llm)
	defer bus.Close()

	got, err := sp.NextUtterance(context.Background(), "hello?", nil)
	require.NoError(t, err)
	assert.Equal(t, fallbackUtterance, got)
}

func TestSpeakerLatchesPromiseFirstAnswerOnly(t *testing.T) {
	llm := &fakeStreamer{chunks: [][]StreamChunk{
		streamOf("That's what I want to hear."),
		streamOf("Let's keep going."),
	}}
	sp, bus := newTestSpeaker(t, llm)
	defer bus.Close()

	_, err := sp.NextUtterance(context.Background(), "no, I didn't do it", nil)
	require.NoError(t, err)
	kept := sp.PromiseKept()
	require.NotNil(t, kept)
	assert.False(t, *kept)

	// A later affirmative never overwrites the first clear answer.
	_, err = sp.NextUtterance(context.Background(), "well, yes, kind of did something", nil)
	require.NoError(t, err)
	kept = sp.PromiseKept()
	require.NotNil(t, kept)
	assert.False(t, *kept)
}

func TestSpeakerDrainsInsightsIntoInjection(t *testing.T) {
	llm := &fakeStreamer{chunks: [][]StreamChunk{streamOf("Caught that excuse.")}}
	sp, bus := newTestSpeaker(t, llm)
	defer bus.Close()

	bus.Publish(Insight{Kind: InsightExcuseDetected, Excuse: &ExcuseInsight{
		Pattern: ExcuseTooTired, MatchesFavorite: true,
	}})
	bus.Publish(Insight{Kind: InsightCommitment, Commitment: &CommitmentInsight{
		Action: "run", Time: "7am", IsSpecific: true,
	}})

	// Give the mailbox goroutine a beat to pull from the bus.
	require.Eventually(t, func() bool {
		sp.mailbox.mu.Lock()
		defer sp.mailbox.mu.Unlock()
		return len(sp.mailbox.pending) == 2
	}, time.Second, 5*time.Millisecond)

	_, err := sp.NextUtterance(context.Background(), "I was too tired", nil)
	require.NoError(t, err)

	var injection string
	for _, turn := range sp.History() {
		if turn.Role == RoleInjection {
			injection = turn.Text
		}
	}
	assert.Contains(t, injection, "FAVORITE excuse")
	assert.Contains(t, injection, "Commitment locked")

	_, locked, _ := sp.Flags()
	assert.True(t, locked, "specific commitment in the drain locks the flag")
}

func TestSpeakerDetectsGoodbye(t *testing.T) {
	llm := &fakeStreamer{chunks: [][]StreamChunk{streamOf("Proud of you. Talk tomorrow.")}}
	sp, bus := newTestSpeaker(t, llm)
	defer bus.Close()

	_, err := sp.NextUtterance(context.Background(), "goodnight", nil)
	require.NoError(t, err)

	_, _, goodbye := sp.Flags()
	assert.True(t, goodbye)
}

func TestSpeakerStageContextReflectsStageState(t *testing.T) {
	llm := &fakeStreamer{chunks: [][]StreamChunk{streamOf("What time tomorrow?")}}
	bus := NewInsightBus(nil)
	defer bus.Close()
	stages := NewStageMachine()
	for stages.Stage() < StageTomorrowLock {
		stages.Advance()
	}
	sp := NewSpeaker(SpeakerConfig{
		LLM:     llm,
		Persona: NewPersonaController(PersonaCoach),
		Stages:  stages,
		Bus:     bus,
	})

	_, err := sp.NextUtterance(context.Background(), "I'll figure something out", nil)
	require.NoError(t, err)

	history := sp.History()
	injection := history[1].Text
	assert.Contains(t, injection, "TOMORROW_LOCK")
	assert.Contains(t, injection, "no specific commitment yet")
}

func TestSpeakerLastTurnsExcludesInjections(t *testing.T) {
	llm := &fakeStreamer{chunks: [][]StreamChunk{
		streamOf("Turn one."), streamOf("Turn two."),
	}}
	sp, bus := newTestSpeaker(t, llm)
	defer bus.Close()

	_, _ = sp.NextUtterance(context.Background(), "first", nil)
	_, _ = sp.NextUtterance(context.Background(), "second", nil)

	turns := sp.LastTurns(3)
	require.Len(t, turns, 3)
	for _, turn := range turns {
		assert.NotEqual(t, RoleInjection, turn.Role)
	}
	assert.Equal(t, "Turn two.", turns[2].Text)
}

func TestSpeakerCloseWaitsForMailbox(t *testing.T) {
	sp, bus := newTestSpeaker(t, nil)
	bus.Close()

	done := make(chan struct{})
	go func() {
		sp.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("speaker Close did not return after bus close")
	}
}
