package call

import (
	"context"
	"encoding/json"
	"time"

	"github.com/futureself-ai/futureself/pkg/logging"
)

// CallEvent represents a structured event in the call lifecycle. All events
// share the same base fields for easy filtering/grep.
type CallEvent struct {
	Time   string         `json:"time"`
	Event  string         `json:"event"`
	CallID string         `json:"call_id"`
	UserID string         `json:"user_id,omitempty"`
	Data   map[string]any `json:"data,omitempty"`
}

// EventLogger emits structured JSON events at each decision point in the
// call flow. Designed for fast grep/filter debugging:
//
//	grep '"event":"stage_advanced"' /var/log/app.log
//	grep '"call_id":"call_abc"' /var/log/app.log
type EventLogger struct {
	logger *logging.Logger
}

// NewEventLogger creates a new call event logger.
func NewEventLogger(logger *logging.Logger) *EventLogger {
	return &EventLogger{logger: logger}
}

// Log emits a structured call event.
func (e *EventLogger) Log(_ context.Context, event, callID, userID string, data map[string]any) {
	if e == nil || e.logger == nil {
		return
	}
	evt := CallEvent{
		Time:   time.Now().UTC().Format(time.RFC3339Nano),
		Event:  event,
		CallID: callID,
		UserID: userID,
		Data:   data,
	}
	b, _ := json.Marshal(evt)
	e.logger.Info(string(b))
}

// Convenience methods for common events:

func (e *EventLogger) CallStarted(ctx context.Context, callID, userID string, callType CallType, streak int) {
	e.Log(ctx, "call_started", callID, userID, map[string]any{
		"call_type": callType,
		"streak":    streak,
	})
}

func (e *EventLogger) TranscriptReceived(ctx context.Context, callID, userID, text string) {
	// Truncate transcript for logging
	t := text
	if len(t) > 200 {
		t = t[:200] + "..."
	}
	e.Log(ctx, "transcript_received", callID, userID, map[string]any{
		"text": t,
	})
}

func (e *EventLogger) StageAdvanced(ctx context.Context, callID string, from, to CallStage, trigger string) {
	e.Log(ctx, "stage_advanced", callID, "", map[string]any{
		"from":    from.String(),
		"to":      to.String(),
		"trigger": trigger, // "rules", "model", "timeout" or "hangup"
	})
}

func (e *EventLogger) InsightPublished(ctx context.Context, callID string, in Insight) {
	e.Log(ctx, "insight_published", callID, "", map[string]any{
		"kind":     in.Kind,
		"producer": in.Producer,
		"turn":     in.Turn,
	})
}

func (e *EventLogger) PersonaShifted(ctx context.Context, callID string, primary Persona) {
	e.Log(ctx, "persona_shifted", callID, "", map[string]any{
		"primary": primary,
	})
}

func (e *EventLogger) UtteranceGenerated(ctx context.Context, callID string, durationMs int64, textLen int, fallback bool) {
	e.Log(ctx, "utterance_generated", callID, "", map[string]any{
		"duration_ms": durationMs,
		"text_len":    textLen,
		"fallback":    fallback,
	})
}

func (e *EventLogger) CallEnded(ctx context.Context, callID, userID, reason string, durationSeconds int, quality float64) {
	e.Log(ctx, "call_ended", callID, userID, map[string]any{
		"reason":           reason, // "completed", "hangup", "ceiling", "idle" or "cancelled"
		"duration_seconds": durationSeconds,
		"quality_score":    quality,
	})
}

func (e *EventLogger) PersistFailed(ctx context.Context, callID, userID, write string, err error) {
	e.Log(ctx, "persist_failed", callID, userID, map[string]any{
		"write": write,
		"error": err.Error(),
	})
}
