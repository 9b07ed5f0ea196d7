package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/futureself-ai/futureself/internal/call"
	"github.com/futureself-ai/futureself/pkg/logging"
)

// ----- Voice gateway webhook event types -----

// VoiceEvent is the gateway's webhook payload. The gateway handles telephony
// and STT/TTS; we receive lifecycle events plus finalized transcripts and
// answer with text to speak.
type VoiceEvent struct {
	// EventType identifies the event: call.answered, call.transcript,
	// call.hangup.
	EventType string `json:"event_type"`
	// CallControlID identifies the call across events.
	CallControlID string `json:"call_control_id"`
	// UserID is echoed back from the custom state we attach when placing
	// the outbound call.
	UserID string `json:"user_id,omitempty"`
	// Payload holds event-specific data.
	Payload VoiceEventPayload `json:"payload,omitempty"`
}

// VoiceEventPayload carries the transcript details.
type VoiceEventPayload struct {
	// Transcript is the user's finalized utterance (STT output).
	Transcript string `json:"transcript,omitempty"`
}

// VoiceResponse is the JSON body we return. The gateway's TTS speaks
// Response to the user; EndCall instructs it to hang up afterwards.
type VoiceResponse struct {
	Response string `json:"response,omitempty"`
	EndCall  bool   `json:"end_call,omitempty"`
}

// ----- Handler -----

// VoiceWebhookHandler adapts gateway webhooks onto call sessions: answered
// events open a session, transcripts run one conversation turn, hangups
// finalize.
type VoiceWebhookHandler struct {
	sessions *call.SessionManager
	live     *call.LiveCallStore
	logger   *logging.Logger
}

func NewVoiceWebhookHandler(sessions *call.SessionManager, live *call.LiveCallStore, logger *logging.Logger) *VoiceWebhookHandler {
	if sessions == nil {
		panic("handlers: voice webhook requires a session manager")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &VoiceWebhookHandler{sessions: sessions, live: live, logger: logger}
}

// HandleEvents is the HTTP handler for POST /webhooks/voice/events.
func (h *VoiceWebhookHandler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		h.logger.Error("voice webhook: failed to read body", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	var event VoiceEvent
	if err := json.Unmarshal(body, &event); err != nil {
		h.logger.Error("voice webhook: failed to parse event", "error", err)
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if event.CallControlID == "" {
		http.Error(w, "call_control_id required", http.StatusBadRequest)
		return
	}

	switch event.EventType {
	case "call.answered":
		h.handleAnswered(w, r, event)
	case "call.transcript":
		h.handleTranscript(w, r, event)
	case "call.hangup":
		h.handleHangup(w, r, event)
	default:
		// Unknown lifecycle events are acknowledged and ignored.
		h.logger.Debug("voice webhook: ignoring event", "event_type", event.EventType)
		writeJSON(w, http.StatusOK, VoiceResponse{})
	}
}

func (h *VoiceWebhookHandler) handleAnswered(w http.ResponseWriter, r *http.Request, event VoiceEvent) {
	ctx := r.Context()
	if event.UserID == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}

	s, err := h.sessions.StartSession(ctx, event.CallControlID, event.UserID)
	if err != nil {
		h.logger.Error("voice webhook: session start failed",
			"call_id", event.CallControlID, "user_id", event.UserID, "error", err)
		http.Error(w, "session start failed", http.StatusInternalServerError)
		return
	}

	if h.live != nil {
		if err := h.live.SaveCallState(ctx, &call.LiveCallState{
			CallID:         event.CallControlID,
			UserID:         event.UserID,
			CallType:       s.CallType(),
			Status:         call.LiveCallStatusActive,
			Stage:          s.Stages().Stage().String(),
			StartedAt:      time.Now().UTC(),
			LastActivityAt: time.Now().UTC(),
		}); err != nil {
			h.logger.Warn("voice webhook: live state save failed", "call_id", event.CallControlID, "error", err)
		}
	}

	// The gateway speaks nothing yet; the opener comes from the first
	// transcript exchange (the user's "hello" after pickup).
	writeJSON(w, http.StatusOK, VoiceResponse{})
}

func (h *VoiceWebhookHandler) handleTranscript(w http.ResponseWriter, r *http.Request, event VoiceEvent) {
	ctx := r.Context()
	s := h.sessions.Get(event.CallControlID)
	if s == nil {
		h.logger.Warn("voice webhook: transcript for unknown call", "call_id", event.CallControlID)
		http.Error(w, "unknown call", http.StatusNotFound)
		return
	}

	transcript := strings.TrimSpace(event.Payload.Transcript)
	utterance, err := s.HandleTranscript(ctx, transcript, nil)
	if err != nil {
		if errors.Is(err, call.ErrCallEnded) {
			writeJSON(w, http.StatusOK, VoiceResponse{EndCall: true})
			return
		}
		h.logger.Warn("voice webhook: degraded turn", "call_id", event.CallControlID, "error", err)
	}

	if h.live != nil {
		if err := h.live.AppendTranscript(ctx, event.CallControlID, call.LiveTranscriptEntry{
			Role: call.RoleUser, Text: transcript, Timestamp: time.Now().UTC(),
		}); err == nil {
			_ = h.live.AppendTranscript(ctx, event.CallControlID, call.LiveTranscriptEntry{
				Role: call.RoleAssistant, Text: utterance, Timestamp: time.Now().UTC(),
			})
		}
		if err := h.live.RecordTurn(ctx, event.CallControlID, s.Stages().Stage()); err != nil {
			h.logger.Debug("voice webhook: live turn update failed", "call_id", event.CallControlID, "error", err)
		}
	}

	ended := s.Ended()
	if ended {
		h.finishCall(r, event.CallControlID, call.EndReasonCompleted)
	}
	writeJSON(w, http.StatusOK, VoiceResponse{Response: utterance, EndCall: ended})
}

func (h *VoiceWebhookHandler) handleHangup(w http.ResponseWriter, r *http.Request, event VoiceEvent) {
	if s := h.sessions.Get(event.CallControlID); s != nil {
		s.Hangup(r.Context())
	}
	h.finishCall(r, event.CallControlID, call.EndReasonHangup)
	writeJSON(w, http.StatusOK, VoiceResponse{})
}

func (h *VoiceWebhookHandler) finishCall(r *http.Request, callID, outcome string) {
	h.sessions.Remove(callID)
	if h.live != nil {
		if err := h.live.EndCall(r.Context(), callID, outcome); err != nil {
			h.logger.Debug("voice webhook: live end update failed", "call_id", callID, "error", err)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
