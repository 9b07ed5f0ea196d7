package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/futureself-ai/futureself/internal/call"
	"github.com/futureself-ai/futureself/pkg/logging"
)

// userLookup resolves the user's phone and voice before dialing.
type userLookup interface {
	GetUserContext(ctx context.Context, userID string) (call.UserContext, error)
}

// callInitiator places the outbound call. Satisfied by the gateway client.
type callInitiator interface {
	InitiateCall(ctx context.Context, req call.OutboundCallRequest) (*call.OutboundCallResponse, error)
}

// CallsHandler exposes the outbound-call trigger used by the nightly
// scheduler and by ops.
type CallsHandler struct {
	store          userLookup
	gateway        callInitiator
	sessions       *call.SessionManager
	live           *call.LiveCallStore
	defaultVoiceID string
	logger         *logging.Logger
}

func NewCallsHandler(store userLookup, gateway callInitiator, sessions *call.SessionManager, live *call.LiveCallStore, defaultVoiceID string, logger *logging.Logger) *CallsHandler {
	if store == nil || sessions == nil {
		panic("handlers: calls handler requires a store and session manager")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &CallsHandler{
		store:          store,
		gateway:        gateway,
		sessions:       sessions,
		live:           live,
		defaultVoiceID: defaultVoiceID,
		logger:         logger,
	}
}

type createCallRequest struct {
	UserID   string `json:"user_id"`
	CallType string `json:"call_type,omitempty"`
}

type createCallResponse struct {
	CallID   string `json:"call_id"`
	UserID   string `json:"user_id"`
	CallType string `json:"call_type"`
	Status   string `json:"status"`
}

// CreateCall is the HTTP handler for POST /calls: dial the user and open
// their session.
func (h *CallsHandler) CreateCall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createCallRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		http.Error(w, "user_id required", http.StatusBadRequest)
		return
	}
	var typeOverride call.CallType
	if strings.TrimSpace(req.CallType) != "" {
		var err error
		typeOverride, err = call.ParseCallType(req.CallType)
		if err != nil {
			http.Error(w, "unknown call_type", http.StatusBadRequest)
			return
		}
	}

	user, err := h.store.GetUserContext(ctx, req.UserID)
	if err != nil {
		h.logger.Warn("create call: user lookup failed", "user_id", req.UserID, "error", err)
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	if user.Phone == "" {
		http.Error(w, "user has no phone number", http.StatusUnprocessableEntity)
		return
	}

	if h.gateway == nil {
		http.Error(w, "voice gateway not configured", http.StatusServiceUnavailable)
		return
	}
	// Users without a cloned voice fall back to the service default.
	voiceID := user.VoiceID
	if voiceID == "" {
		voiceID = h.defaultVoiceID
	}
	placed, err := h.gateway.InitiateCall(ctx, call.OutboundCallRequest{
		To:      user.Phone,
		VoiceID: voiceID,
	})
	if err != nil {
		h.logger.Error("create call: gateway dial failed", "user_id", req.UserID, "error", err)
		http.Error(w, "call initiation failed", http.StatusBadGateway)
		return
	}

	s, err := h.sessions.StartSessionWithType(ctx, placed.CallControlID, req.UserID, typeOverride)
	if err != nil {
		h.logger.Error("create call: session start failed", "call_id", placed.CallControlID, "error", err)
		http.Error(w, "session start failed", http.StatusInternalServerError)
		return
	}

	if h.live != nil {
		if err := h.live.SaveCallState(ctx, &call.LiveCallState{
			CallID:         placed.CallControlID,
			UserID:         req.UserID,
			Phone:          user.Phone,
			CallType:       s.CallType(),
			Status:         call.LiveCallStatusRinging,
			Stage:          s.Stages().Stage().String(),
			StartedAt:      time.Now().UTC(),
			LastActivityAt: time.Now().UTC(),
		}); err != nil {
			h.logger.Warn("create call: live state save failed", "call_id", placed.CallControlID, "error", err)
		}
	}

	writeJSON(w, http.StatusCreated, createCallResponse{
		CallID:   placed.CallControlID,
		UserID:   req.UserID,
		CallType: string(s.CallType()),
		Status:   call.LiveCallStatusRinging,
	})
}

// GetCall is the HTTP handler for GET /calls/{callID}: live state lookup.
func (h *CallsHandler) GetCall(w http.ResponseWriter, r *http.Request, callID string) {
	if h.live == nil {
		http.Error(w, "live call store not configured", http.StatusServiceUnavailable)
		return
	}
	state, err := h.live.GetCallState(r.Context(), callID)
	if err != nil {
		h.logger.Error("get call: live state read failed", "call_id", callID, "error", err)
		http.Error(w, "lookup failed", http.StatusInternalServerError)
		return
	}
	if state == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, state)
}
