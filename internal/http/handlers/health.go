package handlers

import (
	"net/http"

	"github.com/futureself-ai/futureself/internal/call"
)

// HealthHandler answers liveness probes with the process's call load.
type HealthHandler struct {
	sessions *call.SessionManager
}

func NewHealthHandler(sessions *call.SessionManager) *HealthHandler {
	return &HealthHandler{sessions: sessions}
}

type healthResponse struct {
	Status      string `json:"status"`
	ActiveCalls int    `json:"active_calls"`
}

// Healthz is the HTTP handler for GET /healthz.
func (h *HealthHandler) Healthz(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{Status: "ok"}
	if h.sessions != nil {
		resp.ActiveCalls = h.sessions.ActiveCount()
	}
	writeJSON(w, http.StatusOK, resp)
}
