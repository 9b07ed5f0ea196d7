package router

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/futureself-ai/futureself/internal/call"
	"github.com/futureself-ai/futureself/internal/http/handlers"
)

type noopStore struct{}

func (noopStore) GetUserContext(context.Context, string) (call.UserContext, error) {
	return call.UserContext{UserID: "user-1"}, nil
}
func (noopStore) GetCallMemory(context.Context, string) (call.CallMemory, error) {
	return call.CallMemory{}, nil
}
func (noopStore) GetExcuseHistory(context.Context, string) (call.ExcuseHistory, error) {
	return call.ExcuseHistory{}, nil
}
func (noopStore) PutCallMemory(context.Context, string, call.CallMemory) error  { return nil }
func (noopStore) AppendCallAnalytics(context.Context, call.CallAnalytics) error { return nil }
func (noopStore) RecordExcusePatterns(context.Context, string, []call.DetectedExcuse) error {
	return nil
}

func newTestRouter(t *testing.T, adminToken string) http.Handler {
	t.Helper()
	sessions := call.NewSessionManager(call.ManagerConfig{Store: noopStore{}})
	t.Cleanup(sessions.Shutdown)

	return New(&Config{
		HealthHandler: handlers.NewHealthHandler(sessions),
		CallsHandler:  handlers.NewCallsHandler(noopStore{}, nil, sessions, nil, "", nil),
		AdminToken:    adminToken,
	})
}

func TestRouterHealthIsPublic(t *testing.T) {
	r := newTestRouter(t, "secret")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterCallsRequireAdminToken(t *testing.T) {
	r := newTestRouter(t, "secret")

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/calls", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/calls", strings.NewReader(`{}`))
	req.Header.Set("X-Admin-Token", "wrong")
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterCallsAcceptAdminToken(t *testing.T) {
	r := newTestRouter(t, "secret")

	// A bad request status proves the request cleared auth and reached the
	// handler.
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/calls", strings.NewReader(`{}`))
	req.Header.Set("X-Admin-Token", "secret")
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/calls", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer secret")
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouterCallsDisabledWithoutToken(t *testing.T) {
	r := newTestRouter(t, "")

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/calls", strings.NewReader(`{"user_id":"user-1"}`))
	req.Header.Set("X-Admin-Token", "anything")
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "call triggering disabled")
}
