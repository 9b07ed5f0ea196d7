package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/futureself-ai/futureself/pkg/logging"
)

const reporterTimeout = 10 * time.Second

// HTTPResultReporter pushes promise outcomes to the backend so streaks and
// tomorrow's scheduling stay in sync with what happened on the call.
type HTTPResultReporter struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	logger     *logging.Logger
}

func NewHTTPResultReporter(baseURL, serviceKey string, httpClient *http.Client, logger *logging.Logger) (*HTTPResultReporter, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, fmt.Errorf("store: result reporter base URL required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: reporterTimeout}
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &HTTPResultReporter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

type callResultPayload struct {
	UserID      string `json:"user_id"`
	PromiseKept *bool  `json:"promise_kept"`
	Commitment  string `json:"tomorrow_commitment,omitempty"`
}

// ReportCallResult posts the outcome. The payload is idempotent server-side;
// retries are safe.
func (r *HTTPResultReporter) ReportCallResult(ctx context.Context, userID string, promiseKept *bool, commitment string) error {
	body, err := json.Marshal(callResultPayload{
		UserID:      userID,
		PromiseKept: promiseKept,
		Commitment:  commitment,
	})
	if err != nil {
		return fmt.Errorf("store: result payload marshal: %w", err)
	}

	url := r.baseURL + "/internal/call-results"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("store: result request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.serviceKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.serviceKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("store: result post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("store: backend returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
