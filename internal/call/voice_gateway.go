package call

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

const (
	defaultGatewayBaseURL = "https://api.telnyx.com/v2"
	gatewayCallTimeout    = 15 * time.Second
)

// VoiceGatewayClient talks to the telephony provider: it places the nightly
// outbound call, speaks assistant turns into it, and hangs it up.
type VoiceGatewayClient struct {
	apiKey      string
	assistantID string
	fromNumber  string
	baseURL     string
	httpClient  *http.Client
	logger      *logging.Logger
}

// VoiceGatewayConfig configures the outbound voice client.
type VoiceGatewayConfig struct {
	// APIKey is the gateway API key (Bearer token).
	APIKey string
	// AssistantID is the provider-side voice application id.
	AssistantID string
	// FromNumber is the service's outbound number (E.164).
	FromNumber string
	// BaseURL overrides the gateway API base URL (for testing).
	BaseURL string
	// HTTPClient overrides the default HTTP client.
	HTTPClient *http.Client
	Logger     *logging.Logger
}

// NewVoiceGatewayClient creates a client for driving outbound voice calls.
func NewVoiceGatewayClient(cfg VoiceGatewayConfig) (*VoiceGatewayClient, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("voice gateway: API key required")
	}
	if strings.TrimSpace(cfg.AssistantID) == "" {
		return nil, fmt.Errorf("voice gateway: assistant ID required")
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultGatewayBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: gatewayCallTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &VoiceGatewayClient{
		apiKey:      cfg.APIKey,
		assistantID: cfg.AssistantID,
		fromNumber:  cfg.FromNumber,
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  httpClient,
		logger:      logger,
	}, nil
}

// OutboundCallRequest contains the parameters for placing the nightly call.
type OutboundCallRequest struct {
	// To is the user's phone number (E.164).
	To string `json:"To"`
	// From overrides the configured outbound number.
	From string `json:"From,omitempty"`
	// VoiceID selects the synthesized voice for this user.
	VoiceID string `json:"VoiceId,omitempty"`
	// MachineDetection enables AMD so voicemails don't burn a call.
	MachineDetection string `json:"MachineDetection,omitempty"`
	// AsyncAmd enables asynchronous answering machine detection.
	AsyncAmd bool `json:"AsyncAmd,omitempty"`
}

// OutboundCallResponse is the gateway response for call initiation.
type OutboundCallResponse struct {
	CallControlID string `json:"call_control_id"`
	CallLegID     string `json:"call_leg_id"`
	CallSessionID string `json:"call_session_id"`
	IsAlive       bool   `json:"is_alive"`
}

// gatewayAPIResponse wraps the gateway response envelope.
type gatewayAPIResponse struct {
	Data OutboundCallResponse `json:"data"`
}

// InitiateCall places the outbound call to the user.
func (c *VoiceGatewayClient) InitiateCall(ctx context.Context, req OutboundCallRequest) (*OutboundCallResponse, error) {
	if req.To == "" {
		return nil, fmt.Errorf("voice gateway: destination phone number required")
	}
	if req.From == "" {
		req.From = c.fromNumber
	}
	if req.From == "" {
		return nil, fmt.Errorf("voice gateway: from phone number required")
	}
	if req.MachineDetection == "" {
		req.MachineDetection = "Enable"
	}
	req.AsyncAmd = true

	url := fmt.Sprintf("%s/texml/ai_calls/%s", c.baseURL, c.assistantID)

	c.logger.Info("voice gateway: initiating outbound call",
		"from", maskPhone(req.From),
		"to", maskPhone(req.To),
		"assistant_id", c.assistantID,
	)

	var envelope gatewayAPIResponse
	if err := c.post(ctx, url, req, &envelope); err != nil {
		return nil, err
	}

	c.logger.Info("voice gateway: outbound call initiated",
		"call_control_id", envelope.Data.CallControlID,
		"to", maskPhone(req.To),
	)
	return &envelope.Data, nil
}

// Speak plays one assistant utterance into the live call.
func (c *VoiceGatewayClient) Speak(ctx context.Context, callControlID, text, voiceID string) error {
	if callControlID == "" {
		return fmt.Errorf("voice gateway: call control ID required")
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}
	url := fmt.Sprintf("%s/calls/%s/actions/speak", c.baseURL, callControlID)
	payload := map[string]string{"payload": text}
	if voiceID != "" {
		payload["voice"] = voiceID
	}
	return c.post(ctx, url, payload, nil)
}

// Hangup ends the live call after the goodbye line has been spoken.
func (c *VoiceGatewayClient) Hangup(ctx context.Context, callControlID string) error {
	if callControlID == "" {
		return fmt.Errorf("voice gateway: call control ID required")
	}
	url := fmt.Sprintf("%s/calls/%s/actions/hangup", c.baseURL, callControlID)
	return c.post(ctx, url, map[string]string{}, nil)
}

func (c *VoiceGatewayClient) post(ctx context.Context, url string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("voice gateway: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("voice gateway: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("voice gateway: http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("voice gateway: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Error("voice gateway: API error",
			"status", resp.StatusCode,
			"body", string(respBody),
		)
		return fmt.Errorf("voice gateway: API returned %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("voice gateway: decode response: %w", err)
		}
	}
	return nil
}

// maskPhone hides all but the last four digits for logs.
func maskPhone(phone string) string {
	if len(phone) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(phone)-4) + phone[len(phone)-4:]
}
