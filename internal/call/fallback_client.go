package call

import (
	"context"

	"github.com/futureself-ai/futureself/pkg/logging"
)

// FallbackLLMClient wraps a primary LLM client with a fallback provider.
// If the primary fails, it retries once with the fallback. The fallback
// usually lives on a different provider, so fallbackModelID replaces the
// request's model id before the retry.
type FallbackLLMClient struct {
	primary		LLMClient
	fallback	LLMClient
	fallbackModelID	string
	logger		*logging.Logger
}

// NewFallbackLLMClient creates a fallback-enabled LLM client. If fallback is
// nil, the client only uses the primary provider.
func NewFallbackLLMClient(primary, fallback LLMClient, fallbackModelID string, logger *logging.Logger) *FallbackLLMClient {
	if primary == nil {
		panic("call: fallback client requires a primary LLM")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &FallbackLLMClient{
		primary:		primary,
		fallback:		fallback,
		fallbackModelID:	fallbackModelID,
		logger:			logger,
	}
}

// Complete sends a completion request to the primary LLM. If it fails and a
// fallback is configured, retries with the fallback on its own model id.
func (c *FallbackLLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	resp, err := c.primary.Complete(ctx, req)
	if err == nil {
		return resp, nil
	}

	c.logger.Warn("primary LLM failed, attempting fallback",
		"error", err.Error(),
		"fallback_available", c.fallback != nil,
	)

	if c.fallback == nil {
		return LLMResponse{}, err
	}

	if c.fallbackModelID != "" {
		req.Model = c.fallbackModelID
	}
	fallbackResp, fallbackErr := c.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		c.logger.Error("fallback LLM also failed",
			"primary_error", err.Error(),
			"fallback_error", fallbackErr.Error(),
		)
		// Return the fallback error since that was the last attempt
		return LLMResponse{}, fallbackErr
	}

	c.logger.Info("fallback LLM succeeded after primary failure")
	return fallbackResp, nil
}
