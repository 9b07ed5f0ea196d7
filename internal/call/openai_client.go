package call

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAILLMClient is the primary speaker provider. It implements both the
// plain and streaming completion contracts; the advance checker shares it
// with a cheaper model id.
type OpenAILLMClient struct {
	client openai.Client
}

// NewOpenAILLMClient creates a new OpenAI-backed LLM client.
func NewOpenAILLMClient(apiKey string) (*OpenAILLMClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("call: openai api key is required")
	}
	return &OpenAILLMClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}, nil
}

func buildChatParams(req LLMRequest) (openai.ChatCompletionNewParams, error) {
	if strings.TrimSpace(req.Model) == "" {
		return openai.ChatCompletionNewParams{}, errors.New("call: openai model id is required")
	}

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.System)+len(req.Messages))
	for _, sys := range req.System {
		if strings.TrimSpace(sys) == "" {
			continue
		}
		messages = append(messages, openai.SystemMessage(sys))
	}
	for _, msg := range req.Messages {
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		switch msg.Role {
		case ChatRoleSystem:
			messages = append(messages, openai.SystemMessage(content))
		case ChatRoleUser:
			messages = append(messages, openai.UserMessage(content))
		case ChatRoleAssistant:
			messages = append(messages, openai.AssistantMessage(content))
		default:
			return openai.ChatCompletionNewParams{}, fmt.Errorf("call: unsupported role %q", msg.Role)
		}
	}
	if len(messages) == 0 {
		return openai.ChatCompletionNewParams{}, errors.New("call: openai requires at least one message")
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	// Zero means unset; the provider default applies.
	if req.Temperature > 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(float64(req.TopP))
	}
	return params, nil
}

// Complete sends a completion request and returns the full response.
func (c *OpenAILLMClient) Complete(ctx context.Context, req LLMRequest) (LLMResponse, error) {
	params, err := buildChatParams(req)
	if err != nil {
		return LLMResponse{}, err
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("call: openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return LLMResponse{}, errors.New("call: openai returned no choices")
	}

	choice := resp.Choices[0]
	return LLMResponse{
		Text:       strings.TrimSpace(choice.Message.Content),
		StopReason: string(choice.FinishReason),
		Usage: TokenUsage{
			InputTokens:  int32(resp.Usage.PromptTokens),
			OutputTokens: int32(resp.Usage.CompletionTokens),
			TotalTokens:  int32(resp.Usage.TotalTokens),
		},
	}, nil
}

// CompleteStream streams the completion as ordered text fragments.
func (c *OpenAILLMClient) CompleteStream(ctx context.Context, req LLMRequest) (<-chan StreamChunk, error) {
	params, err := buildChatParams(req)
	if err != nil {
		return nil, err
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	chunks := make(chan StreamChunk, 32)

	go func() {
		defer close(chunks)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 {
				continue
			}
			if delta := chunk.Choices[0].Delta.Content; delta != "" {
				chunks <- StreamChunk{Text: delta}
			}
		}
		if err := stream.Err(); err != nil {
			chunks <- StreamChunk{Err: fmt.Errorf("call: openai stream failed: %w", err)}
			return
		}
		chunks <- StreamChunk{Done: true}
	}()

	return chunks, nil
}
