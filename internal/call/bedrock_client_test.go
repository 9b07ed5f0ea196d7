package call

import (
	"context"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConverseAPI struct {
	lastInput *bedrockruntime.ConverseInput
	output    *bedrockruntime.ConverseOutput
	err       error
}

func (f *fakeConverseAPI) Converse(_ context.Context, params *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	f.lastInput = params
	return f.output, f.err
}

func (f *fakeConverseAPI) ConverseStream(_ context.Context, _ *bedrockruntime.ConverseStreamInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseStreamOutput, error) {
	return nil, f.err
}

func TestBedrockClientRequiresAPI(t *testing.T) {
	assert.Panics(t, func() { NewBedrockLLMClient(nil) })
}

func TestBedrockInference(t *testing.T) {
	t.Run("all unset omits the config", func(t *testing.T) {
		assert.Nil(t, bedrockInference(LLMRequest{}))
	})

	t.Run("zero temperature leaves the provider default", func(t *testing.T) {
		inference := bedrockInference(LLMRequest{MaxTokens: 100})
		require.NotNil(t, inference)
		assert.Nil(t, inference.Temperature)
	})

	t.Run("explicit temperature is forwarded", func(t *testing.T) {
		inference := bedrockInference(LLMRequest{Temperature: 0.7})
		require.NotNil(t, inference)
		require.NotNil(t, inference.Temperature)
		assert.InDelta(t, 0.7, *inference.Temperature, 0.001)
	})
}

func TestBedrockCompleteOmitsUnsetInference(t *testing.T) {
	api := &fakeConverseAPI{output: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role: brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{
				&brtypes.ContentBlockMemberText{Value: "still here"},
			},
		}},
	}}
	c := NewBedrockLLMClient(api)

	resp, err := c.Complete(context.Background(), LLMRequest{
		Model:    "anthropic.claude-3-haiku",
		Messages: []ChatMessage{{Role: ChatRoleUser, Content: "hey"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "still here", resp.Text)

	require.NotNil(t, api.lastInput)
	assert.Equal(t, "anthropic.claude-3-haiku", *api.lastInput.ModelId)
	assert.Nil(t, api.lastInput.InferenceConfig, "no tuning set means no inference config")
}
