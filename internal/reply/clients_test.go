package reply

import (
	"context"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	brtypes "github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubChat struct {
	req  openai.ChatCompletionRequest
	resp openai.ChatCompletionResponse
	err  error
}

func (s *stubChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.req = req
	return s.resp, s.err
}

func TestOpenAILLMClient_Complete(t *testing.T) {
	chat := &stubChat{resp: openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{{
			Message:      openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "  Claro que sí  "},
			FinishReason: openai.FinishReasonStop,
		}},
		Usage: openai.Usage{PromptTokens: 12, CompletionTokens: 4, TotalTokens: 16},
	}}
	client := newOpenAILLMClientWithChat(chat)

	resp, err := client.Complete(context.Background(), LLMRequest{
		Model:       "gpt-4o-mini",
		System:      []string{"persona"},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: "Hola"}, {Role: ChatRoleAssistant, Content: " "}},
		MaxTokens:   200,
		Temperature: 0.7,
	})
	require.NoError(t, err)
	assert.Equal(t, "Claro que sí", resp.Text)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, int32(16), resp.Usage.TotalTokens)

	require.Len(t, chat.req.Messages, 2)
	assert.Equal(t, openai.ChatMessageRoleSystem, chat.req.Messages[0].Role)
	assert.Equal(t, "Hola", chat.req.Messages[1].Content)
	assert.Equal(t, 200, chat.req.MaxTokens)
	assert.InDelta(t, 0.7, chat.req.Temperature, 0.0001)
}

func TestOpenAILLMClient_Errors(t *testing.T) {
	client := newOpenAILLMClientWithChat(&stubChat{})
	_, err := client.Complete(context.Background(), LLMRequest{})
	assert.Error(t, err)

	_, err = client.Complete(context.Background(), LLMRequest{Model: "m", Messages: []ChatMessage{{Role: "tool", Content: "x"}}})
	assert.ErrorContains(t, err, "unsupported role")

	_, err = client.Complete(context.Background(), LLMRequest{Model: "m", Messages: []ChatMessage{{Role: ChatRoleUser, Content: "x"}}})
	assert.ErrorContains(t, err, "no choices")

	boom := errors.New("429")
	_, err = newOpenAILLMClientWithChat(&stubChat{err: boom}).Complete(context.Background(), LLMRequest{Model: "m"})
	assert.ErrorIs(t, err, boom)

	_, err = NewOpenAILLMClient("", "")
	assert.Error(t, err)
}

type stubConverse struct {
	in  *bedrockruntime.ConverseInput
	out *bedrockruntime.ConverseOutput
	err error
}

func (s *stubConverse) Converse(ctx context.Context, in *bedrockruntime.ConverseInput, _ ...func(*bedrockruntime.Options)) (*bedrockruntime.ConverseOutput, error) {
	s.in = in
	return s.out, s.err
}

func TestBedrockLLMClient_Complete(t *testing.T) {
	api := &stubConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{
			Role:    brtypes.ConversationRoleAssistant,
			Content: []brtypes.ContentBlock{&brtypes.ContentBlockMemberText{Value: "Con WOW tienes fibra."}},
		}},
		StopReason: brtypes.StopReasonEndTurn,
		Usage:      &brtypes.TokenUsage{InputTokens: aws.Int32(10), OutputTokens: aws.Int32(5), TotalTokens: aws.Int32(15)},
	}}
	client := NewBedrockLLMClient(api, "anthropic.claude-3-haiku")

	resp, err := client.Complete(context.Background(), LLMRequest{
		System:      []string{"persona"},
		Messages:    []ChatMessage{{Role: ChatRoleUser, Content: "Hola"}},
		Temperature: -1,
	})
	require.NoError(t, err)
	assert.Equal(t, "Con WOW tienes fibra.", resp.Text)
	assert.Equal(t, int32(15), resp.Usage.TotalTokens)
	assert.Equal(t, "anthropic.claude-3-haiku", aws.ToString(api.in.ModelId))
	assert.Nil(t, api.in.InferenceConfig)
	require.Len(t, api.in.Messages, 1)
	assert.Len(t, api.in.System, 1)
}

func TestBedrockLLMClient_EmptyOutput(t *testing.T) {
	api := &stubConverse{out: &bedrockruntime.ConverseOutput{
		Output: &brtypes.ConverseOutputMemberMessage{Value: brtypes.Message{}},
	}}
	_, err := NewBedrockLLMClient(api, "m").Complete(context.Background(), LLMRequest{Messages: []ChatMessage{{Role: ChatRoleUser, Content: "x"}}})
	assert.Error(t, err)

	_, err = NewBedrockLLMClient(api, "").Complete(context.Background(), LLMRequest{})
	assert.ErrorContains(t, err, "model id is required")
}

func TestGeminiTurns(t *testing.T) {
	history, last, err := geminiTurns([]ChatMessage{
		{Role: ChatRoleSystem, Content: "ignored"},
		{Role: ChatRoleUser, Content: "Hola"},
		{Role: ChatRoleAssistant, Content: "¡Hola!"},
		{Role: ChatRoleUser, Content: "¿Precios?"},
	})
	require.NoError(t, err)
	assert.Equal(t, "¿Precios?", last)
	require.Len(t, history, 2)
	assert.Equal(t, "user", history[0].Role)
	assert.Equal(t, "model", history[1].Role)

	_, _, err = geminiTurns([]ChatMessage{{Role: ChatRoleSystem, Content: "x"}})
	assert.Error(t, err)
}
