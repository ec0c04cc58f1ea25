package provider

import (
	"testing"

	"github.com/stretchr/testify/require"

	apperr "github.com/CalilDrissi/virtus/internal/pkg/errors"
)

func TestNewUnknownKind(t *testing.T) {
	_, err := New("nosuch", map[string]interface{}{})
	require.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestNewEmptyKind(t *testing.T) {
	_, err := New("", nil)
	require.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestOpenAIRequiresAPIKey(t *testing.T) {
	_, err := New("openai", map[string]interface{}{})
	require.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestVLLMRequiresBaseURL(t *testing.T) {
	_, err := New("vllm", map[string]interface{}{"api_key": "k"})
	require.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestAnthropicRequiresAPIKey(t *testing.T) {
	_, err := New("anthropic", map[string]interface{}{})
	require.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestOllamaRequiresBaseURL(t *testing.T) {
	_, err := New("ollama", map[string]interface{}{})
	require.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestNilArgsFailEagerly(t *testing.T) {
	_, err := New("openai", nil)
	require.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestEstimateTokens(t *testing.T) {
	require.Equal(t, 0, estimateTokens(""))
	require.Equal(t, 1, estimateTokens("hello"))
	require.Equal(t, 13, estimateTokens("one two three four five six seven eight nine ten"))
}

func TestFormatMessagesPrependsSystemPrompt(t *testing.T) {
	messages := formatMessages(CompletionRequest{
		SystemPrompt: "be terse",
		Messages:     []Message{{Role: "user", Content: "hi"}},
	})
	require.Len(t, messages, 2)
	require.Equal(t, "system", messages[0].Role)
	require.Equal(t, "be terse", messages[0].Content)
	require.Equal(t, "user", messages[1].Role)
}

func TestFormatMessagesNoSystemPrompt(t *testing.T) {
	messages := formatMessages(CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
	})
	require.Len(t, messages, 1)
}
