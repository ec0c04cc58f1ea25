package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"sync"

	apperr "github.com/CalilDrissi/virtus/internal/pkg/errors"
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Messages     []Message
	Model        string
	MaxTokens    int
	Temperature  float32
	SystemPrompt string
}

type CompletionResult struct {
	Content      string
	InputTokens  int
	OutputTokens int
	FinishReason string
}

// Stream is a forward-only sequence of content fragments backed by a live
// connection. Recv returns io.EOF once the backend is done. Close must always
// be called; it releases the underlying transport even when the consumer
// abandons the stream early.
type Stream interface {
	Recv() (string, error)
	Close() error
}

// Provider is the uniform contract over heterogeneous completion backends.
// Complete and Stream surface transport failures wrapped in ErrProvider and
// never retry; HealthCheck is the only method that swallows errors.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
	Stream(ctx context.Context, req CompletionRequest) (Stream, error)
	CountTokens(ctx context.Context, text string, model string) (int, error)
	Embeddings(ctx context.Context, texts []string, model string) ([][]float32, error)
	HealthCheck(ctx context.Context) bool
}

type Factory func(args interface{}) (Provider, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func Register(kind string, factory Factory) {
	key := strings.ToLower(strings.TrimSpace(kind))
	if key == "" || factory == nil {
		return
	}
	registryMu.Lock()
	registry[key] = factory
	registryMu.Unlock()
}

// New instantiates the backend for the given provider kind. Configuration
// problems (missing key, unset base URL) fail here, not on first use.
func New(kind string, args interface{}) (Provider, error) {
	key := strings.ToLower(strings.TrimSpace(kind))
	if key == "" {
		return nil, fmt.Errorf("%w: provider kind is required", apperr.ErrConfiguration)
	}
	registryMu.RLock()
	factory := registry[key]
	registryMu.RUnlock()
	if factory == nil {
		return nil, fmt.Errorf("%w: unsupported provider kind: %s", apperr.ErrConfiguration, kind)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("%w: provider config is required", apperr.ErrConfiguration)
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("%w: encode provider config: %v", apperr.ErrConfiguration, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: decode provider config: %v", apperr.ErrConfiguration, err)
	}
	return nil
}

// estimateTokens approximates a token count for backends without a public
// tokenizer, at ~1.3 tokens per word. A known, accepted approximation.
func estimateTokens(text string) int {
	words := len(strings.Fields(text))
	return int(math.Round(float64(words) * 1.3))
}

func providerErr(name string, err error) error {
	return fmt.Errorf("%w: %s: %v", apperr.ErrProvider, name, err)
}

func formatMessages(req CompletionRequest) []Message {
	messages := make([]Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, Message{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, req.Messages...)
	return messages
}
