package provider

import (
	"context"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	apperr "github.com/CalilDrissi/virtus/internal/pkg/errors"
	"github.com/CalilDrissi/virtus/internal/tokenizer"
)

const defaultEmbeddingModel = "text-embedding-3-small"

type openAIConfig struct {
	APIKey         string `json:"api_key"`
	BaseURL        string `json:"base_url"`
	EmbeddingModel string `json:"embedding_model"`
}

// openAIProvider speaks the OpenAI chat-completions wire protocol. It backs
// both the hosted "openai" kind and, with a custom base URL, the gateway
// kinds registered in gateway.go.
type openAIProvider struct {
	name           string
	client         *openai.Client
	embeddingModel string
}

func newOpenAIProvider(name, apiKey, baseURL, embeddingModel string) *openAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	if embeddingModel == "" {
		embeddingModel = defaultEmbeddingModel
	}
	return &openAIProvider{
		name:           name,
		client:         openai.NewClientWithConfig(cfg),
		embeddingModel: embeddingModel,
	}
}

func (p *openAIProvider) Name() string {
	return p.name
}

func (p *openAIProvider) chatRequest(req CompletionRequest) openai.ChatCompletionRequest {
	messages := formatMessages(req)
	formatted := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		formatted = append(formatted, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}
	return openai.ChatCompletionRequest{
		Model:       req.Model,
		Messages:    formatted,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
}

func (p *openAIProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	resp, err := p.client.CreateChatCompletion(ctx, p.chatRequest(req))
	if err != nil {
		return nil, providerErr(p.name, err)
	}
	if len(resp.Choices) == 0 {
		return nil, providerErr(p.name, fmt.Errorf("response has no choices"))
	}
	return &CompletionResult{
		Content:      resp.Choices[0].Message.Content,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
		FinishReason: string(resp.Choices[0].FinishReason),
	}, nil
}

func (p *openAIProvider) Stream(ctx context.Context, req CompletionRequest) (Stream, error) {
	stream, err := p.client.CreateChatCompletionStream(ctx, p.chatRequest(req))
	if err != nil {
		return nil, providerErr(p.name, err)
	}
	return &openAIStream{name: p.name, stream: stream}, nil
}

type openAIStream struct {
	name   string
	stream *openai.ChatCompletionStream
}

func (s *openAIStream) Recv() (string, error) {
	for {
		resp, err := s.stream.Recv()
		if err == io.EOF {
			return "", io.EOF
		}
		if err != nil {
			return "", providerErr(s.name, err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		if content := resp.Choices[0].Delta.Content; content != "" {
			return content, nil
		}
	}
}

func (s *openAIStream) Close() error {
	s.stream.Close()
	return nil
}

func (p *openAIProvider) CountTokens(_ context.Context, text string, model string) (int, error) {
	tok, err := tokenizer.ForModel(model)
	if err != nil {
		return estimateTokens(text), nil
	}
	return len(tok.Encode(text)), nil
}

func (p *openAIProvider) Embeddings(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if model == "" {
		model = p.embeddingModel
	}
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, providerErr(p.name, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, providerErr(p.name, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}
	vectors := make([][]float32, len(resp.Data))
	for i, item := range resp.Data {
		vectors[i] = item.Embedding
	}
	return vectors, nil
}

func (p *openAIProvider) HealthCheck(ctx context.Context) bool {
	_, err := p.client.ListModels(ctx)
	return err == nil
}

func createOpenAIFactory(args interface{}) (Provider, error) {
	cfg := &openAIConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: openai api_key is required", apperr.ErrConfiguration)
	}
	return newOpenAIProvider("openai", apiKey, strings.TrimSpace(cfg.BaseURL), strings.TrimSpace(cfg.EmbeddingModel)), nil
}

func init() {
	Register("openai", createOpenAIFactory)
}
