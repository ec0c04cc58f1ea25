package provider

import (
	"context"
	"fmt"
	"io"
	"strings"

	"google.golang.org/genai"

	apperr "github.com/CalilDrissi/virtus/internal/pkg/errors"
)

type geminiConfig struct {
	APIKey         string `json:"api_key"`
	EmbeddingModel string `json:"embedding_model"`
}

const defaultGeminiEmbeddingModel = "text-embedding-004"

type geminiProvider struct {
	apiKey         string
	embeddingModel string
}

func (p *geminiProvider) Name() string {
	return "gemini"
}

func (p *geminiProvider) newClient(ctx context.Context) (*genai.Client, error) {
	return genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  p.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
}

func (p *geminiProvider) contents(req CompletionRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, msg := range req.Messages {
		role := genai.RoleUser
		if msg.Role == "assistant" {
			role = genai.RoleModel
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}
	cfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.SystemPrompt}}}
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	temp := req.Temperature
	cfg.Temperature = &temp
	return contents, cfg
}

func (p *geminiProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	client, err := p.newClient(ctx)
	if err != nil {
		return nil, providerErr(p.Name(), err)
	}
	contents, cfg := p.contents(req)
	resp, err := client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, providerErr(p.Name(), err)
	}
	result := &CompletionResult{
		Content:      strings.TrimSpace(resp.Text()),
		FinishReason: "stop",
	}
	if resp.UsageMetadata != nil {
		result.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		result.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason != "" {
		result.FinishReason = strings.ToLower(string(resp.Candidates[0].FinishReason))
	}
	return result, nil
}

func (p *geminiProvider) Stream(ctx context.Context, req CompletionRequest) (Stream, error) {
	client, err := p.newClient(ctx)
	if err != nil {
		return nil, providerErr(p.Name(), err)
	}
	contents, cfg := p.contents(req)
	ctx, cancel := context.WithCancel(ctx)
	seq := client.Models.GenerateContentStream(ctx, req.Model, contents, cfg)

	fragments := make(chan streamItem)
	go func() {
		defer close(fragments)
		for resp, err := range seq {
			if err != nil {
				select {
				case fragments <- streamItem{err: providerErr("gemini", err)}:
				case <-ctx.Done():
				}
				return
			}
			text := resp.Text()
			if text == "" {
				continue
			}
			select {
			case fragments <- streamItem{text: text}:
			case <-ctx.Done():
				return
			}
		}
	}()
	return &geminiStream{fragments: fragments, cancel: cancel}, nil
}

type streamItem struct {
	text string
	err  error
}

type geminiStream struct {
	fragments chan streamItem
	cancel    context.CancelFunc
}

func (s *geminiStream) Recv() (string, error) {
	item, ok := <-s.fragments
	if !ok {
		return "", io.EOF
	}
	if item.err != nil {
		return "", item.err
	}
	return item.text, nil
}

func (s *geminiStream) Close() error {
	s.cancel()
	return nil
}

func (p *geminiProvider) CountTokens(_ context.Context, text string, _ string) (int, error) {
	return estimateTokens(text), nil
}

func (p *geminiProvider) Embeddings(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if model == "" {
		model = p.embeddingModel
	}
	client, err := p.newClient(ctx)
	if err != nil {
		return nil, providerErr(p.Name(), err)
	}
	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, &genai.Content{Parts: []*genai.Part{{Text: text}}})
	}
	resp, err := client.Models.EmbedContent(ctx, model, contents, nil)
	if err != nil {
		return nil, providerErr(p.Name(), err)
	}
	if len(resp.Embeddings) != len(texts) {
		return nil, providerErr(p.Name(), fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Embeddings)))
	}
	vectors := make([][]float32, len(resp.Embeddings))
	for i, emb := range resp.Embeddings {
		vectors[i] = emb.Values
	}
	return vectors, nil
}

func (p *geminiProvider) HealthCheck(ctx context.Context) bool {
	client, err := p.newClient(ctx)
	if err != nil {
		return false
	}
	_, err = client.Models.List(ctx, nil)
	return err == nil
}

func createGeminiFactory(args interface{}) (Provider, error) {
	cfg := &geminiConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api_key is required", apperr.ErrConfiguration)
	}
	embeddingModel := strings.TrimSpace(cfg.EmbeddingModel)
	if embeddingModel == "" {
		embeddingModel = defaultGeminiEmbeddingModel
	}
	return &geminiProvider{apiKey: apiKey, embeddingModel: embeddingModel}, nil
}

func init() {
	Register("gemini", createGeminiFactory)
}
