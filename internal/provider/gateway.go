package provider

import (
	"context"
	"fmt"
	"strings"

	apperr "github.com/CalilDrissi/virtus/internal/pkg/errors"
)

type gatewayConfig struct {
	APIKey         string      `json:"api_key"`
	BaseURL        string      `json:"base_url"`
	EmbeddingModel string      `json:"embedding_model"`
	Fallback       interface{} `json:"fallback"`
}

// gatewayProvider fronts any OpenAI-compatible endpoint (vLLM servers,
// gateways, "custom" deployments). The wire protocol is identical to the
// hosted API; only the base URL and credentials differ. Embedding support on
// such endpoints is deployment-dependent, so embeddings always go to the
// configured fallback backend.
type gatewayProvider struct {
	*openAIProvider
	fallback Provider
}

func (p *gatewayProvider) Embeddings(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if p.fallback == nil {
		return nil, fmt.Errorf("%w: %s has no embeddings fallback configured", apperr.ErrConfiguration, p.name)
	}
	return p.fallback.Embeddings(ctx, texts, model)
}

func (p *gatewayProvider) CountTokens(_ context.Context, text string, _ string) (int, error) {
	// Gateway backends expose no public tokenizer.
	return estimateTokens(text), nil
}

func createGatewayFactory(kind string) Factory {
	return func(args interface{}) (Provider, error) {
		cfg := &gatewayConfig{}
		if err := decodeConfig(args, cfg); err != nil {
			return nil, err
		}
		baseURL := strings.TrimSpace(cfg.BaseURL)
		if baseURL == "" {
			return nil, fmt.Errorf("%w: %s base_url is required", apperr.ErrConfiguration, kind)
		}
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			apiKey = "EMPTY"
		}
		var fallback Provider
		if cfg.Fallback != nil {
			delegate, err := createOpenAIFactory(cfg.Fallback)
			if err != nil {
				return nil, fmt.Errorf("%s embeddings fallback: %w", kind, err)
			}
			fallback = delegate
		}
		return &gatewayProvider{
			openAIProvider: newOpenAIProvider(kind, apiKey, baseURL, strings.TrimSpace(cfg.EmbeddingModel)),
			fallback:       fallback,
		}, nil
	}
}

func init() {
	Register("vllm", createGatewayFactory("vllm"))
	Register("custom", createGatewayFactory("custom"))
}
