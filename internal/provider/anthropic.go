package provider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperr "github.com/CalilDrissi/virtus/internal/pkg/errors"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com"
	anthropicVersion        = "2023-06-01"
	anthropicHealthModel    = "claude-3-haiku-20240307"
)

type anthropicConfig struct {
	APIKey         string      `json:"api_key"`
	BaseURL        string      `json:"base_url"`
	TimeoutSeconds int         `json:"timeout_seconds"`
	Fallback       interface{} `json:"fallback"`
}

// anthropicProvider talks to the Anthropic messages API. The vendor publishes
// no tokenizer, so token counts use the word heuristic, and it has no
// embeddings endpoint, so embeddings delegate to a composed openai instance.
type anthropicProvider struct {
	apiKey   string
	baseURL  string
	client   *http.Client
	fallback Provider
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float32            `json:"temperature"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

func (p *anthropicProvider) Name() string {
	return "anthropic"
}

func (p *anthropicProvider) buildRequest(req CompletionRequest, stream bool) anthropicRequest {
	messages := make([]anthropicMessage, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, anthropicMessage{Role: msg.Role, Content: msg.Content})
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return anthropicRequest{
		Model:       req.Model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
		System:      req.SystemPrompt,
		Messages:    messages,
		Stream:      stream,
	}
}

func (p *anthropicProvider) post(ctx context.Context, body anthropicRequest) (*http.Response, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(p.baseURL, "/") + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("x-api-key", p.apiKey)
	req.Header.Set("anthropic-version", anthropicVersion)
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("anthropic request failed: %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	return resp, nil
}

func (p *anthropicProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	resp, err := p.post(ctx, p.buildRequest(req, false))
	if err != nil {
		return nil, providerErr(p.Name(), err)
	}
	defer resp.Body.Close()

	var out anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, providerErr(p.Name(), err)
	}
	if len(out.Content) == 0 {
		return nil, providerErr(p.Name(), fmt.Errorf("response has no content blocks"))
	}
	return &CompletionResult{
		Content:      out.Content[0].Text,
		InputTokens:  out.Usage.InputTokens,
		OutputTokens: out.Usage.OutputTokens,
		FinishReason: out.StopReason,
	}, nil
}

func (p *anthropicProvider) Stream(ctx context.Context, req CompletionRequest) (Stream, error) {
	resp, err := p.post(ctx, p.buildRequest(req, true))
	if err != nil {
		return nil, providerErr(p.Name(), err)
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	return &anthropicStream{body: resp.Body, scanner: scanner}, nil
}

type anthropicStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

func (s *anthropicStream) Recv() (string, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue
		}
		switch event.Type {
		case "content_block_delta":
			if event.Delta.Text != "" {
				return event.Delta.Text, nil
			}
		case "message_stop":
			return "", io.EOF
		}
	}
	if err := s.scanner.Err(); err != nil {
		return "", providerErr("anthropic", err)
	}
	return "", io.EOF
}

func (s *anthropicStream) Close() error {
	return s.body.Close()
}

func (p *anthropicProvider) CountTokens(_ context.Context, text string, _ string) (int, error) {
	// No public tokenizer for this vendor.
	return estimateTokens(text), nil
}

func (p *anthropicProvider) Embeddings(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	if p.fallback == nil {
		return nil, fmt.Errorf("%w: anthropic has no embeddings fallback configured", apperr.ErrConfiguration)
	}
	return p.fallback.Embeddings(ctx, texts, model)
}

func (p *anthropicProvider) HealthCheck(ctx context.Context) bool {
	resp, err := p.post(ctx, anthropicRequest{
		Model:     anthropicHealthModel,
		MaxTokens: 1,
		Messages:  []anthropicMessage{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		return false
	}
	resp.Body.Close()
	return true
}

func createAnthropicFactory(args interface{}) (Provider, error) {
	cfg := &anthropicConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: anthropic api_key is required", apperr.ErrConfiguration)
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 120
	}
	var fallback Provider
	if cfg.Fallback != nil {
		delegate, err := createOpenAIFactory(cfg.Fallback)
		if err != nil {
			return nil, fmt.Errorf("anthropic embeddings fallback: %w", err)
		}
		fallback = delegate
	}
	return &anthropicProvider{
		apiKey:   apiKey,
		baseURL:  baseURL,
		client:   &http.Client{Timeout: time.Duration(timeout) * time.Second},
		fallback: fallback,
	}, nil
}

func init() {
	Register("anthropic", createAnthropicFactory)
}
