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

type ollamaConfig struct {
	BaseURL        string `json:"base_url"`
	EmbeddingModel string `json:"embedding_model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

const defaultOllamaEmbeddingModel = "nomic-embed-text"

// ollamaProvider drives a local inference server. Chat responses stream as
// newline-delimited JSON; embeddings are generated one text per call since
// the server has no batch endpoint.
type ollamaProvider struct {
	baseURL        string
	embeddingModel string
	client         *http.Client
}

type ollamaChatRequest struct {
	Model    string            `json:"model"`
	Messages []Message         `json:"messages"`
	Stream   bool              `json:"stream"`
	Options  ollamaChatOptions `json:"options"`
}

type ollamaChatOptions struct {
	NumPredict  int     `json:"num_predict"`
	Temperature float32 `json:"temperature"`
}

type ollamaChatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

func (p *ollamaProvider) Name() string {
	return "ollama"
}

func (p *ollamaProvider) postChat(ctx context.Context, req CompletionRequest, stream bool) (*http.Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	body := ollamaChatRequest{
		Model:    req.Model,
		Messages: formatMessages(req),
		Stream:   stream,
		Options: ollamaChatOptions{
			NumPredict:  maxTokens,
			Temperature: req.Temperature,
		},
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(p.baseURL, "/") + "/api/chat"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("ollama request failed: %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}
	return resp, nil
}

func (p *ollamaProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	resp, err := p.postChat(ctx, req, false)
	if err != nil {
		return nil, providerErr(p.Name(), err)
	}
	defer resp.Body.Close()

	var out ollamaChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, providerErr(p.Name(), err)
	}
	return &CompletionResult{
		Content:      out.Message.Content,
		InputTokens:  out.PromptEvalCount,
		OutputTokens: out.EvalCount,
		FinishReason: "stop",
	}, nil
}

func (p *ollamaProvider) Stream(ctx context.Context, req CompletionRequest) (Stream, error) {
	resp, err := p.postChat(ctx, req, true)
	if err != nil {
		return nil, providerErr(p.Name(), err)
	}
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	return &ollamaStream{body: resp.Body, scanner: scanner}, nil
}

type ollamaStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
}

func (s *ollamaStream) Recv() (string, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		var chunk ollamaChatResponse
		if err := json.Unmarshal([]byte(line), &chunk); err != nil {
			continue
		}
		if chunk.Message.Content != "" {
			return chunk.Message.Content, nil
		}
		if chunk.Done {
			return "", io.EOF
		}
	}
	if err := s.scanner.Err(); err != nil {
		return "", providerErr("ollama", err)
	}
	return "", io.EOF
}

func (s *ollamaStream) Close() error {
	return s.body.Close()
}

func (p *ollamaProvider) CountTokens(_ context.Context, text string, _ string) (int, error) {
	return estimateTokens(text), nil
}

type ollamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

func (p *ollamaProvider) Embeddings(ctx context.Context, texts []string, model string) ([][]float32, error) {
	if model == "" {
		model = p.embeddingModel
	}
	endpoint := strings.TrimRight(p.baseURL, "/") + "/api/embeddings"
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		data, err := json.Marshal(ollamaEmbedRequest{Model: model, Prompt: text})
		if err != nil {
			return nil, providerErr(p.Name(), err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(data))
		if err != nil {
			return nil, providerErr(p.Name(), err)
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := p.client.Do(req)
		if err != nil {
			return nil, providerErr(p.Name(), err)
		}
		if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
			raw, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return nil, providerErr(p.Name(), fmt.Errorf("embeddings failed: %s: %s", resp.Status, strings.TrimSpace(string(raw))))
		}
		var out ollamaEmbedResponse
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			resp.Body.Close()
			return nil, providerErr(p.Name(), err)
		}
		resp.Body.Close()
		vectors = append(vectors, out.Embedding)
	}
	return vectors, nil
}

func (p *ollamaProvider) HealthCheck(ctx context.Context) bool {
	endpoint := strings.TrimRight(p.baseURL, "/") + "/api/tags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func createOllamaFactory(args interface{}) (Provider, error) {
	cfg := &ollamaConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		return nil, fmt.Errorf("%w: ollama base_url is required", apperr.ErrConfiguration)
	}
	embeddingModel := strings.TrimSpace(cfg.EmbeddingModel)
	if embeddingModel == "" {
		embeddingModel = defaultOllamaEmbeddingModel
	}
	timeout := cfg.TimeoutSeconds
	if timeout <= 0 {
		timeout = 120
	}
	return &ollamaProvider{
		baseURL:        baseURL,
		embeddingModel: embeddingModel,
		client:         &http.Client{Timeout: time.Duration(timeout) * time.Second},
	}, nil
}

func init() {
	Register("ollama", createOllamaFactory)
}
