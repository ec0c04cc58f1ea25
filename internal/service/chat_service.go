package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/CalilDrissi/virtus/internal/model"
	apperr "github.com/CalilDrissi/virtus/internal/pkg/errors"
	"github.com/CalilDrissi/virtus/internal/provider"
)

type ChatRequest struct {
	ModelID       string             `json:"model_id"`
	Messages      []provider.Message `json:"messages"`
	Model         string             `json:"model"`
	SystemPrompt  string             `json:"system_prompt"`
	MaxTokens     int                `json:"max_tokens"`
	Temperature   float32            `json:"temperature"`
	UseRAG        bool               `json:"use_rag"`
	TopK          int                `json:"top_k"`
	DataSourceIDs []string           `json:"data_source_ids"`
}

type ChatResponse struct {
	Content      string           `json:"content"`
	InputTokens  int              `json:"input_tokens"`
	OutputTokens int              `json:"output_tokens"`
	FinishReason string           `json:"finish_reason"`
	ContextUsed  []model.RAGChunk `json:"context_used,omitempty"`
}

// ChatService composes optional retrieval into the system prompt, runs the
// completion on the tenant's provider and emits token usage to the ledger.
// Usage is recorded once per call, including streamed ones.
type ChatService struct {
	queries   *QueryService
	providers ProviderResolver
	ledger    Ledger
}

func NewChatService(queries *QueryService, providers ProviderResolver, ledger Ledger) *ChatService {
	if ledger == nil {
		ledger = NopLedger()
	}
	return &ChatService{
		queries:   queries,
		providers: providers,
		ledger:    ledger,
	}
}

// prepare resolves the provider, optionally retrieves context for the last
// message and folds it into the system prompt.
func (s *ChatService) prepare(ctx context.Context, req *ChatRequest) (provider.Provider, provider.CompletionRequest, []model.RAGChunk, error) {
	if len(req.Messages) == 0 {
		return nil, provider.CompletionRequest{}, nil, fmt.Errorf("%w: empty messages", apperr.ErrInvalid)
	}
	backend, err := s.providers.Resolve(req.ModelID)
	if err != nil {
		return nil, provider.CompletionRequest{}, nil, err
	}

	systemPrompt := req.SystemPrompt
	var contextChunks []model.RAGChunk
	if req.UseRAG {
		userQuery := req.Messages[len(req.Messages)-1].Content
		result, err := s.queries.Query(ctx, req.ModelID, userQuery, req.TopK, req.DataSourceIDs)
		if err != nil {
			return nil, provider.CompletionRequest{}, nil, fmt.Errorf("retrieve context: %w", err)
		}
		contextChunks = result.Chunks
		if block := FormatContext(result.Chunks); block != "" {
			if systemPrompt != "" {
				systemPrompt = systemPrompt + "\n\n" + block
			} else {
				systemPrompt = block
			}
		}
	}

	return backend, provider.CompletionRequest{
		Messages:     req.Messages,
		Model:        req.Model,
		MaxTokens:    req.MaxTokens,
		Temperature:  req.Temperature,
		SystemPrompt: systemPrompt,
	}, contextChunks, nil
}

func (s *ChatService) recordUsage(ctx context.Context, modelID string, usage Usage) {
	if err := s.ledger.Record(ctx, modelID, clampUsage(usage)); err != nil {
		logutil.GetLogger(ctx).Warn("record usage failed", zap.String("model_id", modelID), zap.Error(err))
	}
}

// Chat runs a blocking completion.
func (s *ChatService) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	backend, creq, contextChunks, err := s.prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	result, err := backend.Complete(ctx, creq)
	if err != nil {
		return nil, err
	}
	s.recordUsage(ctx, req.ModelID, Usage{InputTokens: result.InputTokens, OutputTokens: result.OutputTokens})
	return &ChatResponse{
		Content:      result.Content,
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
		FinishReason: result.FinishReason,
		ContextUsed:  contextChunks,
	}, nil
}

// ChatStream starts a streaming completion. Usage is estimated from the
// accumulated fragments once the stream ends, whether it is drained or
// abandoned early, and emitted exactly once.
func (s *ChatService) ChatStream(ctx context.Context, req *ChatRequest) (provider.Stream, []model.RAGChunk, error) {
	backend, creq, contextChunks, err := s.prepare(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	inner, err := backend.Stream(ctx, creq)
	if err != nil {
		return nil, nil, err
	}

	prompt := make([]string, 0, len(req.Messages)+1)
	if creq.SystemPrompt != "" {
		prompt = append(prompt, creq.SystemPrompt)
	}
	for _, m := range req.Messages {
		prompt = append(prompt, m.Content)
	}
	return &meteredStream{
		inner:     inner,
		svc:       s,
		ctx:       ctx,
		modelID:   req.ModelID,
		model:     req.Model,
		backend:   backend,
		inputText: strings.Join(prompt, " "),
	}, contextChunks, nil
}

// meteredStream counts fragments as they pass through and settles usage when
// the stream finishes.
type meteredStream struct {
	inner     provider.Stream
	svc       *ChatService
	ctx       context.Context
	modelID   string
	model     string
	backend   provider.Provider
	inputText string
	content   strings.Builder
	settle    sync.Once
	usage     Usage
}

// Usage reports the settled token counts. Valid once the stream has ended.
func (m *meteredStream) Usage() Usage {
	return m.usage
}

func (m *meteredStream) Recv() (string, error) {
	fragment, err := m.inner.Recv()
	if err != nil {
		if err == io.EOF {
			m.settleUsage()
		}
		return "", err
	}
	m.content.WriteString(fragment)
	return fragment, nil
}

func (m *meteredStream) Close() error {
	m.settleUsage()
	return m.inner.Close()
}

func (m *meteredStream) settleUsage() {
	m.settle.Do(func() {
		inputTokens, err := m.backend.CountTokens(m.ctx, m.inputText, m.model)
		if err != nil {
			logutil.GetLogger(m.ctx).Warn("count input tokens failed", zap.Error(err))
		}
		outputTokens, err := m.backend.CountTokens(m.ctx, m.content.String(), m.model)
		if err != nil {
			logutil.GetLogger(m.ctx).Warn("count output tokens failed", zap.Error(err))
		}
		m.usage = Usage{InputTokens: inputTokens, OutputTokens: outputTokens}
		m.svc.recordUsage(m.ctx, m.modelID, m.usage)
	})
}
