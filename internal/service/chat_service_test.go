package service

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/CalilDrissi/virtus/internal/model"
	apperr "github.com/CalilDrissi/virtus/internal/pkg/errors"
	"github.com/CalilDrissi/virtus/internal/provider"
)

func newChatFixture(backend *fakeProvider, vectors *fakeVectorStore, documents *fakeDocumentStore, ledger Ledger) *ChatService {
	resolver := NewStaticResolver(map[string]provider.Provider{"model-1": backend})
	queries := NewQueryService(documents, vectors, resolver, 5)
	return NewChatService(queries, resolver, ledger)
}

func TestChatEmitsUsage(t *testing.T) {
	backend := &fakeProvider{
		completion: &provider.CompletionResult{
			Content:      "answer",
			InputTokens:  11,
			OutputTokens: 7,
			FinishReason: "stop",
		},
	}
	ledger := &fakeLedger{}
	svc := newChatFixture(backend, newFakeVectorStore(), newFakeDocumentStore(), ledger)

	resp, err := svc.Chat(context.Background(), &ChatRequest{
		ModelID:  "model-1",
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)
	require.Equal(t, "answer", resp.Content)
	require.Equal(t, 11, resp.InputTokens)
	require.Equal(t, 7, resp.OutputTokens)

	require.Len(t, ledger.records, 1)
	require.Equal(t, Usage{InputTokens: 11, OutputTokens: 7}, ledger.records[0])
}

func TestChatEmptyMessages(t *testing.T) {
	svc := newChatFixture(&fakeProvider{}, newFakeVectorStore(), newFakeDocumentStore(), &fakeLedger{})
	_, err := svc.Chat(context.Background(), &ChatRequest{ModelID: "model-1"})
	require.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestChatComposesRetrievedContext(t *testing.T) {
	documents := newFakeDocumentStore()
	require.NoError(t, documents.Create(context.Background(), &model.Document{
		ID:               "doc-1",
		OriginalFilename: "manual.pdf",
	}))
	vectors := newFakeVectorStore()
	vectors.searchHits = []model.ScoredChunk{
		{Content: "warranty covers two years", DocumentID: "doc-1", Score: 0.95},
	}
	backend := &fakeProvider{completion: &provider.CompletionResult{Content: "two years"}}
	svc := newChatFixture(backend, vectors, documents, &fakeLedger{})

	resp, err := svc.Chat(context.Background(), &ChatRequest{
		ModelID:      "model-1",
		Messages:     []provider.Message{{Role: "user", Content: "how long is the warranty?"}},
		SystemPrompt: "You are support.",
		UseRAG:       true,
	})
	require.NoError(t, err)
	require.Len(t, resp.ContextUsed, 1)
	require.Equal(t, "manual.pdf", resp.ContextUsed[0].DocumentName)

	require.Contains(t, backend.lastReq.SystemPrompt, "You are support.")
	require.Contains(t, backend.lastReq.SystemPrompt, "Here is relevant context from the knowledge base:")
	require.Contains(t, backend.lastReq.SystemPrompt, "[Source 1: manual.pdf]")
	require.Contains(t, backend.lastReq.SystemPrompt, "warranty covers two years")
}

func TestChatRetrievalFailurePropagates(t *testing.T) {
	backend := &fakeProvider{embedErr: apperr.ErrProvider}
	svc := newChatFixture(backend, newFakeVectorStore(), newFakeDocumentStore(), &fakeLedger{})

	_, err := svc.Chat(context.Background(), &ChatRequest{
		ModelID:  "model-1",
		Messages: []provider.Message{{Role: "user", Content: "q"}},
		UseRAG:   true,
	})
	require.ErrorIs(t, err, apperr.ErrProvider)
}

func TestChatStreamSettlesUsageOnce(t *testing.T) {
	backend := &fakeProvider{stream: &fakeStream{fragments: []string{"ab", "cd"}}}
	ledger := &fakeLedger{}
	svc := newChatFixture(backend, newFakeVectorStore(), newFakeDocumentStore(), ledger)

	stream, _, err := svc.ChatStream(context.Background(), &ChatRequest{
		ModelID:  "model-1",
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)

	var got string
	for {
		fragment, err := stream.Recv()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got += fragment
	}
	require.Equal(t, "abcd", got)
	require.NoError(t, stream.Close())

	// EOF and Close both settle; the record is still singular.
	require.Len(t, ledger.records, 1)
	// fakeProvider counts one token per byte.
	require.Equal(t, Usage{InputTokens: 2, OutputTokens: 4}, ledger.records[0])
	require.True(t, backend.stream.closed)
}

func TestChatStreamAbandonedStillEmitsUsage(t *testing.T) {
	backend := &fakeProvider{stream: &fakeStream{fragments: []string{"one", "two", "three"}}}
	ledger := &fakeLedger{}
	svc := newChatFixture(backend, newFakeVectorStore(), newFakeDocumentStore(), ledger)

	stream, _, err := svc.ChatStream(context.Background(), &ChatRequest{
		ModelID:  "model-1",
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := stream.Recv()
		require.NoError(t, err)
	}
	require.NoError(t, stream.Close())

	require.Len(t, ledger.records, 1)
	// Only the consumed fragments count toward output.
	require.Equal(t, Usage{InputTokens: 2, OutputTokens: 6}, ledger.records[0])
	require.True(t, backend.stream.closed)
}

func TestChatUnknownModel(t *testing.T) {
	svc := newChatFixture(&fakeProvider{}, newFakeVectorStore(), newFakeDocumentStore(), &fakeLedger{})
	_, err := svc.Chat(context.Background(), &ChatRequest{
		ModelID:  "model-x",
		Messages: []provider.Message{{Role: "user", Content: "hi"}},
	})
	require.ErrorIs(t, err, apperr.ErrConfiguration)
}
