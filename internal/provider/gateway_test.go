package provider

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	apperr "github.com/CalilDrissi/virtus/internal/pkg/errors"
)

func newGatewayTestProvider(t *testing.T, handler http.Handler, extra map[string]interface{}) Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	args := map[string]interface{}{
		"base_url": srv.URL + "/v1",
	}
	for k, v := range extra {
		args[k] = v
	}
	p, err := New("vllm", args)
	require.NoError(t, err)
	return p
}

func TestGatewayComplete(t *testing.T) {
	p := newGatewayTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id":"cmpl-1","object":"chat.completion",
			"choices":[{"index":0,"message":{"role":"assistant","content":"served"},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":7,"completion_tokens":2,"total_tokens":9}
		}`))
	}), nil)

	result, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
		Model:    "llama-3",
	})
	require.NoError(t, err)
	require.Equal(t, "served", result.Content)
	require.Equal(t, 7, result.InputTokens)
	require.Equal(t, 2, result.OutputTokens)
	require.Equal(t, "stop", result.FinishReason)
}

func TestGatewayStream(t *testing.T) {
	p := newGatewayTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		chunks := []string{
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"ab"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{"content":"cd"}}]}`,
			`{"id":"1","object":"chat.completion.chunk","choices":[{"index":0,"delta":{}}]}`,
		}
		for _, chunk := range chunks {
			w.Write([]byte("data: " + chunk + "\n\n"))
			flusher.Flush()
		}
		w.Write([]byte("data: [DONE]\n\n"))
		flusher.Flush()
	}), nil)

	stream, err := p.Stream(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
		Model:    "llama-3",
	})
	require.NoError(t, err)
	defer stream.Close()

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
}

func TestGatewayEmbeddingsRequireFallback(t *testing.T) {
	p := newGatewayTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("gateway endpoint must not receive embedding calls")
	}), nil)

	_, err := p.Embeddings(context.Background(), []string{"text"}, "")
	require.ErrorIs(t, err, apperr.ErrConfiguration)
}

func TestGatewayEmbeddingsDelegateToFallback(t *testing.T) {
	embedSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/embeddings", r.URL.Path)
		w.Write([]byte(`{"data":[{"embedding":[0.5],"index":0},{"embedding":[0.6],"index":1}],"model":"text-embedding-3-small"}`))
	}))
	t.Cleanup(embedSrv.Close)

	p := newGatewayTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("gateway endpoint must not receive embedding calls")
	}), map[string]interface{}{
		"fallback": map[string]interface{}{
			"api_key":  "ek",
			"base_url": embedSrv.URL + "/v1",
		},
	})

	vectors, err := p.Embeddings(context.Background(), []string{"a", "b"}, "")
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	require.Equal(t, []float32{0.5}, vectors[0])
}

func TestGatewayEmbeddingsEmptyInput(t *testing.T) {
	p := newGatewayTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), nil)
	vectors, err := p.Embeddings(context.Background(), nil, "")
	require.NoError(t, err)
	require.Empty(t, vectors)
}

func TestGatewayCountTokensEstimates(t *testing.T) {
	p := newGatewayTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}), nil)
	n, err := p.CountTokens(context.Background(), "alpha beta", "llama-3")
	require.NoError(t, err)
	require.Equal(t, 3, n)
}
