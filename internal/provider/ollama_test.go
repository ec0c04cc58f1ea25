package provider

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func newOllamaTestProvider(t *testing.T, handler http.Handler) Provider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	p, err := New("ollama", map[string]interface{}{"base_url": srv.URL})
	require.NoError(t, err)
	return p
}

func TestOllamaComplete(t *testing.T) {
	p := newOllamaTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/chat", r.URL.Path)
		var req ollamaChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.False(t, req.Stream)
		w.Write([]byte(`{"message":{"content":"local answer"},"done":true,"prompt_eval_count":9,"eval_count":3}`))
	}))

	result, err := p.Complete(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
		Model:    "llama3",
	})
	require.NoError(t, err)
	require.Equal(t, "local answer", result.Content)
	require.Equal(t, 9, result.InputTokens)
	require.Equal(t, 3, result.OutputTokens)
}

func TestOllamaStream(t *testing.T) {
	p := newOllamaTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		lines := []string{
			`{"message":{"content":"a"},"done":false}`,
			`{"message":{"content":"b"},"done":false}`,
			`{"message":{"content":""},"done":true}`,
		}
		for _, line := range lines {
			w.Write([]byte(line + "\n"))
			flusher.Flush()
		}
	}))

	stream, err := p.Stream(context.Background(), CompletionRequest{
		Messages: []Message{{Role: "user", Content: "hi"}},
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
	require.Equal(t, "ab", got)
}

func TestOllamaEmbeddingsOnePerText(t *testing.T) {
	var calls int
	p := newOllamaTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/embeddings", r.URL.Path)
		var req ollamaEmbedRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "nomic-embed-text", req.Model)
		calls++
		w.Write([]byte(`{"embedding":[0.1,0.2]}`))
	}))

	vectors, err := p.Embeddings(context.Background(), []string{"a", "b", "c"}, "")
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	require.Equal(t, 3, calls)
}

func TestOllamaHealthCheck(t *testing.T) {
	p := newOllamaTestProvider(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/tags", r.URL.Path)
		w.Write([]byte(`{"models":[]}`))
	}))
	require.True(t, p.HealthCheck(context.Background()))
}
