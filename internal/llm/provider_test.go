package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPClient_Complete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices": [{"message": {"role": "assistant", "content": "hello"}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 10, "completion_tokens": 2}
		}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "test-key", "gpt-5.1", "text-embedding-3-small")
	completion, err := client.Complete(context.Background(), CompletionRequest{
		System:      "be terse",
		Messages:    []Message{{Role: RoleUser, Content: "hi"}},
		MaxTokens:   64,
		Temperature: 0.7,
		TopP:        0.9,
	})
	require.NoError(t, err)
	require.Equal(t, "hello", completion.Text)
	require.Equal(t, 10, completion.PromptTokens)
}

func TestHTTPClient_Complete_ProviderErrorIsTransientFor5xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("overloaded"))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "test-key", "gpt-5.1", "text-embedding-3-small")
	_, err := client.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.Error(t, err)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	require.True(t, provErr.Transient())
}

func TestHTTPClient_Complete_ProviderErrorIsPermanentFor4xx(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad request"))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "test-key", "gpt-5.1", "text-embedding-3-small")
	_, err := client.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.Error(t, err)

	var provErr *ProviderError
	require.ErrorAs(t, err, &provErr)
	require.False(t, provErr.Transient())
}

func TestHTTPClient_Embed(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/embeddings", r.URL.Path)
		_, _ = w.Write([]byte(`{"data": [{"embedding": [0.1, 0.2, 0.3]}]}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL, "test-key", "gpt-5.1", "text-embedding-3-small")
	vec, err := client.Embed(context.Background(), "hello")
	require.NoError(t, err)
	require.Equal(t, []float32{0.1, 0.2, 0.3}, vec)
}

func TestMockClient_RecordsRequests(t *testing.T) {
	mock := &MockClient{Completion: Completion{Text: "canned"}}
	_, err := mock.Complete(context.Background(), CompletionRequest{Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)
	require.Len(t, mock.Requests, 1)
}
