package llm

import "context"

// MockClient is a deterministic stand-in for Client in tests, mirroring the
// teacher's MockClient.
type MockClient struct {
	Completion Completion
	Err        error
	Chunks     []CompletionChunk
	Embedding  []float32
	EmbedErr   error

	Requests []CompletionRequest
}

func (m *MockClient) Complete(ctx context.Context, req CompletionRequest) (Completion, error) {
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return Completion{}, m.Err
	}
	return m.Completion, nil
}

func (m *MockClient) CompleteStream(ctx context.Context, req CompletionRequest) (<-chan CompletionChunk, error) {
	m.Requests = append(m.Requests, req)
	if m.Err != nil {
		return nil, m.Err
	}
	out := make(chan CompletionChunk, len(m.Chunks)+1)
	for _, c := range m.Chunks {
		out <- c
	}
	out <- CompletionChunk{Done: true}
	close(out)
	return out, nil
}

func (m *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.EmbedErr != nil {
		return nil, m.EmbedErr
	}
	return m.Embedding, nil
}
