package llm

import (
	"context"
	"sync"
)

// MockClient permite tests sin llamar a un LLM real.
type MockClient struct {
	Response string
	Err      error
	// Block, si no es nil, retiene la llamada hasta que se cierre o se cancele el contexto.
	Block <-chan struct{}

	mu       sync.Mutex
	calls    int
	requests []GenerateRequest
}

func (m *MockClient) Generate(ctx context.Context, req GenerateRequest) (string, error) {
	m.mu.Lock()
	m.calls++
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return m.Response, m.Err
}

func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *MockClient) LastRequest() (GenerateRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.requests) == 0 {
		return GenerateRequest{}, false
	}
	return m.requests[len(m.requests)-1], true
}
