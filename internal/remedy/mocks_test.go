package remedy

import (
	"context"
	"sync"
)

type mockGenerator struct {
	mu      sync.Mutex
	prompts []string
	results []mockResult
}

type mockResult struct {
	text string
	err  error
}

func (m *mockGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	if len(m.results) == 0 {
		return "", nil
	}
	r := m.results[0]
	if len(m.results) > 1 {
		m.results = m.results[1:]
	}
	return r.text, r.err
}
