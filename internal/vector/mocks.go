package vector

import (
	"context"
	"sync"
)

// MockEmbedder returns fixed-dimension vectors for tests.
type MockEmbedder struct {
	Dim   int
	Err   error
	Calls int
}

func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	m.Calls++
	if m.Err != nil {
		return nil, m.Err
	}
	dim := m.Dim
	if dim == 0 {
		dim = 4
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		v := make([]float32, dim)
		v[0] = float32(len(texts[i]))
		out[i] = v
	}
	return out, nil
}

// MockSink records added documents in memory.
type MockSink struct {
	mu   sync.Mutex
	Docs []Document
	Err  error
}

func (m *MockSink) Add(ctx context.Context, docs []Document) error {
	if m.Err != nil {
		return m.Err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Docs = append(m.Docs, docs...)
	return nil
}

// Count returns the number of documents added.
func (m *MockSink) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Docs)
}
