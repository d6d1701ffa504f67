package storage

import (
	"context"
	"sync"

	"github.com/mohamedkhairy/news-pipeline/internal/models"
)

// MockSentimentStore is an in-memory SentimentStore for tests, idempotent
// on article_url like the real one.
type MockSentimentStore struct {
	mu      sync.Mutex
	Results map[string]models.SentimentResult // keyed by article_url

	ExistsErr error
	SaveErr   error
}

func NewMockSentimentStore() *MockSentimentStore {
	return &MockSentimentStore{Results: make(map[string]models.SentimentResult)}
}

func (m *MockSentimentStore) Exists(ctx context.Context, articleURL string) (bool, error) {
	if m.ExistsErr != nil {
		return false, m.ExistsErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.Results[articleURL]
	return ok, nil
}

func (m *MockSentimentStore) Save(ctx context.Context, result models.SentimentResult) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.Results[result.ArticleURL]; dup {
		return nil
	}
	m.Results[result.ArticleURL] = result.Truncated()
	return nil
}

func (m *MockSentimentStore) Close() error { return nil }

// Count returns the number of stored results.
func (m *MockSentimentStore) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Results)
}

// Get returns the stored result for a URL.
func (m *MockSentimentStore) Get(articleURL string) (models.SentimentResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.Results[articleURL]
	return r, ok
}

// MockUniverseSource serves a fixed universe.
type MockUniverseSource struct {
	Universe map[string]string
	Err      error
}

func (m *MockUniverseSource) Active(ctx context.Context) (map[string]string, error) {
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Universe, nil
}
