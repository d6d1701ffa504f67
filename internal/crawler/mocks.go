package crawler

import (
	"context"

	"github.com/mohamedkhairy/news-pipeline/internal/models"
)

// MockFetcher is a canned NewsFetcher for tests.
type MockFetcher struct {
	Articles map[string][]models.Article // stock code -> articles
	Err      error
	Crawled  []string // codes crawled, in order
}

func NewMockFetcher() *MockFetcher {
	return &MockFetcher{Articles: make(map[string][]models.Article)}
}

func (m *MockFetcher) Crawl(ctx context.Context, stockCode, stockName string, maxPages int) ([]models.Article, error) {
	m.Crawled = append(m.Crawled, stockCode)
	if m.Err != nil {
		return nil, m.Err
	}
	return m.Articles[stockCode], nil
}
