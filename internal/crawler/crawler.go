// Package crawler fetches per-ticker news index pages and shapes them into
// articles. HTML layout knowledge stays here; everything downstream sees
// only models.Article.
package crawler

import (
	"context"

	"github.com/mohamedkhairy/news-pipeline/internal/models"
)

// NewsFetcher crawls the upstream news index for one ticker. Implementations
// must preserve the page order of the source: downstream publishes articles
// in the order they were yielded.
type NewsFetcher interface {
	Crawl(ctx context.Context, stockCode, stockName string, maxPages int) ([]models.Article, error)
}
