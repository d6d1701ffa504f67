package storage

import (
	"context"

	"github.com/mohamedkhairy/news-pipeline/internal/models"
)

// SentimentStore persists analyzer results, idempotent on article_url.
type SentimentStore interface {
	// Exists reports whether a result for this article_url is already
	// stored. The analyzer uses it to skip LLM spend on replays.
	Exists(ctx context.Context, articleURL string) (bool, error)

	// Save upserts a result keyed on article_url; saving the same URL
	// twice is a no-op.
	Save(ctx context.Context, result models.SentimentResult) error

	Close() error
}

// UniverseSource yields the active ticker set (code -> name), refreshed at
// the start of every cycle.
type UniverseSource interface {
	Active(ctx context.Context) (map[string]string, error)
}
