package models

import (
	"strings"
	"time"
	"unicode/utf8"
)

// Field length bounds enforced at the persistence boundary.
const (
	MaxHeadlineLen = 500
	MaxPressLen    = 100
	MaxURLLen      = 1000
	MaxReasonLen   = 2000
)

// Article is the unit moving through the pipeline. It is produced by the
// collector, published to the news stream, and consumed independently by the
// analyzer and the archiver. article_url uniquely identifies an article
// across all sources.
type Article struct {
	StockCode   string    `json:"stock_code"`
	StockName   string    `json:"stock_name"`
	Headline    string    `json:"headline"`
	Press       string    `json:"press"`
	Summary     string    `json:"summary,omitempty"`
	ArticleURL  string    `json:"article_url"`
	PublishedAt time.Time `json:"published_at"`
	Source      string    `json:"source"`
}

// Validate checks the invariants an Article must satisfy before publish.
func (a *Article) Validate() error {
	if len(a.StockCode) != 6 || !isDigits(a.StockCode) {
		return ErrInvalidStockCode
	}
	if a.Headline == "" {
		return ErrEmptyHeadline
	}
	if utf8.RuneCountInString(a.Headline) > MaxHeadlineLen {
		return ErrHeadlineTooLong
	}
	if !strings.HasPrefix(a.ArticleURL, "http://") && !strings.HasPrefix(a.ArticleURL, "https://") {
		return ErrInvalidURL
	}
	if len(a.ArticleURL) > MaxURLLen {
		return ErrURLTooLong
	}
	return nil
}

// StreamValues flattens the article into the string-valued field map the
// stream substrate expects.
func (a *Article) StreamValues() map[string]interface{} {
	return map[string]interface{}{
		"stock_code":   a.StockCode,
		"stock_name":   a.StockName,
		"headline":     a.Headline,
		"press":        a.Press,
		"summary":      a.Summary,
		"article_url":  a.ArticleURL,
		"published_at": a.PublishedAt.Format(time.RFC3339),
		"source":       a.Source,
	}
}

// ArticleFromValues reconstructs an Article from stream entry fields. The
// substrate returns values as either string or []byte depending on the
// client path; both are accepted and canonicalised to text here. A missing
// or malformed published_at falls back to the current time in UTC.
func ArticleFromValues(values map[string]interface{}) Article {
	a := Article{
		StockCode:  DecodeField(values, "stock_code"),
		StockName:  DecodeField(values, "stock_name"),
		Headline:   DecodeField(values, "headline"),
		Press:      DecodeField(values, "press"),
		Summary:    DecodeField(values, "summary"),
		ArticleURL: DecodeField(values, "article_url"),
		Source:     DecodeField(values, "source"),
	}

	a.PublishedAt = time.Now().UTC()
	if raw := DecodeField(values, "published_at"); raw != "" {
		if ts, err := time.Parse(time.RFC3339, raw); err == nil {
			a.PublishedAt = ts
		}
	}
	return a
}

// DecodeField returns the named field as a string, tolerating both textual
// and byte-encoded values.
func DecodeField(values map[string]interface{}, key string) string {
	v, ok := values[key]
	if !ok {
		return ""
	}
	switch val := v.(type) {
	case string:
		return val
	case []byte:
		return string(val)
	default:
		return ""
	}
}

// SentimentResult is the analyzer's output for one article, persisted with
// article_url as the idempotency key. Score 0 is extreme negative, 50
// neutral, 100 extreme positive.
type SentimentResult struct {
	StockCode   string    `json:"stock_code"`
	NewsDate    time.Time `json:"news_date"`
	Press       string    `json:"press"`
	Headline    string    `json:"headline"`
	Score       int       `json:"sentiment_score"`
	Reason      string    `json:"sentiment_reason"`
	ArticleURL  string    `json:"article_url"`
	PublishedAt time.Time `json:"published_at"`
	Source      string    `json:"source"`
	Emergency   bool      `json:"emergency"`
}

// Validate checks the result bounds before persistence.
func (r *SentimentResult) Validate() error {
	if r.Score < 0 || r.Score > 100 {
		return ErrInvalidScore
	}
	if r.Headline == "" {
		return ErrEmptyHeadline
	}
	return nil
}

// Truncated returns a copy with string fields clamped to their storage
// bounds.
func (r SentimentResult) Truncated() SentimentResult {
	r.Headline = truncate(r.Headline, MaxHeadlineLen)
	r.Press = truncate(r.Press, MaxPressLen)
	r.Reason = truncate(r.Reason, MaxReasonLen)
	r.ArticleURL = truncate(r.ArticleURL, MaxURLLen)
	return r
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
