// Package analyzer is the sentiment-scoring consumer group. It reads raw
// news entries, scores them through the LLM, and persists results keyed on
// article_url. The bus is not the audit log: every consumed entry is acked
// whether or not processing succeeded, so a poison message can never block
// the stream head.
package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohamedkhairy/news-pipeline/internal/bus"
	"github.com/mohamedkhairy/news-pipeline/internal/llm"
	"github.com/mohamedkhairy/news-pipeline/internal/models"
	"github.com/mohamedkhairy/news-pipeline/internal/storage"
	"github.com/mohamedkhairy/news-pipeline/pkg/logger"
)

var (
	entriesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analyzer_entries_processed_total",
		Help: "Stream entries consumed by the analyzer, by outcome",
	}, []string{"outcome"}) // "analyzed", "already_stored", "skipped", "fallback"

	llmFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analyzer_llm_failures_total",
		Help: "LLM invocations that fell back to the neutral score",
	})

	emergencyHeadlines = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analyzer_emergency_headlines_total",
		Help: "Headlines carrying an emergency keyword",
	})
)

const (
	// NeutralScore is persisted when the provider fails; the reason
	// carries a recognizable marker for later backfill.
	NeutralScore  = 50
	neutralReason = "분석 불가 — 기본 중립"

	resultSource = "ANALYZER"

	promptFormat = "다음 한국 주식 뉴스의 감성을 분석하세요.\n" +
		"종목코드: %s\n" +
		"헤드라인: %s\n\n" +
		"score(0-100, 50=중립)와 reason(한국어 1문장)을 JSON으로 반환."
)

// sentimentSchema constrains the provider to the result shape.
var sentimentSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"score":  map[string]interface{}{"type": "integer", "minimum": 0, "maximum": 100},
		"reason": map[string]interface{}{"type": "string"},
	},
	"required": []string{"score", "reason"},
}

// Analyzer is consumer group_analyzer / analyzer_1.
type Analyzer struct {
	bus       bus.Bus
	llm       llm.SentimentLLM
	store     storage.SentimentStore
	emergency []string
}

// New creates an analyzer.
func New(b bus.Bus, provider llm.SentimentLLM, store storage.SentimentStore, emergencyKeywords []string) *Analyzer {
	return &Analyzer{bus: b, llm: provider, store: store, emergency: emergencyKeywords}
}

// RunOnce drains pending entries for this consumer, then consumes new
// entries until the budget is spent or the stream runs dry. Returns the
// number of entries consumed (and acked).
func (a *Analyzer) RunOnce(ctx context.Context, budget int) (int, error) {
	if err := a.bus.EnsureGroup(ctx, bus.GroupAnalyzer); err != nil {
		return 0, fmt.Errorf("analyzer: %w", err)
	}

	processed := a.drainPending(ctx)

	for processed < budget {
		entries, err := a.bus.ReadNew(ctx, bus.GroupAnalyzer, bus.ConsumerAnalyzer, 1, bus.DefaultBlock)
		if err != nil {
			return processed, fmt.Errorf("analyzer: read new: %w", err)
		}
		if len(entries) == 0 {
			break
		}
		for _, e := range entries {
			a.consume(ctx, e)
			processed++
		}
	}

	return processed, nil
}

// drainPending replays entries delivered to this consumer before a crash.
// Replays are cheap: URLs already in the store skip the LLM entirely.
func (a *Analyzer) drainPending(ctx context.Context) int {
	count := 0
	for {
		entries, err := a.bus.ReadPending(ctx, bus.GroupAnalyzer, bus.ConsumerAnalyzer, 10)
		if err != nil {
			logger.Warn("Failed to read pending entries",
				logger.ErrorField(err),
			)
			return count
		}
		if len(entries) == 0 {
			return count
		}
		for _, e := range entries {
			a.consume(ctx, e)
			count++
		}
	}
}

// consume processes one entry and always acks it.
func (a *Analyzer) consume(ctx context.Context, e bus.Entry) {
	defer func() {
		if err := a.bus.Ack(ctx, bus.GroupAnalyzer, e.ID); err != nil {
			logger.Warn("Failed to ack entry",
				logger.ErrorField(err),
				logger.String("entry_id", e.ID),
			)
		}
	}()

	article := models.ArticleFromValues(e.Values)
	if article.Headline == "" || article.StockCode == "" {
		entriesProcessed.WithLabelValues("skipped").Inc()
		return
	}

	// Idempotency gate: never spend LLM budget on a URL already scored.
	exists, err := a.store.Exists(ctx, article.ArticleURL)
	if err != nil {
		logger.Warn("Sentiment store probe failed",
			logger.ErrorField(err),
			logger.String("article_url", article.ArticleURL),
		)
	}
	if exists {
		entriesProcessed.WithLabelValues("already_stored").Inc()
		return
	}

	isEmergency := a.isEmergency(article.Headline)
	if isEmergency {
		emergencyHeadlines.Inc()
	}

	score, reason, fellBack := a.score(ctx, article)

	result := models.SentimentResult{
		StockCode:   article.StockCode,
		NewsDate:    article.PublishedAt,
		Press:       article.Press,
		Headline:    article.Headline,
		Score:       score,
		Reason:      reason,
		ArticleURL:  article.ArticleURL,
		PublishedAt: article.PublishedAt,
		Source:      resultSource,
		Emergency:   isEmergency,
	}

	if err := a.store.Save(ctx, result); err != nil {
		// Accepted loss: the entry is acked regardless, because
		// rewinding the cursor would block everything behind it.
		logger.Warn("Failed to persist sentiment",
			logger.ErrorField(err),
			logger.String("stock_code", article.StockCode),
			logger.String("article_url", article.ArticleURL),
		)
		return
	}

	if fellBack {
		entriesProcessed.WithLabelValues("fallback").Inc()
	} else {
		entriesProcessed.WithLabelValues("analyzed").Inc()
	}
}

// score invokes the LLM, substituting the neutral fallback on any provider
// failure or malformed output.
func (a *Analyzer) score(ctx context.Context, article models.Article) (score int, reason string, fellBack bool) {
	prompt := fmt.Sprintf(promptFormat, article.StockCode, article.Headline)

	out, err := a.llm.GenerateJSON(ctx, prompt, sentimentSchema)
	if err != nil {
		llmFailures.Inc()
		logger.Debug("Sentiment LLM failed, using neutral fallback",
			logger.ErrorField(err),
			logger.String("stock_code", article.StockCode),
		)
		return NeutralScore, neutralReason, true
	}

	rawScore, ok := out["score"].(float64)
	if !ok {
		llmFailures.Inc()
		return NeutralScore, neutralReason, true
	}

	score = int(rawScore)
	if score < 0 {
		score = 0
	} else if score > 100 {
		score = 100
	}

	reason, _ = out["reason"].(string)
	return score, reason, false
}

func (a *Analyzer) isEmergency(headline string) bool {
	for _, kw := range a.emergency {
		if strings.Contains(headline, kw) {
			return true
		}
	}
	return false
}
