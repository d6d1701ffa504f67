// Package collector drives the per-ticker fan-out fetch and publishes novel
// articles onto the news stream.
package collector

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohamedkhairy/news-pipeline/internal/bus"
	"github.com/mohamedkhairy/news-pipeline/internal/crawler"
	"github.com/mohamedkhairy/news-pipeline/internal/dedup"
	"github.com/mohamedkhairy/news-pipeline/pkg/logger"
)

var (
	articlesCrawled = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collector_articles_crawled_total",
		Help: "Total articles yielded by the upstream crawl",
	})

	articlesDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "collector_articles_dropped_total",
		Help: "Articles dropped before publish",
	}, []string{"reason"}) // "noise", "duplicate", "invalid"

	articlesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collector_articles_published_total",
		Help: "Articles published to the news stream",
	})

	publishErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collector_publish_errors_total",
		Help: "Failed batch publishes (ticker batches lost this cycle)",
	})

	tickerErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "collector_ticker_errors_total",
		Help: "Tickers skipped due to crawl failure",
	})
)

// Collector crawls every ticker in the universe, deduplicates, and fans the
// remainder onto the bus in one pipelined batch per ticker.
type Collector struct {
	bus      bus.Bus
	dedup    *dedup.Deduplicator
	fetcher  crawler.NewsFetcher
	noise    *NoiseFilter
	maxPages int
}

// New creates a collector.
func New(b bus.Bus, d *dedup.Deduplicator, f crawler.NewsFetcher, noise *NoiseFilter, maxPages int) *Collector {
	return &Collector{bus: b, dedup: d, fetcher: f, noise: noise, maxPages: maxPages}
}

// RunOnce crawls the whole universe once and returns the number of articles
// published. Ticker failures are isolated: a failed fetch or publish loses
// only that ticker's batch. The dedup mark happens before publish, so a
// lost batch stays suppressed until its window entry expires.
func (c *Collector) RunOnce(ctx context.Context, universe map[string]string) int {
	total := 0

	for code, name := range universe {
		select {
		case <-ctx.Done():
			return total
		default:
		}

		articles, err := c.fetcher.Crawl(ctx, code, name, c.maxPages)
		if err != nil {
			tickerErrors.Inc()
			logger.Warn("Crawl failed, skipping ticker",
				logger.ErrorField(err),
				logger.String("stock_code", code),
			)
			continue
		}
		articlesCrawled.Add(float64(len(articles)))

		batch := make([]map[string]interface{}, 0, len(articles))
		for _, a := range articles {
			if err := a.Validate(); err != nil {
				articlesDropped.WithLabelValues("invalid").Inc()
				logger.Debug("Dropping invalid article",
					logger.ErrorField(err),
					logger.String("stock_code", code),
				)
				continue
			}
			if c.noise.IsNoise(a.Headline) {
				articlesDropped.WithLabelValues("noise").Inc()
				continue
			}
			if !c.dedup.IsNew(ctx, a.ArticleURL) {
				articlesDropped.WithLabelValues("duplicate").Inc()
				continue
			}
			batch = append(batch, a.StreamValues())
		}

		if len(batch) == 0 {
			continue
		}

		if err := c.bus.PublishBatch(ctx, batch); err != nil {
			publishErrors.Inc()
			logger.Warn("Batch publish failed, losing ticker batch this cycle",
				logger.ErrorField(err),
				logger.String("stock_code", code),
				logger.Int("batch_size", len(batch)),
			)
			continue
		}

		articlesPublished.Add(float64(len(batch)))
		total += len(batch)
	}

	logger.Info("News collector finished",
		logger.Int("published", total),
		logger.Int("universe_size", len(universe)),
	)
	return total
}
