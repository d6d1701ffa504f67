// Package archiver is the vector-archive consumer group. It mirrors raw
// news entries into the vector store for retrieval, independent of the
// analyzer: both groups read the same stream through their own cursors.
package archiver

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohamedkhairy/news-pipeline/internal/bus"
	"github.com/mohamedkhairy/news-pipeline/internal/models"
	"github.com/mohamedkhairy/news-pipeline/internal/vector"
	"github.com/mohamedkhairy/news-pipeline/pkg/logger"
)

var (
	entriesArchived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "archiver_entries_total",
		Help: "Stream entries consumed by the archiver, by outcome",
	}, []string{"outcome"}) // "archived", "failed", "skipped"

	sinkUnavailable = promauto.NewCounter(prometheus.CounterOpts{
		Name: "archiver_sink_unavailable_total",
		Help: "Cycles skipped because the vector sink could not be initialized",
	})
)

// DefaultBatchSize is how many entries are read per XREADGROUP call when
// the configured batch size is unset.
const DefaultBatchSize = 20

// SinkFactory builds a vector sink on demand. It fails while the embedding
// server is down, which is why construction is deferred to the first run.
type SinkFactory func(ctx context.Context) (vector.Sink, error)

// Archiver is consumer group_archiver / archiver_1.
type Archiver struct {
	bus       bus.Bus
	newSink   SinkFactory
	sink      vector.Sink
	splitter  *ChunkSplitter
	batchSize int
}

// New creates an archiver. The sink is built lazily on the first RunOnce.
func New(b bus.Bus, factory SinkFactory, splitter *ChunkSplitter, batchSize int) *Archiver {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Archiver{bus: b, newSink: factory, splitter: splitter, batchSize: batchSize}
}

// RunOnce archives up to budget entries. When the sink cannot be
// initialized it returns 0 without consuming anything: the group cursor
// does not move, so nothing is lost while the embedding server is down.
func (a *Archiver) RunOnce(ctx context.Context, budget int) (int, error) {
	if a.sink == nil {
		sink, err := a.newSink(ctx)
		if err != nil {
			sinkUnavailable.Inc()
			logger.Warn("Vector sink unavailable, skipping archive cycle",
				logger.ErrorField(err),
			)
			return 0, nil
		}
		a.sink = sink
	}

	if err := a.bus.EnsureGroup(ctx, bus.GroupArchiver); err != nil {
		return 0, fmt.Errorf("archiver: %w", err)
	}

	processed := a.drainPending(ctx)

	for processed < budget {
		entries, err := a.bus.ReadNew(ctx, bus.GroupArchiver, bus.ConsumerArchiver, a.batchSize, bus.DefaultBlock)
		if err != nil {
			return processed, fmt.Errorf("archiver: read new: %w", err)
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

func (a *Archiver) drainPending(ctx context.Context) int {
	count := 0
	for {
		entries, err := a.bus.ReadPending(ctx, bus.GroupArchiver, bus.ConsumerArchiver, a.batchSize)
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

// consume archives one entry and always acks it. A failed upsert is logged
// and dropped; replaying it would stall the whole group behind one bad
// document.
func (a *Archiver) consume(ctx context.Context, e bus.Entry) {
	defer func() {
		if err := a.bus.Ack(ctx, bus.GroupArchiver, e.ID); err != nil {
			logger.Warn("Failed to ack entry",
				logger.ErrorField(err),
				logger.String("entry_id", e.ID),
			)
		}
	}()

	article := models.ArticleFromValues(e.Values)
	if article.Headline == "" || article.StockCode == "" {
		entriesArchived.WithLabelValues("skipped").Inc()
		return
	}

	content := fmt.Sprintf("[%s] %s", article.StockCode, article.Headline)
	chunks := a.splitter.Split(content)
	docs := make([]vector.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = vector.Document{
			Content: chunk,
			Metadata: map[string]interface{}{
				"stock_code":  article.StockCode,
				"source_url":  article.ArticleURL,
				"source":      article.Source,
				"chunk_index": i,
			},
		}
	}

	if err := a.sink.Add(ctx, docs); err != nil {
		entriesArchived.WithLabelValues("failed").Inc()
		logger.Warn("Failed to archive entry",
			logger.ErrorField(err),
			logger.String("stock_code", article.StockCode),
			logger.String("article_url", article.ArticleURL),
		)
		return
	}

	entriesArchived.WithLabelValues("archived").Inc()
}
