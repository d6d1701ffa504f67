package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/mohamedkhairy/news-pipeline/internal/analyzer"
	"github.com/mohamedkhairy/news-pipeline/internal/api"
	"github.com/mohamedkhairy/news-pipeline/internal/archiver"
	"github.com/mohamedkhairy/news-pipeline/internal/bus"
	"github.com/mohamedkhairy/news-pipeline/internal/collector"
	"github.com/mohamedkhairy/news-pipeline/internal/config"
	"github.com/mohamedkhairy/news-pipeline/internal/crawler"
	"github.com/mohamedkhairy/news-pipeline/internal/dedup"
	"github.com/mohamedkhairy/news-pipeline/internal/llm"
	"github.com/mohamedkhairy/news-pipeline/internal/orchestrator"
	"github.com/mohamedkhairy/news-pipeline/internal/storage"
	"github.com/mohamedkhairy/news-pipeline/internal/vector"
	"github.com/mohamedkhairy/news-pipeline/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	if err := logger.Init(cfg.LogLevel, cfg.Environment); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting news pipeline",
		logger.Int("port", cfg.HTTP.Port),
		logger.String("llm_provider", cfg.LLM.Provider),
		logger.Duration("market_interval", cfg.Pipeline.MarketInterval),
	)

	// Redis stream bus (also backs the dedup sets)
	streamBus, err := bus.NewRedisBus(cfg.Redis, bus.NewsStream, bus.NewsStreamMaxLen)
	if err != nil {
		logger.Fatal("Failed to connect to Redis",
			logger.ErrorField(err),
		)
	}
	defer streamBus.Close()

	// Postgres sentiment store, also the stock universe source
	store, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to Postgres",
			logger.ErrorField(err),
		)
	}
	defer store.Close()

	// Sentiment LLM provider
	provider, err := llm.New(cfg.LLM)
	if err != nil {
		logger.Fatal("Failed to initialize LLM provider",
			logger.ErrorField(err),
		)
	}

	// Pipeline stages
	fetcher := crawler.NewNaverFetcher(cfg.Crawler)
	noise := collector.NewNoiseFilter(cfg.Pipeline.NoiseKeywords)
	col := collector.New(streamBus, dedup.New(streamBus), fetcher, noise, cfg.Crawler.MaxPages)
	ana := analyzer.New(streamBus, provider, store, cfg.Pipeline.EmergencyKeywords)

	// The vector sink is built lazily: archive cycles are skipped, not
	// failed, while the embedding server is down.
	embedder := vector.NewOpenAIEmbedder(cfg.Vector)
	sinkFactory := func(ctx context.Context) (vector.Sink, error) {
		return vector.NewQdrantSink(ctx, cfg.Vector, embedder)
	}
	splitter := archiver.NewChunkSplitter(cfg.Vector.ChunkSize, cfg.Vector.ChunkOverlap)
	arc := archiver.New(streamBus, sinkFactory, splitter, cfg.Pipeline.ArchiveBatchSize)

	orch := orchestrator.New(store, col, ana, arc, cfg.Pipeline)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orch.Start(ctx)

	// HTTP trigger/status server
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler: api.NewRouter(orch, cfg.HTTP),
	}

	go func() {
		logger.Info("Starting HTTP server",
			logger.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start HTTP server",
				logger.ErrorField(err),
			)
		}
	}()

	// Graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down news pipeline")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server",
			logger.ErrorField(err),
		)
	}

	// Stop the scheduler loop before closing the connections it uses.
	orch.Stop()
	cancel()

	logger.Info("News pipeline stopped")
}
