package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/mohamedkhairy/news-pipeline/internal/config"
	"github.com/mohamedkhairy/news-pipeline/internal/models"
	"github.com/mohamedkhairy/news-pipeline/pkg/logger"
)

var (
	sentimentWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sentiment_store_writes_total",
		Help: "Sentiment rows written, by outcome",
	}, []string{"status"}) // "inserted", "duplicate", "error"

	existsQueries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sentiment_store_exists_queries_total",
		Help: "Idempotency probes against the sentiment store",
	})
)

// PostgresStore implements SentimentStore and UniverseSource on Postgres.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to Postgres and verifies the connection.
func NewPostgresStore(cfg config.DatabaseConfig) (*PostgresStore, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Connected to Postgres",
		logger.String("host", cfg.Host),
		logger.String("database", cfg.Database),
	)
	return &PostgresStore{db: db}, nil
}

// Exists reports whether a sentiment row for the URL is already present.
func (s *PostgresStore) Exists(ctx context.Context, articleURL string) (bool, error) {
	existsQueries.Inc()

	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM stock_news_sentiment WHERE article_url = $1 LIMIT 1`,
		articleURL,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to probe sentiment store: %w", err)
	}
	return true, nil
}

// Save upserts a sentiment result. The unique constraint on article_url
// makes replays no-ops.
func (s *PostgresStore) Save(ctx context.Context, result models.SentimentResult) error {
	r := result.Truncated()
	if err := r.Validate(); err != nil {
		sentimentWrites.WithLabelValues("error").Inc()
		return err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO stock_news_sentiment
			(stock_code, news_date, press, headline, sentiment_score,
			 sentiment_reason, article_url, published_at, source, emergency)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (article_url) DO NOTHING`,
		r.StockCode, r.NewsDate, r.Press, r.Headline, r.Score,
		r.Reason, r.ArticleURL, r.PublishedAt, r.Source, r.Emergency,
	)
	if err != nil {
		sentimentWrites.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to save sentiment: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		sentimentWrites.WithLabelValues("duplicate").Inc()
	} else {
		sentimentWrites.WithLabelValues("inserted").Inc()
	}
	return nil
}

// Active returns the active stock universe as a code -> name map.
func (s *PostgresStore) Active(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stock_code, stock_name FROM stock_master WHERE is_active`)
	if err != nil {
		return nil, fmt.Errorf("failed to load universe: %w", err)
	}
	defer rows.Close()

	universe := make(map[string]string)
	for rows.Next() {
		var code, name string
		if err := rows.Scan(&code, &name); err != nil {
			return nil, fmt.Errorf("failed to scan universe row: %w", err)
		}
		universe[code] = name
	}
	return universe, rows.Err()
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
