package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the news pipeline daemon.
type Config struct {
	Environment string
	LogLevel    string

	Redis    RedisConfig
	Database DatabaseConfig
	Crawler  CrawlerConfig
	Pipeline PipelineConfig
	LLM      LLMConfig
	Vector   VectorConfig
	HTTP     HTTPConfig
}

// RedisConfig holds Redis connection settings (stream bus + dedup sets).
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
}

// DatabaseConfig holds Postgres settings for the sentiment store and the
// stock universe.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxConnections  int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// CrawlerConfig tunes the upstream news index fetch.
type CrawlerConfig struct {
	BaseURL      string
	UserAgent    string
	MaxPages     int
	RequestDelay time.Duration
	HTTPTimeout  time.Duration
}

// PipelineConfig tunes the orchestration loop and per-phase budgets. The
// noise and emergency keyword lists live here as data so they can be tuned
// without a deploy.
type PipelineConfig struct {
	MarketInterval      time.Duration // cadence during market hours
	OffHoursInterval    time.Duration // cadence outside market hours
	ArchiveEveryN       int           // run the archiver every N cycles
	AnalyzeSlack        int           // analyzer budget = collected + slack
	ManualAnalyzeBudget int           // budget for the /analyze trigger
	ArchiveBudget       int
	ArchiveBatchSize    int
	NoiseKeywords       []string
	EmergencyKeywords   []string
}

// LLMConfig selects and tunes the sentiment provider.
type LLMConfig struct {
	Provider string // "anthropic" or "openai"
	APIKey   string
	Model    string
	BaseURL  string // OpenAI-compatible endpoint (local vLLM)
	Timeout  time.Duration
}

// VectorConfig holds the embedding server and vector store endpoints.
type VectorConfig struct {
	QdrantURL    string
	EmbedURL     string
	EmbedModel   string
	Collection   string
	ChunkSize    int
	ChunkOverlap int
	HTTPTimeout  time.Duration
}

// HTTPConfig holds the trigger/status API settings.
type HTTPConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	JWTSecret       string // empty disables trigger auth
}

// Curated headline keyword defaults. Noise keywords drop short-lived
// market-colour headlines before publish; emergency keywords surface a
// breaking-news flag on analyzed articles.
var (
	defaultNoiseKeywords = []string{
		"특징주",
		"장중 수급",
		"개장시황",
		"마감시황",
		"오전장 특징",
		"오후장 특징",
		"상승 출발",
		"하락 출발",
		"상한가 포착",
		"급등주 포착",
		"Top Movers",
	}

	defaultEmergencyKeywords = []string{
		"속보",
		"긴급",
		"전쟁",
		"관세",
		"Emergency",
		"Breaking",
		"파병",
		"계엄",
		"공습",
		"폭격",
	}
)

// Load loads configuration from environment variables, reading a .env file
// first when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		Redis: RedisConfig{
			Host:         getEnv("REDIS_HOST", "localhost"),
			Port:         getEnvAsInt("REDIS_PORT", 6379),
			Password:     getEnv("REDIS_PASSWORD", ""),
			DB:           getEnvAsInt("REDIS_DB", 0),
			PoolSize:     getEnvAsInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvAsInt("REDIS_MIN_IDLE_CONNS", 5),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", "postgres"),
			Database:        getEnv("DB_NAME", "news_pipeline"),
			SSLMode:         getEnv("DB_SSL_MODE", "disable"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 10),
			MaxIdleConns:    getEnvAsInt("DB_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: getEnvAsDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Crawler: CrawlerConfig{
			BaseURL:      getEnv("CRAWLER_BASE_URL", "https://finance.naver.com"),
			UserAgent:    getEnv("CRAWLER_USER_AGENT", defaultUserAgent),
			MaxPages:     getEnvAsInt("CRAWLER_MAX_PAGES", 2),
			RequestDelay: getEnvAsDuration("CRAWLER_REQUEST_DELAY", 300*time.Millisecond),
			HTTPTimeout:  getEnvAsDuration("CRAWLER_HTTP_TIMEOUT", 10*time.Second),
		},
		Pipeline: PipelineConfig{
			MarketInterval:      getEnvAsDuration("PIPELINE_MARKET_INTERVAL", 10*time.Minute),
			OffHoursInterval:    getEnvAsDuration("PIPELINE_OFF_HOURS_INTERVAL", 30*time.Minute),
			ArchiveEveryN:       getEnvAsInt("PIPELINE_ARCHIVE_EVERY_N", 3),
			AnalyzeSlack:        getEnvAsInt("PIPELINE_ANALYZE_SLACK", 50),
			ManualAnalyzeBudget: getEnvAsInt("PIPELINE_MANUAL_ANALYZE_BUDGET", 500),
			ArchiveBudget:       getEnvAsInt("PIPELINE_ARCHIVE_BUDGET", 1000),
			ArchiveBatchSize:    getEnvAsInt("PIPELINE_ARCHIVE_BATCH_SIZE", 20),
			NoiseKeywords:       getEnvAsStringSlice("PIPELINE_NOISE_KEYWORDS", defaultNoiseKeywords),
			EmergencyKeywords:   getEnvAsStringSlice("PIPELINE_EMERGENCY_KEYWORDS", defaultEmergencyKeywords),
		},
		LLM: LLMConfig{
			Provider: getEnv("LLM_PROVIDER", "openai"),
			APIKey:   getEnv("LLM_API_KEY", ""),
			Model:    getEnv("LLM_MODEL", ""),
			BaseURL:  getEnv("LLM_BASE_URL", "http://localhost:8001/v1"),
			Timeout:  getEnvAsDuration("LLM_TIMEOUT", 2*time.Minute),
		},
		Vector: VectorConfig{
			QdrantURL:    getEnv("QDRANT_URL", "http://localhost:6333"),
			EmbedURL:     getEnv("EMBED_URL", "http://localhost:8002/v1"),
			EmbedModel:   getEnv("EMBED_MODEL", "nlpai-lab/KURE-v1"),
			Collection:   getEnv("VECTOR_COLLECTION", "rag_stock_data"),
			ChunkSize:    getEnvAsInt("VECTOR_CHUNK_SIZE", 500),
			ChunkOverlap: getEnvAsInt("VECTOR_CHUNK_OVERLAP", 50),
			HTTPTimeout:  getEnvAsDuration("VECTOR_HTTP_TIMEOUT", 30*time.Second),
		},
		HTTP: HTTPConfig{
			Port:            getEnvAsInt("HTTP_PORT", 8094),
			ShutdownTimeout: getEnvAsDuration("HTTP_SHUTDOWN_TIMEOUT", 10*time.Second),
			JWTSecret:       getEnv("HTTP_JWT_SECRET", ""),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) " +
	"AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Redis.Host == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Crawler.MaxPages < 1 {
		return fmt.Errorf("CRAWLER_MAX_PAGES must be at least 1")
	}
	if c.Pipeline.ArchiveEveryN < 1 {
		return fmt.Errorf("PIPELINE_ARCHIVE_EVERY_N must be at least 1")
	}
	if c.LLM.Provider != "openai" && c.LLM.Provider != "anthropic" {
		return fmt.Errorf("LLM_PROVIDER must be 'openai' or 'anthropic', got %q", c.LLM.Provider)
	}
	if c.LLM.Provider == "anthropic" && c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required for the anthropic provider")
	}
	if c.Vector.ChunkOverlap >= c.Vector.ChunkSize {
		return fmt.Errorf("VECTOR_CHUNK_OVERLAP must be smaller than VECTOR_CHUNK_SIZE")
	}
	return nil
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return duration
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	if len(result) == 0 {
		return defaultValue
	}
	return result
}
