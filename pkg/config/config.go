package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config はアプリケーション全体の設定を保持します
type Config struct {
	// Database設定
	Database DatabaseConfig

	// OpenAI設定（Embeddings用）
	OpenAI OpenAIConfig

	// 取り込みパイプライン設定
	Ingest IngestConfig

	// 検索設定
	Search SearchConfig

	// Gmail設定
	Gmail GmailConfig

	// ログ設定
	Log LogConfig
}

// DatabaseConfig はデータベース接続設定
type DatabaseConfig struct {
	// URL（DATABASE_URL）が設定されている場合は個別パラメータより優先
	URL      string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
}

// OpenAIConfig はOpenAI API設定
type OpenAIConfig struct {
	APIKey             string
	EmbeddingModel     string
	EmbeddingDimension int
	// BaseURL は互換APIを使う場合のみ設定
	BaseURL string
}

// IngestConfig はチャンク分割とEmbedding呼び出しの設定
type IngestConfig struct {
	ChunkSize        int
	ChunkOverlap     int
	ChunkLookahead   int
	Workers          int
	EmbeddingTimeout time.Duration
	PurgeStaleChunks bool
}

// SearchConfig は検索設定
type SearchConfig struct {
	TopK int
}

// GmailConfig はGmail取り込み設定
type GmailConfig struct {
	TokenFile       string
	CredentialsFile string
	User            string
	Query           string
	MaxResults      int
}

// LogConfig はログ設定
type LogConfig struct {
	Level  string
	Format string
}

// Load は環境変数または.envファイルから設定を読み込みます
func Load(envFilePath string) (*Config, error) {
	// .envファイルが存在する場合は読み込む
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			// ファイルが存在しない場合はエラーとしない（環境変数のみで動作可能）
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to load .env file: %w", err)
			}
		}
	}

	embeddingTimeout, err := getEnvAsDuration("EMBEDDING_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "rag"),
			Password: getEnv("DB_PASSWORD", ""),
			DBName:   getEnv("DB_NAME", "article_rag"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: getEnvAsInt("DB_MAX_CONNS", 10),
		},
		OpenAI: OpenAIConfig{
			APIKey:             getEnv("OPENAI_API_KEY", ""),
			EmbeddingModel:     getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),
			EmbeddingDimension: getEnvAsInt("OPENAI_EMBEDDING_DIMENSION", 1536),
			BaseURL:            getEnv("OPENAI_BASE_URL", ""),
		},
		Ingest: IngestConfig{
			ChunkSize:        getEnvAsInt("CHUNK_SIZE", 1000),
			ChunkOverlap:     getEnvAsInt("CHUNK_OVERLAP", 200),
			ChunkLookahead:   getEnvAsInt("CHUNK_LOOKAHEAD", 100),
			Workers:          getEnvAsInt("EMBEDDING_WORKERS", 4),
			EmbeddingTimeout: embeddingTimeout,
			PurgeStaleChunks: getEnvAsBool("INGEST_PURGE_STALE_CHUNKS", false),
		},
		Search: SearchConfig{
			TopK: getEnvAsInt("SEARCH_TOP_K", 10),
		},
		Gmail: GmailConfig{
			TokenFile:       getEnv("GMAIL_TOKEN_FILE", "token.json"),
			CredentialsFile: getEnv("GMAIL_CREDENTIALS_FILE", "credentials.json"),
			User:            getEnv("GMAIL_USER", "me"),
			Query:           getEnv("GMAIL_QUERY", ""),
			MaxResults:      getEnvAsInt("GMAIL_MAX_RESULTS", 10),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

// Validate は処理を始める前に検出すべき設定エラーをまとめて返します
func (c *Config) Validate() error {
	var errs []error

	if strings.TrimSpace(c.OpenAI.APIKey) == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is not set"))
	}
	if c.OpenAI.EmbeddingDimension <= 0 || c.OpenAI.EmbeddingDimension > 2000 {
		errs = append(errs, fmt.Errorf("OPENAI_EMBEDDING_DIMENSION must be in 1..2000 (got %d)", c.OpenAI.EmbeddingDimension))
	}
	if c.Ingest.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be > 0 (got %d)", c.Ingest.ChunkSize))
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must satisfy 0 <= overlap < CHUNK_SIZE (got %d)", c.Ingest.ChunkOverlap))
	}
	if c.Ingest.Workers <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_WORKERS must be > 0 (got %d)", c.Ingest.Workers))
	}
	if c.Search.TopK <= 0 {
		errs = append(errs, fmt.Errorf("SEARCH_TOP_K must be > 0 (got %d)", c.Search.TopK))
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or text (got %q)", c.Log.Format))
	}

	return errors.Join(errs...)
}

// getEnv は環境変数を取得し、存在しない場合はデフォルト値を返します
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt は環境変数を整数として取得します
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsBool は環境変数を真偽値として取得します
func getEnvAsBool(key string, defaultValue bool) bool {
	value, err := strconv.ParseBool(os.Getenv(key))
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration は "30s" 形式の期間を取得します。形式が不正な場合はエラー
func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return value, nil
}
