package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configKeys = []string{
	"DATABASE_URL", "DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME", "DB_SSLMODE", "DB_MAX_CONNS",
	"OPENAI_API_KEY", "OPENAI_EMBEDDING_MODEL", "OPENAI_EMBEDDING_DIMENSION", "OPENAI_BASE_URL",
	"CHUNK_SIZE", "CHUNK_OVERLAP", "CHUNK_LOOKAHEAD", "EMBEDDING_WORKERS", "EMBEDDING_TIMEOUT",
	"INGEST_PURGE_STALE_CHUNKS", "SEARCH_TOP_K",
	"GMAIL_TOKEN_FILE", "GMAIL_CREDENTIALS_FILE", "GMAIL_USER", "GMAIL_QUERY", "GMAIL_MAX_RESULTS",
	"LOG_LEVEL", "LOG_FORMAT",
}

// clearEnv はテスト中だけ設定関連の環境変数を空にする
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range configKeys {
		t.Setenv(key, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load("")

	require.NoError(t, err)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "text-embedding-3-small", cfg.OpenAI.EmbeddingModel)
	assert.Equal(t, 1536, cfg.OpenAI.EmbeddingDimension)
	assert.Equal(t, IngestConfig{
		ChunkSize:        1000,
		ChunkOverlap:     200,
		ChunkLookahead:   100,
		Workers:          4,
		EmbeddingTimeout: 30 * time.Second,
		PurgeStaleChunks: false,
	}, cfg.Ingest)
	assert.Equal(t, 10, cfg.Search.TopK)
	assert.Equal(t, "me", cfg.Gmail.User)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	// godotenv は既存の環境変数を上書きしないため、対象キーは未設定にしておく
	for _, key := range []string{"OPENAI_API_KEY", "CHUNK_SIZE", "INGEST_PURGE_STALE_CHUNKS", "EMBEDDING_TIMEOUT", "DATABASE_URL"} {
		require.NoError(t, os.Unsetenv(key))
	}
	t.Cleanup(func() {
		for _, key := range []string{"OPENAI_API_KEY", "CHUNK_SIZE", "INGEST_PURGE_STALE_CHUNKS", "EMBEDDING_TIMEOUT", "DATABASE_URL"} {
			_ = os.Unsetenv(key)
		}
	})

	path := filepath.Join(t.TempDir(), ".env")
	content := "OPENAI_API_KEY=sk-test\nCHUNK_SIZE=500\nINGEST_PURGE_STALE_CHUNKS=true\nEMBEDDING_TIMEOUT=5s\nDATABASE_URL=postgres://u:p@db/x\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)

	require.NoError(t, err)
	assert.Equal(t, "sk-test", cfg.OpenAI.APIKey)
	assert.Equal(t, 500, cfg.Ingest.ChunkSize)
	assert.True(t, cfg.Ingest.PurgeStaleChunks)
	assert.Equal(t, 5*time.Second, cfg.Ingest.EmbeddingTimeout)
	assert.Equal(t, "postgres://u:p@db/x", cfg.Database.URL)
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))

	assert.NoError(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	clearEnv(t)
	t.Setenv("EMBEDDING_TIMEOUT", "soon")

	_, err := Load("")

	assert.ErrorContains(t, err, "EMBEDDING_TIMEOUT")
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			OpenAI: OpenAIConfig{APIKey: "sk-test", EmbeddingDimension: 1536},
			Ingest: IngestConfig{ChunkSize: 1000, ChunkOverlap: 200, Workers: 4},
			Search: SearchConfig{TopK: 10},
			Log:    LogConfig{Format: "json"},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"正常", func(*Config) {}, ""},
		{"APIキー未設定", func(c *Config) { c.OpenAI.APIKey = " " }, "OPENAI_API_KEY"},
		{"次元が大きすぎる", func(c *Config) { c.OpenAI.EmbeddingDimension = 3072 }, "OPENAI_EMBEDDING_DIMENSION"},
		{"チャンクサイズ0", func(c *Config) { c.Ingest.ChunkSize = 0 }, "CHUNK_SIZE"},
		{"オーバーラップがサイズ以上", func(c *Config) { c.Ingest.ChunkOverlap = 1000 }, "CHUNK_OVERLAP"},
		{"ワーカー数0", func(c *Config) { c.Ingest.Workers = 0 }, "EMBEDDING_WORKERS"},
		{"TopK0", func(c *Config) { c.Search.TopK = 0 }, "SEARCH_TOP_K"},
		{"不明なログ形式", func(c *Config) { c.Log.Format = "xml" }, "LOG_FORMAT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}
