package container

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	testutil "github.com/jinford/article-rag/internal/core/ingestion/testing"
	"github.com/jinford/article-rag/internal/infra/openai"
	"github.com/jinford/article-rag/pkg/config"
)

func testConfig() *config.Config {
	return &config.Config{
		Database: config.DatabaseConfig{Host: "db", Port: 5433, User: "rag", DBName: "rag", SSLMode: "disable", MaxConns: 7},
		OpenAI:   config.OpenAIConfig{EmbeddingModel: "text-embedding-3-small", EmbeddingDimension: 8},
		Ingest: config.IngestConfig{
			ChunkSize:        300,
			ChunkOverlap:     30,
			ChunkLookahead:   20,
			Workers:          2,
			EmbeddingTimeout: 5 * time.Second,
			PurgeStaleChunks: true,
		},
		Search: config.SearchConfig{TopK: 10},
	}
}

func TestNewContainerWithPool(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	embedder := testutil.NewStubEmbedder(8)

	c, err := NewContainerWithPool(testConfig(), nil,
		WithContainerEmbedder(embedder),
		WithContainerTokenCounter(testutil.FixedTokenCounter(1)),
		WithContainerLogger(logger),
	)

	require.NoError(t, err)
	assert.Same(t, embedder, c.Embedder)
	assert.NotNil(t, c.SearchService)
	assert.NotNil(t, c.Documents)
	assert.NotNil(t, c.Vectors)
	assert.NotNil(t, c.Transactions)
	assert.Same(t, logger, c.Logger())

	pc := c.Pipeline.Config()
	assert.Equal(t, 300, pc.ChunkSize)
	assert.Equal(t, 30, pc.ChunkOverlap)
	assert.Equal(t, 20, pc.ChunkLookahead)
	assert.Equal(t, 2, pc.EmbeddingWorkerCount)
	assert.Equal(t, 5*time.Second, pc.EmbeddingTimeout)
	assert.True(t, pc.PurgeStaleChunks)
}

func TestNewContainerWithPool_Errors(t *testing.T) {
	t.Run("APIキー未設定", func(t *testing.T) {
		_, err := NewContainerWithPool(testConfig(), nil, WithContainerTokenCounter(testutil.FixedTokenCounter(1)))

		assert.ErrorIs(t, err, openai.ErrAPIKeyNotSet)
	})

	t.Run("チャンク設定が不正", func(t *testing.T) {
		cfg := testConfig()
		cfg.Ingest.ChunkOverlap = cfg.Ingest.ChunkSize

		_, err := NewContainerWithPool(cfg, nil,
			WithContainerEmbedder(testutil.NewStubEmbedder(8)),
			WithContainerTokenCounter(testutil.FixedTokenCounter(1)),
		)

		assert.Error(t, err)
	})
}

func TestConnectionParams(t *testing.T) {
	params := ConnectionParams(testConfig())

	assert.Equal(t, "db", params.Host)
	assert.Equal(t, 5433, params.Port)
	assert.Equal(t, int32(7), params.MaxConns)
	assert.Contains(t, params.DSN(), "host=db port=5433")

	cfg := testConfig()
	cfg.Database.URL = "postgres://u:p@h/d"
	assert.Equal(t, "postgres://u:p@h/d", ConnectionParams(cfg).DSN())
}

func TestServiceContainer_NilSafe(t *testing.T) {
	var c *ServiceContainer

	c.Close()
	assert.NotNil(t, c.Logger())
}
