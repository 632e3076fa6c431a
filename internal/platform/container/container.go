package container

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	coreingestion "github.com/jinford/article-rag/internal/core/ingestion"
	coresearch "github.com/jinford/article-rag/internal/core/search"
	"github.com/jinford/article-rag/internal/infra/openai"
	"github.com/jinford/article-rag/internal/infra/postgres"
	"github.com/jinford/article-rag/internal/platform/database"
	"github.com/jinford/article-rag/pkg/config"
)

// ServiceContainer はコマンドが使うサービスとリポジトリを保持する
type ServiceContainer struct {
	Pipeline      *coreingestion.Pipeline
	SearchService *coresearch.SearchService
	Documents     *postgres.DocumentRepository
	Vectors       *postgres.VectorRepository
	Transactions  *database.TransactionProvider
	Embedder      coreingestion.Embedder

	logger *slog.Logger
	pool   *pgxpool.Pool
}

type containerOptions struct {
	logger       *slog.Logger
	embedder     coreingestion.Embedder
	tokenCounter coreingestion.TokenCounter
}

// ContainerOption は ServiceContainer 構築時のオプション
type ContainerOption func(*containerOptions)

// WithContainerLogger はロガーを差し替える
func WithContainerLogger(logger *slog.Logger) ContainerOption {
	return func(opts *containerOptions) {
		opts.logger = logger
	}
}

// WithContainerEmbedder はカスタム Embedder を注入する
func WithContainerEmbedder(embedder coreingestion.Embedder) ContainerOption {
	return func(opts *containerOptions) {
		opts.embedder = embedder
	}
}

// WithContainerTokenCounter は TokenCounter を差し替える
func WithContainerTokenCounter(counter coreingestion.TokenCounter) ContainerOption {
	return func(opts *containerOptions) {
		opts.tokenCounter = counter
	}
}

// NewContainer は設定から接続プールを開き、コンテナを生成する。
func NewContainer(ctx context.Context, cfg *config.Config, opts ...ContainerOption) (*ServiceContainer, error) {
	pool, err := database.Open(ctx, ConnectionParams(cfg))
	if err != nil {
		return nil, fmt.Errorf("データベース初期化に失敗しました: %w", err)
	}

	c, err := NewContainerWithPool(cfg, pool, opts...)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return c, nil
}

// ConnectionParams は設定から接続パラメータを組み立てる
func ConnectionParams(cfg *config.Config) database.ConnectionParams {
	return database.ConnectionParams{
		URL:      cfg.Database.URL,
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		User:     cfg.Database.User,
		Password: cfg.Database.Password,
		DBName:   cfg.Database.DBName,
		SSLMode:  cfg.Database.SSLMode,
		MaxConns: int32(cfg.Database.MaxConns),
	}
}

// NewContainerWithPool は既存の接続プールを受け取りコンテナを生成する。
func NewContainerWithPool(cfg *config.Config, pool *pgxpool.Pool, opts ...ContainerOption) (*ServiceContainer, error) {
	options := containerOptions{logger: slog.Default()}
	for _, opt := range opts {
		opt(&options)
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	// Embedder (OpenAI)
	embedder := options.embedder
	if embedder == nil {
		openaiEmbedder, err := openai.NewEmbedder(
			cfg.OpenAI.APIKey,
			openai.WithEmbeddingModel(cfg.OpenAI.EmbeddingModel),
			openai.WithEmbeddingDimension(cfg.OpenAI.EmbeddingDimension),
			openai.WithEmbeddingBaseURL(cfg.OpenAI.BaseURL),
		)
		if err != nil {
			return nil, fmt.Errorf("Embedder 初期化に失敗しました: %w", err)
		}
		embedder = openaiEmbedder
	}

	// TokenCounter (tiktoken)
	tokenCounter := options.tokenCounter
	if tokenCounter == nil {
		counter, err := openai.NewTokenCounter()
		if err != nil {
			return nil, fmt.Errorf("TokenCounter 初期化に失敗しました: %w", err)
		}
		tokenCounter = counter
	}

	options.logger.Debug("Embedder を初期化しました", "model", embedder.ModelName(), "dimension", embedder.Dimension())

	// Repository (PostgreSQL)
	documents := postgres.NewDocumentRepository(pool)
	vectors := postgres.NewVectorRepository(pool, postgres.WithVectorDimension(embedder.Dimension()))

	// Pipeline
	pipelineConfig := coreingestion.DefaultPipelineConfig()
	pipelineConfig.ChunkSize = cfg.Ingest.ChunkSize
	pipelineConfig.ChunkOverlap = cfg.Ingest.ChunkOverlap
	pipelineConfig.ChunkLookahead = cfg.Ingest.ChunkLookahead
	pipelineConfig.EmbeddingWorkerCount = cfg.Ingest.Workers
	pipelineConfig.PurgeStaleChunks = cfg.Ingest.PurgeStaleChunks
	if cfg.Ingest.EmbeddingTimeout > 0 {
		pipelineConfig.EmbeddingTimeout = cfg.Ingest.EmbeddingTimeout
	}

	pipeline, err := coreingestion.NewPipeline(documents, vectors, embedder,
		coreingestion.WithPipelineConfig(pipelineConfig),
		coreingestion.WithPipelineTokenCounter(tokenCounter),
		coreingestion.WithPipelineLogger(options.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("Pipeline 初期化に失敗しました: %w", err)
	}

	// SearchService
	searchService := coresearch.NewSearchService(documents, vectors, embedder, coresearch.WithSearchLogger(options.logger))

	return &ServiceContainer{
		Pipeline:      pipeline,
		SearchService: searchService,
		Documents:     documents,
		Vectors:       vectors,
		Transactions:  database.NewTransactionProvider(pool),
		Embedder:      embedder,
		logger:        options.logger,
		pool:          pool,
	}, nil
}

// Close は内部リソースを解放する。
func (c *ServiceContainer) Close() {
	if c != nil && c.pool != nil {
		c.pool.Close()
	}
}

// Logger はロガーを返す。
func (c *ServiceContainer) Logger() *slog.Logger {
	if c == nil || c.logger == nil {
		return slog.Default()
	}
	return c.logger
}
