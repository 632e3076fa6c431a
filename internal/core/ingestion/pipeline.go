package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/jinford/article-rag/internal/core/ingestion/chunk"
)

const (
	// DefaultEmbeddingWorkerCount は1ドキュメント内で並行実行するEmbedding呼び出し数（I/O バウンド）
	DefaultEmbeddingWorkerCount = 4
	// DefaultEmbeddingTimeout はEmbedding 1回あたりのタイムアウト
	DefaultEmbeddingTimeout = 30 * time.Second
	// DefaultStoreTimeout はストア書き込み1回あたりのタイムアウト
	DefaultStoreTimeout = 15 * time.Second
	// DefaultMaxEmbeddingTokens はEmbedding入力の上限トークン数（text-embedding-3 系）
	DefaultMaxEmbeddingTokens = 8191
)

// PipelineConfig はパイプライン処理の設定
type PipelineConfig struct {
	// ChunkSize はチャンクの目標文字数
	ChunkSize int
	// ChunkOverlap は隣接チャンクの重複文字数
	ChunkOverlap int
	// ChunkLookahead は文末探索幅
	ChunkLookahead int
	// EmbeddingWorkerCount はチャンク単位の並行数
	EmbeddingWorkerCount int
	// EmbeddingTimeout はEmbedding呼び出しのタイムアウト
	EmbeddingTimeout time.Duration
	// StoreTimeout はベクトルストア書き込みのタイムアウト
	StoreTimeout time.Duration
	// MaxEmbeddingTokens を超えるチャンクはEmbeddingを呼ばずに失敗扱いにする（0 で無効）
	MaxEmbeddingTokens int
	// PurgeStaleChunks が true の場合、全チャンク成功時に旧チャンク数を超えるスロットを削除する
	PurgeStaleChunks bool
}

// DefaultPipelineConfig はデフォルトのパイプライン設定を返す
func DefaultPipelineConfig() *PipelineConfig {
	return &PipelineConfig{
		ChunkSize:            chunk.DefaultSize,
		ChunkOverlap:         chunk.DefaultOverlap,
		ChunkLookahead:       chunk.DefaultLookahead,
		EmbeddingWorkerCount: DefaultEmbeddingWorkerCount,
		EmbeddingTimeout:     DefaultEmbeddingTimeout,
		StoreTimeout:         DefaultStoreTimeout,
		MaxEmbeddingTokens:   DefaultMaxEmbeddingTokens,
		PurgeStaleChunks:     false,
	}
}

// ChunkFailure はチャンク単位の失敗
type ChunkFailure struct {
	Index int
	Kind  ErrorKind
	Err   error
}

// IngestResult は1ドキュメントの取り込み結果
type IngestResult struct {
	DocumentID   uuid.UUID
	SourceURL    string
	Created      bool
	ChunkIDs     []string // chunk_index 順
	TotalChunks  int
	Failures     []ChunkFailure
	PurgedChunks int64
	Duration     time.Duration
}

// Complete は全チャンクが保存できたかを返す
func (r *IngestResult) Complete() bool {
	return len(r.Failures) == 0
}

// Pipeline はドキュメントをチャンク化し、正規ストアとベクトルストアへ保存する
type Pipeline struct {
	documents    DocumentStore
	vectors      VectorStore
	embedder     Embedder
	chunker      *chunk.Chunker
	tokenCounter TokenCounter
	config       *PipelineConfig
	logger       *slog.Logger
}

type pipelineOptions struct {
	config       *PipelineConfig
	tokenCounter TokenCounter
	logger       *slog.Logger
}

// PipelineOption は Pipeline のオプション設定
type PipelineOption func(*pipelineOptions)

// WithPipelineConfig はパイプライン設定を上書きする
func WithPipelineConfig(cfg *PipelineConfig) PipelineOption {
	return func(o *pipelineOptions) {
		o.config = cfg
	}
}

// WithPipelineTokenCounter はトークン上限チェックに使う TokenCounter を設定する
func WithPipelineTokenCounter(counter TokenCounter) PipelineOption {
	return func(o *pipelineOptions) {
		o.tokenCounter = counter
	}
}

// WithPipelineLogger は Pipeline にロガーを設定する
func WithPipelineLogger(logger *slog.Logger) PipelineOption {
	return func(o *pipelineOptions) {
		o.logger = logger
	}
}

// NewPipeline は新しい Pipeline を作成する
func NewPipeline(documents DocumentStore, vectors VectorStore, embedder Embedder, opts ...PipelineOption) (*Pipeline, error) {
	options := pipelineOptions{
		config: DefaultPipelineConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.config == nil {
		options.config = DefaultPipelineConfig()
	}
	if options.logger == nil {
		options.logger = slog.Default()
	}

	// 呼び出し元の設定は書き換えない
	config := *options.config
	if config.EmbeddingWorkerCount <= 0 {
		config.EmbeddingWorkerCount = 1
	}
	if config.EmbeddingTimeout <= 0 {
		config.EmbeddingTimeout = DefaultEmbeddingTimeout
	}
	if config.StoreTimeout <= 0 {
		config.StoreTimeout = DefaultStoreTimeout
	}

	chunker, err := chunk.NewChunker(
		config.ChunkSize,
		config.ChunkOverlap,
		chunk.WithLookahead(config.ChunkLookahead),
	)
	if err != nil {
		return nil, fmt.Errorf("チャンカーの初期化に失敗: %w", err)
	}

	return &Pipeline{
		documents:    documents,
		vectors:      vectors,
		embedder:     embedder,
		chunker:      chunker,
		tokenCounter: options.tokenCounter,
		config:       &config,
		logger:       options.logger,
	}, nil
}

// Config は有効な設定のコピーを返す
func (p *Pipeline) Config() PipelineConfig {
	return *p.config
}

// Ingest は1ドキュメントを取り込む。
// 本文が空の場合はストアを一切呼ばずに ErrNoContent を返す。
// チャンク単位の失敗は IngestResult.Failures に記録され、他のチャンクの処理は継続する。
func (p *Pipeline) Ingest(ctx context.Context, input DocumentInput) (*IngestResult, error) {
	const op = "ingest"
	started := time.Now()

	if chunk.IsBlank(input.Text) {
		return nil, NewError(KindNoContent, op, ErrNoContent)
	}
	if err := validateInput(input); err != nil {
		return nil, NewError(KindInvalidInput, op, err)
	}

	upserted, err := p.upsertDocument(ctx, input)
	if err != nil {
		return nil, asKind(KindStorage, op, err)
	}

	pieces := p.chunker.Split(input.Text)
	total := len(pieces)
	extra := chunkExtraMetadata(input)

	outcomes := make([]chunkOutcome, total)
	var g errgroup.Group
	g.SetLimit(p.config.EmbeddingWorkerCount)
	for i, piece := range pieces {
		g.Go(func() error {
			outcomes[i] = p.storeChunk(ctx, upserted.ID, input, piece, total, extra)
			return nil
		})
	}
	_ = g.Wait() // storeChunk は失敗を outcome に記録し、error は返さない

	result := &IngestResult{
		DocumentID:  upserted.ID,
		SourceURL:   input.SourceURL,
		Created:     upserted.Created,
		ChunkIDs:    make([]string, 0, total),
		TotalChunks: total,
	}
	for i, out := range outcomes {
		if out.err != nil {
			p.logger.Warn("チャンクの保存に失敗",
				"documentID", upserted.ID,
				"chunkIndex", i,
				"kind", KindOf(out.err),
				"error", out.err,
			)
			result.Failures = append(result.Failures, ChunkFailure{Index: i, Kind: KindOf(out.err), Err: out.err})
			continue
		}
		result.ChunkIDs = append(result.ChunkIDs, out.id)
	}

	if p.config.PurgeStaleChunks && result.Complete() {
		purged, err := p.vectors.DeleteChunksFrom(ctx, upserted.ID, total)
		if err != nil {
			p.logger.Warn("古いチャンクの削除に失敗",
				"documentID", upserted.ID,
				"fromIndex", total,
				"error", err,
			)
		} else {
			result.PurgedChunks = purged
		}
	}

	result.Duration = time.Since(started)

	if result.Complete() {
		p.logger.Info("ドキュメントを取り込みました",
			"documentID", result.DocumentID,
			"url", result.SourceURL,
			"created", result.Created,
			"chunks", len(result.ChunkIDs),
			"purged", result.PurgedChunks,
			"duration", result.Duration,
		)
	} else {
		p.logger.Warn("ドキュメントの取り込み完了（一部失敗あり）",
			"documentID", result.DocumentID,
			"url", result.SourceURL,
			"storedChunks", len(result.ChunkIDs),
			"failedChunks", len(result.Failures),
			"totalChunks", total,
		)
	}

	return result, nil
}

type chunkOutcome struct {
	id  string
	err error
}

// storeChunk は1チャンクのEmbedding生成と保存を行う
func (p *Pipeline) storeChunk(
	ctx context.Context,
	documentID uuid.UUID,
	input DocumentInput,
	piece chunk.Piece,
	total int,
	extra Metadata,
) chunkOutcome {
	const op = "store chunk"

	if err := ctx.Err(); err != nil {
		return chunkOutcome{err: NewError(KindEmbedding, op, err)}
	}

	tokens := 0
	if p.tokenCounter != nil {
		tokens = p.tokenCounter.CountTokens(piece.Text)
		if p.config.MaxEmbeddingTokens > 0 && tokens > p.config.MaxEmbeddingTokens {
			return chunkOutcome{err: NewError(KindEmbedding, op,
				fmt.Errorf("chunk %d has %d tokens (max %d)", piece.Index, tokens, p.config.MaxEmbeddingTokens))}
		}
	}

	vector, err := p.embed(ctx, piece.Text)
	if err != nil {
		return chunkOutcome{err: NewError(KindEmbedding, op, err)}
	}

	metadata := extra.Clone()
	metadata[ChunkMetaDocumentID] = documentID.String()
	metadata[ChunkMetaChunkIndex] = piece.Index
	metadata[ChunkMetaTitle] = input.Title
	metadata[ChunkMetaText] = piece.Text
	metadata[ChunkMetaChunkSize] = piece.CharLength()
	metadata[ChunkMetaTotalChunks] = total
	metadata[ChunkMetaSourceURL] = input.SourceURL
	if p.tokenCounter != nil {
		metadata[ChunkMetaTokenCount] = tokens
	}

	storeCtx, cancel := context.WithTimeout(ctx, p.config.StoreTimeout)
	defer cancel()

	id, err := p.vectors.UpsertChunkEmbedding(storeCtx, &ChunkEmbedding{
		DocumentID: documentID,
		ChunkIndex: piece.Index,
		Text:       piece.Text,
		Vector:     vector,
		Metadata:   metadata,
	})
	if err != nil {
		return chunkOutcome{err: asKind(KindStorage, op, err)}
	}
	return chunkOutcome{id: id}
}

func (p *Pipeline) upsertDocument(ctx context.Context, input DocumentInput) (UpsertResult, error) {
	storeCtx, cancel := context.WithTimeout(ctx, p.config.StoreTimeout)
	defer cancel()

	return p.documents.UpsertDocument(storeCtx, input)
}

func (p *Pipeline) embed(ctx context.Context, text string) ([]float32, error) {
	embedCtx, cancel := context.WithTimeout(ctx, p.config.EmbeddingTimeout)
	defer cancel()

	vector, err := p.embedder.Embed(embedCtx, text)
	if err != nil {
		return nil, err
	}
	if dim := p.embedder.Dimension(); dim > 0 && len(vector) != dim {
		return nil, fmt.Errorf("embedding dimension mismatch: expected %d, got %d", dim, len(vector))
	}
	return vector, nil
}

func validateInput(input DocumentInput) error {
	if strings.TrimSpace(input.SourceURL) == "" {
		return fmt.Errorf("%w: source url is required", ErrInvalidInput)
	}
	if DomainOf(input.SourceURL) == "" {
		return fmt.Errorf("%w: source url %q has no scheme", ErrInvalidInput, input.SourceURL)
	}
	if err := input.Metadata.Validate(); err != nil {
		return err
	}
	return input.ChunkMetadata.ValidateExtra()
}

// chunkExtraMetadata はチャンク検索のフィルタに使えるドキュメント属性をコピーする
func chunkExtraMetadata(input DocumentInput) Metadata {
	extra := input.ChunkMetadata.Clone()
	for _, key := range []string{MetaType, MetaSource} {
		if v := input.Metadata.String(key); v != "" {
			extra[key] = v
		}
	}
	if domain := DomainOf(input.SourceURL); domain != "" {
		extra[MetaDomain] = domain
	}
	return extra
}

// asKind は分類済みのエラーはそのまま、未分類のエラーは kind を付けて返す
func asKind(kind ErrorKind, op string, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return NewError(kind, op, err)
}
