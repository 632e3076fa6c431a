package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/jinford/article-rag/internal/core/ingestion"
)

// VectorRepository は ingestion.VectorStore を実装する pgvector リポジトリです
type VectorRepository struct {
	db        DBTX
	dimension int
}

// VectorRepositoryOption は VectorRepository のオプション設定
type VectorRepositoryOption func(*VectorRepository)

// WithVectorDimension は受け付けるベクトルの次元数を設定します（0 で検証しない）
func WithVectorDimension(dim int) VectorRepositoryOption {
	return func(r *VectorRepository) {
		r.dimension = dim
	}
}

// NewVectorRepository は新しい VectorRepository を作成します
func NewVectorRepository(db DBTX, opts ...VectorRepositoryOption) *VectorRepository {
	r := &VectorRepository{db: db}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// コンパイル時の型チェック
var _ ingestion.VectorStore = (*VectorRepository)(nil)

const upsertChunkEmbeddingSQL = `
INSERT INTO chunk_embeddings (id, document_id, chunk_index, text, embedding, metadata)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
    text       = EXCLUDED.text,
    embedding  = EXCLUDED.embedding,
    metadata   = EXCLUDED.metadata,
    updated_at = now()`

// UpsertChunkEmbedding は (document_id, chunk_index) から導出したIDのスロットへ埋め込みを保存します。
// 既存スロットは上書きされ、挿入順（seq）は維持されます。
func (r *VectorRepository) UpsertChunkEmbedding(ctx context.Context, e *ingestion.ChunkEmbedding) (string, error) {
	const op = "upsert chunk embedding"

	if r.dimension > 0 && len(e.Vector) != r.dimension {
		return "", ingestion.NewError(ingestion.KindInvalidInput, op,
			fmt.Errorf("%w: vector dimension %d does not match %d", ingestion.ErrInvalidInput, len(e.Vector), r.dimension))
	}
	if e.ChunkIndex < 0 {
		return "", ingestion.NewError(ingestion.KindInvalidInput, op,
			fmt.Errorf("%w: negative chunk index %d", ingestion.ErrInvalidInput, e.ChunkIndex))
	}

	id := e.ID()
	_, err := r.db.Exec(ctx, upsertChunkEmbeddingSQL,
		id,
		UUIDToPgtype(e.DocumentID),
		e.ChunkIndex,
		e.Text,
		pgvector.NewVector(e.Vector),
		NonNilMetadata(e.Metadata),
	)
	if err != nil {
		if IsForeignKeyViolation(err) {
			return "", ingestion.NewError(ingestion.KindNotFound, op,
				fmt.Errorf("document %s: %w", e.DocumentID, ingestion.ErrNotFound))
		}
		return "", ingestion.NewError(ingestion.KindStorage, op, fmt.Errorf("failed to upsert %s: %w", id, err))
	}
	return id, nil
}

const searchChunkEmbeddingsSQL = `
SELECT id, document_id, chunk_index, text, 1 - (embedding <=> $1) AS score, metadata
FROM chunk_embeddings
WHERE ($2::uuid IS NULL OR document_id = $2)
  AND metadata @> $3::jsonb
ORDER BY embedding <=> $1, seq
LIMIT $4`

// Search はコサイン類似度（1 - コサイン距離）の降順、同点は挿入順で上位 topK 件を返します
func (r *VectorRepository) Search(ctx context.Context, vector []float32, topK int, filter ingestion.VectorFilter) ([]*ingestion.VectorHit, error) {
	const op = "search chunk embeddings"

	if topK <= 0 {
		return nil, nil
	}

	// フィルタ付きの検索は HNSW の走査後に絞り込まれるため、topK 件に満たない場合は走査を続けさせる
	beginner, ok := r.db.(txBeginner)
	if !ok || (filter.DocumentID == nil && len(filter.Metadata) == 0) {
		return searchHits(ctx, r.db, vector, topK, filter)
	}

	var hits []*ingestion.VectorHit
	err := pgx.BeginFunc(ctx, beginner, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, setIterativeScanSQL); err != nil {
			return ingestion.NewError(ingestion.KindStorage, op, fmt.Errorf("failed to enable iterative scan: %w", err))
		}
		var err error
		hits, err = searchHits(ctx, tx, vector, topK, filter)
		return err
	})
	if err != nil {
		return nil, err
	}
	return hits, nil
}

const setIterativeScanSQL = `SET LOCAL hnsw.iterative_scan = strict_order`

// txBeginner は *pgxpool.Pool と pgx.Tx が満たす（pgx.Tx の場合はセーブポイントになる）
type txBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

func searchHits(ctx context.Context, db DBTX, vector []float32, topK int, filter ingestion.VectorFilter) ([]*ingestion.VectorHit, error) {
	const op = "search chunk embeddings"

	rows, err := db.Query(ctx, searchChunkEmbeddingsSQL,
		pgvector.NewVector(vector),
		UUIDPtrToPgtype(filter.DocumentID),
		NonNilMetadata(filter.Metadata),
		topK,
	)
	if err != nil {
		return nil, ingestion.NewError(ingestion.KindStorage, op, fmt.Errorf("failed to search: %w", err))
	}
	defer rows.Close()

	var hits []*ingestion.VectorHit
	for rows.Next() {
		var (
			hit        ingestion.VectorHit
			documentID pgtype.UUID
		)
		if err := rows.Scan(&hit.EmbeddingID, &documentID, &hit.ChunkIndex, &hit.Text, &hit.Score, &hit.Metadata); err != nil {
			return nil, ingestion.NewError(ingestion.KindStorage, op, fmt.Errorf("failed to scan hit: %w", err))
		}
		hit.DocumentID = PgtypeToUUID(documentID)
		hits = append(hits, &hit)
	}
	if err := rows.Err(); err != nil {
		return nil, ingestion.NewError(ingestion.KindStorage, op, err)
	}
	return hits, nil
}

// DeleteChunksFrom は chunk_index >= fromIndex のスロットを削除し、削除件数を返します
func (r *VectorRepository) DeleteChunksFrom(ctx context.Context, documentID uuid.UUID, fromIndex int) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM chunk_embeddings WHERE document_id = $1 AND chunk_index >= $2`,
		UUIDToPgtype(documentID), fromIndex,
	)
	if err != nil {
		return 0, ingestion.NewError(ingestion.KindStorage, "delete chunks", fmt.Errorf("failed to delete chunks of %s: %w", documentID, err))
	}
	return tag.RowsAffected(), nil
}

// ListChunkEmbeddings はドキュメントに紐づくチャンクを chunk_index 順に返します
func (r *VectorRepository) ListChunkEmbeddings(ctx context.Context, documentID uuid.UUID) ([]*ingestion.StoredChunk, error) {
	const op = "list chunk embeddings"

	rows, err := r.db.Query(ctx, `
SELECT id, document_id, chunk_index, text, metadata, updated_at
FROM chunk_embeddings
WHERE document_id = $1
ORDER BY chunk_index`, UUIDToPgtype(documentID))
	if err != nil {
		return nil, ingestion.NewError(ingestion.KindStorage, op, fmt.Errorf("failed to list chunks: %w", err))
	}
	defer rows.Close()

	var chunks []*ingestion.StoredChunk
	for rows.Next() {
		var (
			c   ingestion.StoredChunk
			doc pgtype.UUID
		)
		if err := rows.Scan(&c.ID, &doc, &c.ChunkIndex, &c.Text, &c.Metadata, &c.UpdatedAt); err != nil {
			return nil, ingestion.NewError(ingestion.KindStorage, op, fmt.Errorf("failed to scan chunk: %w", err))
		}
		c.DocumentID = PgtypeToUUID(doc)
		chunks = append(chunks, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, ingestion.NewError(ingestion.KindStorage, op, err)
	}
	return chunks, nil
}

// CountOrphanChunks は正規ストアに対応する行がないチャンク数を返します（リンク整合性の確認用）
func (r *VectorRepository) CountOrphanChunks(ctx context.Context) (int64, error) {
	var n int64
	err := r.db.QueryRow(ctx, `
SELECT count(*)
FROM chunk_embeddings c
LEFT JOIN documents d ON d.id = c.document_id
WHERE d.id IS NULL`).Scan(&n)
	if err != nil {
		return 0, ingestion.NewError(ingestion.KindStorage, "count orphan chunks", err)
	}
	return n, nil
}
