package ingestion

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"
)

// DocumentStore は正規ストア（1ソース1行）へのアクセスを表す。
// テスト時のモック用に消費者側で定義。
type DocumentStore interface {
	// UpsertDocument は SourceURL を競合キーとして挿入または更新し、ドキュメントIDを返す
	UpsertDocument(ctx context.Context, input DocumentInput) (UpsertResult, error)

	// GetDocument はIDでドキュメントを取得する。存在しない場合は mo.None を返す
	GetDocument(ctx context.Context, id uuid.UUID) (mo.Option[*Document], error)

	// ListDocuments は等価/範囲フィルタでドキュメント一覧を取得する
	ListDocuments(ctx context.Context, filter DocumentFilter) ([]*Document, error)
}

// VectorStore はチャンク埋め込みのベクトルストアを表す
type VectorStore interface {
	// UpsertChunkEmbedding は (document_id, chunk_index) のスロットへ埋め込みを保存し、埋め込みIDを返す
	UpsertChunkEmbedding(ctx context.Context, embedding *ChunkEmbedding) (string, error)

	// Search はスコア降順（同点は挿入順）で上位 topK 件を返す
	Search(ctx context.Context, vector []float32, topK int, filter VectorFilter) ([]*VectorHit, error)

	// DeleteChunksFrom は chunk_index >= fromIndex のスロットを削除する
	DeleteChunksFrom(ctx context.Context, documentID uuid.UUID, fromIndex int) (int64, error)

	// ListChunkEmbeddings はドキュメントに紐づくチャンクを chunk_index 順に返す
	ListChunkEmbeddings(ctx context.Context, documentID uuid.UUID) ([]*StoredChunk, error)
}
