package search

import (
	"context"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/article-rag/internal/core/ingestion"
)

// DocumentReader は検索結果のドキュメント解決に必要な正規ストアの操作
type DocumentReader interface {
	// GetDocument はIDでドキュメントを取得する。存在しない場合は mo.None を返す
	GetDocument(ctx context.Context, id uuid.UUID) (mo.Option[*ingestion.Document], error)
}

// VectorSearcher は検索に必要なベクトルストアの操作
type VectorSearcher interface {
	// Search はスコア降順で上位 topK 件を返す
	Search(ctx context.Context, vector []float32, topK int, filter ingestion.VectorFilter) ([]*ingestion.VectorHit, error)
}
