package search

import (
	"github.com/google/uuid"

	"github.com/jinford/article-rag/internal/core/ingestion"
)

const (
	// DefaultTopK は TopK 未指定時の取得件数
	DefaultTopK = 10
	// MaxTopK は1回の検索で取得できる最大件数
	MaxTopK = 100
)

// SearchParams は検索パラメータを表す
type SearchParams struct {
	Query  string
	TopK   int
	Filter *SearchFilter
}

// SearchFilter は検索時の任意フィルタを表す
type SearchFilter struct {
	DocumentID *uuid.UUID
	// Type はドキュメント種別（article, email 等）
	Type *string
	// Domain はソースURLのドメイン（gmail 等のスキームを含む）
	Domain *string
}

// SearchHit はチャンク検索の1件を、解決済みのドキュメントとともに表す
type SearchHit struct {
	EmbeddingID string              `json:"embeddingID"`
	Document    *ingestion.Document `json:"document"`
	ChunkIndex  int                 `json:"chunkIndex"`
	ChunkText   string              `json:"chunkText"`
	Score       float64             `json:"score"`
}

// DocumentHits はドキュメント単位にまとめた検索結果
type DocumentHits struct {
	Document  *ingestion.Document `json:"document"`
	Hits      []*SearchHit        `json:"hits"`
	BestScore float64             `json:"bestScore"`
}

func (f *SearchFilter) toVectorFilter() ingestion.VectorFilter {
	var vf ingestion.VectorFilter
	if f == nil {
		return vf
	}
	vf.DocumentID = f.DocumentID
	if f.Type != nil || f.Domain != nil {
		vf.Metadata = ingestion.Metadata{}
	}
	if f.Type != nil {
		vf.Metadata[ingestion.MetaType] = *f.Type
	}
	if f.Domain != nil {
		vf.Metadata[ingestion.MetaDomain] = *f.Domain
	}
	return vf
}
