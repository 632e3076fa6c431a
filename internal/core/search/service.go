package search

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/jinford/article-rag/internal/core/ingestion"
)

// Embedder はテキストのEmbedding生成インターフェース
type Embedder interface {
	// Embed は単一テキストのEmbeddingを生成する
	Embed(ctx context.Context, text string) ([]float32, error)
}

// SearchService は検索のビジネスロジックを提供する
type SearchService struct {
	documents DocumentReader
	vectors   VectorSearcher
	embedder  Embedder
	logger    *slog.Logger
}

// SearchServiceOption は SearchService のオプション設定
type SearchServiceOption func(*SearchService)

// WithSearchLogger は SearchService にロガーを設定する
func WithSearchLogger(logger *slog.Logger) SearchServiceOption {
	return func(s *SearchService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSearchService は新しいSearchServiceを作成する
func NewSearchService(documents DocumentReader, vectors VectorSearcher, embedder Embedder, opts ...SearchServiceOption) *SearchService {
	s := &SearchService{
		documents: documents,
		vectors:   vectors,
		embedder:  embedder,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search はクエリに基づいてベクトル検索を実行し、各ヒットを正規ストアのドキュメントへ解決する。
// ドキュメントが見つからない、または取得に失敗したヒットは警告ログを出して除外する。
func (s *SearchService) Search(ctx context.Context, params SearchParams) ([]*SearchHit, error) {
	// バリデーション
	if strings.TrimSpace(params.Query) == "" {
		return nil, fmt.Errorf("%w: query is required", ingestion.ErrInvalidInput)
	}

	topK := params.TopK
	if topK <= 0 {
		topK = DefaultTopK
	}
	topK = min(topK, MaxTopK)

	// クエリをEmbeddingに変換
	queryVector, err := s.embedder.Embed(ctx, params.Query)
	if err != nil {
		return nil, ingestion.NewError(ingestion.KindEmbedding, "search", fmt.Errorf("failed to embed query: %w", err))
	}

	hits, err := s.vectors.Search(ctx, queryVector, topK, params.Filter.toVectorFilter())
	if err != nil {
		return nil, ingestion.NewError(ingestion.KindStorage, "search", fmt.Errorf("vector search failed: %w", err))
	}

	// 1回の検索内ではドキュメントの解決結果を使い回す
	resolved := make(map[uuid.UUID]*ingestion.Document)
	results := make([]*SearchHit, 0, len(hits))
	for _, hit := range hits {
		doc, seen := resolved[hit.DocumentID]
		if !seen {
			doc = s.resolveDocument(ctx, hit)
			resolved[hit.DocumentID] = doc
		}
		if doc == nil {
			continue
		}
		results = append(results, &SearchHit{
			EmbeddingID: hit.EmbeddingID,
			Document:    doc,
			ChunkIndex:  hit.ChunkIndex,
			ChunkText:   hit.Text,
			Score:       hit.Score,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	return results, nil
}

func (s *SearchService) resolveDocument(ctx context.Context, hit *ingestion.VectorHit) *ingestion.Document {
	found, err := s.documents.GetDocument(ctx, hit.DocumentID)
	if err != nil {
		s.logger.Warn("ドキュメントの取得に失敗したためヒットを除外",
			"embeddingID", hit.EmbeddingID,
			"documentID", hit.DocumentID,
			"error", err,
		)
		return nil
	}
	doc, ok := found.Get()
	if !ok {
		s.logger.Warn("リンク先のドキュメントが存在しないためヒットを除外",
			"embeddingID", hit.EmbeddingID,
			"documentID", hit.DocumentID,
		)
		return nil
	}
	return doc
}

// GroupByDocument はヒットをドキュメント単位にまとめる。
// マッチしたチャンク数の多い順、同数の場合は最高スコアの高い順に並べる。
func GroupByDocument(hits []*SearchHit) []*DocumentHits {
	index := make(map[uuid.UUID]*DocumentHits)
	var groups []*DocumentHits
	for _, hit := range hits {
		g, ok := index[hit.Document.ID]
		if !ok {
			g = &DocumentHits{Document: hit.Document, BestScore: hit.Score}
			index[hit.Document.ID] = g
			groups = append(groups, g)
		}
		g.Hits = append(g.Hits, hit)
		g.BestScore = max(g.BestScore, hit.Score)
	}

	sort.SliceStable(groups, func(i, j int) bool {
		if len(groups[i].Hits) != len(groups[j].Hits) {
			return len(groups[i].Hits) > len(groups[j].Hits)
		}
		return groups[i].BestScore > groups[j].BestScore
	})
	return groups
}
