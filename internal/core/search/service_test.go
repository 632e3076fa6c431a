package search_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/article-rag/internal/core/ingestion"
	testutil "github.com/jinford/article-rag/internal/core/ingestion/testing"
	"github.com/jinford/article-rag/internal/core/search"
)

const testDim = 16

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type env struct {
	docs     *testutil.MemoryDocumentStore
	vectors  *testutil.MemoryVectorStore
	embedder *testutil.StubEmbedder
	pipeline *ingestion.Pipeline
	service  *search.SearchService
}

func newEnv(t *testing.T) *env {
	t.Helper()
	e := &env{
		docs:     testutil.NewMemoryDocumentStore(),
		vectors:  testutil.NewMemoryVectorStore(),
		embedder: testutil.NewStubEmbedder(testDim),
	}
	cfg := ingestion.DefaultPipelineConfig()
	cfg.ChunkSize = 60
	cfg.ChunkOverlap = 10

	p, err := ingestion.NewPipeline(e.docs, e.vectors, e.embedder,
		ingestion.WithPipelineConfig(cfg),
		ingestion.WithPipelineLogger(discardLogger),
	)
	require.NoError(t, err)
	e.pipeline = p
	e.service = search.NewSearchService(e.docs, e.vectors, e.embedder, search.WithSearchLogger(discardLogger))
	return e
}

func (e *env) ingest(t *testing.T, input ingestion.DocumentInput) *ingestion.IngestResult {
	t.Helper()
	result, err := e.pipeline.Ingest(context.Background(), input)
	require.NoError(t, err)
	require.True(t, result.Complete())
	return result
}

type recordingSearcher struct {
	lastTopK   int
	lastFilter ingestion.VectorFilter
	hits       []*ingestion.VectorHit
	err        error
}

func (r *recordingSearcher) Search(ctx context.Context, vector []float32, topK int, filter ingestion.VectorFilter) ([]*ingestion.VectorHit, error) {
	r.lastTopK = topK
	r.lastFilter = filter
	return r.hits, r.err
}

func TestSearchService_Search_EmptyQuery(t *testing.T) {
	e := newEnv(t)

	for _, q := range []string{"", "   "} {
		results, err := e.service.Search(context.Background(), search.SearchParams{Query: q})

		require.Error(t, err)
		assert.Nil(t, results)
		assert.ErrorIs(t, err, ingestion.ErrInvalidInput)
	}
	assert.Zero(t, e.embedder.Calls)
}

func TestSearchService_Search_NoMatches(t *testing.T) {
	e := newEnv(t)

	results, err := e.service.Search(context.Background(), search.SearchParams{Query: "anything"})

	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchService_Search_ResolvesDocuments(t *testing.T) {
	// Setup
	e := newEnv(t)
	ctx := context.Background()
	article := e.ingest(t, testutil.TestArticle("https://example.com/fox", "Fox", testutil.LongText(4)))
	e.ingest(t, testutil.TestEmail("m1", "Invoice", "Your invoice for October is attached. Please pay by Friday."))

	first, ok := e.vectors.Get(article.ChunkIDs[0])
	require.True(t, ok)

	// Execute
	results, err := e.service.Search(ctx, search.SearchParams{Query: first.Text, TopK: 3})

	// Assert
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.LessOrEqual(t, len(results), 3)
	assert.Equal(t, article.ChunkIDs[0], results[0].EmbeddingID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-6)
	assert.Equal(t, article.DocumentID, results[0].Document.ID)
	assert.Equal(t, "https://example.com/fox", results[0].Document.SourceURL)
	assert.Equal(t, first.Text, results[0].ChunkText)

	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Score, results[i].Score)
	}
}

func TestSearchService_Search_DropsUnresolvableHits(t *testing.T) {
	t.Run("ドキュメントが存在しない", func(t *testing.T) {
		e := newEnv(t)
		result := e.ingest(t, testutil.TestArticle("https://example.com/a", "A", "Orphaned chunk text."))
		e.docs.Delete(result.DocumentID)

		results, err := e.service.Search(context.Background(), search.SearchParams{Query: "Orphaned chunk text."})

		require.NoError(t, err)
		assert.Empty(t, results)
		assert.Equal(t, 1, e.vectors.SearchCalls)
	})

	t.Run("ドキュメント取得エラー", func(t *testing.T) {
		e := newEnv(t)
		e.ingest(t, testutil.TestArticle("https://example.com/a", "A", "Some chunk text."))
		e.docs.GetErr = errors.New("timeout")

		results, err := e.service.Search(context.Background(), search.SearchParams{Query: "Some chunk text."})

		require.NoError(t, err)
		assert.Empty(t, results)
	})
}

func TestSearchService_Search_ResolvesEachDocumentOnce(t *testing.T) {
	e := newEnv(t)
	result := e.ingest(t, testutil.TestArticle("https://example.com/a", "A", testutil.LongText(6)))
	require.Greater(t, result.TotalChunks, 2)
	getCalls := e.docs.GetCalls

	results, err := e.service.Search(context.Background(), search.SearchParams{Query: "quick brown fox", TopK: 50})

	require.NoError(t, err)
	assert.Len(t, results, result.TotalChunks)
	assert.Equal(t, getCalls+1, e.docs.GetCalls)
}

func TestSearchService_Search_TopK(t *testing.T) {
	tests := []struct {
		name string
		topK int
		want int
	}{
		{"未指定はデフォルト", 0, search.DefaultTopK},
		{"負数はデフォルト", -5, search.DefaultTopK},
		{"指定値", 25, 25},
		{"上限で切り詰め", 1000, search.MaxTopK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			searcher := &recordingSearcher{}
			service := search.NewSearchService(testutil.NewMemoryDocumentStore(), searcher, testutil.NewStubEmbedder(testDim))

			_, err := service.Search(context.Background(), search.SearchParams{Query: "q", TopK: tt.topK})

			require.NoError(t, err)
			assert.Equal(t, tt.want, searcher.lastTopK)
		})
	}
}

func TestSearchService_Search_Filter(t *testing.T) {
	e := newEnv(t)
	e.ingest(t, testutil.TestArticle("https://example.com/a", "A", "Quarterly results were strong."))
	email := e.ingest(t, testutil.TestEmail("m1", "Results", "Quarterly results were strong."))

	emailType := "email"
	results, err := e.service.Search(context.Background(), search.SearchParams{
		Query:  "Quarterly results were strong.",
		Filter: &search.SearchFilter{Type: &emailType},
	})

	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, email.DocumentID, results[0].Document.ID)

	gmail := "gmail"
	searcher := &recordingSearcher{}
	service := search.NewSearchService(e.docs, searcher, e.embedder)
	docID := uuid.New()
	_, err = service.Search(context.Background(), search.SearchParams{
		Query:  "q",
		Filter: &search.SearchFilter{DocumentID: &docID, Domain: &gmail},
	})
	require.NoError(t, err)
	assert.Equal(t, &docID, searcher.lastFilter.DocumentID)
	assert.Equal(t, ingestion.Metadata{ingestion.MetaDomain: "gmail"}, searcher.lastFilter.Metadata)
}

func TestSearchService_Search_Errors(t *testing.T) {
	t.Run("Embedding失敗", func(t *testing.T) {
		embedder := testutil.NewStubEmbedder(testDim)
		embedder.EmbedFunc = func(context.Context, string) ([]float32, error) {
			return nil, errors.New("quota exceeded")
		}
		service := search.NewSearchService(testutil.NewMemoryDocumentStore(), testutil.NewMemoryVectorStore(), embedder)

		_, err := service.Search(context.Background(), search.SearchParams{Query: "q"})

		require.Error(t, err)
		assert.Equal(t, ingestion.KindEmbedding, ingestion.KindOf(err))
	})

	t.Run("ベクトル検索失敗", func(t *testing.T) {
		searcher := &recordingSearcher{err: errors.New("connection reset")}
		service := search.NewSearchService(testutil.NewMemoryDocumentStore(), searcher, testutil.NewStubEmbedder(testDim))

		_, err := service.Search(context.Background(), search.SearchParams{Query: "q"})

		require.Error(t, err)
		assert.Equal(t, ingestion.KindStorage, ingestion.KindOf(err))
		assert.Contains(t, err.Error(), "connection reset")
	})
}

func TestGroupByDocument(t *testing.T) {
	a := &ingestion.Document{ID: uuid.New(), Title: "A"}
	b := &ingestion.Document{ID: uuid.New(), Title: "B"}
	c := &ingestion.Document{ID: uuid.New(), Title: "C"}

	hits := []*search.SearchHit{
		{EmbeddingID: "a0", Document: a, Score: 0.95},
		{EmbeddingID: "b0", Document: b, Score: 0.90},
		{EmbeddingID: "b1", Document: b, Score: 0.80},
		{EmbeddingID: "c0", Document: c, Score: 0.70},
		{EmbeddingID: "c1", Document: c, Score: 0.60},
	}

	groups := search.GroupByDocument(hits)

	require.Len(t, groups, 3)
	assert.Equal(t, "B", groups[0].Document.Title)
	assert.InDelta(t, 0.90, groups[0].BestScore, 1e-9)
	assert.Len(t, groups[0].Hits, 2)
	assert.Equal(t, "C", groups[1].Document.Title)
	assert.Equal(t, "A", groups[2].Document.Title)

	assert.Empty(t, search.GroupByDocument(nil))
}
