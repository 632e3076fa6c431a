package testing

import (
	"context"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/samber/mo"

	"github.com/jinford/article-rag/internal/core/ingestion"
)

// MemoryDocumentStore はテスト用のインメモリ正規ストアです
type MemoryDocumentStore struct {
	mu    sync.Mutex
	docs  map[uuid.UUID]*ingestion.Document
	byURL map[string]uuid.UUID

	UpsertCalls int
	GetCalls    int

	// UpsertErr / GetErr が設定されている場合はそのエラーを返します
	UpsertErr error
	GetErr    error
}

// NewMemoryDocumentStore は空のストアを作成します
func NewMemoryDocumentStore() *MemoryDocumentStore {
	return &MemoryDocumentStore{
		docs:  map[uuid.UUID]*ingestion.Document{},
		byURL: map[string]uuid.UUID{},
	}
}

func (s *MemoryDocumentStore) UpsertDocument(ctx context.Context, input ingestion.DocumentInput) (ingestion.UpsertResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpsertCalls++
	if s.UpsertErr != nil {
		return ingestion.UpsertResult{}, s.UpsertErr
	}

	now := time.Now()
	if id, ok := s.byURL[input.SourceURL]; ok {
		doc := s.docs[id]
		doc.Title = input.Title
		doc.Text = input.Text
		doc.Authors = input.Authors
		doc.PublishedAt = input.PublishedAt
		doc.Metadata = input.Metadata
		doc.UpdatedAt = now
		return ingestion.UpsertResult{ID: id, Created: false}, nil
	}

	id := input.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	s.byURL[input.SourceURL] = id
	s.docs[id] = &ingestion.Document{
		ID:          id,
		SourceURL:   input.SourceURL,
		Domain:      ingestion.DomainOf(input.SourceURL),
		Title:       input.Title,
		Authors:     input.Authors,
		PublishedAt: input.PublishedAt,
		Text:        input.Text,
		Metadata:    input.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	return ingestion.UpsertResult{ID: id, Created: true}, nil
}

func (s *MemoryDocumentStore) GetDocument(ctx context.Context, id uuid.UUID) (mo.Option[*ingestion.Document], error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.GetCalls++
	if s.GetErr != nil {
		return mo.None[*ingestion.Document](), s.GetErr
	}
	doc, ok := s.docs[id]
	if !ok {
		return mo.None[*ingestion.Document](), nil
	}
	copied := *doc
	return mo.Some(&copied), nil
}

func (s *MemoryDocumentStore) ListDocuments(ctx context.Context, filter ingestion.DocumentFilter) ([]*ingestion.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*ingestion.Document
	for _, doc := range s.docs {
		if filter.Domain != nil && doc.Domain != *filter.Domain {
			continue
		}
		if filter.Since != nil && doc.CreatedAt.Before(*filter.Since) {
			continue
		}
		if filter.Until != nil && !doc.CreatedAt.Before(*filter.Until) {
			continue
		}
		copied := *doc
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// Delete はドキュメントを削除します（リンク切れの再現用）
func (s *MemoryDocumentStore) Delete(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if doc, ok := s.docs[id]; ok {
		delete(s.byURL, doc.SourceURL)
		delete(s.docs, id)
	}
}

// Len は保存件数を返します
func (s *MemoryDocumentStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.docs)
}

type vectorEntry struct {
	seq       int64
	embedding ingestion.ChunkEmbedding
	updatedAt time.Time
}

// MemoryVectorStore はテスト用のインメモリベクトルストアです
type MemoryVectorStore struct {
	mu      sync.Mutex
	entries map[string]*vectorEntry
	nextSeq int64

	UpsertCalls int
	SearchCalls int

	// UpsertFunc が設定されている場合、保存前に呼ばれエラーを返すと保存を中止します
	UpsertFunc func(e *ingestion.ChunkEmbedding) error
	// SearchErr が設定されている場合は Search でそのエラーを返します
	SearchErr error
}

// NewMemoryVectorStore は空のストアを作成します
func NewMemoryVectorStore() *MemoryVectorStore {
	return &MemoryVectorStore{entries: map[string]*vectorEntry{}}
}

func (s *MemoryVectorStore) UpsertChunkEmbedding(ctx context.Context, e *ingestion.ChunkEmbedding) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.UpsertCalls++
	if s.UpsertFunc != nil {
		if err := s.UpsertFunc(e); err != nil {
			return "", err
		}
	}

	id := e.ID()
	if existing, ok := s.entries[id]; ok {
		existing.embedding = *e
		existing.updatedAt = time.Now()
		return id, nil
	}
	s.nextSeq++
	s.entries[id] = &vectorEntry{seq: s.nextSeq, embedding: *e, updatedAt: time.Now()}
	return id, nil
}

func (s *MemoryVectorStore) Search(ctx context.Context, vector []float32, topK int, filter ingestion.VectorFilter) ([]*ingestion.VectorHit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.SearchCalls++
	if s.SearchErr != nil {
		return nil, s.SearchErr
	}

	type scored struct {
		entry *vectorEntry
		score float64
	}
	var candidates []scored
	for _, entry := range s.entries {
		if filter.DocumentID != nil && entry.embedding.DocumentID != *filter.DocumentID {
			continue
		}
		if !containsAll(entry.embedding.Metadata, filter.Metadata) {
			continue
		}
		candidates = append(candidates, scored{entry: entry, score: Cosine(vector, entry.embedding.Vector)})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].entry.seq < candidates[j].entry.seq
	})
	if topK > 0 && len(candidates) > topK {
		candidates = candidates[:topK]
	}

	hits := make([]*ingestion.VectorHit, 0, len(candidates))
	for _, c := range candidates {
		e := c.entry.embedding
		hits = append(hits, &ingestion.VectorHit{
			EmbeddingID: e.ID(),
			DocumentID:  e.DocumentID,
			ChunkIndex:  e.ChunkIndex,
			Text:        e.Text,
			Score:       c.score,
			Metadata:    e.Metadata,
		})
	}
	return hits, nil
}

func (s *MemoryVectorStore) DeleteChunksFrom(ctx context.Context, documentID uuid.UUID, fromIndex int) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, entry := range s.entries {
		if entry.embedding.DocumentID == documentID && entry.embedding.ChunkIndex >= fromIndex {
			delete(s.entries, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryVectorStore) ListChunkEmbeddings(ctx context.Context, documentID uuid.UUID) ([]*ingestion.StoredChunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*ingestion.StoredChunk
	for id, entry := range s.entries {
		if entry.embedding.DocumentID != documentID {
			continue
		}
		out = append(out, &ingestion.StoredChunk{
			ID:         id,
			DocumentID: entry.embedding.DocumentID,
			ChunkIndex: entry.embedding.ChunkIndex,
			Text:       entry.embedding.Text,
			Metadata:   entry.embedding.Metadata,
			UpdatedAt:  entry.updatedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

// IDs は保存済みの埋め込みIDをソートして返します
func (s *MemoryVectorStore) IDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Get は埋め込みIDで保存内容を返します
func (s *MemoryVectorStore) Get(id string) (*ingestion.ChunkEmbedding, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[id]
	if !ok {
		return nil, false
	}
	e := entry.embedding
	return &e, true
}

// StubEmbedder はテキストから決定的なベクトルを生成するテスト用Embedderです
type StubEmbedder struct {
	mu    sync.Mutex
	Dim   int
	Calls int

	// EmbedFunc が設定されている場合はそちらを使います
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
}

// NewStubEmbedder は次元数を指定して StubEmbedder を作成します
func NewStubEmbedder(dim int) *StubEmbedder {
	return &StubEmbedder{Dim: dim}
}

func (e *StubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	e.Calls++
	fn := e.EmbedFunc
	e.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return HashVector(text, e.Dim), nil
}

func (e *StubEmbedder) ModelName() string { return "stub-embedding" }

func (e *StubEmbedder) Dimension() int { return e.Dim }

// HashVector は文字コードから決定的に正規化済みベクトルを生成します
func HashVector(text string, dim int) []float32 {
	v := make([]float32, dim)
	for i, r := range strings.ToLower(text) {
		v[(int(r)+i)%dim] += 1
	}
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	if norm == 0 {
		v[0] = 1
		return v
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range v {
		v[i] *= scale
	}
	return v
}

// Cosine はコサイン類似度を返します
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func containsAll(m, want ingestion.Metadata) bool {
	for k, v := range want {
		if m[k] != v {
			return false
		}
	}
	return true
}
