package ingestion

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Document は正規ストアに保存される1ソースドキュメント（記事・メール等）を表す
type Document struct {
	ID          uuid.UUID  `json:"id"`
	SourceURL   string     `json:"url"`
	Domain      string     `json:"domain"`
	Title       string     `json:"title,omitempty"`
	Authors     []string   `json:"authors,omitempty"`
	PublishedAt *time.Time `json:"publishedAt,omitempty"`
	Text        string     `json:"text"`
	Metadata    Metadata   `json:"metadata"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// DocumentInput はソース（Gmail、CSV、手入力）から受け取るドキュメント
type DocumentInput struct {
	// ID は新規作成時に使う識別子。uuid.Nil の場合は生成する。
	// 既に同じ SourceURL が存在する場合は無視され、既存の ID が使われる。
	ID          uuid.UUID
	SourceURL   string
	Title       string
	Text        string
	Authors     []string
	PublishedAt *time.Time
	Metadata    Metadata
	// ChunkMetadata は全チャンクのメタデータに追加される属性（検索フィルタ用）。予約キーは使えない。
	ChunkMetadata Metadata
}

// UpsertResult は正規ストアへの upsert 結果
type UpsertResult struct {
	ID      uuid.UUID
	Created bool
}

// DocumentFilter はドキュメント一覧の絞り込み条件（等価/範囲のみ）
type DocumentFilter struct {
	Domain *string
	Since  *time.Time // created_at >= Since
	Until  *time.Time // created_at < Until
	Limit  int
}

// ChunkEmbedding は1チャンク分の埋め込みベクトルとメタデータ
type ChunkEmbedding struct {
	DocumentID uuid.UUID
	ChunkIndex int
	Text       string
	Vector     []float32
	Metadata   Metadata
}

// ID はチャンクの埋め込みIDを返す
func (e *ChunkEmbedding) ID() string {
	return EmbeddingID(e.DocumentID, e.ChunkIndex)
}

// StoredChunk はベクトルストアに保存済みのチャンク（ベクトルは含まない）
type StoredChunk struct {
	ID         string    `json:"id"`
	DocumentID uuid.UUID `json:"documentID"`
	ChunkIndex int       `json:"chunkIndex"`
	Text       string    `json:"text"`
	Metadata   Metadata  `json:"metadata"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// VectorHit はベクトル検索の1件を表す
type VectorHit struct {
	EmbeddingID string
	DocumentID  uuid.UUID
	ChunkIndex  int
	Text        string
	Score       float64
	Metadata    Metadata
}

// VectorFilter はベクトル検索時の任意フィルタ
type VectorFilter struct {
	DocumentID *uuid.UUID
	// Metadata はチャンクメタデータに対する包含条件（jsonb @>）
	Metadata Metadata
}

// EmbeddingID は (document_id, chunk_index) から決定的に埋め込みIDを導出する。
// 再インデックス時に同じスロットを上書きするため、乱数を含めてはならない。
func EmbeddingID(documentID uuid.UUID, chunkIndex int) string {
	return fmt.Sprintf("%s_chunk_%d", documentID, chunkIndex)
}

// DomainOf はソースURLからドメインを導出する。
// http(s) の場合はホスト名、それ以外（gmail:// 等）はスキームを返す。
func DomainOf(sourceURL string) string {
	u, err := url.Parse(sourceURL)
	if err != nil || u.Scheme == "" {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme == "http" || scheme == "https" {
		return strings.ToLower(u.Hostname())
	}
	return scheme
}
