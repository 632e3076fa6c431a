package ingestion

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"slices"
	"sort"
)

// Metadata はドキュメント/チャンクに付与するオープンなキーバリュー
type Metadata map[string]any

// ドキュメントメタデータで認識するキー
const (
	MetaType        = "type"
	MetaSource      = "source"
	MetaEmailID     = "email_id"
	MetaThreadID    = "thread_id"
	MetaFromEmail   = "from_email"
	MetaToEmail     = "to_email"
	MetaDate        = "date"
	MetaProcessedAt = "processed_at"
	MetaCategory    = "category"
	MetaWebsite     = "website"
	MetaLabels      = "labels"
	MetaDomain      = "domain"
)

// チャンクメタデータの予約キー（ベクトルストアが管理する）
const (
	ChunkMetaDocumentID  = "document_id"
	ChunkMetaChunkIndex  = "chunk_index"
	ChunkMetaTitle       = "title"
	ChunkMetaText        = "text"
	ChunkMetaChunkSize   = "chunk_size"
	ChunkMetaTotalChunks = "total_chunks"
	ChunkMetaTokenCount  = "token_count"
	ChunkMetaSourceURL   = "source_url"
)

// DocumentTypes は MetaType に設定できる値
var DocumentTypes = []string{"article", "email", "company", "paper", "note"}

var reservedChunkKeys = []string{
	ChunkMetaDocumentID,
	ChunkMetaChunkIndex,
	ChunkMetaTitle,
	ChunkMetaText,
	ChunkMetaChunkSize,
	ChunkMetaTotalChunks,
	ChunkMetaTokenCount,
	ChunkMetaSourceURL,
}

// 文字列であることを要求するキー
var stringKeys = []string{
	MetaType, MetaSource, MetaEmailID, MetaThreadID, MetaFromEmail,
	MetaToEmail, MetaDate, MetaProcessedAt, MetaCategory, MetaWebsite,
}

func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

func (m *Metadata) Scan(value any) error {
	var b []byte
	switch v := value.(type) {
	case []byte:
		b = v
	case string:
		b = []byte(v)
	default:
		return nil
	}
	return json.Unmarshal(b, m)
}

// Validate はドキュメントメタデータを境界で検証する
func (m Metadata) Validate() error {
	for _, key := range m.keys() {
		if key == "" {
			return fmt.Errorf("%w: metadata key must not be empty", ErrInvalidInput)
		}
		value := m[key]
		if slices.Contains(stringKeys, key) {
			if _, ok := value.(string); !ok && value != nil {
				return fmt.Errorf("%w: metadata %q must be a string (got %T)", ErrInvalidInput, key, value)
			}
		}
		if key == MetaLabels {
			if !isStringList(value) {
				return fmt.Errorf("%w: metadata %q must be a list of strings", ErrInvalidInput, key)
			}
		}
	}

	if t, ok := m[MetaType].(string); ok && !slices.Contains(DocumentTypes, t) {
		return fmt.Errorf("%w: unknown document type %q", ErrInvalidInput, t)
	}

	if _, err := json.Marshal(m); err != nil {
		return fmt.Errorf("%w: metadata is not JSON encodable: %v", ErrInvalidInput, err)
	}
	return nil
}

// ValidateExtra はチャンクに付与する追加メタデータが予約キーを上書きしないことを検証する
func (m Metadata) ValidateExtra() error {
	for _, key := range m.keys() {
		if slices.Contains(reservedChunkKeys, key) {
			return fmt.Errorf("%w: chunk metadata key %q is reserved", ErrInvalidInput, key)
		}
	}
	if _, err := json.Marshal(m); err != nil {
		return fmt.Errorf("%w: chunk metadata is not JSON encodable: %v", ErrInvalidInput, err)
	}
	return nil
}

// Clone はシャローコピーを返す
func (m Metadata) Clone() Metadata {
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// String は文字列値を取得する
func (m Metadata) String(key string) string {
	s, _ := m[key].(string)
	return s
}

// Int は数値を int として取得する（JSON 経由の float64 にも対応）
func (m Metadata) Int(key string) (int, bool) {
	switch v := m[key].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	}
	return 0, false
}

func (m Metadata) keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func isStringList(v any) bool {
	switch list := v.(type) {
	case nil:
		return true
	case []string:
		return true
	case []any:
		for _, item := range list {
			if _, ok := item.(string); !ok {
				return false
			}
		}
		return true
	}
	return false
}
