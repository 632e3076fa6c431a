package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/samber/mo"

	"github.com/jinford/article-rag/internal/core/ingestion"
)

// DefaultListLimit は ListDocuments の Limit 未指定時の件数
const DefaultListLimit = 100

const documentColumns = `id, url, domain, title, authors, published_at, text, metadata, created_at, updated_at`

// DocumentRepository は ingestion.DocumentStore を実装する PostgreSQL リポジトリです
type DocumentRepository struct {
	db DBTX
}

// NewDocumentRepository は新しい DocumentRepository を作成します
func NewDocumentRepository(db DBTX) *DocumentRepository {
	return &DocumentRepository{db: db}
}

// コンパイル時の型チェック
var _ ingestion.DocumentStore = (*DocumentRepository)(nil)

const upsertDocumentSQL = `
INSERT INTO documents (id, url, domain, title, authors, published_at, text, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (url) DO UPDATE SET
    domain       = EXCLUDED.domain,
    title        = EXCLUDED.title,
    authors      = EXCLUDED.authors,
    published_at = EXCLUDED.published_at,
    text         = EXCLUDED.text,
    metadata     = EXCLUDED.metadata,
    updated_at   = now()
RETURNING id, (xmax = 0) AS created`

// UpsertDocument は url を競合キーとしてドキュメントを挿入または更新します。
// 既存行がある場合はその ID を返し、入力の ID は使われません。
func (r *DocumentRepository) UpsertDocument(ctx context.Context, input ingestion.DocumentInput) (ingestion.UpsertResult, error) {
	const op = "upsert document"

	id := input.ID
	if id == uuid.Nil {
		id = uuid.New()
	}

	var (
		returned pgtype.UUID
		created  bool
	)
	err := r.db.QueryRow(ctx, upsertDocumentSQL,
		UUIDToPgtype(id),
		input.SourceURL,
		ingestion.DomainOf(input.SourceURL),
		input.Title,
		NonNilStrings(input.Authors),
		TimePtrToPgtimestamptz(input.PublishedAt),
		input.Text,
		NonNilMetadata(input.Metadata),
	).Scan(&returned, &created)
	if err != nil {
		return ingestion.UpsertResult{}, ingestion.NewError(ingestion.KindStorage, op,
			fmt.Errorf("failed to upsert document %s: %w", input.SourceURL, err))
	}

	return ingestion.UpsertResult{ID: PgtypeToUUID(returned), Created: created}, nil
}

// GetDocument はIDでドキュメントを取得します。存在しない場合は mo.None を返します
func (r *DocumentRepository) GetDocument(ctx context.Context, id uuid.UUID) (mo.Option[*ingestion.Document], error) {
	row := r.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = $1`, UUIDToPgtype(id))

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*ingestion.Document](), nil
		}
		return mo.None[*ingestion.Document](), ingestion.NewError(ingestion.KindStorage, "get document",
			fmt.Errorf("failed to get document %s: %w", id, err))
	}
	return mo.Some(doc), nil
}

// GetDocumentByURL はソースURLでドキュメントを取得します
func (r *DocumentRepository) GetDocumentByURL(ctx context.Context, sourceURL string) (mo.Option[*ingestion.Document], error) {
	row := r.db.QueryRow(ctx, `SELECT `+documentColumns+` FROM documents WHERE url = $1`, sourceURL)

	doc, err := scanDocument(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return mo.None[*ingestion.Document](), nil
		}
		return mo.None[*ingestion.Document](), ingestion.NewError(ingestion.KindStorage, "get document",
			fmt.Errorf("failed to get document %s: %w", sourceURL, err))
	}
	return mo.Some(doc), nil
}

// ListDocuments は domain / created_at の等価・範囲条件で新しい順に一覧を返します
func (r *DocumentRepository) ListDocuments(ctx context.Context, filter ingestion.DocumentFilter) ([]*ingestion.Document, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Domain != nil {
		args = append(args, *filter.Domain)
		conds = append(conds, fmt.Sprintf("domain = $%d", len(args)))
	}
	if filter.Since != nil {
		args = append(args, *filter.Since)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filter.Until != nil {
		args = append(args, *filter.Until)
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	args = append(args, limit)

	var sb strings.Builder
	sb.WriteString(`SELECT ` + documentColumns + ` FROM documents`)
	if len(conds) > 0 {
		sb.WriteString(" WHERE " + strings.Join(conds, " AND "))
	}
	fmt.Fprintf(&sb, " ORDER BY created_at DESC, id LIMIT $%d", len(args))

	rows, err := r.db.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, ingestion.NewError(ingestion.KindStorage, "list documents", fmt.Errorf("failed to list documents: %w", err))
	}
	defer rows.Close()

	var docs []*ingestion.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, ingestion.NewError(ingestion.KindStorage, "list documents", fmt.Errorf("failed to scan document: %w", err))
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, ingestion.NewError(ingestion.KindStorage, "list documents", err)
	}
	return docs, nil
}

// DeleteDocument はドキュメントを削除します。チャンクは外部キーの ON DELETE CASCADE で削除されます
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM documents WHERE id = $1`, UUIDToPgtype(id))
	if err != nil {
		return ingestion.NewError(ingestion.KindStorage, "delete document", fmt.Errorf("failed to delete document %s: %w", id, err))
	}
	if tag.RowsAffected() == 0 {
		return ingestion.NewError(ingestion.KindNotFound, "delete document", fmt.Errorf("document %s: %w", id, ingestion.ErrNotFound))
	}
	return nil
}

func scanDocument(row pgx.Row) (*ingestion.Document, error) {
	var (
		id          pgtype.UUID
		publishedAt pgtype.Timestamptz
		doc         ingestion.Document
	)
	err := row.Scan(
		&id,
		&doc.SourceURL,
		&doc.Domain,
		&doc.Title,
		&doc.Authors,
		&publishedAt,
		&doc.Text,
		&doc.Metadata,
		&doc.CreatedAt,
		&doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	doc.ID = PgtypeToUUID(id)
	doc.PublishedAt = PgtimestamptzToTimePtr(publishedAt)
	return &doc, nil
}
