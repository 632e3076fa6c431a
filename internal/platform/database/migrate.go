package database

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"text/template"

	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

var schemaTemplate = template.Must(template.New("schema").Parse(schemaSQL))

// maxIndexedDimension は HNSW インデックスが扱えるベクトル次元数の上限
const maxIndexedDimension = 2000

// RenderSchema はベクトル次元数を埋め込んだスキーマ DDL を返します
func RenderSchema(dimension int) (string, error) {
	if dimension <= 0 || dimension > maxIndexedDimension {
		return "", fmt.Errorf("embedding dimension must be in 1..%d (got %d)", maxIndexedDimension, dimension)
	}
	var buf bytes.Buffer
	if err := schemaTemplate.Execute(&buf, struct{ Dimension int }{dimension}); err != nil {
		return "", fmt.Errorf("failed to render schema: %w", err)
	}
	return buf.String(), nil
}

// Migrate はスキーマを適用します。複数プロセスからの同時実行はアドバイザリロックで直列化されます
func Migrate(ctx context.Context, pool *pgxpool.Pool, dimension int) error {
	ddl, err := RenderSchema(dimension)
	if err != nil {
		return err
	}

	_, err = Transact(ctx, NewTransactionProvider(pool), func(a *Adapter) (struct{}, error) {
		if err := a.Locks.Acquire(ctx, GenerateLockID("article-rag", "migrate")); err != nil {
			return struct{}{}, err
		}
		if _, err := a.Tx.Exec(ctx, ddl); err != nil {
			return struct{}{}, fmt.Errorf("failed to apply schema: %w", err)
		}
		return struct{}{}, nil
	})
	return err
}
