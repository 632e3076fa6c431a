package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/jinford/article-rag/internal/infra/postgres"
)

// TransactionProvider は pgx のトランザクションをコールバックの背後に隠し、
// トランザクション内で動作するリポジトリを渡します。
type TransactionProvider struct {
	pool *pgxpool.Pool
}

// NewTransactionProvider は新しいTransactionProviderを作成します
func NewTransactionProvider(pool *pgxpool.Pool) *TransactionProvider {
	return &TransactionProvider{pool: pool}
}

// Adapter は単一トランザクション内で動作するリポジトリの束です
type Adapter struct {
	Tx        pgx.Tx
	Documents *postgres.DocumentRepository
	Vectors   *postgres.VectorRepository
	Locks     *LockManager
}

func newAdapter(tx pgx.Tx) *Adapter {
	return &Adapter{
		Tx:        tx,
		Documents: postgres.NewDocumentRepository(tx),
		Vectors:   postgres.NewVectorRepository(tx),
		Locks:     NewLockManager(tx),
	}
}

// Transact はトランザクションを開始し、fn が成功すればコミット、失敗すればロールバックします
func Transact[T any](ctx context.Context, p *TransactionProvider, fn func(*Adapter) (T, error)) (T, error) {
	var zero T
	tx, err := p.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return zero, fmt.Errorf("failed to begin transaction: %w", err)
	}

	result, err := fn(newAdapter(tx))
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return zero, fmt.Errorf("tx rollback failed: %v (original err: %w)", rbErr, err)
		}
		return zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return zero, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return result, nil
}
