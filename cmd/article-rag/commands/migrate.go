package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/jinford/article-rag/internal/platform/container"
	"github.com/jinford/article-rag/internal/platform/database"
)

// MigrateAction はスキーマを適用するコマンドのアクション。
// Embedding は使わないため OpenAI の設定は検証しない。
func MigrateAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	cfg, err := loadConfig(envFile)
	if err != nil {
		return err
	}

	dimension := cfg.OpenAI.EmbeddingDimension
	slog.Info("マイグレーションを開始", "dimension", dimension)

	pool, err := database.Open(ctx, container.ConnectionParams(cfg))
	if err != nil {
		return fmt.Errorf("データベース接続に失敗: %w", err)
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, dimension); err != nil {
		return fmt.Errorf("マイグレーションに失敗: %w", err)
	}

	slog.Info("マイグレーションが完了しました")
	fmt.Fprintf(stdout(cmd), "✓ スキーマを適用しました（ベクトル次元: %d）\n", dimension)
	return nil
}
