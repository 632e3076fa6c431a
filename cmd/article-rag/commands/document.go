package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/samber/mo"
	"github.com/urfave/cli/v3"

	"github.com/jinford/article-rag/internal/core/ingestion"
	"github.com/jinford/article-rag/internal/platform/database"
)

// DocumentShowAction はドキュメント詳細を表示するコマンドのアクション
func DocumentShowAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	idStr := cmd.String("id")
	sourceURL := cmd.String("url")
	if (idStr == "") == (sourceURL == "") {
		return errors.New("--id または --url のどちらか一方を指定してください")
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	var found mo.Option[*ingestion.Document]
	if idStr != "" {
		id, err := uuid.Parse(idStr)
		if err != nil {
			return fmt.Errorf("ドキュメントIDの形式が不正です: %w", err)
		}
		found, err = appCtx.Container.Documents.GetDocument(ctx, id)
		if err != nil {
			return err
		}
	} else {
		found, err = appCtx.Container.Documents.GetDocumentByURL(ctx, sourceURL)
		if err != nil {
			return err
		}
	}

	doc, ok := found.Get()
	if !ok {
		return fmt.Errorf("ドキュメントが見つかりません: %w", ingestion.ErrNotFound)
	}

	chunks, err := appCtx.Container.Vectors.ListChunkEmbeddings(ctx, doc.ID)
	if err != nil {
		return err
	}

	w := stdout(cmd)
	if cmd.String("format") == "json" {
		return writeJSON(w, map[string]any{"document": doc, "chunks": chunks})
	}
	printDocument(w, doc, chunks, cmd.Bool("chunks"))
	return nil
}

// DocumentListAction はドキュメント一覧を表示するコマンドのアクション
func DocumentListAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	filter := ingestion.DocumentFilter{Limit: cmd.Int("limit")}
	if domain := cmd.String("domain"); domain != "" {
		filter.Domain = &domain
	}
	since, err := parseTimeFlag(cmd.String("since"))
	if err != nil {
		return fmt.Errorf("--since の形式が不正です: %w", err)
	}
	until, err := parseTimeFlag(cmd.String("until"))
	if err != nil {
		return fmt.Errorf("--until の形式が不正です: %w", err)
	}
	filter.Since, filter.Until = since, until

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	docs, err := appCtx.Container.Documents.ListDocuments(ctx, filter)
	if err != nil {
		return err
	}

	w := stdout(cmd)
	if cmd.String("format") == "json" {
		return writeJSON(w, docs)
	}
	if len(docs) == 0 {
		fmt.Fprintln(w, "ドキュメントはありません")
		return nil
	}
	return printDocumentTable(w, docs)
}

// DocumentDeleteAction はドキュメントとそのチャンクを削除するコマンドのアクション
func DocumentDeleteAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	id, err := uuid.Parse(cmd.String("id"))
	if err != nil {
		return fmt.Errorf("ドキュメントIDの形式が不正です: %w", err)
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	// 同じドキュメントに対する削除を直列化し、チャンクは外部キーのカスケードで同一トランザクション内に消える
	purged, err := database.Transact(ctx, appCtx.Container.Transactions, func(a *database.Adapter) (int, error) {
		if err := a.Locks.Acquire(ctx, database.GenerateLockID("document", id.String())); err != nil {
			return 0, err
		}
		chunks, err := a.Vectors.ListChunkEmbeddings(ctx, id)
		if err != nil {
			return 0, err
		}
		if err := a.Documents.DeleteDocument(ctx, id); err != nil {
			return 0, err
		}
		return len(chunks), nil
	})
	if err != nil {
		return fmt.Errorf("ドキュメントの削除に失敗: %w", err)
	}

	appCtx.Logger().Info("ドキュメントを削除しました", "id", id, "chunks", purged)
	fmt.Fprintf(stdout(cmd), "✓ ドキュメント %s を削除しました（チャンク %d 件）\n", id, purged)
	return nil
}
