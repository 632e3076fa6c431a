package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/jinford/article-rag/internal/core/ingestion"
	"github.com/jinford/article-rag/internal/infra/arxiv"
	"github.com/jinford/article-rag/internal/infra/csvsource"
	"github.com/jinford/article-rag/internal/infra/gmail"
)

// textInput は ingest text コマンドの入力
type textInput struct {
	URL       string
	Title     string
	File      string // "-" は標準入力
	Text      string
	Type      string
	Authors   []string
	Published string
}

// toDocument はフラグの値から DocumentInput を組み立てる
func (p textInput) toDocument(stdin io.Reader) (ingestion.DocumentInput, error) {
	if p.URL == "" {
		return ingestion.DocumentInput{}, errors.New("--url を指定してください")
	}
	if p.File != "" && p.Text != "" {
		return ingestion.DocumentInput{}, errors.New("--file と --text は同時に指定できません")
	}

	text := p.Text
	switch p.File {
	case "":
	case "-":
		b, err := io.ReadAll(stdin)
		if err != nil {
			return ingestion.DocumentInput{}, fmt.Errorf("標準入力の読み込みに失敗: %w", err)
		}
		text = string(b)
	default:
		b, err := os.ReadFile(p.File)
		if err != nil {
			return ingestion.DocumentInput{}, fmt.Errorf("ファイルの読み込みに失敗: %w", err)
		}
		text = string(b)
	}

	docType := p.Type
	if docType == "" {
		docType = "article"
	}

	published, err := parseTimeFlag(p.Published)
	if err != nil {
		return ingestion.DocumentInput{}, fmt.Errorf("--published の形式が不正です: %w", err)
	}

	return ingestion.DocumentInput{
		SourceURL:   p.URL,
		Title:       p.Title,
		Text:        text,
		Authors:     p.Authors,
		PublishedAt: published,
		Metadata: ingestion.Metadata{
			ingestion.MetaType:   docType,
			ingestion.MetaSource: "manual",
		},
	}, nil
}

// IngestTextAction はテキスト（またはファイル）を1件取り込むコマンドのアクション
func IngestTextAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	input, err := textInput{
		URL:       cmd.String("url"),
		Title:     cmd.String("title"),
		File:      cmd.String("file"),
		Text:      cmd.String("text"),
		Type:      cmd.String("type"),
		Authors:   cmd.StringSlice("author"),
		Published: cmd.String("published"),
	}.toDocument(os.Stdin)
	if err != nil {
		return err
	}

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	w := stdout(cmd)
	result, err := appCtx.Container.Pipeline.Ingest(ctx, input)
	if err != nil {
		if errors.Is(err, ingestion.ErrNoContent) {
			fmt.Fprintln(w, "本文が空のためスキップしました")
			return nil
		}
		return fmt.Errorf("取り込みに失敗: %w", err)
	}

	printIngestResult(w, result)
	if !result.Complete() {
		return fmt.Errorf("%d 件のチャンクの保存に失敗しました", len(result.Failures))
	}
	return nil
}

// IngestGmailAction は Gmail のメッセージを取り込むコマンドのアクション
func IngestGmailAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	gcfg := appCtx.Config.Gmail
	query := gcfg.Query
	if cmd.IsSet("query") {
		query = cmd.String("query")
	}
	maxResults := gcfg.MaxResults
	if cmd.IsSet("max") {
		maxResults = cmd.Int("max")
	}

	svc, err := gmail.NewService(ctx, gmail.Config{
		TokenFile:       gcfg.TokenFile,
		CredentialsFile: gcfg.CredentialsFile,
	})
	if err != nil {
		return fmt.Errorf("Gmail への接続に失敗: %w", err)
	}
	reader := gmail.NewReader(svc, gmail.WithUser(gcfg.User), gmail.WithReaderLogger(appCtx.Logger()))

	slog.Info("Gmail の取り込みを開始", "query", query, "max", maxResults)
	docs, err := reader.Read(ctx, query, maxResults)
	if err != nil {
		return fmt.Errorf("メッセージの読み込みに失敗: %w", err)
	}

	return runBatch(ctx, cmd, appCtx, docs)
}

// IngestCompaniesAction は企業一覧CSVを取り込むコマンドのアクション
func IngestCompaniesAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	path := cmd.String("file")

	companies, err := csvsource.ReadFile(path, csvsource.Options{
		StartRow: cmd.Int("start-row"),
		MaxRows:  cmd.Int("max-rows"),
	})
	if err != nil {
		return err
	}
	slog.Info("CSVを読み込みました", "file", path, "rows", len(companies))

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	return runBatch(ctx, cmd, appCtx, csvsource.ToDocuments(companies, time.Now()))
}

// IngestArxivAction は arXiv の検索結果を取り込むコマンドのアクション
func IngestArxivAction(ctx context.Context, cmd *cli.Command) error {
	envFile := cmd.String("env")
	keyword := cmd.String("keyword")

	appCtx, err := NewAppContext(ctx, envFile)
	if err != nil {
		return err
	}
	defer appCtx.Close()

	client := arxiv.NewClient(arxiv.WithLogger(appCtx.Logger()))
	papers, err := client.Search(ctx, keyword, cmd.Int("max"))
	if err != nil {
		return fmt.Errorf("arXiv の検索に失敗: %w", err)
	}

	now := time.Now()
	docs := make([]ingestion.DocumentInput, 0, len(papers))
	for _, p := range papers {
		docs = append(docs, p.ToDocument(keyword, now))
	}
	return runBatch(ctx, cmd, appCtx, docs)
}

func runBatch(ctx context.Context, cmd *cli.Command, appCtx *AppContext, docs []ingestion.DocumentInput) error {
	w := stdout(cmd)
	if len(docs) == 0 {
		fmt.Fprintln(w, "取り込むドキュメントがありません")
		return nil
	}

	report := appCtx.Container.Pipeline.IngestBatch(ctx, docs)
	printBatchReport(w, report)
	return batchError(report)
}

// batchError は失敗した項目がある場合にエラーを返す（スキップは失敗に含めない）
func batchError(report *ingestion.BatchReport) error {
	if len(report.Failed) == 0 {
		return nil
	}
	urls := make([]string, 0, len(report.Failed))
	for _, f := range report.Failed {
		urls = append(urls, f.SourceURL)
	}
	return fmt.Errorf("%d/%d 件の取り込みに失敗しました: %s", len(report.Failed), report.Total(), strings.Join(urls, ", "))
}
