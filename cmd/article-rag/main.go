package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/jinford/article-rag/cmd/article-rag/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "article-rag",
		Usage: "記事・メール・企業情報を取り込み、ベクトル検索するための RAG 基盤",
		Commands: []*cli.Command{
			{
				Name:   "migrate",
				Usage:  "データベーススキーマを適用",
				Flags:  []cli.Flag{envFlag()},
				Action: commands.MigrateAction,
			},
			{
				Name:  "ingest",
				Usage: "ドキュメント取り込みコマンド",
				Commands: []*cli.Command{
					{
						Name:  "text",
						Usage: "テキストまたはファイルを1件取り込む",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "url",
								Usage:    "ドキュメントのソースURL（一意キー）",
								Required: true,
							},
							&cli.StringFlag{
								Name:  "title",
								Usage: "タイトル",
							},
							&cli.StringFlag{
								Name:  "file",
								Usage: "本文ファイルのパス（- で標準入力）",
							},
							&cli.StringFlag{
								Name:  "text",
								Usage: "本文",
							},
							&cli.StringFlag{
								Name:  "type",
								Usage: "ドキュメント種別（article, email, company, paper, note）",
								Value: "article",
							},
							&cli.StringSliceFlag{
								Name:  "author",
								Usage: "著者（複数指定可）",
							},
							&cli.StringFlag{
								Name:  "published",
								Usage: "公開日時（RFC3339 または YYYY-MM-DD）",
							},
						},
						Action: commands.IngestTextAction,
					},
					{
						Name:  "gmail",
						Usage: "Gmail のメッセージを取り込む",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:  "query",
								Usage: "Gmail の検索クエリ（省略時は GMAIL_QUERY）",
							},
							&cli.IntFlag{
								Name:  "max",
								Usage: "取得する最大件数（省略時は GMAIL_MAX_RESULTS）",
							},
						},
						Action: commands.IngestGmailAction,
					},
					{
						Name:  "companies",
						Usage: "企業一覧CSVを取り込む",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "file",
								Usage:    "CSVファイルのパス",
								Required: true,
							},
							&cli.IntFlag{
								Name:  "start-row",
								Usage: "読み込みを開始するデータ行（0始まり）",
							},
							&cli.IntFlag{
								Name:  "max-rows",
								Usage: "読み込む最大行数（0 は無制限）",
							},
						},
						Action: commands.IngestCompaniesAction,
					},
					{
						Name:  "arxiv",
						Usage: "arXiv の論文を検索して取り込む",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "keyword",
								Usage:    "検索キーワード",
								Required: true,
							},
							&cli.IntFlag{
								Name:  "max",
								Usage: "取得する最大件数",
								Value: 5,
							},
						},
						Action: commands.IngestArxivAction,
					},
				},
			},
			{
				Name:  "document",
				Usage: "ドキュメント管理コマンド",
				Commands: []*cli.Command{
					{
						Name:  "show",
						Usage: "ドキュメント詳細を表示",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:  "id",
								Usage: "ドキュメントID",
							},
							&cli.StringFlag{
								Name:  "url",
								Usage: "ソースURL",
							},
							&cli.BoolFlag{
								Name:  "chunks",
								Usage: "チャンク本文も表示",
							},
							formatFlag(),
						},
						Action: commands.DocumentShowAction,
					},
					{
						Name:  "list",
						Usage: "ドキュメント一覧を表示",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:  "domain",
								Usage: "ドメイン（絞り込み）",
							},
							&cli.StringFlag{
								Name:  "since",
								Usage: "この日時以降に作成されたもの",
							},
							&cli.StringFlag{
								Name:  "until",
								Usage: "この日時より前に作成されたもの",
							},
							&cli.IntFlag{
								Name:  "limit",
								Usage: "最大件数",
								Value: 50,
							},
							formatFlag(),
						},
						Action: commands.DocumentListAction,
					},
					{
						Name:  "delete",
						Usage: "ドキュメントとチャンクを削除",
						Flags: []cli.Flag{
							envFlag(),
							&cli.StringFlag{
								Name:     "id",
								Usage:    "ドキュメントID",
								Required: true,
							},
						},
						Action: commands.DocumentDeleteAction,
					},
				},
			},
			{
				Name:  "search",
				Usage: "セマンティック検索",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:     "query",
						Aliases:  []string{"q"},
						Usage:    "検索クエリ",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "top-k",
						Usage: "取得件数（省略時は SEARCH_TOP_K）",
					},
					&cli.StringFlag{
						Name:  "type",
						Usage: "ドキュメント種別（絞り込み）",
					},
					&cli.StringFlag{
						Name:  "domain",
						Usage: "ドメイン（絞り込み）",
					},
					&cli.StringFlag{
						Name:  "document",
						Usage: "ドキュメントID（絞り込み）",
					},
					&cli.BoolFlag{
						Name:  "group",
						Usage: "ドキュメント単位でまとめて表示",
					},
					formatFlag(),
				},
				Action: commands.SearchAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "環境変数ファイルパス",
		Value: ".env",
	}
}

func formatFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "format",
		Usage: "出力形式（text, json）",
		Value: "text",
	}
}
