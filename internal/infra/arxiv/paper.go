package arxiv

import (
	"time"

	"github.com/jinford/article-rag/internal/core/ingestion"
)

// arXiv 論文固有のメタデータキー
const (
	MetaArxivID       = "arxiv_id"
	MetaCategories    = "categories"
	MetaSearchKeyword = "search_keyword"
)

// Paper は検索結果の1論文
type Paper struct {
	ID          string
	Title       string
	Abstract    string
	Authors     []string
	PublishedAt *time.Time
	Categories  []string
}

// URL は論文の abstract ページのURLを返す
func (p Paper) URL() string {
	return "https://arxiv.org/abs/" + p.ID
}

// Text はタイトルと要旨を結合した埋め込み用の本文を返す
func (p Paper) Text() string {
	return "Title: " + p.Title + "\n\nAbstract: " + p.Abstract
}

// ToDocument は論文を取り込み用ドキュメントに変換する
func (p Paper) ToDocument(keyword string, processedAt time.Time) ingestion.DocumentInput {
	categories := p.Categories
	if categories == nil {
		categories = []string{}
	}
	return ingestion.DocumentInput{
		SourceURL:   p.URL(),
		Title:       p.Title,
		Text:        p.Text(),
		Authors:     p.Authors,
		PublishedAt: p.PublishedAt,
		Metadata: ingestion.Metadata{
			ingestion.MetaType:        "paper",
			ingestion.MetaSource:      "arxiv",
			MetaArxivID:               p.ID,
			MetaCategories:            categories,
			MetaSearchKeyword:         keyword,
			ingestion.MetaProcessedAt: processedAt.UTC().Format(time.RFC3339),
		},
	}
}
