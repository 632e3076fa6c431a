package testing

import (
	"context"
	"strings"

	"github.com/jinford/article-rag/internal/core/ingestion"
)

// TestArticle はテスト用の記事入力を生成します
func TestArticle(sourceURL, title, text string) ingestion.DocumentInput {
	return ingestion.DocumentInput{
		SourceURL: sourceURL,
		Title:     title,
		Text:      text,
		Metadata: ingestion.Metadata{
			ingestion.MetaType:   "article",
			ingestion.MetaSource: "manual",
		},
	}
}

// TestEmail はテスト用のメール入力を生成します
func TestEmail(messageID, subject, body string) ingestion.DocumentInput {
	return ingestion.DocumentInput{
		SourceURL: "gmail://" + messageID,
		Title:     subject,
		Text:      body,
		Metadata: ingestion.Metadata{
			ingestion.MetaType:      "email",
			ingestion.MetaSource:    "gmail",
			ingestion.MetaEmailID:   messageID,
			ingestion.MetaFromEmail: "sender@example.com",
		},
	}
}

// LongText は文末を含む文章を n 回繰り返したテキストを返します
func LongText(n int) string {
	var b strings.Builder
	for i := range n {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString("The quick brown fox jumps over the lazy dog.")
	}
	return b.String()
}

// FixedTokenCounter は常に同じトークン数を返す TokenCounter です
type FixedTokenCounter int

func (c FixedTokenCounter) CountTokens(string) int { return int(c) }

// FailOnText は text に substr を含むチャンクの保存を失敗させる UpsertFunc を返します
func FailOnText(substr string, err error) func(*ingestion.ChunkEmbedding) error {
	return func(e *ingestion.ChunkEmbedding) error {
		if strings.Contains(e.Text, substr) {
			return err
		}
		return nil
	}
}

// FailOnIndex は指定インデックスのチャンクの保存を失敗させる UpsertFunc を返します
func FailOnIndex(index int, err error) func(*ingestion.ChunkEmbedding) error {
	return func(e *ingestion.ChunkEmbedding) error {
		if e.ChunkIndex == index {
			return err
		}
		return nil
	}
}

// WrongDimensionEmbedding は次元数 dim と異なる長さのベクトルを返す EmbedFunc を返します
func WrongDimensionEmbedding(dim int) func(context.Context, string) ([]float32, error) {
	return func(context.Context, string) ([]float32, error) {
		return make([]float32, dim+1), nil
	}
}
