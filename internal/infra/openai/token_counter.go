package openai

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jinford/article-rag/internal/core/ingestion"
)

// DefaultTokenEncoding は text-embedding-3 系モデルのトークナイザ
const DefaultTokenEncoding = "cl100k_base"

// TokenCounter は tiktoken を利用した TokenCounter 実装
type TokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenCounter は cl100k_base のエンコーディングで TokenCounter を作成する
func NewTokenCounter() (*TokenCounter, error) {
	enc, err := tiktoken.GetEncoding(DefaultTokenEncoding)
	if err != nil {
		return nil, fmt.Errorf("failed to load tiktoken encoding: %w", err)
	}
	return &TokenCounter{encoding: enc}, nil
}

// CountTokens はテキストのトークン数を返す
func (t *TokenCounter) CountTokens(text string) int {
	if t.encoding == nil {
		return 0
	}
	return len(t.encoding.Encode(text, nil, nil))
}

var _ ingestion.TokenCounter = (*TokenCounter)(nil)
