package ingestion

import (
	"errors"
	"fmt"
)

var (
	// ErrNoContent は本文が空（または空白のみ）の場合に返される。エラーではなくスキップ扱い。
	ErrNoContent = errors.New("no content")

	// ErrNotFound はドキュメントやチャンクが存在しない場合に返される
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput は入力値が不正な場合に返される
	ErrInvalidInput = errors.New("invalid input")
)

// ErrorKind は項目単位の失敗の分類
type ErrorKind string

const (
	KindNoContent    ErrorKind = "no_content"
	KindInvalidInput ErrorKind = "invalid_input"
	KindStorage      ErrorKind = "storage_failure"
	KindEmbedding    ErrorKind = "embedding_failure"
	KindNotFound     ErrorKind = "not_found"
)

// Error は分類付きのエラー
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError は新しい Error を作成する
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf はエラーの分類を返す。分類されていないエラーは KindStorage とみなす。
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	switch {
	case errors.Is(err, ErrNoContent):
		return KindNoContent
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	}
	return KindStorage
}
