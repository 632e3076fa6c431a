package chunk

import (
	"fmt"
	"iter"
	"strings"
	"unicode"
)

const (
	// DefaultSize はチャンクの目標文字数（rune 単位）
	DefaultSize = 1000
	// DefaultOverlap は隣接チャンク間で重複させる文字数
	DefaultOverlap = 200
	// DefaultLookahead は文末探索を行う境界前後の幅
	DefaultLookahead = 100
)

// Piece はテキストから切り出した1チャンクを表す。
// Start/End は rune 単位のオフセットで、Text は text[Start:End] と一致する。
type Piece struct {
	Index int
	Start int
	End   int
	Text  string
}

// CharLength はチャンクの文字数を返す
func (p Piece) CharLength() int {
	return p.End - p.Start
}

// Chunker は文末を意識したオーバーラップ付きの固定長チャンカー
type Chunker struct {
	size      int
	overlap   int
	lookahead int
}

// Option は Chunker のオプション設定
type Option func(*Chunker)

// WithLookahead は文末探索幅を上書きする（0 以下は境界調整なし）
func WithLookahead(n int) Option {
	return func(c *Chunker) {
		c.lookahead = max(n, 0)
	}
}

// NewChunker は新しい Chunker を作成する
func NewChunker(size, overlap int, opts ...Option) (*Chunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size must be > 0 (got %d)", ErrInvalidConfig, size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("%w: overlap must satisfy 0 <= overlap < size (got %d, size %d)", ErrInvalidConfig, overlap, size)
	}

	c := &Chunker{
		size:      size,
		overlap:   overlap,
		lookahead: DefaultLookahead,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Size はチャンクの目標文字数を返す
func (c *Chunker) Size() int { return c.size }

// Overlap は重複文字数を返す
func (c *Chunker) Overlap() int { return c.overlap }

// Chunks はテキストを遅延評価でチャンク化するシーケンスを返す。
// 同じテキストに対して何度 range しても同じ結果になる。
func (c *Chunker) Chunks(text string) iter.Seq[Piece] {
	return func(yield func(Piece) bool) {
		if IsBlank(text) {
			return
		}

		runes := []rune(text)
		n := len(runes)

		if n <= c.size {
			yield(Piece{Index: 0, Start: 0, End: n, Text: text})
			return
		}

		start := 0
		for index := 0; ; index++ {
			end := c.boundary(runes, start)
			if !yield(Piece{Index: index, Start: start, End: end, Text: string(runes[start:end])}) {
				return
			}
			if end >= n {
				return
			}
			start = end - c.overlap
		}
	}
}

// Split はチャンクをスライスとして返す
func (c *Chunker) Split(text string) []Piece {
	var pieces []Piece
	for p := range c.Chunks(text) {
		pieces = append(pieces, p)
	}
	return pieces
}

// boundary は start から始まるチャンクの終端を決める。
// 戻り値は必ず start+overlap より大きい（次のチャンクが前進することを保証する）。
// 探索幅は (size-overlap)/2 を上限とし、後方へは start+size/2 より手前に戻らない。
func (c *Chunker) boundary(runes []rune, start int) int {
	n := len(runes)
	raw := start + c.size
	if raw >= n {
		return n
	}

	la := min(c.lookahead, (c.size-c.overlap)/2)
	if la <= 0 {
		return raw
	}

	floor := max(start+c.overlap, start+c.size/2) // 終端はこの位置より後ろでなければならない

	// 後方探索: 終端候補 e = i+1 (runes[i] が文末記号)
	back := -1
	for i := raw - 1; i >= raw-la && i+1 > floor; i-- {
		if isTerminator(runes[i]) {
			back = i + 1
			break
		}
	}

	// 前方探索
	forward := -1
	for i := raw; i < raw+la && i < n; i++ {
		if isTerminator(runes[i]) {
			forward = i + 1
			break
		}
	}

	switch {
	case back < 0 && forward < 0:
		return raw
	case back < 0:
		return forward
	case forward < 0:
		return back
	case forward-raw < raw-back:
		return forward
	default:
		return back
	}
}

func isTerminator(r rune) bool {
	switch r {
	case '.', '!', '?', '\n':
		return true
	}
	return false
}

// IsBlank はテキストが空または空白のみかを判定する
func IsBlank(text string) bool {
	return strings.IndexFunc(text, func(r rune) bool { return !unicode.IsSpace(r) }) < 0
}
