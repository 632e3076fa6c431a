package arxiv

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultBaseURL は arXiv API のクエリエンドポイント
	DefaultBaseURL = "https://export.arxiv.org/api/query"
	// DefaultMaxResults は1回の検索で取得する論文数のデフォルト
	DefaultMaxResults = 5
	// MaxResultsLimit は1リクエストで取得できる論文数の上限
	MaxResultsLimit = 2000

	defaultTimeout = 30 * time.Second
	// arXiv は連続リクエストの間隔を3秒以上空けるよう求めている
	requestInterval = 3 * time.Second
)

// ErrEmptyKeyword は検索キーワードが空の場合に返される
var ErrEmptyKeyword = errors.New("arxiv: empty search keyword")

// Client は arXiv API の検索クライアント
type Client struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// ClientOption は Client のオプション設定
type ClientOption func(*Client)

// WithBaseURL はエンドポイントを差し替える
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient は HTTP クライアントを差し替える
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimiter はリクエスト間隔の制御を差し替える
func WithRateLimiter(limiter *rate.Limiter) ClientOption {
	return func(c *Client) {
		c.limiter = limiter
	}
}

// WithLogger はロガーを設定する
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// NewClient は新しい Client を作成する
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: defaultTimeout},
		baseURL:    DefaultBaseURL,
		limiter:    rate.NewLimiter(rate.Every(requestInterval), 1),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search はキーワードを全フィールド検索し、Atom フィードを論文の一覧に変換する
func (c *Client) Search(ctx context.Context, keyword string, maxResults int) ([]Paper, error) {
	keyword = strings.TrimSpace(keyword)
	if keyword == "" {
		return nil, ErrEmptyKeyword
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}
	maxResults = min(maxResults, MaxResultsLimit)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("search_query", "all:"+keyword)
	query.Set("start", "0")
	query.Set("max_results", strconv.Itoa(maxResults))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+query.Encode(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create arxiv request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query arxiv: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("arxiv returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	papers, err := ParseFeed(resp.Body)
	if err != nil {
		return nil, err
	}
	c.logger.Info("arXiv の検索結果を取得しました", "keyword", keyword, "count", len(papers))
	return papers, nil
}

type atomFeed struct {
	Entries []atomEntry `xml:"http://www.w3.org/2005/Atom entry"`
}

type atomEntry struct {
	ID        string `xml:"http://www.w3.org/2005/Atom id"`
	Title     string `xml:"http://www.w3.org/2005/Atom title"`
	Summary   string `xml:"http://www.w3.org/2005/Atom summary"`
	Published string `xml:"http://www.w3.org/2005/Atom published"`
	Authors   []struct {
		Name string `xml:"http://www.w3.org/2005/Atom name"`
	} `xml:"http://www.w3.org/2005/Atom author"`
	PrimaryCategory struct {
		Term string `xml:"term,attr"`
	} `xml:"http://arxiv.org/schemas/atom primary_category"`
	Categories []struct {
		Term string `xml:"term,attr"`
	} `xml:"http://www.w3.org/2005/Atom category"`
}

// ParseFeed は arXiv API の Atom レスポンスを読み取る。ID の無いエントリは無視する
func ParseFeed(r io.Reader) ([]Paper, error) {
	var feed atomFeed
	if err := xml.NewDecoder(r).Decode(&feed); err != nil {
		return nil, fmt.Errorf("failed to parse arxiv feed: %w", err)
	}

	papers := make([]Paper, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		id := arxivID(e.ID)
		if id == "" {
			continue
		}

		p := Paper{
			ID:       id,
			Title:    collapseSpace(e.Title),
			Abstract: collapseSpace(e.Summary),
		}
		for _, a := range e.Authors {
			if name := strings.TrimSpace(a.Name); name != "" {
				p.Authors = append(p.Authors, name)
			}
		}
		if t, err := time.Parse(time.RFC3339, strings.TrimSpace(e.Published)); err == nil {
			p.PublishedAt = &t
		}

		if term := e.PrimaryCategory.Term; term != "" {
			p.Categories = append(p.Categories, term)
		}
		for _, cat := range e.Categories {
			if cat.Term != "" && !slices.Contains(p.Categories, cat.Term) {
				p.Categories = append(p.Categories, cat.Term)
			}
		}
		papers = append(papers, p)
	}
	return papers, nil
}

// arxivID はエントリの id（http://arxiv.org/abs/2401.01234v1 形式）から論文IDを取り出す
func arxivID(raw string) string {
	raw = strings.TrimSpace(raw)
	if i := strings.Index(raw, "/abs/"); i >= 0 {
		return raw[i+len("/abs/"):]
	}
	return raw
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
