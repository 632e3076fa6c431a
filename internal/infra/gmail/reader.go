package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/time/rate"
	gmailv1 "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/jinford/article-rag/internal/core/ingestion"
)

var (
	// ErrTokenNotFound はOAuthトークンファイルが存在しない場合に返される
	ErrTokenNotFound = errors.New("gmail token file not found")
	// ErrCredentialsNotFound はOAuthクライアント資格情報ファイルが存在しない場合に返される
	ErrCredentialsNotFound = errors.New("gmail credentials file not found")
)

const (
	// DefaultUser は認証済みユーザー自身を表す
	DefaultUser = "me"
	// DefaultMaxResults は1回の取り込みで読むメッセージ数のデフォルト
	DefaultMaxResults = 10
	// maxPageSize は users.messages.list の1ページの上限
	maxPageSize = 500

	defaultRequestsPerSecond = 2.0
	defaultBurst             = 5
)

// Config は Gmail API への接続設定
type Config struct {
	TokenFile       string
	CredentialsFile string
	User            string
	Query           string
	MaxResults      int
}

// NewService は保存済みトークンから Gmail API サービスを作成する。
// ログインフローは持たず、トークンファイルが無い場合は ErrTokenNotFound を返す。
func NewService(ctx context.Context, cfg Config, opts ...option.ClientOption) (*gmailv1.Service, error) {
	tokenJSON, err := os.ReadFile(cfg.TokenFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTokenNotFound, cfg.TokenFile)
		}
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(tokenJSON, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token file %s: %w", cfg.TokenFile, err)
	}

	credentials, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrCredentialsNotFound, cfg.CredentialsFile)
		}
		return nil, fmt.Errorf("failed to read credentials file: %w", err)
	}
	oauthConfig, err := google.ConfigFromJSON(credentials, gmailv1.GmailReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("failed to parse credentials file %s: %w", cfg.CredentialsFile, err)
	}

	opts = append([]option.ClientOption{option.WithTokenSource(oauthConfig.TokenSource(ctx, &token))}, opts...)
	svc, err := gmailv1.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gmail service: %w", err)
	}
	return svc, nil
}

// Reader は Gmail のメッセージを取り込み用ドキュメントとして読み出す
type Reader struct {
	svc     *gmailv1.Service
	user    string
	limiter *rate.Limiter
	logger  *slog.Logger
	now     func() time.Time
}

// ReaderOption は Reader のオプション設定
type ReaderOption func(*Reader)

// WithUser は対象ユーザーIDを設定する
func WithUser(user string) ReaderOption {
	return func(r *Reader) {
		if user != "" {
			r.user = user
		}
	}
}

// WithRateLimiter は API 呼び出しのレート制限を差し替える
func WithRateLimiter(limiter *rate.Limiter) ReaderOption {
	return func(r *Reader) {
		r.limiter = limiter
	}
}

// WithReaderLogger はロガーを設定する
func WithReaderLogger(logger *slog.Logger) ReaderOption {
	return func(r *Reader) {
		r.logger = logger
	}
}

// WithClock は processed_at に使う時計を差し替える
func WithClock(now func() time.Time) ReaderOption {
	return func(r *Reader) {
		r.now = now
	}
}

// NewReader は新しい Reader を作成する
func NewReader(svc *gmailv1.Service, opts ...ReaderOption) *Reader {
	r := &Reader{
		svc:     svc,
		user:    DefaultUser,
		limiter: rate.NewLimiter(rate.Limit(defaultRequestsPerSecond), defaultBurst),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Read は query に一致するメッセージを最大 maxResults 件読み、本文のあるものを返す。
// 個別メッセージの取得失敗は警告ログを出してスキップする。
func (r *Reader) Read(ctx context.Context, query string, maxResults int) ([]ingestion.DocumentInput, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	ids, err := r.listMessageIDs(ctx, query, maxResults)
	if err != nil {
		return nil, err
	}
	r.logger.Info("メッセージ一覧を取得しました", "count", len(ids), "query", query)

	docs := make([]ingestion.DocumentInput, 0, len(ids))
	for _, id := range ids {
		if err := r.limiter.Wait(ctx); err != nil {
			return docs, err
		}
		msg, err := r.svc.Users.Messages.Get(r.user, id).Format("full").Context(ctx).Do()
		if err != nil {
			if ctx.Err() != nil {
				return docs, ctx.Err()
			}
			r.logger.Warn("メッセージの取得に失敗しました", "id", id, "error", err)
			continue
		}

		doc, ok := MessageToDocument(msg, r.now())
		if !ok {
			r.logger.Warn("本文が無いためスキップします", "id", id)
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (r *Reader) listMessageIDs(ctx context.Context, query string, maxResults int) ([]string, error) {
	var (
		ids       []string
		pageToken string
	)
	for len(ids) < maxResults {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		call := r.svc.Users.Messages.List(r.user).
			MaxResults(int64(min(maxResults-len(ids), maxPageSize))).
			Context(ctx)
		if query != "" {
			call = call.Q(query)
		}
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		resp, err := call.Do()
		if err != nil {
			return nil, fmt.Errorf("failed to list messages: %w", err)
		}
		for _, m := range resp.Messages {
			if len(ids) == maxResults {
				break
			}
			ids = append(ids, m.Id)
		}
		if resp.NextPageToken == "" || len(resp.Messages) == 0 {
			break
		}
		pageToken = resp.NextPageToken
	}
	return ids, nil
}
