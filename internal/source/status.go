// Package source はフィード一覧と記事本文の取得を提供する。
// フィードのスナップショット取得（JSON API / RSS・Atom）と、
// 記事ごとの本文取得（スラッグAPI / 記事ページ）を含む。
package source

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// FetchResult はHTTPステータスコードに基づく取得結果の分類。
type FetchResult int

const (
	// FetchResultOK は取得成功（2xx）。
	FetchResultOK FetchResult = iota
	// FetchResultRetry は次のサイクルで再試行すれば回復し得る失敗（408/429/5xx）。
	FetchResultRetry
	// FetchResultPermanent は設定を見直さない限り回復しない失敗（401/403/404/410）。
	FetchResultPermanent
	// FetchResultUnknown は上記以外のステータスコード。
	FetchResultUnknown
)

// String はログ出力用の名前を返す。
func (r FetchResult) String() string {
	switch r {
	case FetchResultOK:
		return "ok"
	case FetchResultRetry:
		return "retry"
	case FetchResultPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// ClassifyHTTPStatus はHTTPステータスコードを取得結果に分類する。
// どの分類でも失敗はそのサイクル内に限定され、次のサイクルで再試行される。
// 分類はログとメトリクスで原因を切り分けるために使用する。
func ClassifyHTTPStatus(statusCode int) FetchResult {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return FetchResultOK
	case statusCode == 408 || statusCode == 429 || statusCode >= 500:
		return FetchResultRetry
	case statusCode == 401 || statusCode == 403 || statusCode == 404 || statusCode == 410:
		return FetchResultPermanent
	default:
		return FetchResultUnknown
	}
}

// StatusError は2xx以外のレスポンスを表す。
type StatusError struct {
	StatusCode int
	Result     FetchResult
}

// Error はerrorインターフェースを実装する。
func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected HTTP status %d (%s)", e.StatusCode, e.Result)
}

// getter はタイムアウトとサイズ上限付きのGETリクエストを共通化する。
type getter struct {
	client      *http.Client
	logger      *slog.Logger
	timeout     time.Duration
	maxBodySize int64
	userAgent   string
}

// get はurlにGETリクエストを送り、2xxの場合のみボディを返す。
// タイムアウトはリクエストごとにcontextで設定する。
func (g *getter) get(ctx context.Context, url, accept string) ([]byte, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("リクエスト作成に失敗: %w", err)
	}
	req.Header.Set("User-Agent", g.userAgent)
	req.Header.Set("Accept", accept)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエスト失敗: %w", err)
	}
	defer resp.Body.Close()

	result := ClassifyHTTPStatus(resp.StatusCode)
	if result != FetchResultOK {
		// 接続を再利用できるようにボディを読み捨てる
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))
		g.logger.Warn("予期しないHTTPステータスを受信しました",
			slog.String("url", url),
			slog.Int("http_status", resp.StatusCode),
			slog.String("classification", result.String()),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode, Result: result}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, g.maxBodySize+1))
	if err != nil {
		return nil, fmt.Errorf("レスポンス読み取り失敗: %w", err)
	}
	if int64(len(body)) > g.maxBodySize {
		return nil, fmt.Errorf("レスポンスサイズが上限 %d バイトを超えています", g.maxBodySize)
	}

	g.logger.Debug("HTTP取得が完了しました",
		slog.String("url", url),
		slog.Int("http_status", resp.StatusCode),
		slog.Int("bytes", len(body)),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)

	return body, nil
}

const (
	defaultUserAgent   = "DailyRelay/1.0"
	defaultMaxBodySize = 5 * 1024 * 1024
)

// ClientOptions はHTTP取得の共通設定。
type ClientOptions struct {
	Timeout     time.Duration // 1リクエストあたりのタイムアウト
	MaxBodySize int64         // 0以下の場合は5MiB
	UserAgent   string
}

func newGetter(client *http.Client, logger *slog.Logger, opts ClientOptions) *getter {
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = defaultMaxBodySize
	}
	if opts.UserAgent == "" {
		opts.UserAgent = defaultUserAgent
	}
	return &getter{
		client:      client,
		logger:      logger,
		timeout:     opts.Timeout,
		maxBodySize: opts.MaxBodySize,
		userAgent:   opts.UserAgent,
	}
}
