package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/dailyrelay/internal/model"
	"golang.org/x/time/rate"
)

// DiscordConfig はDiscord Webhookの設定。
type DiscordConfig struct {
	WebhookURL    string
	Username      string
	AvatarURL     string
	ContentLimit  int           // 0以下の場合はDefaultContentLimit
	Timeout       time.Duration // 1回の送信のタイムアウト
	RatePerMinute int           // 0以下の場合は制限なし
}

// discordPayload はDiscord Webhookに送信するJSON。
type discordPayload struct {
	Username  string `json:"username,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Content   string `json:"content"`
}

// DiscordWebhook はDiscordのWebhookに記事を投稿するDispatcher。
// ?wait=true を付けて送信し、Discordがメッセージを保存してから応答を受け取る。
type DiscordWebhook struct {
	client   *http.Client
	logger   *slog.Logger
	limiter  *rate.Limiter
	endpoint string
	config   DiscordConfig
}

// NewDiscordWebhook はDiscordWebhookを生成する。
func NewDiscordWebhook(client *http.Client, logger *slog.Logger, cfg DiscordConfig) (*DiscordWebhook, error) {
	endpoint, err := waitEndpoint(cfg.WebhookURL)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ContentLimit <= 0 {
		cfg.ContentLimit = DefaultContentLimit
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RatePerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60.0), cfg.RatePerMinute)
	}

	return &DiscordWebhook{
		client:   client,
		logger:   logger,
		limiter:  limiter,
		endpoint: endpoint,
		config:   cfg,
	}, nil
}

// waitEndpoint はWebhook URLを検証し、wait=trueを付与したURLを返す。
func waitEndpoint(webhookURL string) (string, error) {
	if webhookURL == "" {
		return "", fmt.Errorf("webhook URL is empty")
	}
	u, err := url.Parse(webhookURL)
	if err != nil {
		return "", fmt.Errorf("invalid webhook URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("invalid webhook URL scheme: %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("webhook URL has no host")
	}
	q := u.Query()
	q.Set("wait", "true")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Dispatch は記事を整形してWebhookに投稿する。
// レート制限を待ってから送信し、2xx以外の応答（429を含む）はDISPATCH_FAILEDとして返す。
func (d *DiscordWebhook) Dispatch(ctx context.Context, article model.EnrichedArticle) error {
	if err := d.limiter.Wait(ctx); err != nil {
		return model.NewDispatchFailedError(article.Title, fmt.Errorf("レート制限の待機に失敗: %w", err))
	}

	if d.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.Timeout)
		defer cancel()
	}

	payload, err := json.Marshal(discordPayload{
		Username:  d.config.Username,
		AvatarURL: d.config.AvatarURL,
		Content:   FormatMessage(article, d.config.ContentLimit),
	})
	if err != nil {
		return model.NewDispatchFailedError(article.Title, fmt.Errorf("ペイロードの生成に失敗: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint, bytes.NewReader(payload))
	if err != nil {
		return model.NewDispatchFailedError(article.Title, fmt.Errorf("リクエスト作成に失敗: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := d.client.Do(req)
	if err != nil {
		return model.NewDispatchFailedError(article.Title, fmt.Errorf("HTTPリクエスト失敗: %w", err))
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		attrs := []any{
			slog.String("entry_id", article.ID),
			slog.Int("http_status", resp.StatusCode),
			slog.String("response", string(snippet)),
		}
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			attrs = append(attrs, slog.String("retry_after", retryAfter))
		}
		d.logger.Warn("Webhookが失敗応答を返しました", attrs...)
		return model.NewDispatchFailedError(article.Title, fmt.Errorf("unexpected HTTP status %d", resp.StatusCode))
	}

	d.logger.Debug("Webhookへの投稿が完了しました",
		slog.String("entry_id", article.ID),
		slog.Int("http_status", resp.StatusCode),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}
