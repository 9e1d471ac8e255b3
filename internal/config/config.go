// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata" // コンテナイメージにタイムゾーンDBがない場合に備えて埋め込む

	"github.com/hitoshi/dailyrelay/internal/model"
)

// フィード形式
const (
	FeedFormatJSON = "json"
	FeedFormatRSS  = "rss"
)

// 本文取得方式
const (
	EnrichModeAPI  = "api"
	EnrichModePage = "page"
)

// 配信状態の保存先
const (
	StateBackendMemory   = "memory"
	StateBackendFile     = "file"
	StateBackendPostgres = "postgres"
	StateBackendRedis    = "redis"
)

// DefaultFeedURL はTabNewsの公式ニュースレターの一覧エンドポイント。
const DefaultFeedURL = "https://www.tabnews.com.br/api/v1/contents/NewsletterOficial"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Feed
	FeedURL        string
	FeedFormat     string
	ArticleBaseURL string
	SiteBaseURL    string
	EnrichMode     string

	// Webhook
	WebhookURL            string
	WebhookUsername       string
	WebhookAvatarURL      string
	WebhookContentLimit   int
	DispatchTimeout       time.Duration
	DispatchRatePerMinute int

	// Fetch
	PollInterval time.Duration
	FetchTimeout time.Duration
	FetchMaxSize int64

	// State
	StateBackend  string
	StateKey      string
	StateFileDir  string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisStateTTL time.Duration

	// Relay
	Timezone string
	Location *time.Location

	// Server
	ServerPort           string
	AllowPrivateNetworks bool

	// Logging
	LogLevel string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数の未設定や不正な値がある場合は、すべての問題をまとめたエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.FeedURL = getEnvString("FEED_URL", DefaultFeedURL)
	cfg.FeedFormat = strings.ToLower(getEnvString("FEED_FORMAT", FeedFormatJSON))
	cfg.ArticleBaseURL = getEnvString("ARTICLE_BASE_URL", cfg.FeedURL)
	cfg.SiteBaseURL = getEnvString("SITE_BASE_URL", "https://www.tabnews.com.br")
	defaultEnrich := EnrichModeAPI
	if cfg.FeedFormat == FeedFormatRSS {
		defaultEnrich = EnrichModePage
	}
	cfg.EnrichMode = strings.ToLower(getEnvString("ENRICH_MODE", defaultEnrich))

	cfg.WebhookURL = os.Getenv("WEBHOOK_URL")
	cfg.WebhookUsername = getEnvString("WEBHOOK_USERNAME", "TechNews")
	cfg.WebhookAvatarURL = getEnvString("WEBHOOK_AVATAR_URL", "https://i.imgur.com/vJyISJ6.jpg")
	cfg.WebhookContentLimit = getEnvInt("WEBHOOK_CONTENT_LIMIT", 2000)
	cfg.DispatchTimeout = getEnvDuration("DISPATCH_TIMEOUT", 10*time.Second)
	cfg.DispatchRatePerMinute = getEnvInt("DISPATCH_RATE_PER_MINUTE", 30)

	cfg.PollInterval = getEnvDuration("POLL_INTERVAL", 5*time.Minute)
	cfg.FetchTimeout = getEnvDuration("FETCH_TIMEOUT", 10*time.Second)
	cfg.FetchMaxSize = getEnvInt64("FETCH_MAX_SIZE", 5242880)

	cfg.StateBackend = strings.ToLower(getEnvString("STATE_BACKEND", StateBackendMemory))
	cfg.StateKey = getEnvString("STATE_KEY", model.DefaultStateKey)
	cfg.StateFileDir = getEnvString("STATE_FILE_DIR", "./data")
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	cfg.RedisAddr = os.Getenv("REDIS_ADDR")
	cfg.RedisPassword = os.Getenv("REDIS_PASSWORD")
	cfg.RedisDB = getEnvInt("REDIS_DB", 0)
	cfg.RedisStateTTL = getEnvDuration("REDIS_STATE_TTL", 48*time.Hour)

	cfg.Timezone = getEnvString("RELAY_TIMEZONE", "UTC")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.AllowPrivateNetworks = getEnvBool("ALLOW_PRIVATE_NETWORKS", false)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate は設定値を検証し、タイムゾーンを解決する。
func (c *Config) validate() error {
	var problems []string

	if c.WebhookURL == "" {
		problems = append(problems, "WEBHOOK_URL is required")
	} else if !isHTTPURL(c.WebhookURL) {
		problems = append(problems, "WEBHOOK_URL must be an http(s) URL")
	}
	if !isHTTPURL(c.FeedURL) {
		problems = append(problems, "FEED_URL must be an http(s) URL")
	}

	switch c.FeedFormat {
	case FeedFormatJSON, FeedFormatRSS:
	default:
		problems = append(problems, fmt.Sprintf("FEED_FORMAT must be json or rss, got %q", c.FeedFormat))
	}

	switch c.EnrichMode {
	case EnrichModeAPI:
		if !isHTTPURL(c.ArticleBaseURL) {
			problems = append(problems, "ARTICLE_BASE_URL must be an http(s) URL")
		}
	case EnrichModePage:
	default:
		problems = append(problems, fmt.Sprintf("ENRICH_MODE must be api or page, got %q", c.EnrichMode))
	}

	switch c.StateBackend {
	case StateBackendMemory, StateBackendFile:
	case StateBackendPostgres:
		if c.DatabaseURL == "" {
			problems = append(problems, "DATABASE_URL is required when STATE_BACKEND=postgres")
		}
	case StateBackendRedis:
		if c.RedisAddr == "" {
			problems = append(problems, "REDIS_ADDR is required when STATE_BACKEND=redis")
		}
	default:
		problems = append(problems, fmt.Sprintf("STATE_BACKEND must be one of memory, file, postgres, redis, got %q", c.StateBackend))
	}

	if c.StateKey == "" {
		problems = append(problems, "STATE_KEY must not be empty")
	}
	if c.PollInterval <= 0 {
		problems = append(problems, "POLL_INTERVAL must be positive")
	}
	if c.FetchTimeout <= 0 {
		problems = append(problems, "FETCH_TIMEOUT must be positive")
	}
	if c.DispatchTimeout <= 0 {
		problems = append(problems, "DISPATCH_TIMEOUT must be positive")
	}
	if c.FetchMaxSize <= 0 {
		problems = append(problems, "FETCH_MAX_SIZE must be positive")
	}
	if c.WebhookContentLimit < 100 {
		problems = append(problems, "WEBHOOK_CONTENT_LIMIT must be at least 100")
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		problems = append(problems, fmt.Sprintf("RELAY_TIMEZONE is invalid: %v", err))
	} else {
		c.Location = loc
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}
