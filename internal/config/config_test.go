package config

import (
	"strings"
	"testing"
	"time"
)

// allEnvVars はConfigが参照する環境変数の一覧。
var allEnvVars = []string{
	"FEED_URL", "FEED_FORMAT", "ARTICLE_BASE_URL", "SITE_BASE_URL", "ENRICH_MODE",
	"WEBHOOK_URL", "WEBHOOK_USERNAME", "WEBHOOK_AVATAR_URL", "WEBHOOK_CONTENT_LIMIT",
	"DISPATCH_TIMEOUT", "DISPATCH_RATE_PER_MINUTE",
	"POLL_INTERVAL", "FETCH_TIMEOUT", "FETCH_MAX_SIZE",
	"STATE_BACKEND", "STATE_KEY", "STATE_FILE_DIR", "DATABASE_URL",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "REDIS_STATE_TTL",
	"RELAY_TIMEZONE", "SERVER_PORT", "ALLOW_PRIVATE_NETWORKS", "LOG_LEVEL",
}

// setRequiredEnvVars は他の環境変数を空にしたうえで必須の環境変数を設定する。
func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	for _, key := range allEnvVars {
		t.Setenv(key, "")
	}
	t.Setenv("WEBHOOK_URL", "https://discord.com/api/webhooks/123/token")
}

func TestLoad_RequiredVarsSet_ReturnsConfig(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.WebhookURL != "https://discord.com/api/webhooks/123/token" {
		t.Errorf("WebhookURL = %q", cfg.WebhookURL)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	// Feed defaults
	if cfg.FeedURL != DefaultFeedURL {
		t.Errorf("FeedURL = %q, want %q", cfg.FeedURL, DefaultFeedURL)
	}
	if cfg.FeedFormat != FeedFormatJSON {
		t.Errorf("FeedFormat = %q, want json", cfg.FeedFormat)
	}
	if cfg.ArticleBaseURL != DefaultFeedURL {
		t.Errorf("ArticleBaseURL = %q, want FEED_URL", cfg.ArticleBaseURL)
	}
	if cfg.EnrichMode != EnrichModeAPI {
		t.Errorf("EnrichMode = %q, want api", cfg.EnrichMode)
	}

	// Webhook defaults
	if cfg.WebhookUsername != "TechNews" {
		t.Errorf("WebhookUsername = %q, want TechNews", cfg.WebhookUsername)
	}
	if cfg.WebhookAvatarURL != "https://i.imgur.com/vJyISJ6.jpg" {
		t.Errorf("WebhookAvatarURL = %q", cfg.WebhookAvatarURL)
	}
	if cfg.WebhookContentLimit != 2000 {
		t.Errorf("WebhookContentLimit = %d, want 2000", cfg.WebhookContentLimit)
	}
	if cfg.DispatchTimeout != 10*time.Second {
		t.Errorf("DispatchTimeout = %v, want 10s", cfg.DispatchTimeout)
	}
	if cfg.DispatchRatePerMinute != 30 {
		t.Errorf("DispatchRatePerMinute = %d, want 30", cfg.DispatchRatePerMinute)
	}

	// Fetch defaults
	if cfg.PollInterval != 5*time.Minute {
		t.Errorf("PollInterval = %v, want 5m", cfg.PollInterval)
	}
	if cfg.FetchTimeout != 10*time.Second {
		t.Errorf("FetchTimeout = %v, want 10s", cfg.FetchTimeout)
	}
	if cfg.FetchMaxSize != 5242880 {
		t.Errorf("FetchMaxSize = %d, want 5242880", cfg.FetchMaxSize)
	}

	// State defaults
	if cfg.StateBackend != StateBackendMemory {
		t.Errorf("StateBackend = %q, want memory", cfg.StateBackend)
	}
	if cfg.StateKey != "delivered_ids" {
		t.Errorf("StateKey = %q, want delivered_ids", cfg.StateKey)
	}
	if cfg.StateFileDir != "./data" {
		t.Errorf("StateFileDir = %q, want ./data", cfg.StateFileDir)
	}
	if cfg.RedisStateTTL != 48*time.Hour {
		t.Errorf("RedisStateTTL = %v, want 48h", cfg.RedisStateTTL)
	}

	// Relay / Server defaults
	if cfg.Location != time.UTC {
		t.Errorf("Location = %v, want UTC", cfg.Location)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("ServerPort = %q, want 8080", cfg.ServerPort)
	}
	if cfg.AllowPrivateNetworks {
		t.Error("AllowPrivateNetworks should default to false")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
}

func TestLoad_CustomValues(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("FEED_URL", "https://blog.example.com/feed.xml")
	t.Setenv("FEED_FORMAT", "RSS")
	t.Setenv("POLL_INTERVAL", "90s")
	t.Setenv("FETCH_MAX_SIZE", "1048576")
	t.Setenv("DISPATCH_RATE_PER_MINUTE", "5")
	t.Setenv("STATE_BACKEND", "redis")
	t.Setenv("REDIS_ADDR", "localhost:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("RELAY_TIMEZONE", "America/Sao_Paulo")
	t.Setenv("ALLOW_PRIVATE_NETWORKS", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if cfg.FeedFormat != FeedFormatRSS {
		t.Errorf("FeedFormat = %q, want rss", cfg.FeedFormat)
	}
	if cfg.EnrichMode != EnrichModePage {
		t.Errorf("EnrichMode = %q, RSSの既定はpage", cfg.EnrichMode)
	}
	if cfg.PollInterval != 90*time.Second {
		t.Errorf("PollInterval = %v, want 90s", cfg.PollInterval)
	}
	if cfg.FetchMaxSize != 1048576 {
		t.Errorf("FetchMaxSize = %d", cfg.FetchMaxSize)
	}
	if cfg.DispatchRatePerMinute != 5 {
		t.Errorf("DispatchRatePerMinute = %d", cfg.DispatchRatePerMinute)
	}
	if cfg.RedisAddr != "localhost:6379" || cfg.RedisDB != 2 {
		t.Errorf("Redis = %q db=%d", cfg.RedisAddr, cfg.RedisDB)
	}
	if cfg.Location == nil || cfg.Location.String() != "America/Sao_Paulo" {
		t.Errorf("Location = %v", cfg.Location)
	}
	if !cfg.AllowPrivateNetworks {
		t.Error("AllowPrivateNetworks should be true")
	}
}

func TestLoad_InvalidNumbersFallBackToDefaults(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("POLL_INTERVAL", "soon")
	t.Setenv("WEBHOOK_CONTENT_LIMIT", "lots")
	t.Setenv("ALLOW_PRIVATE_NETWORKS", "maybe")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.PollInterval != 5*time.Minute || cfg.WebhookContentLimit != 2000 || cfg.AllowPrivateNetworks {
		t.Errorf("invalid values should fall back to defaults: %+v", cfg)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "WEBHOOK_URL未設定",
			env:     map[string]string{"WEBHOOK_URL": ""},
			wantErr: "WEBHOOK_URL is required",
		},
		{
			name:    "WEBHOOK_URLが不正",
			env:     map[string]string{"WEBHOOK_URL": "discord"},
			wantErr: "WEBHOOK_URL must be an http(s) URL",
		},
		{
			name:    "FEED_FORMATが不正",
			env:     map[string]string{"FEED_FORMAT": "atom"},
			wantErr: "FEED_FORMAT",
		},
		{
			name:    "ENRICH_MODEが不正",
			env:     map[string]string{"ENRICH_MODE": "scrape"},
			wantErr: "ENRICH_MODE",
		},
		{
			name:    "postgresでDATABASE_URL未設定",
			env:     map[string]string{"STATE_BACKEND": "postgres"},
			wantErr: "DATABASE_URL is required",
		},
		{
			name:    "redisでREDIS_ADDR未設定",
			env:     map[string]string{"STATE_BACKEND": "redis"},
			wantErr: "REDIS_ADDR is required",
		},
		{
			name:    "未知のSTATE_BACKEND",
			env:     map[string]string{"STATE_BACKEND": "mongo"},
			wantErr: "STATE_BACKEND",
		},
		{
			name:    "タイムゾーンが不正",
			env:     map[string]string{"RELAY_TIMEZONE": "Mars/Olympus"},
			wantErr: "RELAY_TIMEZONE",
		},
		{
			name:    "負の間隔",
			env:     map[string]string{"POLL_INTERVAL": "-1m"},
			wantErr: "POLL_INTERVAL must be positive",
		},
		{
			name:    "本文上限が小さすぎる",
			env:     map[string]string{"WEBHOOK_CONTENT_LIMIT": "10"},
			wantErr: "WEBHOOK_CONTENT_LIMIT",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnvVars(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			cfg, err := Load()
			if err == nil {
				t.Fatalf("expected error, got config %+v", cfg)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", err.Error(), tt.wantErr)
			}
		})
	}
}

// TestLoad_ReportsAllProblems は複数の問題をまとめて報告することを検証する。
func TestLoad_ReportsAllProblems(t *testing.T) {
	setRequiredEnvVars(t)
	t.Setenv("WEBHOOK_URL", "")
	t.Setenv("STATE_BACKEND", "postgres")

	_, err := Load()
	if err == nil {
		t.Fatal("expected error")
	}
	for _, want := range []string{"WEBHOOK_URL", "DATABASE_URL"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q should mention %s", err.Error(), want)
		}
	}
}
