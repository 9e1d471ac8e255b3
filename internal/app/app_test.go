package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

// configEnvVars はConfigが参照する環境変数の一覧。
var configEnvVars = []string{
	"FEED_URL", "FEED_FORMAT", "ARTICLE_BASE_URL", "SITE_BASE_URL", "ENRICH_MODE",
	"WEBHOOK_URL", "WEBHOOK_USERNAME", "WEBHOOK_AVATAR_URL", "WEBHOOK_CONTENT_LIMIT",
	"DISPATCH_TIMEOUT", "DISPATCH_RATE_PER_MINUTE",
	"POLL_INTERVAL", "FETCH_TIMEOUT", "FETCH_MAX_SIZE",
	"STATE_BACKEND", "STATE_KEY", "STATE_FILE_DIR", "DATABASE_URL",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "REDIS_STATE_TTL",
	"RELAY_TIMEZONE", "SERVER_PORT", "ALLOW_PRIVATE_NETWORKS", "LOG_LEVEL",
}

// clearConfigEnv は環境変数をすべて空にする。
func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range configEnvVars {
		t.Setenv(key, "")
	}
}

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	clearConfigEnv(t)
	t.Setenv("WEBHOOK_URL", "https://discord.com/api/webhooks/1/token")
	t.Setenv("LOG_LEVEL", "debug")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected non-nil config")
	}
	if cfg.WebhookURL != "https://discord.com/api/webhooks/1/token" {
		t.Errorf("WebhookURL = %q", cfg.WebhookURL)
	}

	// LOG_LEVELに合わせてJSONログが出力されることを確認する
	slog.Default().Debug("init test")
	var entry map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
	if entry["service"] != "dailyrelay" {
		t.Errorf("service = %v, want dailyrelay", entry["service"])
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	clearConfigEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing WEBHOOK_URL, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}

func TestMaskDatabaseURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"postgres://user:secret@db:5432/dailyrelay", "postgres://u***@..."},
		{"short", "***"},
	}
	for _, tt := range tests {
		if got := maskDatabaseURL(tt.in); got != tt.want {
			t.Errorf("maskDatabaseURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRunHealthcheck(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		wantErr bool
	}{
		{"正常", http.StatusOK, false},
		{"ストア障害", http.StatusServiceUnavailable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/health" {
					w.WriteHeader(http.StatusNotFound)
					return
				}
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			u, _ := url.Parse(srv.URL)
			err := runHealthcheck(u.Port())
			if (err != nil) != tt.wantErr {
				t.Errorf("runHealthcheck() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestRunHealthcheck_NoServer_ReturnsError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	u, _ := url.Parse(srv.URL)
	srv.Close()

	if err := runHealthcheck(u.Port()); err == nil {
		t.Error("expected error when nothing listens on the port")
	}
}
