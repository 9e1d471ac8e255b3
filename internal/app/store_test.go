package app

import (
	"bytes"
	"context"
	"log/slog"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/dailyrelay/internal/config"
	"github.com/hitoshi/dailyrelay/internal/model"
	"github.com/hitoshi/dailyrelay/internal/repository"
)

// closedAddr は何も待ち受けていないローカルアドレスを返す。
func closedAddr(t *testing.T) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := l.Addr().String()
	l.Close()
	return addr
}

func TestOpenStateStore_FileBackend(t *testing.T) {
	cfg := &config.Config{StateBackend: config.StateBackendFile, StateFileDir: t.TempDir()}

	store, closeStore, err := openStateStore(context.Background(), cfg, slog.New(slog.NewJSONHandler(&bytes.Buffer{}, nil)))
	if err != nil {
		t.Fatalf("openStateStore() error = %v", err)
	}
	defer closeStore()
	if _, ok := store.(*repository.FileStateRepo); !ok {
		t.Errorf("store = %T, want *repository.FileStateRepo", store)
	}
}

// TestOpenStateStore_UnreachableBackend_FallsBackToMemory は接続できない状態ストアの代わりに
// メモリの状態ストアで起動を続けることを検証する。
func TestOpenStateStore_UnreachableBackend_FallsBackToMemory(t *testing.T) {
	addr := closedAddr(t)

	tests := []struct {
		name string
		cfg  *config.Config
	}{
		{
			name: "Redis",
			cfg:  &config.Config{StateBackend: config.StateBackendRedis, RedisAddr: addr},
		},
		{
			name: "PostgreSQL",
			cfg: &config.Config{
				StateBackend: config.StateBackendPostgres,
				DatabaseURL:  "postgres://relay:secret@" + addr + "/dailyrelay?sslmode=disable&connect_timeout=2",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			var buf bytes.Buffer
			store, closeStore, err := openStateStore(ctx, tt.cfg, slog.New(slog.NewJSONHandler(&buf, nil)))
			if err != nil {
				t.Fatalf("openStateStore() error = %v, want fallback", err)
			}
			defer closeStore()

			if _, ok := store.(*repository.MemoryStateRepo); !ok {
				t.Fatalf("store = %T, want *repository.MemoryStateRepo", store)
			}
			if err := store.PingContext(ctx); err != nil {
				t.Errorf("PingContext() error = %v", err)
			}

			state := model.DailyState{Day: model.DayOf(time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC), time.UTC), DeliveredIDs: []string{"a"}}
			if err := store.Put(ctx, "relay", state); err != nil {
				t.Errorf("Put() error = %v", err)
			}

			logs := buf.String()
			if !strings.Contains(logs, `"level":"WARN"`) || !strings.Contains(logs, model.ErrCodePersistenceFailed) {
				t.Errorf("警告ログが出力されていません: %s", logs)
			}
		})
	}
}
