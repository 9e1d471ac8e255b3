package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/dailyrelay/internal/config"
	"github.com/hitoshi/dailyrelay/internal/database"
	"github.com/hitoshi/dailyrelay/internal/model"
	"github.com/hitoshi/dailyrelay/internal/repository"
)

// stateStore は疎通確認できる状態ストア。
type stateStore interface {
	repository.StateStore
	repository.HealthChecker
}

// openStateStore はSTATE_BACKENDに応じた状態ストアを開く。
// PostgreSQLやRedisに接続できない場合は警告を出してメモリの状態ストアで起動を続ける。
// 返されるclose関数は常に非nilで、アプリケーション終了時に呼び出す。
func openStateStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (stateStore, func(), error) {
	noop := func() {}

	switch cfg.StateBackend {
	case config.StateBackendFile:
		repo, err := repository.NewFileStateRepo(cfg.StateFileDir)
		if err != nil {
			return nil, noop, fmt.Errorf("failed to open file state store: %w", err)
		}
		logger.Info("ファイルの状態ストアを使用します",
			slog.String("dir", cfg.StateFileDir),
		)
		return repo, noop, nil

	case config.StateBackendPostgres:
		db, err := database.Open(cfg.DatabaseURL)
		if err != nil {
			return fallbackMemoryStore(logger, cfg.StateBackend, err), noop, nil
		}
		if err := db.PingContext(ctx); err != nil {
			db.Close()
			return fallbackMemoryStore(logger, cfg.StateBackend, err), noop, nil
		}
		logger.Info("database connection established")
		return repository.NewPostgresStateRepo(db), func() { db.Close() }, nil

	case config.StateBackendRedis:
		client, err := repository.NewRedisClient(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return fallbackMemoryStore(logger, cfg.StateBackend, err), noop, nil
		}
		logger.Info("redis connection established",
			slog.String("addr", cfg.RedisAddr),
			slog.Duration("ttl", cfg.RedisStateTTL),
		)
		return repository.NewRedisStateRepo(client, cfg.RedisStateTTL), func() { client.Close() }, nil

	default:
		logger.Warn("メモリの状態ストアを使用します。再起動すると配信済みの記録は失われます")
		return repository.NewMemoryStateRepo(), noop, nil
	}
}

// fallbackMemoryStore は接続できなかった状態ストアの代わりにメモリの状態ストアを返す。
func fallbackMemoryStore(logger *slog.Logger, backend string, err error) stateStore {
	logger.Warn("状態ストアに接続できません。メモリの状態ストアで起動します",
		slog.String("code", model.ErrCodePersistenceFailed),
		slog.String("backend", backend),
		slog.String("error", err.Error()),
	)
	return repository.NewMemoryStateRepo()
}
