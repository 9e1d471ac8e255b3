// Package app はアプリケーションの初期化とサブコマンドの実行を行う。
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/dailyrelay/internal/config"
	"github.com/hitoshi/dailyrelay/internal/database"
	"github.com/hitoshi/dailyrelay/internal/handler"
	"github.com/hitoshi/dailyrelay/internal/logger"
	"github.com/hitoshi/dailyrelay/internal/metrics"
	"github.com/hitoshi/dailyrelay/internal/middleware"
	"github.com/hitoshi/dailyrelay/internal/notify"
	"github.com/hitoshi/dailyrelay/internal/security"
	"github.com/hitoshi/dailyrelay/internal/source"
	"github.com/hitoshi/dailyrelay/internal/worker/relay"
)

// shutdownTimeout は管理APIサーバーのグレースフルシャットダウンの猶予。
const shutdownTimeout = 30 * time.Second

// Init はアプリケーションの初期化を行う。
// JSON構造化ログをセットアップしてから環境変数のConfigを読み込み、
// LOG_LEVELに合わせてログレベルを設定し直す。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger.SetupDefault(w, logger.ParseLevel(cfg.LogLevel))
	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("feed_url", cfg.FeedURL),
		slog.String("state_backend", cfg.StateBackend),
		slog.String("timezone", cfg.Location.String()),
	)

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	go func() {
		select {
		case <-stop:
			slog.Info("shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	switch cmd {
	case CommandOnce:
		return runOnce(ctx, cfg, slog.Default())
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runWorker(ctx, cfg, slog.Default(), nil)
	}
}

// relayApp は配信サイクルの実行に必要なコンポーネントをまとめたもの。
type relayApp struct {
	orchestrator *relay.Orchestrator
	scheduler    *relay.Scheduler
	store        stateStore
	registry     *prometheus.Registry
	closeStore   func()
}

// Close は状態ストアの接続を閉じる。
func (a *relayApp) Close() {
	a.closeStore()
}

// buildRelay は設定から全依存関係をワイヤリングする。
// 状態ストアから当日の配信済み状態を復元してからOrchestratorを構築する。
func buildRelay(ctx context.Context, cfg *config.Config, log *slog.Logger) (*relayApp, error) {
	// 1. 状態ストア
	store, closeStore, err := openStateStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	// 2. セキュリティサービスの初期化
	guard := security.NewOutboundGuard(cfg.AllowPrivateNetworks)
	sanitizer := security.NewTextSanitizer()

	// 3. フィード取得と本文取得
	fetchClient := guard.NewClient(cfg.FetchTimeout)
	clientOpts := source.ClientOptions{
		Timeout:     cfg.FetchTimeout,
		MaxBodySize: cfg.FetchMaxSize,
	}

	var feed source.FeedClient
	switch cfg.FeedFormat {
	case config.FeedFormatRSS:
		feed = source.NewRSSFeedClient(fetchClient, log, cfg.FeedURL, sanitizer, clientOpts)
	default:
		feed = source.NewJSONFeedClient(fetchClient, log, cfg.FeedURL, cfg.SiteBaseURL, clientOpts)
	}

	var enricher source.Enricher
	switch cfg.EnrichMode {
	case config.EnrichModePage:
		enricher = source.NewPageEnricher(fetchClient, log, guard, clientOpts)
	default:
		enricher = source.NewAPIEnricher(fetchClient, log, cfg.ArticleBaseURL, clientOpts)
	}

	// 4. 配信先
	dispatcher, err := notify.NewDiscordWebhook(guard.NewClient(cfg.DispatchTimeout), log, notify.DiscordConfig{
		WebhookURL:    cfg.WebhookURL,
		Username:      cfg.WebhookUsername,
		AvatarURL:     cfg.WebhookAvatarURL,
		ContentLimit:  cfg.WebhookContentLimit,
		Timeout:       cfg.DispatchTimeout,
		RatePerMinute: cfg.DispatchRatePerMinute,
	})
	if err != nil {
		closeStore()
		return nil, fmt.Errorf("failed to configure webhook: %w", err)
	}

	// 5. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 6. 配信済み状態の復元とサイクルの構築
	tracker := relay.LoadTracker(ctx, store, cfg.StateKey, log)
	collector.SetDeliveredToday(tracker.Len())

	orchestrator := relay.NewOrchestrator(relay.OrchestratorConfig{
		Feed:       feed,
		Enricher:   enricher,
		Dispatcher: dispatcher,
		Tracker:    tracker,
		Store:      store,
		Metrics:    collector,
		Logger:     log,
		StateKey:   cfg.StateKey,
		Location:   cfg.Location,
	})

	return &relayApp{
		orchestrator: orchestrator,
		scheduler:    relay.NewScheduler(orchestrator, collector, log),
		store:        store,
		registry:     registry,
		closeStore:   closeStore,
	}, nil
}

// runWorker はワーカーモードで起動する。
// 管理APIサーバーをバックグラウンドで起動し、配信スケジューラをブロッキングで実行する。
// ctxがキャンセルされるとスケジューラを止め、サーバーをグレースフルシャットダウンする。
// listenerがnilの場合はSERVER_PORTで待ち受ける。
func runWorker(ctx context.Context, cfg *config.Config, log *slog.Logger, listener net.Listener) error {
	ra, err := buildRelay(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer ra.Close()

	// 管理APIから開始したサイクルが状態を保存し終えてからストアを閉じる
	var inflight sync.WaitGroup
	defer inflight.Wait()

	if listener == nil {
		listener, err = net.Listen("tcp", ":"+cfg.ServerPort)
		if err != nil {
			return fmt.Errorf("failed to listen on port %s: %w", cfg.ServerPort, err)
		}
	}

	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), log)
	defer rateLimiter.Stop()

	router := handler.NewRouter(&handler.RouterDeps{
		BaseContext:   ctx,
		InFlight:      &inflight,
		Logger:        log,
		RateLimiter:   rateLimiter,
		Trigger:       ra.scheduler,
		State:         ra.orchestrator.Tracker(),
		HealthChecker: ra.store,
		Gatherer:      ra.registry,
	})

	server := &http.Server{
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // ?wait=true のサイクル完了待ちを許容する
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("admin server starting",
			slog.String("addr", listener.Addr().String()),
		)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server listen error", slog.String("error", err.Error()))
			serverErr <- err
		}
		close(serverErr)
	}()

	log.Info("worker starting",
		slog.Duration("poll_interval", cfg.PollInterval),
	)

	// 配信スケジューラをメインgoroutineで実行（ブロッキング）
	ra.scheduler.Start(ctx, cfg.PollInterval)

	log.Info("shutting down admin server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	if err := <-serverErr; err != nil {
		return fmt.Errorf("admin server failed: %w", err)
	}

	log.Info("worker stopped gracefully")
	return nil
}

// runOnce は配信サイクルを1回だけ実行して終了する。
// cronなど外部のスケジューラから起動する場合に使用する。
func runOnce(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	ra, err := buildRelay(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer ra.Close()

	report, err := ra.scheduler.TryRunOnce(ctx)
	if err != nil {
		return fmt.Errorf("cycle failed: %w", err)
	}

	log.Info("配信サイクルを1回実行しました",
		slog.String("cycle_id", report.CycleID),
		slog.String("day", report.Day.String()),
		slog.Int("delivered", report.Delivered),
		slog.Int("enrich_failures", report.EnrichFailures),
		slog.Int("dispatch_failures", report.DispatchFailures),
		slog.Bool("persistence_failure", report.PersistenceFailure),
	)
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	if cfg.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required for migrate")
	}

	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
