package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/dailyrelay/internal/metrics"
	"github.com/hitoshi/dailyrelay/internal/middleware"
	"github.com/hitoshi/dailyrelay/internal/repository"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// BaseContext はバックグラウンドで実行するサイクルのコンテキスト。
	BaseContext context.Context
	// InFlight は管理APIから開始したサイクルの完了待ちに使う。
	InFlight *sync.WaitGroup
	Logger   *slog.Logger

	// ミドルウェア依存
	RateLimiter *middleware.RateLimiter

	// 管理API
	Trigger       CycleTrigger
	State         StateViewer
	HealthChecker repository.HealthChecker
	Gatherer      prometheus.Gatherer
}

// NewRouter は管理APIのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Logging → Recovery → SecurityHeaders
//
// POST /api/cycles にはさらにクライアントごとのレート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	admin := NewAdminHandler(deps.BaseContext, deps.Trigger, deps.State, deps.HealthChecker, deps.InFlight, logger)

	r.Get("/health", admin.Health)
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/state", admin.State)

		if deps.RateLimiter != nil {
			r.With(deps.RateLimiter.Middleware()).Post("/cycles", admin.TriggerCycle)
		} else {
			r.Post("/cycles", admin.TriggerCycle)
		}
	})

	return r
}
