// Package handler は管理用HTTP APIのハンドラーとルーティングを提供する。
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/hitoshi/dailyrelay/internal/middleware"
	"github.com/hitoshi/dailyrelay/internal/model"
	"github.com/hitoshi/dailyrelay/internal/repository"
)

// healthCheckTimeout はストアの疎通確認のタイムアウト。
const healthCheckTimeout = 3 * time.Second

// CycleTrigger は管理APIが必要とするスケジューラのインターフェース。
type CycleTrigger interface {
	// TryRunOnce は実行中でなければサイクルを1回実行する。
	TryRunOnce(ctx context.Context) (*model.CycleReport, error)
	// Running はサイクルが実行中かどうかを返す。
	Running() bool
	// LastReport は直近に完了したサイクルのレポートを返す。
	LastReport() *model.CycleReport
}

// StateViewer は配信済み状態のスナップショットを返すインターフェース。
type StateViewer interface {
	Snapshot() model.DailyState
}

// AdminHandler は管理APIのHTTPハンドラー。
type AdminHandler struct {
	trigger CycleTrigger
	state   StateViewer
	health  repository.HealthChecker
	logger  *slog.Logger
	baseCtx context.Context

	// inflight は管理APIから開始したサイクルを数える。
	inflight *sync.WaitGroup
}

// NewAdminHandler はAdminHandlerを生成する。
// baseCtxは非同期に実行するサイクルのコンテキストで、シャットダウン時にキャンセルされる。
// inflightには管理APIから開始したサイクルが登録される。nilの場合は内部で生成する。
func NewAdminHandler(baseCtx context.Context, trigger CycleTrigger, state StateViewer, health repository.HealthChecker, inflight *sync.WaitGroup, logger *slog.Logger) *AdminHandler {
	if baseCtx == nil {
		baseCtx = context.Background()
	}
	if inflight == nil {
		inflight = &sync.WaitGroup{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminHandler{
		trigger:  trigger,
		state:    state,
		health:   health,
		logger:   logger,
		baseCtx:  baseCtx,
		inflight: inflight,
	}
}

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Status string `json:"status"`
	Store  string `json:"store"`
}

// cycleReportResponse はサイクルレポートのAPIレスポンス。
type cycleReportResponse struct {
	CycleID            string    `json:"cycle_id"`
	Day                string    `json:"day"`
	StartedAt          time.Time `json:"started_at"`
	DurationMs         int64     `json:"duration_ms"`
	Fetched            int       `json:"fetched"`
	InWindow           int       `json:"in_window"`
	Unseen             int       `json:"unseen"`
	Delivered          int       `json:"delivered"`
	EnrichFailures     int       `json:"enrich_failures"`
	DispatchFailures   int       `json:"dispatch_failures"`
	RolledOver         bool      `json:"rolled_over"`
	Persisted          bool      `json:"persisted"`
	PersistenceFailure bool      `json:"persistence_failure"`
}

// stateResponse は配信状態のAPIレスポンス。
type stateResponse struct {
	Day            string               `json:"day"`
	DeliveredIDs   []string             `json:"delivered_ids"`
	DeliveredCount int                  `json:"delivered_count"`
	Running        bool                 `json:"running"`
	LastCycle      *cycleReportResponse `json:"last_cycle"`
}

// triggerResponse はサイクル実行要求のレスポンス。
type triggerResponse struct {
	Status string               `json:"status"`
	Report *cycleReportResponse `json:"report,omitempty"`
}

// Health はストアの疎通を確認する。
// GET /health
func (h *AdminHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Store: "none"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if err := h.health.PingContext(ctx); err != nil {
		h.logger.Warn("ストアの疎通確認に失敗しました",
			slog.String("error", err.Error()),
		)
		writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable", Store: "error"})
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Store: "ok"})
}

// State は当日の配信済み状態と直近のサイクル結果を返す。
// GET /api/state
func (h *AdminHandler) State(w http.ResponseWriter, r *http.Request) {
	snapshot := h.state.Snapshot()

	day := ""
	if !snapshot.Day.IsZero() {
		day = snapshot.Day.String()
	}
	ids := snapshot.DeliveredIDs
	if ids == nil {
		ids = []string{}
	}

	writeJSON(w, http.StatusOK, stateResponse{
		Day:            day,
		DeliveredIDs:   ids,
		DeliveredCount: len(ids),
		Running:        h.trigger.Running(),
		LastCycle:      toCycleReportResponse(h.trigger.LastReport()),
	})
}

// TriggerCycle は配信サイクルを手動で実行する。
// POST /api/cycles
// 既定ではバックグラウンドで実行して202を返す。?wait=true の場合は完了まで待ってレポートを返す。
func (h *AdminHandler) TriggerCycle(w http.ResponseWriter, r *http.Request) {
	if h.trigger.Running() {
		middleware.WriteRelayError(w, http.StatusConflict, model.NewCycleInProgressError())
		return
	}

	// 状態ストアを閉じる前に完了を待てるよう、サイクルを登録してから開始する
	h.inflight.Add(1)

	if r.URL.Query().Get("wait") == "true" {
		// クライアントの切断でサイクルが途中終了しないようキャンセルを切り離す
		report, err := h.trigger.TryRunOnce(context.WithoutCancel(r.Context()))
		h.inflight.Done()
		if err != nil {
			h.writeCycleError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, triggerResponse{
			Status: "completed",
			Report: toCycleReportResponse(report),
		})
		return
	}

	go func() {
		defer h.inflight.Done()
		if _, err := h.trigger.TryRunOnce(h.baseCtx); err != nil {
			h.logger.Warn("手動実行したサイクルが失敗しました",
				slog.String("error", err.Error()),
			)
		}
	}()

	writeJSON(w, http.StatusAccepted, triggerResponse{Status: "accepted"})
}

// writeCycleError はサイクルのエラーをHTTPレスポンスに変換する。
func (h *AdminHandler) writeCycleError(w http.ResponseWriter, err error) {
	var relayErr *model.RelayError
	if !errors.As(err, &relayErr) {
		h.logger.Error("サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
		return
	}

	status := http.StatusBadGateway
	if relayErr.Code == model.ErrCodeCycleInProgress {
		status = http.StatusConflict
	}
	middleware.WriteRelayError(w, status, relayErr)
}

func toCycleReportResponse(r *model.CycleReport) *cycleReportResponse {
	if r == nil {
		return nil
	}
	day := ""
	if !r.Day.IsZero() {
		day = r.Day.String()
	}
	return &cycleReportResponse{
		CycleID:            r.CycleID,
		Day:                day,
		StartedAt:          r.StartedAt,
		DurationMs:         r.Duration.Milliseconds(),
		Fetched:            r.Fetched,
		InWindow:           r.InWindow,
		Unseen:             r.Unseen,
		Delivered:          r.Delivered,
		EnrichFailures:     r.EnrichFailures,
		DispatchFailures:   r.DispatchFailures,
		RolledOver:         r.RolledOver,
		Persisted:          r.Persisted,
		PersistenceFailure: r.PersistenceFailure,
	}
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
