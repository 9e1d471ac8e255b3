// Package relay は当日の新着記事を配信するポーリングサイクルを提供する。
// サイクルオーケストレーター、スケジューラ、起動時の状態読み込みを含む。
package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hitoshi/dailyrelay/internal/discovery"
	"github.com/hitoshi/dailyrelay/internal/metrics"
	"github.com/hitoshi/dailyrelay/internal/model"
	"github.com/hitoshi/dailyrelay/internal/notify"
	"github.com/hitoshi/dailyrelay/internal/repository"
	"github.com/hitoshi/dailyrelay/internal/source"
)

// persistTimeout は配信状態の保存に使用するタイムアウト。
const persistTimeout = 10 * time.Second

// OrchestratorConfig はOrchestratorの依存関係と設定。
type OrchestratorConfig struct {
	Feed       source.FeedClient
	Enricher   source.Enricher
	Dispatcher notify.Dispatcher
	Tracker    *discovery.Tracker
	Store      repository.StateStore
	Metrics    metrics.MetricsCollector // nilの場合は記録しない
	Logger     *slog.Logger
	StateKey   string         // 空の場合はmodel.DefaultStateKey
	Location   *time.Location // 暦日を判定するタイムゾーン。nilの場合はUTC
	Now        func() time.Time
}

// Orchestrator は1回のポーリングサイクルを実行する。
// 取得 → 日付切り替わり判定 → 当日分の絞り込み → 記事ごとに本文取得・配信・記録 の順に処理する。
// 同時に複数のサイクルを実行してはならない（Schedulerが保証する）。
type Orchestrator struct {
	feed       source.FeedClient
	enricher   source.Enricher
	dispatcher notify.Dispatcher
	tracker    *discovery.Tracker
	store      repository.StateStore
	metrics    metrics.MetricsCollector
	logger     *slog.Logger
	stateKey   string
	loc        *time.Location
	now        func() time.Time

	// dirty は保存に失敗した配信済みの記録が残っていることを示す。
	dirty bool
}

// NewOrchestrator はOrchestratorの新しいインスタンスを生成する。
func NewOrchestrator(cfg OrchestratorConfig) *Orchestrator {
	o := &Orchestrator{
		feed:       cfg.Feed,
		enricher:   cfg.Enricher,
		dispatcher: cfg.Dispatcher,
		tracker:    cfg.Tracker,
		store:      cfg.Store,
		metrics:    cfg.Metrics,
		logger:     cfg.Logger,
		stateKey:   cfg.StateKey,
		loc:        cfg.Location,
		now:        cfg.Now,
	}
	if o.metrics == nil {
		o.metrics = noopMetrics{}
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.stateKey == "" {
		o.stateKey = model.DefaultStateKey
	}
	if o.loc == nil {
		o.loc = time.UTC
	}
	if o.now == nil {
		o.now = time.Now
	}
	if o.tracker == nil {
		o.tracker = discovery.NewTracker(model.DailyState{})
	}
	if o.store == nil {
		o.store = repository.NewMemoryStateRepo()
	}
	return o
}

// Tracker はオーケストレーターが使用する配信済みトラッカーを返す。
func (o *Orchestrator) Tracker() *discovery.Tracker {
	return o.tracker
}

// RunCycle は1回のポーリングサイクルを実行する。
// フィードの取得に失敗した場合はFETCH_FAILEDを返し、状態は変更しない。
// 記事単位の失敗はその記事をスキップするだけで、次のサイクルで再試行される。
// 永続化の失敗は警告としてレポートに記録し、エラーは返さない。
func (o *Orchestrator) RunCycle(ctx context.Context) (*model.CycleReport, error) {
	report := &model.CycleReport{
		CycleID:   uuid.New().String(),
		StartedAt: o.now(),
	}
	logger := o.logger.With(slog.String("cycle_id", report.CycleID))
	start := time.Now()

	logger.Info("配信サイクルを開始します")

	entries, err := o.feed.Fetch(ctx)
	if err != nil {
		report.Duration = time.Since(start)
		o.metrics.RecordCycle(metrics.CycleResultFetchFailed, report.Duration)
		logger.Error("フィードの取得に失敗しました",
			slog.String("error", err.Error()),
		)
		var relayErr *model.RelayError
		if !errors.As(err, &relayErr) {
			err = model.NewFetchFailedError("feed", err)
		}
		return report, err
	}
	report.Fetched = len(entries)
	o.metrics.RecordEntriesFetched(len(entries))

	// 取得後の時刻で暦日を判定する
	observed := model.DayOf(o.now(), o.loc)
	report.Day = observed
	previous := o.tracker.CurrentDay()
	if o.tracker.ResetIfDayChanged(observed) && !previous.IsZero() {
		report.RolledOver = true
		o.dirty = false
		o.metrics.RecordRollover()
		logger.Info("日付が変わったため配信済みセットをリセットしました",
			slog.String("previous_day", previous.String()),
			slog.String("day", observed.String()),
		)
		if err := o.store.Delete(ctx, o.stateKey); err != nil {
			o.metrics.RecordPersistenceFailure("delete")
			logger.Warn("前日の配信状態の削除に失敗しました",
				slog.String("state_key", o.stateKey),
				slog.String("error", model.NewPersistenceFailedError("削除", err).Error()),
			)
		}
	}

	today := discovery.FilterByDay(entries, observed, o.loc)
	report.InWindow = len(today)

	unseen := o.tracker.Unseen(today)
	report.Unseen = len(unseen)

	logger.Info("配信対象の記事を抽出しました",
		slog.String("day", observed.String()),
		slog.Int("fetched", report.Fetched),
		slog.Int("in_window", report.InWindow),
		slog.Int("unseen", report.Unseen),
	)

	canceled := false
	for _, entry := range unseen {
		if ctx.Err() != nil {
			canceled = true
			logger.Warn("キャンセルされたため残りの記事の処理を中断します",
				slog.Int("remaining", report.Unseen-report.Delivered-report.EnrichFailures-report.DispatchFailures),
			)
			break
		}
		o.processEntry(ctx, logger, entry, report)
	}

	// 前回のサイクルで保存できなかった記録は新規配信がなくても保存し直す
	if report.Delivered > 0 || o.dirty {
		// 配信済みの記録はキャンセル後も保存する
		persistCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
		err := o.store.Put(persistCtx, o.stateKey, o.tracker.Snapshot())
		cancel()
		o.dirty = err != nil
		if err != nil {
			report.PersistenceFailure = true
			o.metrics.RecordPersistenceFailure("put")
			logger.Warn("配信状態の保存に失敗しました",
				slog.String("state_key", o.stateKey),
				slog.String("error", model.NewPersistenceFailedError("保存", err).Error()),
			)
		} else {
			report.Persisted = true
		}
	}
	o.metrics.SetDeliveredToday(o.tracker.Len())

	report.Duration = time.Since(start)
	result := metrics.CycleResultOK
	if canceled {
		result = metrics.CycleResultCanceled
	}
	o.metrics.RecordCycle(result, report.Duration)

	logger.Info("配信サイクルが完了しました",
		slog.Int("delivered", report.Delivered),
		slog.Int("enrich_failures", report.EnrichFailures),
		slog.Int("dispatch_failures", report.DispatchFailures),
		slog.Int("delivered_today", o.tracker.Len()),
		slog.Bool("persisted", report.Persisted),
		slog.Float64("duration_ms", float64(report.Duration.Milliseconds())),
	)

	if canceled {
		return report, ctx.Err()
	}
	return report, nil
}

// processEntry は1件の記事の本文取得と配信を行う。
// 配信の成功を確認した後にのみ配信済みとして記録する。
func (o *Orchestrator) processEntry(ctx context.Context, logger *slog.Logger, entry model.Entry, report *model.CycleReport) {
	body, err := o.enricher.Enrich(ctx, entry)
	if err != nil {
		report.EnrichFailures++
		o.metrics.RecordEnrichFailure()
		logger.Warn("記事本文の取得に失敗したためスキップします",
			slog.String("entry_id", entry.ID),
			slog.String("slug", entry.Slug),
			slog.String("error", err.Error()),
		)
		return
	}

	article := model.EnrichedArticle{Entry: entry, Body: body}
	if err := o.dispatcher.Dispatch(ctx, article); err != nil {
		report.DispatchFailures++
		o.metrics.RecordDispatchFailure()
		logger.Warn("記事の配信に失敗したため次のサイクルで再試行します",
			slog.String("entry_id", entry.ID),
			slog.String("title", entry.Title),
			slog.String("error", err.Error()),
		)
		return
	}

	o.tracker.MarkDelivered(entry.ID)
	report.Delivered++
	o.metrics.RecordDelivered()
	logger.Info("記事を配信しました",
		slog.String("entry_id", entry.ID),
		slog.String("title", entry.Title),
	)
}

// noopMetrics はメトリクスを記録しないMetricsCollector。
type noopMetrics struct{}

func (noopMetrics) RecordCycle(string, time.Duration) {}
func (noopMetrics) RecordCycleSkipped()               {}
func (noopMetrics) RecordEntriesFetched(int)          {}
func (noopMetrics) RecordDelivered()                  {}
func (noopMetrics) RecordEnrichFailure()              {}
func (noopMetrics) RecordDispatchFailure()            {}
func (noopMetrics) RecordPersistenceFailure(string)   {}
func (noopMetrics) RecordRollover()                   {}
func (noopMetrics) SetDeliveredToday(int)             {}
