package relay

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hitoshi/dailyrelay/internal/metrics"
	"github.com/hitoshi/dailyrelay/internal/model"
)

// CycleRunner は1回の配信サイクルの実行インターフェース。
type CycleRunner interface {
	RunCycle(ctx context.Context) (*model.CycleReport, error)
}

// Scheduler は配信サイクルを一定間隔で実行する。
// サイクルが重ならないよう実行中フラグで保護し、
// 前回のサイクルが終わっていない場合の起動はスキップする。
type Scheduler struct {
	runner  CycleRunner
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	running atomic.Bool

	mu         sync.RWMutex
	lastReport *model.CycleReport
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(runner CycleRunner, m metrics.MetricsCollector, logger *slog.Logger) *Scheduler {
	if m == nil {
		m = noopMetrics{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		runner:  runner,
		metrics: m,
		logger:  logger,
	}
}

// Start はintervalごとのティッカーでスケジューラを起動する。
// 起動直後に1回実行し、コンテキストがキャンセルされるまで実行を継続する。
// サイクルの失敗はログに記録するだけでループは止めない。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("配信スケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("配信スケジューラを停止しました")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if _, err := s.TryRunOnce(ctx); err != nil {
		if model.IsCode(err, model.ErrCodeCycleInProgress) {
			s.logger.Warn("前回の配信サイクルが実行中のためスキップしました")
			return
		}
		s.logger.Error("配信サイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}

// TryRunOnce はサイクルが実行中でなければ1回実行する。
// 実行中の場合は待たずにCYCLE_IN_PROGRESSを返す。
func (s *Scheduler) TryRunOnce(ctx context.Context) (*model.CycleReport, error) {
	if !s.running.CompareAndSwap(false, true) {
		s.metrics.RecordCycleSkipped()
		return nil, model.NewCycleInProgressError()
	}
	defer s.running.Store(false)

	report, err := s.runner.RunCycle(ctx)
	if report != nil {
		s.mu.Lock()
		s.lastReport = report
		s.mu.Unlock()
	}
	return report, err
}

// Running はサイクルが実行中かどうかを返す。
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// LastReport は直近に完了したサイクルのレポートを返す。まだ実行していない場合はnil。
func (s *Scheduler) LastReport() *model.CycleReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastReport == nil {
		return nil
	}
	r := *s.lastReport
	return &r
}
