package relay

import (
	"context"
	"log/slog"

	"github.com/hitoshi/dailyrelay/internal/discovery"
	"github.com/hitoshi/dailyrelay/internal/model"
	"github.com/hitoshi/dailyrelay/internal/repository"
)

// LoadTracker は永続化された配信状態からTrackerを復元する。
// 状態が存在しない場合や読み込みに失敗した場合は空のTrackerを返す。
// 前日の状態が読み込まれた場合は最初のサイクルでリセットされる。
func LoadTracker(ctx context.Context, store repository.StateStore, key string, logger *slog.Logger) *discovery.Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	if key == "" {
		key = model.DefaultStateKey
	}

	state, err := store.Get(ctx, key)
	if err != nil {
		logger.Warn("配信状態の読み込みに失敗したため空の状態で開始します",
			slog.String("state_key", key),
			slog.String("error", model.NewPersistenceFailedError("読み込み", err).Error()),
		)
		return discovery.NewTracker(model.DailyState{})
	}
	if state == nil {
		logger.Info("保存済みの配信状態はありません",
			slog.String("state_key", key),
		)
		return discovery.NewTracker(model.DailyState{})
	}

	tracker := discovery.NewTracker(*state)
	logger.Info("配信状態を読み込みました",
		slog.String("state_key", key),
		slog.String("day", state.Day.String()),
		slog.Int("delivered_count", tracker.Len()),
	)
	return tracker
}
