// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/dailyrelay/internal/model"
)

// StateStore は当日の配信状態の永続化インターフェース。
// 書き込みはDailyState単位で原子的に置き換え、部分的な書き込みは行わない。
type StateStore interface {
	// Get は指定キーの状態を取得する。存在しない場合はnilを返す。
	Get(ctx context.Context, key string) (*model.DailyState, error)

	// Put は指定キーの状態を丸ごと置き換える。
	Put(ctx context.Context, key string, state model.DailyState) error

	// Delete は指定キーの状態を削除する。存在しない場合もエラーにしない。
	Delete(ctx context.Context, key string) error
}

// HealthChecker はストアの疎通確認インターフェース。
// 管理APIの/healthから使用する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}
