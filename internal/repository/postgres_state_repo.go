package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/dailyrelay/internal/model"
)

// PostgresStateRepo はPostgreSQLを使用した配信状態リポジトリ。
// delivery_statesテーブルの1行が1つのDailyStateに対応する。
type PostgresStateRepo struct {
	db *sql.DB
}

// NewPostgresStateRepo はPostgresStateRepoを生成する。
func NewPostgresStateRepo(db *sql.DB) *PostgresStateRepo {
	return &PostgresStateRepo{db: db}
}

// Get は指定キーの状態を取得する。見つからない場合はnilを返す。
func (r *PostgresStateRepo) Get(ctx context.Context, key string) (*model.DailyState, error) {
	var dayText string
	var ids []string

	err := r.db.QueryRowContext(ctx,
		`SELECT day::text, delivered_ids FROM delivery_states WHERE state_key = $1`,
		key,
	).Scan(&dayText, pq.Array(&ids))

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("配信状態の取得に失敗しました: %w", err)
	}

	day, err := model.ParseDay(dayText)
	if err != nil {
		return nil, fmt.Errorf("配信状態の日付が不正です: %w", err)
	}

	if ids == nil {
		ids = []string{}
	}
	return &model.DailyState{Day: day, DeliveredIDs: ids}, nil
}

// Put は指定キーの状態を1文のUPSERTで置き換える。
// 日付とID集合は常に同時に書き込まれる。
func (r *PostgresStateRepo) Put(ctx context.Context, key string, state model.DailyState) error {
	ids := state.DeliveredIDs
	if ids == nil {
		ids = []string{}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO delivery_states (state_key, day, delivered_ids, updated_at)
		 VALUES ($1, $2::date, $3, $4)
		 ON CONFLICT (state_key) DO UPDATE
		 SET day = EXCLUDED.day,
		     delivered_ids = EXCLUDED.delivered_ids,
		     updated_at = EXCLUDED.updated_at`,
		key, state.Day.String(), pq.Array(ids), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("配信状態の保存に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定キーの状態を削除する。
func (r *PostgresStateRepo) Delete(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM delivery_states WHERE state_key = $1`, key)
	if err != nil {
		return fmt.Errorf("配信状態の削除に失敗しました: %w", err)
	}
	return nil
}

// PingContext はデータベースへの疎通を確認する。
func (r *PostgresStateRepo) PingContext(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
