package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/dailyrelay/internal/model"
)

// connectionTimeout はRedis接続確認のタイムアウト。
const connectionTimeout = 2 * time.Second

// RedisStateRepo はRedisを使用した配信状態リポジトリ。
// 状態はキーごとに1つのJSON値として保存し、SETで原子的に置き換える。
type RedisStateRepo struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration // 0の場合は期限なし
}

// NewRedisClient はRedisクライアントを生成し、接続を確認する。
func NewRedisClient(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(context.Background(), connectionTimeout)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisStateRepo はRedisStateRepoを生成する。
// ttlを指定すると古い日付の状態は自動的に期限切れになる。
func NewRedisStateRepo(client *redis.Client, ttl time.Duration) *RedisStateRepo {
	return &RedisStateRepo{
		client:    client,
		keyPrefix: "dailyrelay:",
		ttl:       ttl,
	}
}

// Get は指定キーの状態を取得する。存在しない場合はnilを返す。
func (r *RedisStateRepo) Get(ctx context.Context, key string) (*model.DailyState, error) {
	data, err := r.client.Get(ctx, r.keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("配信状態の取得に失敗しました: %w", err)
	}

	var state model.DailyState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("配信状態のパースに失敗しました: %w", err)
	}
	return &state, nil
}

// Put は指定キーの状態を置き換える。
func (r *RedisStateRepo) Put(ctx context.Context, key string, state model.DailyState) error {
	if state.DeliveredIDs == nil {
		state.DeliveredIDs = []string{}
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("配信状態のシリアライズに失敗しました: %w", err)
	}
	if err := r.client.Set(ctx, r.keyPrefix+key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("配信状態の保存に失敗しました: %w", err)
	}
	return nil
}

// Delete は指定キーの状態を削除する。
func (r *RedisStateRepo) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.keyPrefix+key).Err(); err != nil {
		return fmt.Errorf("配信状態の削除に失敗しました: %w", err)
	}
	return nil
}

// PingContext はRedisへの疎通を確認する。
func (r *RedisStateRepo) PingContext(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
