package repository

import (
	"context"
	"sync"

	"github.com/hitoshi/dailyrelay/internal/model"
)

// MemoryStateRepo はプロセス内メモリに状態を保持するストア。
// 再起動すると配信状態は失われる（既知の制約）。
type MemoryStateRepo struct {
	mu     sync.RWMutex
	states map[string]model.DailyState
}

// NewMemoryStateRepo はMemoryStateRepoを生成する。
func NewMemoryStateRepo() *MemoryStateRepo {
	return &MemoryStateRepo{states: make(map[string]model.DailyState)}
}

// Get は指定キーの状態のコピーを返す。存在しない場合はnilを返す。
func (r *MemoryStateRepo) Get(_ context.Context, key string) (*model.DailyState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.states[key]
	if !ok {
		return nil, nil
	}
	clone := state.Clone()
	return &clone, nil
}

// Put は指定キーの状態をコピーして保存する。
func (r *MemoryStateRepo) Put(_ context.Context, key string, state model.DailyState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[key] = state.Clone()
	return nil
}

// Delete は指定キーの状態を削除する。
func (r *MemoryStateRepo) Delete(_ context.Context, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.states, key)
	return nil
}

// PingContext は常に成功する。
func (r *MemoryStateRepo) PingContext(_ context.Context) error {
	return nil
}
