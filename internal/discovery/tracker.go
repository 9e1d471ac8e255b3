package discovery

import (
	"sync"

	"github.com/hitoshi/dailyrelay/internal/model"
)

// Tracker は「この記事は今日すでに配信したか」を判定する唯一の情報源。
// 当日の配信済みIDを保持し、日付が変わると状態を丸ごと破棄する。
// 状態の変更は実行中の1サイクルからのみ行われる。
// 読み取りは管理APIからも行われるためRWMutexで保護する。
type Tracker struct {
	mu    sync.RWMutex
	day   model.Day
	order []string
	ids   map[string]struct{}
}

// NewTracker は初期状態からTrackerを生成する。
// 永続化された状態がない場合はゼロ値のDailyStateを渡す。
func NewTracker(initial model.DailyState) *Tracker {
	t := &Tracker{}
	t.restore(initial)
	return t
}

// CurrentDay は現在の状態が対象とする暦日を返す。
func (t *Tracker) CurrentDay() model.Day {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.day
}

// ResetIfDayChanged はobservedが保持中の日付と異なる場合、
// observedの日付の空の状態に置き換える。リセットした場合はtrueを返す。
// 冪等であり、各サイクルで絞り込みと判定の前に呼び出す。
func (t *Tracker) ResetIfDayChanged(observed model.Day) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.day == observed {
		return false
	}
	t.day = observed
	t.order = nil
	t.ids = make(map[string]struct{})
	return true
}

// IsDelivered は当日すでに配信済みのIDかどうかを返す。
func (t *Tracker) IsDelivered(id string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.ids[id]
	return ok
}

// MarkDelivered はIDを配信済みとして記録する。
// 配信の成功が確認された後にのみ呼び出すこと。
func (t *Tracker) MarkDelivered(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, ok := t.ids[id]; ok {
		return
	}
	t.ids[id] = struct{}{}
	t.order = append(t.order, id)
}

// Unseen は未配信の記事を順序を保って返す。
// 同じスナップショット内でIDが重複する場合は最初の1件のみを残す。
func (t *Tracker) Unseen(entries []model.Entry) []model.Entry {
	t.mu.RLock()
	defer t.mu.RUnlock()

	seen := make(map[string]struct{}, len(entries))
	unseen := make([]model.Entry, 0, len(entries))
	for _, e := range entries {
		if _, ok := t.ids[e.ID]; ok {
			continue
		}
		if _, dup := seen[e.ID]; dup {
			continue
		}
		seen[e.ID] = struct{}{}
		unseen = append(unseen, e)
	}
	return unseen
}

// Len は当日の配信済み件数を返す。
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.order)
}

// Snapshot は永続化用に現在の状態のコピーを返す。IDは記録順。
func (t *Tracker) Snapshot() model.DailyState {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]string, len(t.order))
	copy(ids, t.order)
	return model.DailyState{Day: t.day, DeliveredIDs: ids}
}

// Restore は永続化された状態で現在の状態を置き換える。
func (t *Tracker) Restore(state model.DailyState) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.restore(state)
}

func (t *Tracker) restore(state model.DailyState) {
	t.day = state.Day
	t.order = make([]string, 0, len(state.DeliveredIDs))
	t.ids = make(map[string]struct{}, len(state.DeliveredIDs))
	for _, id := range state.DeliveredIDs {
		if _, ok := t.ids[id]; ok {
			continue
		}
		t.ids[id] = struct{}{}
		t.order = append(t.order, id)
	}
}
