package model

import "time"

// DefaultStateKey は「当日の配信済みID集合」を保存する固定の論理キー。
const DefaultStateKey = "delivered_ids"

// DailyState はトラッカーの状態のシリアライズ可能なスナップショット。
// DeliveredIDsはDayに公開された記事のIDのみを含む。
// 日付が変わった場合はマージせず、新しい日付の空の状態で丸ごと置き換える。
type DailyState struct {
	Day          Day      `json:"day"`
	DeliveredIDs []string `json:"delivered_ids"`
}

// Clone はDeliveredIDsを複製したコピーを返す。
func (s DailyState) Clone() DailyState {
	ids := make([]string, len(s.DeliveredIDs))
	copy(ids, s.DeliveredIDs)
	return DailyState{Day: s.Day, DeliveredIDs: ids}
}

// CycleReport は1サイクルの処理結果を表す。
type CycleReport struct {
	CycleID            string
	Day                Day
	StartedAt          time.Time
	Duration           time.Duration
	Fetched            int  // フィードから取得した件数
	InWindow           int  // 当日公開の件数
	Unseen             int  // 未配信の件数
	Delivered          int  // 今回配信に成功した件数
	EnrichFailures     int  // 本文取得に失敗した件数
	DispatchFailures   int  // 配信に失敗した件数
	RolledOver         bool // 日付の切り替わりで状態をリセットしたか
	Persisted          bool // 状態を永続化したか
	PersistenceFailure bool // 永続化に失敗したか
}
