// Package discovery は新着記事の検出と重複排除を提供する。
// 当日公開の記事への絞り込みと、当日配信済みIDの追跡を含む。
package discovery

import (
	"time"

	"github.com/hitoshi/dailyrelay/internal/model"
)

// FilterByDay はスナップショットを公開日がdayと一致する記事に絞り込む。
// 公開日はlocで暦日に変換する（nilの場合はUTC）。
// 順序は保持し、入力のスライスと記事は変更しない。
func FilterByDay(entries []model.Entry, day model.Day, loc *time.Location) []model.Entry {
	filtered := make([]model.Entry, 0, len(entries))
	for _, e := range entries {
		if day.Contains(e.PublishedAt, loc) {
			filtered = append(filtered, e)
		}
	}
	return filtered
}
