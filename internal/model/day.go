// Package model はドメインモデルを定義する。
package model

import (
	"fmt"
	"time"
)

// dayLayout はDayの文字列表現（ISO 8601の日付部分）。
const dayLayout = "2006-01-02"

// Day は時刻を持たない暦日を表す。
// タイムスタンプの文字列前方一致ではなく、日付型として比較するために使用する。
type Day struct {
	Year  int
	Month time.Month
	Day   int
}

// DayOf は指定ロケーションにおける時刻tの暦日を返す。
// locがnilの場合はUTCとして扱う。
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := t.In(loc).Date()
	return Day{Year: y, Month: m, Day: d}
}

// ParseDay は"YYYY-MM-DD"形式の文字列をDayに変換する。
func ParseDay(s string) (Day, error) {
	t, err := time.Parse(dayLayout, s)
	if err != nil {
		return Day{}, fmt.Errorf("invalid day %q: %w", s, err)
	}
	return DayOf(t, time.UTC), nil
}

// String は"YYYY-MM-DD"形式の文字列を返す。
func (d Day) String() string {
	if d.IsZero() {
		return ""
	}
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// IsZero はゼロ値（未設定）かどうかを返す。
func (d Day) IsZero() bool {
	return d == Day{}
}

// Equal は同じ暦日かどうかを返す。
func (d Day) Equal(other Day) bool {
	return d == other
}

// Contains は時刻tがlocにおいてこの暦日に含まれるかを返す。
// ゼロ値の時刻は常にfalseとする。
func (d Day) Contains(t time.Time, loc *time.Location) bool {
	if t.IsZero() {
		return false
	}
	return DayOf(t, loc) == d
}

// MarshalText はencoding.TextMarshalerを実装する。
func (d Day) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText はencoding.TextUnmarshalerを実装する。
// 空文字列はゼロ値として扱う。
func (d *Day) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Day{}
		return nil
	}
	parsed, err := ParseDay(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
