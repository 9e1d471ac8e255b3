// Package notify は記事を外部の配信先（Discord Webhook）へ送信する。
package notify

import (
	"context"
	"unicode/utf8"

	"github.com/hitoshi/dailyrelay/internal/model"
)

// Dispatcher は本文取得済みの記事を配信先に送信する。
// 配信先が応答するまで戻らない。2xx以外の応答はエラーとして返す。
type Dispatcher interface {
	Dispatch(ctx context.Context, article model.EnrichedArticle) error
}

const (
	// DefaultContentLimit はDiscordのメッセージ本文の上限文字数。
	DefaultContentLimit = 2000

	messageSeparator = "\n\n______________________\n\n"
	ellipsis         = "…"
)

// FormatMessage は記事を配信用のメッセージに整形する。
//
//	\n\n______________________\n\n<タイトル>\n\n<本文>\n\n<リンク>
//
// 全体がlimit文字（ルーン数）に収まるよう本文を切り詰め、末尾に「…」を付ける。
// リンクは出典URLを優先し、どちらも空の場合はリンク部分を省略する。
// 本文はMarkdownのまま送信する。「<」「>」を含むコード片も加工しない。
func FormatMessage(article model.EnrichedArticle, limit int) string {
	body := article.Body
	head := messageSeparator + article.Title + "\n\n"
	tail := ""
	if link := article.DisplayLink(); link != "" {
		tail = "\n\n" + link
	}

	if limit <= 0 {
		return head + body + tail
	}

	room := limit - utf8.RuneCountInString(head) - utf8.RuneCountInString(tail)
	body = truncateRunes(body, room)
	return truncateRunes(head+body+tail, limit)
}

// truncateRunes はsをmax文字以内に切り詰める。切り詰めた場合は末尾を「…」にする。
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max == 1 {
		return ellipsis
	}
	runes := []rune(s)
	return string(runes[:max-1]) + ellipsis
}
