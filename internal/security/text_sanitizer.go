package security

import (
	"html"
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// blankLines は3行以上連続する空行。
var blankLines = regexp.MustCompile(`\n{3,}`)

// TextSanitizer は記事のタイトルや本文からHTMLタグを除去し、
// 通知先にそのまま渡せるプレーンテキストに変換する。
// bluemondayのStrictPolicyは全タグを除去し、テキストをHTMLエスケープするため、
// 最後にエスケープを戻す。
type TextSanitizer struct {
	policy *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
func NewTextSanitizer() *TextSanitizer {
	return &TextSanitizer{policy: bluemonday.StrictPolicy()}
}

// PlainText はHTMLタグを除去したテキストを返す。
// Markdownの記法はそのまま残す。改行はLFに統一し、連続する空行は1行にまとめる。
func (s *TextSanitizer) PlainText(raw string) string {
	if raw == "" {
		return ""
	}
	text := html.UnescapeString(s.policy.Sanitize(raw))
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = blankLines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
