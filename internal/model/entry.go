package model

import "time"

// Entry はフィードの一覧エンドポイントから取得した1件の記事を表す。
// 取得後は変更しない。1サイクルの間だけオーケストレーターが保持する。
type Entry struct {
	ID          string // ポーリング間で安定した一意の識別子
	Title       string
	Slug        string // 本文取得に使用する
	Author      string
	PublishedAt time.Time
	SourceURL   string // 記事の出典URL（存在しない場合は空）
	Link        string // 記事ページのURL
}

// EnrichedArticle は本文を取得済みの記事。
// 本文取得から配信までの間だけ存在し、配信結果にかかわらず破棄される。
type EnrichedArticle struct {
	Entry
	Body string
}

// DisplayLink は通知に添えるリンクを返す。
// 出典URLを優先し、なければ記事ページのURLを使用する。
func (e Entry) DisplayLink() string {
	if e.SourceURL != "" {
		return e.SourceURL
	}
	return e.Link
}
