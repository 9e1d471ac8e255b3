package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/hitoshi/dailyrelay/internal/model"
	"github.com/mmcdole/gofeed"
)

// FeedClient はフィードの現在のスナップショットを取得する。
type FeedClient interface {
	Fetch(ctx context.Context) ([]model.Entry, error)
}

// DefaultSiteBaseURL はTabNewsの記事ページのベースURL。
const DefaultSiteBaseURL = "https://www.tabnews.com.br"

// listingItem はJSON一覧エンドポイントの1要素。
type listingItem struct {
	ID            string `json:"id"`
	Slug          string `json:"slug"`
	Title         string `json:"title"`
	SourceURL     string `json:"source_url"`
	PublishedAt   string `json:"published_at"`
	OwnerUsername string `json:"owner_username"`
}

// JSONFeedClient はTabNews形式のJSON一覧エンドポイントからフィードを取得する。
type JSONFeedClient struct {
	getter      *getter
	feedURL     string
	siteBaseURL string
}

// NewJSONFeedClient はJSONFeedClientを生成する。
// siteBaseURLは記事ページのURL組み立てに使用し、空の場合はTabNewsを使用する。
func NewJSONFeedClient(client *http.Client, logger *slog.Logger, feedURL, siteBaseURL string, opts ClientOptions) *JSONFeedClient {
	if siteBaseURL == "" {
		siteBaseURL = DefaultSiteBaseURL
	}
	return &JSONFeedClient{
		getter:      newGetter(client, logger, opts),
		feedURL:     feedURL,
		siteBaseURL: strings.TrimRight(siteBaseURL, "/"),
	}
}

// Fetch は一覧を取得し、レスポンスの順序のままEntryに変換する。
// idが空の要素は重複排除できないため除外する。
// published_atを解釈できない要素は公開日時を持たないものとして扱う（当日判定で除外される）。
func (c *JSONFeedClient) Fetch(ctx context.Context) ([]model.Entry, error) {
	body, err := c.getter.get(ctx, c.feedURL, "application/json")
	if err != nil {
		return nil, model.NewFetchFailedError(c.feedURL, err)
	}

	var items []listingItem
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, model.NewFetchFailedError(c.feedURL, fmt.Errorf("JSONのパースに失敗: %w", err))
	}

	entries := make([]model.Entry, 0, len(items))
	for _, it := range items {
		if it.ID == "" {
			continue
		}
		entry := model.Entry{
			ID:        it.ID,
			Title:     it.Title,
			Slug:      it.Slug,
			Author:    it.OwnerUsername,
			SourceURL: it.SourceURL,
		}
		if it.OwnerUsername != "" && it.Slug != "" {
			entry.Link = c.siteBaseURL + "/" + url.PathEscape(it.OwnerUsername) + "/" + url.PathEscape(it.Slug)
		}
		if t, err := time.Parse(time.RFC3339Nano, it.PublishedAt); err == nil {
			entry.PublishedAt = t
		} else if it.PublishedAt != "" {
			c.getter.logger.Warn("公開日時の解釈に失敗しました",
				slog.String("entry_id", it.ID),
				slog.String("published_at", it.PublishedAt),
			)
		}
		entries = append(entries, entry)
	}

	return entries, nil
}

// RSSFeedClient はRSS/Atomフィードを取得し、gofeedでパースする。
type RSSFeedClient struct {
	getter  *getter
	cleaner TextCleaner
	feedURL string
}

// TextCleaner はHTMLを含み得るテキストをプレーンテキストにする。
type TextCleaner interface {
	PlainText(raw string) string
}

// NewRSSFeedClient はRSSFeedClientを生成する。
// RSSのタイトルはHTMLやエンティティを含むことがあるため、cleanerで除去する。nilの場合はそのまま使用する。
func NewRSSFeedClient(client *http.Client, logger *slog.Logger, feedURL string, cleaner TextCleaner, opts ClientOptions) *RSSFeedClient {
	return &RSSFeedClient{
		getter:  newGetter(client, logger, opts),
		cleaner: cleaner,
		feedURL: feedURL,
	}
}

// Fetch はフィードを取得し、記事をEntryに変換する。
func (c *RSSFeedClient) Fetch(ctx context.Context) ([]model.Entry, error) {
	body, err := c.getter.get(ctx, c.feedURL,
		"application/rss+xml, application/atom+xml, application/xml, text/xml;q=0.9, */*;q=0.8")
	if err != nil {
		return nil, model.NewFetchFailedError(c.feedURL, err)
	}

	parsed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, model.NewFetchFailedError(c.feedURL, fmt.Errorf("フィードのパースに失敗: %w", err))
	}

	return convertFeedItems(parsed.Items, c.cleaner), nil
}

// convertFeedItems はgofeedの記事をEntryに変換する。
// IDはGUIDを優先し、なければリンクを使用する。どちらもない記事は除外する。
func convertFeedItems(items []*gofeed.Item, cleaner TextCleaner) []model.Entry {
	entries := make([]model.Entry, 0, len(items))

	for _, item := range items {
		if item == nil {
			continue
		}

		link := item.Link
		// LinkがなくGUIDがURL形式の場合はGUIDをLinkとして使用
		if link == "" && (strings.HasPrefix(item.GUID, "http://") || strings.HasPrefix(item.GUID, "https://")) {
			link = item.GUID
		}

		id := item.GUID
		if id == "" {
			id = link
		}
		if id == "" {
			continue
		}

		title := item.Title
		if cleaner != nil {
			title = cleaner.PlainText(title)
		}

		entry := model.Entry{
			ID:    id,
			Title: title,
			Slug:  slugFromLink(link),
			Link:  link,
		}

		if item.Author != nil {
			entry.Author = item.Author.Name
		}
		if entry.Author == "" && len(item.Authors) > 0 && item.Authors[0] != nil {
			entry.Author = item.Authors[0].Name
		}

		if item.PublishedParsed != nil {
			entry.PublishedAt = *item.PublishedParsed
		} else if item.UpdatedParsed != nil {
			entry.PublishedAt = *item.UpdatedParsed
		}

		entries = append(entries, entry)
	}

	return entries
}

// slugFromLink はリンクのパスの最後のセグメントを返す。
func slugFromLink(link string) string {
	if link == "" {
		return ""
	}
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	p := strings.TrimRight(u.Path, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}
