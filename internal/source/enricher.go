package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	readability "github.com/go-shiori/go-readability"
	"github.com/hitoshi/dailyrelay/internal/model"
)

// Enricher は記事の本文を取得する。
type Enricher interface {
	Enrich(ctx context.Context, entry model.Entry) (string, error)
}

// URLValidator は外部から与えられたURLを取得前に検証する。
type URLValidator interface {
	ValidateURL(rawURL string) error
}

// APIEnricher は記事のスラッグから本文APIを呼び出して本文を取得する。
// リクエスト先は <articleBaseURL>/<スラッグ> で、レスポンスはJSONの body フィールドを持つ。
type APIEnricher struct {
	getter         *getter
	articleBaseURL string
}

// NewAPIEnricher はAPIEnricherを生成する。
func NewAPIEnricher(client *http.Client, logger *slog.Logger, articleBaseURL string, opts ClientOptions) *APIEnricher {
	return &APIEnricher{
		getter:         newGetter(client, logger, opts),
		articleBaseURL: strings.TrimRight(articleBaseURL, "/"),
	}
}

// Enrich はエントリのスラッグで本文を取得する。
// スラッグはパスセグメントとしてエスケープする。
func (e *APIEnricher) Enrich(ctx context.Context, entry model.Entry) (string, error) {
	if entry.Slug == "" {
		return "", model.NewEnrichFailedError(entry.ID, errors.New("スラッグが空です"))
	}

	endpoint := e.articleBaseURL + "/" + url.PathEscape(entry.Slug)
	body, err := e.getter.get(ctx, endpoint, "application/json")
	if err != nil {
		return "", model.NewEnrichFailedError(entry.Slug, err)
	}

	var payload struct {
		Body string `json:"body"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", model.NewEnrichFailedError(entry.Slug, fmt.Errorf("JSONのパースに失敗: %w", err))
	}

	return payload.Body, nil
}

// PageEnricher は記事ページをダウンロードし、readabilityで本文テキストを抽出する。
// RSS/Atomフィードのように本文APIを持たないフィードで使用する。
type PageEnricher struct {
	getter    *getter
	validator URLValidator
}

// NewPageEnricher はPageEnricherを生成する。
func NewPageEnricher(client *http.Client, logger *slog.Logger, validator URLValidator, opts ClientOptions) *PageEnricher {
	return &PageEnricher{
		getter:    newGetter(client, logger, opts),
		validator: validator,
	}
}

// Enrich はエントリのリンク先ページから本文を抽出する。
func (e *PageEnricher) Enrich(ctx context.Context, entry model.Entry) (string, error) {
	ref := entry.Slug
	if ref == "" {
		ref = entry.ID
	}

	if entry.Link == "" {
		return "", model.NewEnrichFailedError(ref, errors.New("記事ページのURLが空です"))
	}
	if e.validator != nil {
		if err := e.validator.ValidateURL(entry.Link); err != nil {
			return "", model.NewEnrichFailedError(ref, fmt.Errorf("URL検証エラー: %w", err))
		}
	}

	pageURL, err := url.Parse(entry.Link)
	if err != nil {
		return "", model.NewEnrichFailedError(ref, fmt.Errorf("URLのパースに失敗: %w", err))
	}

	body, err := e.getter.get(ctx, entry.Link, "text/html, application/xhtml+xml;q=0.9, */*;q=0.8")
	if err != nil {
		return "", model.NewEnrichFailedError(ref, err)
	}

	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	if err != nil {
		return "", model.NewEnrichFailedError(ref, fmt.Errorf("本文の抽出に失敗: %w", err))
	}

	text := strings.TrimSpace(article.TextContent)
	if text == "" {
		return "", model.NewEnrichFailedError(ref, errors.New("本文が空です"))
	}
	return text, nil
}
