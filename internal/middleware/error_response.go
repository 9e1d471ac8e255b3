package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/hitoshi/dailyrelay/internal/model"
)

// ErrorResponseBody は管理APIのエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Scope   string `json:"scope,omitempty"`
}

// WriteErrorResponse は統一エラーフォーマットでHTTPエラーレスポンスを書き込む。
func WriteErrorResponse(w http.ResponseWriter, statusCode int, body ErrorResponseBody) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// WriteRelayError はRelayErrorをエラーレスポンスとして書き込む。
// 原因のエラーは内部情報を含み得るためレスポンスには含めない。
func WriteRelayError(w http.ResponseWriter, statusCode int, relayErr *model.RelayError) {
	WriteErrorResponse(w, statusCode, ErrorResponseBody{
		Code:    relayErr.Code,
		Message: relayErr.Message,
		Scope:   relayErr.Scope,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、クライアントには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteErrorResponse(w, http.StatusInternalServerError, ErrorResponseBody{
		Code:    "INTERNAL_ERROR",
		Message: "内部エラーが発生しました。",
	})
}
