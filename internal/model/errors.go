package model

import (
	"errors"
	"fmt"
)

// RelayError はリレー処理の失敗を分類するエラー。
// どのエラーもプロセスにとって致命的ではなく、影響範囲はScopeで示す。
type RelayError struct {
	Code    string // エラーコード
	Scope   string // 影響範囲: cycle, entry, state
	Message string // エラーメッセージ
	Err     error  // 原因
}

// Error はerrorインターフェースを実装する。
func (e *RelayError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap は原因のエラーを返す。
func (e *RelayError) Unwrap() error {
	return e.Err
}

// 定義済みエラーコード
const (
	ErrCodeFetchFailed       = "FETCH_FAILED"
	ErrCodeEnrichFailed      = "ENRICH_FAILED"
	ErrCodeDispatchFailed    = "DISPATCH_FAILED"
	ErrCodePersistenceFailed = "PERSISTENCE_FAILED"
	ErrCodeCycleInProgress   = "CYCLE_IN_PROGRESS"
)

// 影響範囲
const (
	ScopeCycle = "cycle"
	ScopeEntry = "entry"
	ScopeState = "state"
)

// NewFetchFailedError はフィード取得失敗エラーを生成する。サイクル全体が中断される。
func NewFetchFailedError(reason string, err error) *RelayError {
	return &RelayError{
		Code:    ErrCodeFetchFailed,
		Scope:   ScopeCycle,
		Message: fmt.Sprintf("フィードの取得に失敗しました: %s", reason),
		Err:     err,
	}
}

// NewEnrichFailedError は本文取得失敗エラーを生成する。対象の記事のみスキップされる。
func NewEnrichFailedError(slug string, err error) *RelayError {
	return &RelayError{
		Code:    ErrCodeEnrichFailed,
		Scope:   ScopeEntry,
		Message: fmt.Sprintf("記事本文の取得に失敗しました: %s", slug),
		Err:     err,
	}
}

// NewDispatchFailedError は配信失敗エラーを生成する。対象の記事は次のサイクルで再試行される。
func NewDispatchFailedError(title string, err error) *RelayError {
	return &RelayError{
		Code:    ErrCodeDispatchFailed,
		Scope:   ScopeEntry,
		Message: fmt.Sprintf("記事の配信に失敗しました: %s", title),
		Err:     err,
	}
}

// NewPersistenceFailedError は状態ストアの操作失敗エラーを生成する。
func NewPersistenceFailedError(op string, err error) *RelayError {
	return &RelayError{
		Code:    ErrCodePersistenceFailed,
		Scope:   ScopeState,
		Message: fmt.Sprintf("配信状態の%sに失敗しました", op),
		Err:     err,
	}
}

// NewCycleInProgressError は前回のサイクルが実行中であることを示すエラーを生成する。
func NewCycleInProgressError() *RelayError {
	return &RelayError{
		Code:    ErrCodeCycleInProgress,
		Scope:   ScopeCycle,
		Message: "前回のサイクルが実行中です",
	}
}

// IsCode はerrのチェーンに指定コードのRelayErrorが含まれるかを返す。
func IsCode(err error, code string) bool {
	var re *RelayError
	if errors.As(err, &re) {
		return re.Code == code
	}
	return false
}
