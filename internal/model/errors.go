// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
// 上流障害の場合はログ相関用のCorrelationIDを保持する。
type APIError struct {
	Code          string // エラーコード
	Message       string // エラーメッセージ
	Category      string // カテゴリ: validation, upstream, store, system
	Action        string // ユーザー向け対処方法
	CorrelationID string // 上流ログとの相関ID（上流障害時のみ）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeUpstreamUnavailable = "UPSTREAM_UNAVAILABLE"
	ErrCodeUpstreamRejected    = "UPSTREAM_REJECTED"
	ErrCodeNothingExtracted    = "NOTHING_EXTRACTED"
	ErrCodeStoreUnavailable    = "STORE_UNAVAILABLE"
	ErrCodeEntryNotFound       = "ENTRY_NOT_FOUND"
	ErrCodeTransactionNotFound = "TRANSACTION_NOT_FOUND"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  message,
		Category: "validation",
		Action:   "リクエスト内容を確認してください。",
	}
}

// NewUpstreamUnavailableError はリトライ上限に達した上流障害エラーを生成する。
// correlationIDにより上流サービスのログと突き合わせできる。
func NewUpstreamUnavailableError(correlationID string, attempts int) *APIError {
	return &APIError{
		Code:          ErrCodeUpstreamUnavailable,
		Message:       fmt.Sprintf("パースサービスに接続できませんでした（%d回試行）。", attempts),
		Category:      "upstream",
		Action:        "しばらく待ってから再度お試しください。投稿したテキストは保存されています。",
		CorrelationID: correlationID,
	}
}

// NewUpstreamRejectedError はリトライ対象外の上流エラーを生成する。
func NewUpstreamRejectedError(correlationID string, reason string) *APIError {
	return &APIError{
		Code:          ErrCodeUpstreamRejected,
		Message:       fmt.Sprintf("パースサービスがリクエストを拒否しました: %s", reason),
		Category:      "upstream",
		Action:        "投稿内容を確認してください。投稿したテキストは保存されています。",
		CorrelationID: correlationID,
	}
}

// NewNothingExtractedError は取引が1件も抽出できなかった場合のエラーを生成する。
// 上流障害とは区別される終端的な結果。
func NewNothingExtractedError() *APIError {
	return &APIError{
		Code:     ErrCodeNothingExtracted,
		Message:  "テキストから取引を抽出できませんでした。",
		Category: "validation",
		Action:   "金額と内容が読み取れる形式でテキストを入力してください。",
	}
}

// NewStoreUnavailableError はデータベース障害エラーを生成する。
func NewStoreUnavailableError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreUnavailable,
		Message:  "データベースに接続できませんでした。",
		Category: "store",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

// NewEntryNotFoundError は生エントリ未検出エラーを生成する。
func NewEntryNotFoundError(entryID string) *APIError {
	return &APIError{
		Code:     ErrCodeEntryNotFound,
		Message:  fmt.Sprintf("指定されたエントリが見つかりません: %s", entryID),
		Category: "validation",
		Action:   "エントリIDを確認してください。",
	}
}

// NewTransactionNotFoundError は取引未検出エラーを生成する。
func NewTransactionNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeTransactionNotFound,
		Message:  fmt.Sprintf("指定された取引が見つかりません: %s", id),
		Category: "validation",
		Action:   "取引IDを確認してください。",
	}
}
