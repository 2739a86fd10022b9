// Package model はドメインモデルを定義する。
package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// 取引種別の正規化済み値。
const (
	TransactionTypeDebit  = "DEBIT"
	TransactionTypeCredit = "CREDIT"
)

// RawEntry はユーザーが投稿した未パースの家計テキストを表す。
// 取り込みリクエストで作成された後は不変であり、更新されることはない。
type RawEntry struct {
	EntryID   int64     `json:"entry_id"`
	UserID    int64     `json:"user_id"`
	Date      time.Time `json:"date"`
	RawText   string    `json:"raw_text"`
	CreatedAt time.Time `json:"created_at"`
}

// Transaction は構造化された取引レコードを表す。
// 1つのRawEntryから0件以上生成されるが、生成元とは独立したライフサイクルを持つ。
type Transaction struct {
	ID        int64           `json:"id"`
	UserID    int64           `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Type      string          `json:"type"`
	Category  string          `json:"category"`
	Date      time.Time       `json:"date"`
	CreatedAt time.Time       `json:"created_at"`
}

// ParsedItem はパースサービスのレスポンスからデコードされた取引候補1件を表す。
// 永続化されない一時的なデータで、検証を通過したものだけがTransactionになる。
type ParsedItem struct {
	Amount   decimal.Decimal `json:"amount"`
	Type     string          `json:"type"`
	Category string          `json:"category"`
	Date     string          `json:"date"`
}

// Validate は必須フィールドの存在を検証する。
// 金額は正の値、種別・カテゴリ・日付は非空であること。
func (p ParsedItem) Validate() error {
	if !p.Amount.IsPositive() {
		return &APIError{
			Code:     ErrCodeValidation,
			Message:  "金額が未設定または0以下です。",
			Category: "validation",
			Action:   "正の金額を指定してください。",
		}
	}
	if strings.TrimSpace(p.Type) == "" {
		return &APIError{
			Code:     ErrCodeValidation,
			Message:  "取引種別が未設定です。",
			Category: "validation",
			Action:   "debitまたはcreditを指定してください。",
		}
	}
	if strings.TrimSpace(p.Category) == "" {
		return &APIError{
			Code:     ErrCodeValidation,
			Message:  "カテゴリが未設定です。",
			Category: "validation",
			Action:   "カテゴリを指定してください。",
		}
	}
	if _, err := time.Parse("2006-01-02", p.Date); err != nil {
		return &APIError{
			Code:     ErrCodeValidation,
			Message:  "日付が未設定または不正な形式です。",
			Category: "validation",
			Action:   "YYYY-MM-DD形式の日付を指定してください。",
		}
	}
	return nil
}

// NormalizedType は取引種別を大文字に正規化して返す。
func (p ParsedItem) NormalizedType() string {
	return strings.ToUpper(strings.TrimSpace(p.Type))
}

// User は外部IdP（Clerk）から同期されたユーザープロファイルを表す。
// clerk_idが唯一の相関キーであり、イベントストリームとストアを対応付ける。
type User struct {
	ClerkID   string    `json:"clerk_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
