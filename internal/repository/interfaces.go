// Package repository はPostgreSQLに対する永続化層を提供する。
package repository

import (
	"context"
	"database/sql"

	"github.com/hitoshi/lazyledger/internal/model"
)

// Querier はステートメント実行の抽象。一時エラーリトライ付きの
// database.Gatewayが満たす。リポジトリはこのインターフェースにのみ依存する。
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	// QueryRowScan は単一行クエリを実行して結果をdestにスキャンする。
	// スキャン時まで遅延するエラーもリトライ判定の対象になるため、
	// INSERT ... RETURNINGなどの単一行ステートメントはこちらを使う。
	QueryRowScan(ctx context.Context, query string, args []any, dest ...any) error
}

// RawEntryRepository は生エントリの永続化インターフェース。
type RawEntryRepository interface {
	// Create は生エントリを挿入し、採番されたIDと作成時刻をentryに書き戻す。
	Create(ctx context.Context, entry *model.RawEntry) error
	// List は全生エントリを返す。
	List(ctx context.Context) ([]model.RawEntry, error)
	// DeleteByID は指定IDの生エントリを削除する。見つからない場合はsql.ErrNoRowsを返す。
	DeleteByID(ctx context.Context, entryID int64) error
	// LastCreatedAt は最後に作成された生エントリの作成時刻を返す。
	// 1件もない場合はsql.ErrNoRowsを返す。
	LastCreatedAt(ctx context.Context) (string, error)
}

// TransactionRepository は取引の永続化インターフェース。
type TransactionRepository interface {
	// Create は取引を挿入し、採番されたIDと作成時刻をtxnに書き戻す。
	Create(ctx context.Context, txn *model.Transaction) error
	// List は全取引を返す。
	List(ctx context.Context) ([]model.Transaction, error)
	// FindByID は指定IDの取引を取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.Transaction, error)
	// ListByUserID は指定ユーザーの取引一覧を返す。
	ListByUserID(ctx context.Context, userID int64) ([]model.Transaction, error)
	// Update は取引の全可変フィールドを上書きする。見つからない場合はsql.ErrNoRowsを返す。
	Update(ctx context.Context, txn *model.Transaction) error
	// DeleteByID は指定IDの取引を削除する。見つからない場合はsql.ErrNoRowsを返す。
	DeleteByID(ctx context.Context, id int64) error
}

// UserRepository は外部IdP同期ユーザーの永続化インターフェース。
type UserRepository interface {
	// Upsert はclerk_idをキーにユーザーを挿入または上書きする。
	// 同一イベントの再配送に対して冪等。
	Upsert(ctx context.Context, user *model.User) error
	// UpdateByClerkID は可変フィールドを上書きする。対象が存在しなくてもエラーにしない。
	UpdateByClerkID(ctx context.Context, user *model.User) error
	// DeleteByClerkID は指定clerk_idのユーザーを削除し、削除行数を返す。
	// 対象が存在しない場合は0を返す（冪等）。
	DeleteByClerkID(ctx context.Context, clerkID string) (int64, error)
}
