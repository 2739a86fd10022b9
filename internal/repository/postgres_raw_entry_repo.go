package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/lazyledger/internal/model"
)

// PostgresRawEntryRepo はPostgreSQLを使用した生エントリリポジトリ。
type PostgresRawEntryRepo struct {
	db Querier
}

// NewPostgresRawEntryRepo はPostgresRawEntryRepoを生成する。
func NewPostgresRawEntryRepo(db Querier) *PostgresRawEntryRepo {
	return &PostgresRawEntryRepo{db: db}
}

// Create は生エントリを挿入する。
// 採番されたentry_idと作成時刻をentryに書き戻す。
func (r *PostgresRawEntryRepo) Create(ctx context.Context, entry *model.RawEntry) error {
	err := r.db.QueryRowScan(ctx,
		`INSERT INTO raw_entries (user_id, date, raw_text)
		 VALUES ($1, $2, $3)
		 RETURNING entry_id, created_at`,
		[]any{entry.UserID, entry.Date, entry.RawText},
		&entry.EntryID, &entry.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert raw entry: %w", err)
	}

	return nil
}

// List は全生エントリをentry_id昇順で返す。
func (r *PostgresRawEntryRepo) List(ctx context.Context) ([]model.RawEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT entry_id, user_id, date, raw_text, created_at
		 FROM raw_entries
		 ORDER BY entry_id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list raw entries: %w", err)
	}
	defer rows.Close()

	var entries []model.RawEntry
	for rows.Next() {
		var entry model.RawEntry
		if err := rows.Scan(&entry.EntryID, &entry.UserID, &entry.Date, &entry.RawText, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan raw entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate raw entries: %w", err)
	}

	return entries, nil
}

// DeleteByID は指定IDの生エントリを削除する。
// 対象が存在しない場合はsql.ErrNoRowsを返す。
func (r *PostgresRawEntryRepo) DeleteByID(ctx context.Context, entryID int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM raw_entries WHERE entry_id = $1`,
		entryID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete raw entry: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// LastCreatedAt は最後に作成された生エントリの作成時刻をRFC3339形式で返す。
// 1件もない場合はsql.ErrNoRowsを返す。
func (r *PostgresRawEntryRepo) LastCreatedAt(ctx context.Context) (string, error) {
	var createdAt time.Time
	err := r.db.QueryRowScan(ctx,
		`SELECT created_at FROM raw_entries ORDER BY entry_id DESC LIMIT 1`,
		nil,
		&createdAt,
	)

	if err == sql.ErrNoRows {
		return "", sql.ErrNoRows
	}
	if err != nil {
		return "", fmt.Errorf("failed to find last raw entry: %w", err)
	}

	return createdAt.Format(time.RFC3339), nil
}

// compile-time interface check
var _ RawEntryRepository = (*PostgresRawEntryRepo)(nil)
