package repository

import (
	"context"
	"fmt"

	"github.com/hitoshi/lazyledger/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
// clerk_id（外部IdPの識別子）をキーとして操作する。
type PostgresUserRepo struct {
	db Querier
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db Querier) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// Upsert はclerk_idをキーにユーザーを挿入または上書きする。
// 既存キーの場合は可変フィールドをすべて上書きするため、
// 同一イベントを2回適用しても結果は同じになる（at-least-once配送に対して冪等）。
func (r *PostgresUserRepo) Upsert(ctx context.Context, user *model.User) error {
	err := r.db.QueryRowScan(ctx,
		`INSERT INTO users (clerk_id, first_name, last_name, email)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (clerk_id) DO UPDATE
		 SET first_name = EXCLUDED.first_name,
		     last_name = EXCLUDED.last_name,
		     email = EXCLUDED.email,
		     updated_at = now()
		 RETURNING created_at, updated_at`,
		[]any{user.ClerkID, user.FirstName, user.LastName, user.Email},
		&user.CreatedAt, &user.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert user: %w", err)
	}

	return nil
}

// UpdateByClerkID は可変フィールドを上書きする。
// 対象が存在しない場合もエラーにしない（更新イベントが作成イベントより先に届くことがある）。
func (r *PostgresUserRepo) UpdateByClerkID(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET first_name = $1, last_name = $2, email = $3, updated_at = now()
		 WHERE clerk_id = $4`,
		user.FirstName, user.LastName, user.Email, user.ClerkID,
	)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", err)
	}
	return nil
}

// DeleteByClerkID は指定clerk_idのユーザーを削除し、削除行数を返す。
// 対象が存在しない場合は0を返すだけでエラーにしない（削除イベントの再配送に対して冪等）。
func (r *PostgresUserRepo) DeleteByClerkID(ctx context.Context, clerkID string) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE clerk_id = $1`,
		clerkID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
