package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/lazyledger/internal/model"
)

// PostgresTransactionRepo はPostgreSQLを使用した取引リポジトリ。
type PostgresTransactionRepo struct {
	db Querier
}

// NewPostgresTransactionRepo はPostgresTransactionRepoを生成する。
func NewPostgresTransactionRepo(db Querier) *PostgresTransactionRepo {
	return &PostgresTransactionRepo{db: db}
}

// Create は取引を挿入する。
// 採番されたidと作成時刻をtxnに書き戻す。
func (r *PostgresTransactionRepo) Create(ctx context.Context, txn *model.Transaction) error {
	err := r.db.QueryRowScan(ctx,
		`INSERT INTO transactions (user_id, amount, type, category, date)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		[]any{txn.UserID, txn.Amount, txn.Type, txn.Category, txn.Date},
		&txn.ID, &txn.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	return nil
}

// List は全取引をid昇順で返す。
func (r *PostgresTransactionRepo) List(ctx context.Context) ([]model.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, amount, type, category, date, created_at
		 FROM transactions
		 ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// FindByID は指定IDの取引を取得する。見つからない場合はnilを返す。
func (r *PostgresTransactionRepo) FindByID(ctx context.Context, id int64) (*model.Transaction, error) {
	txn := &model.Transaction{}
	err := r.db.QueryRowScan(ctx,
		`SELECT id, user_id, amount, type, category, date, created_at
		 FROM transactions
		 WHERE id = $1`,
		[]any{id},
		&txn.ID, &txn.UserID, &txn.Amount, &txn.Type, &txn.Category, &txn.Date, &txn.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction by ID: %w", err)
	}

	return txn, nil
}

// ListByUserID は指定ユーザーの取引一覧をid昇順で返す。
func (r *PostgresTransactionRepo) ListByUserID(ctx context.Context, userID int64) ([]model.Transaction, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, amount, type, category, date, created_at
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions by user ID: %w", err)
	}
	defer rows.Close()

	return scanTransactions(rows)
}

// Update は取引の全可変フィールドを上書きする。
// 対象が存在しない場合はsql.ErrNoRowsを返す。
func (r *PostgresTransactionRepo) Update(ctx context.Context, txn *model.Transaction) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE transactions
		 SET user_id = $1, amount = $2, type = $3, category = $4, date = $5
		 WHERE id = $6`,
		txn.UserID, txn.Amount, txn.Type, txn.Category, txn.Date, txn.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update transaction: %w", err)
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

// DeleteByID は指定IDの取引を削除する。
// 対象が存在しない場合はsql.ErrNoRowsを返す。
func (r *PostgresTransactionRepo) DeleteByID(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete transaction: %w", err)
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

// scanTransactions は取引行をスキャンしてスライスに変換する。
func scanTransactions(rows *sql.Rows) ([]model.Transaction, error) {
	var txns []model.Transaction
	for rows.Next() {
		var txn model.Transaction
		if err := rows.Scan(&txn.ID, &txn.UserID, &txn.Amount, &txn.Type, &txn.Category, &txn.Date, &txn.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		txns = append(txns, txn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate transactions: %w", err)
	}
	return txns, nil
}

// compile-time interface check
var _ TransactionRepository = (*PostgresTransactionRepo)(nil)
