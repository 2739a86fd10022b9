package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"net"
	"syscall"
	"time"

	"github.com/lib/pq"
)

// Gateway は*sql.DBをラップし、一時的なトランスポートエラーに対して
// ステートメント単位のリトライを行う。リトライ対象外のエラーは
// 分類情報（pqのエラーコード等）を保ったままそのまま伝播する。
type Gateway struct {
	db         *sql.DB
	retries    int
	retryDelay time.Duration
	logger     *slog.Logger
}

// NewGateway はGatewayを生成する。
// retriesは初回実行を含まないリトライ回数の上限を指定する。
func NewGateway(db *sql.DB, retries int, retryDelay time.Duration, logger *slog.Logger) *Gateway {
	return &Gateway{
		db:         db,
		retries:    retries,
		retryDelay: retryDelay,
		logger:     logger,
	}
}

// DB はラップしている*sql.DBを返す。Ping等のプール操作用。
func (g *Gateway) DB() *sql.DB {
	return g.db
}

// QueryContext はクエリを実行する。一時的なエラーの場合はリトライする。
func (g *Gateway) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	var rows *sql.Rows
	err := g.withRetry(ctx, func() error {
		var execErr error
		rows, execErr = g.db.QueryContext(ctx, query, args...)
		return execErr
	})
	return rows, err
}

// QueryRowContext は単一行クエリを実行する。
// sql.Rowはスキャン時までエラーを遅延させるため、このメソッド自体はリトライしない。
// リトライが必要な単一行ステートメントにはQueryRowScanを使う。
func (g *Gateway) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return g.db.QueryRowContext(ctx, query, args...)
}

// QueryRowScan は単一行クエリを実行し、結果をdestにスキャンする。
// sql.Rowがスキャン時まで遅延させるエラーをここで観測し、一時的な
// トランスポートエラーであればステートメントごと再実行する。
// sql.ErrNoRowsや制約違反はリトライ対象外としてそのまま返る。
func (g *Gateway) QueryRowScan(ctx context.Context, query string, args []any, dest ...any) error {
	return g.withRetry(ctx, func() error {
		return g.db.QueryRowContext(ctx, query, args...).Scan(dest...)
	})
}

// ExecContext はステートメントを実行する。一時的なエラーの場合はリトライする。
func (g *Gateway) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	err := g.withRetry(ctx, func() error {
		var execErr error
		result, execErr = g.db.ExecContext(ctx, query, args...)
		return execErr
	})
	return result, err
}

// withRetry はfnを実行し、一時的なエラーの場合は固定間隔でリトライする。
// リトライ対象外のエラーは変更せずに返す。
func (g *Gateway) withRetry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= g.retries; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return nil
		}
		if !IsTransientError(lastErr) || attempt == g.retries {
			return lastErr
		}

		g.logger.Warn("transient database error, retrying",
			slog.Int("attempt", attempt+1),
			slog.Int("attempts_left", g.retries-attempt),
			slog.String("error", lastErr.Error()),
		)

		select {
		case <-ctx.Done():
			return lastErr
		case <-time.After(g.retryDelay):
		}
	}
	return lastErr
}

// IsTransientError はエラーが接続リセット・切断・タイムアウト等の
// 一時的なトランスポートエラーかどうかを判定する。
// 制約違反などのステートメント起因のエラーはfalseを返す。
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}

	// ドライバがコネクション不良を報告した場合
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	// 接続断で発生するI/Oエラー
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}

	// ネットワークレベルのタイムアウト
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// PostgreSQLの接続例外クラス（Class 08）
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "08"
	}

	return false
}

// IsConstraintViolation はエラーがPostgreSQLの整合性制約違反
// （Class 23: 一意制約、外部キー制約等）かどうかを判定する。
func IsConstraintViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code.Class() == "23"
	}
	return false
}
