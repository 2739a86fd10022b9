package parser

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// CallOutcome はHTTPステータスコードに基づく呼び出し結果の分類。
type CallOutcome int

const (
	// OutcomeOK は呼び出し成功（200）。
	OutcomeOK CallOutcome = iota
	// OutcomeRetryable はリトライが必要なステータス（429/502/503/504）。
	OutcomeRetryable
	// OutcomeTerminal はリトライしても回復しないステータス（その他すべて）。
	OutcomeTerminal
)

const (
	// backoffCeiling は指数バックオフの最大遅延。
	backoffCeiling = 30 * time.Second
	// backoffFloor はbase未指定（0以下）の場合に使う最小の基準値。
	backoffFloor = 100 * time.Millisecond
)

// ClassifyHTTPStatus はHTTPステータスコードを呼び出し結果に分類する。
// 429以外の4xxはリトライ対象外。
func ClassifyHTTPStatus(statusCode int) CallOutcome {
	switch {
	case statusCode == 200:
		return OutcomeOK
	case statusCode == 429:
		return OutcomeRetryable
	case statusCode == 502 || statusCode == 503 || statusCode == 504:
		return OutcomeRetryable
	default:
		return OutcomeTerminal
	}
}

// ClassifyTransportError はHTTPレスポンスが得られなかったエラーを分類する。
// 接続リセット・タイムアウト等のネットワークエラーはリトライ対象。
// 呼び出し元によるキャンセルのみリトライ対象外とする。
func ClassifyTransportError(err error) CallOutcome {
	if errors.Is(err, context.Canceled) {
		return OutcomeTerminal
	}
	return OutcomeRetryable
}

// Backoff はリトライ前の待機時間を計算する。
// min(ceiling, base * 2^attempt + jitter) で、jitterは指数項の40〜120%の
// 範囲の乱数。リトライの同期によるバースト（retry storm）を避ける。
func Backoff(attempt int, base time.Duration) time.Duration {
	if base <= 0 {
		base = backoffFloor
	}
	term := base << attempt
	if term <= 0 || term > backoffCeiling {
		return backoffCeiling
	}
	jitter := time.Duration(float64(term) * (0.4 + 0.8*rand.Float64()))
	delay := term + jitter
	if delay > backoffCeiling {
		return backoffCeiling
	}
	return delay
}

// UpstreamError はパースサービス呼び出しの失敗を表す。
// リトライ上限到達（Retryable=true）と終端的な拒否（Retryable=false）を区別し、
// 上流ログとの突き合わせ用に相関IDと試行回数を保持する。
type UpstreamError struct {
	Retryable     bool   // リトライを尽くした一時的障害ならtrue
	Status        int    // 最後に受信したHTTPステータス（未受信なら0）
	CorrelationID string // この論理リクエストの相関ID
	Attempts      int    // 実行した物理試行回数
	Reason        string // 失敗の内容
	Err           error  // 元のエラー（ネットワークエラー等）
}

// Error はerrorインターフェースを実装する。
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream call failed (attempts=%d, correlation_id=%s): %s: %v",
			e.Attempts, e.CorrelationID, e.Reason, e.Err)
	}
	return fmt.Sprintf("upstream call failed (attempts=%d, correlation_id=%s, status=%d): %s",
		e.Attempts, e.CorrelationID, e.Status, e.Reason)
}

// Unwrap は元のエラーを返す。
func (e *UpstreamError) Unwrap() error {
	return e.Err
}
