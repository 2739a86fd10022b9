// Package parser は上流パースサービスへのHTTPクライアントを提供する。
// タイムアウト・リトライ・ジッタ付き指数バックオフ・エラー分類を備える。
package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/lazyledger/internal/model"
)

// CorrelationIDHeader は上流呼び出しに付与する相関IDのヘッダー名。
const CorrelationIDHeader = "X-Correlation-ID"

// maxErrorBodyBytes はエラーレスポンスのログに残すボディの最大バイト数。
const maxErrorBodyBytes = 512

// CallOptions は1回の論理呼び出しの設定を保持する。
type CallOptions struct {
	Timeout     time.Duration     // 物理試行ごとのタイムアウト
	MaxRetries  int               // リトライ回数の上限（物理試行は最大MaxRetries+1回）
	BackoffBase time.Duration     // 指数バックオフの基準遅延
	Headers     map[string]string // 追加ヘッダー（相関ID等）
}

// ParseRequest はパースサービスへ送る家計テキストを表す。
type ParseRequest struct {
	RawText string `json:"raw_text"`
	Date    string `json:"date"`
}

// Client はパースサービスのHTTPクライアント。
// 呼び出しの重複排除は行わない。冪等性は呼び出し元の責務。
type Client struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientにはタイムアウトを設定しないこと（試行ごとのタイムアウトはCallOptionsで制御する）。
func NewClient(httpClient *http.Client, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		logger:     logger,
	}
}

// ParseText は家計テキストをパースサービスへ送り、取引候補の配列を取得する。
// 一時的な失敗はバックオフを挟んでリトライし、相関IDは全リトライで同一のまま維持する。
// 成功ボディが取引候補の配列にデコードできない場合は終端エラーとして返す。
func (c *Client) ParseText(ctx context.Context, req ParseRequest, opts CallOptions) ([]model.ParsedItem, error) {
	body, upErr := c.post(ctx, "/parse-text", req, opts)
	if upErr != nil {
		return nil, upErr
	}

	var items []model.ParsedItem
	if err := json.Unmarshal(body, &items); err != nil {
		// HTML等の非JSONボディや配列以外のJSONはここで検出する
		return nil, &UpstreamError{
			Retryable:     false,
			Status:        http.StatusOK,
			CorrelationID: opts.Headers[CorrelationIDHeader],
			Attempts:      1,
			Reason:        "response body is not a transaction array",
			Err:           err,
		}
	}

	return items, nil
}

// post はJSONペイロードをPOSTし、成功時のレスポンスボディを返す。
// ネットワークエラーと429/502/503/504はリトライし、それ以外は即座に終端エラーを返す。
func (c *Client) post(ctx context.Context, path string, payload any, opts CallOptions) ([]byte, *UpstreamError) {
	correlationID := opts.Headers[CorrelationIDHeader]

	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, &UpstreamError{
			Retryable:     false,
			CorrelationID: correlationID,
			Reason:        "failed to encode request payload",
			Err:           err,
		}
	}

	var lastErr *UpstreamError

	for attempt := 0; attempt <= opts.MaxRetries; attempt++ {
		body, upErr := c.doAttempt(ctx, path, encoded, opts, attempt)
		if upErr == nil {
			return body, nil
		}

		lastErr = upErr
		lastErr.Attempts = attempt + 1

		if !upErr.Retryable {
			return nil, lastErr
		}

		if attempt < opts.MaxRetries {
			delay := Backoff(attempt, opts.BackoffBase)
			c.logger.Info("retrying upstream call",
				slog.String("correlation_id", correlationID),
				slog.Int("attempt", attempt+1),
				slog.Duration("delay", delay),
			)
			select {
			case <-ctx.Done():
				lastErr.Reason = "canceled while waiting to retry"
				return nil, lastErr
			case <-time.After(delay):
			}
		}
	}

	return nil, lastErr
}

// doAttempt は1回の物理試行を実行する。
// 試行ごとの診断ログ（ステータスまたはエラー、経過時間、相関ID）を出力する。
func (c *Client) doAttempt(ctx context.Context, path string, encoded []byte, opts CallOptions, attempt int) ([]byte, *UpstreamError) {
	correlationID := opts.Headers[CorrelationIDHeader]

	attemptCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		attemptCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return nil, &UpstreamError{
			Retryable:     false,
			CorrelationID: correlationID,
			Reason:        "failed to build request",
			Err:           err,
		}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range opts.Headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	elapsed := time.Since(start)

	if err != nil {
		// レスポンスを受信できなかったネットワークレベルの失敗
		c.logger.Warn("upstream request failed",
			slog.String("correlation_id", correlationID),
			slog.Int("attempt", attempt+1),
			slog.Float64("elapsed_ms", float64(elapsed.Milliseconds())),
			slog.String("error", err.Error()),
		)
		return nil, &UpstreamError{
			Retryable:     ClassifyTransportError(err) == OutcomeRetryable,
			CorrelationID: correlationID,
			Reason:        "no response received",
			Err:           err,
		}
	}
	defer resp.Body.Close()

	c.logger.Info("upstream response",
		slog.String("correlation_id", correlationID),
		slog.Int("attempt", attempt+1),
		slog.Int("http_status", resp.StatusCode),
		slog.Float64("elapsed_ms", float64(elapsed.Milliseconds())),
	)

	switch ClassifyHTTPStatus(resp.StatusCode) {
	case OutcomeOK:
		body, readErr := io.ReadAll(resp.Body)
		if readErr != nil {
			return nil, &UpstreamError{
				Retryable:     true,
				Status:        resp.StatusCode,
				CorrelationID: correlationID,
				Reason:        "failed to read response body",
				Err:           readErr,
			}
		}
		return body, nil

	case OutcomeRetryable:
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &UpstreamError{
			Retryable:     true,
			Status:        resp.StatusCode,
			CorrelationID: correlationID,
			Reason:        fmt.Sprintf("upstream returned status %d", resp.StatusCode),
		}

	default:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &UpstreamError{
			Retryable:     false,
			Status:        resp.StatusCode,
			CorrelationID: correlationID,
			Reason:        fmt.Sprintf("upstream returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	}
}

// Get は単一試行のGETリクエストを実行し、ステータスコードとボディを返す。
// インサイトのプロキシ等、上流のレスポンスをそのまま中継する用途で使用する。
func (c *Client) Get(ctx context.Context, path string, timeout time.Duration) (int, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("upstream request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return resp.StatusCode, body, nil
}

// Ping は上流パースサービスのヘルスエンドポイントを確認する。
func (c *Client) Ping(ctx context.Context, timeout time.Duration) error {
	status, _, err := c.Get(ctx, "/health", timeout)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("parser health check returned status %d", status)
	}
	return nil
}
