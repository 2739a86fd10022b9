// Package ingest は家計テキストの取り込みパイプラインを提供する。
// 生テキストの永続化 → パースサービス呼び出し → 取引の個別永続化を
// 各段階の部分的な失敗に耐えながらオーケストレーションする。
package ingest

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/lazyledger/internal/metrics"
	"github.com/hitoshi/lazyledger/internal/model"
	"github.com/hitoshi/lazyledger/internal/parser"
	"github.com/hitoshi/lazyledger/internal/repository"
)

// ParserClient はパースサービス呼び出しのインターフェース。
type ParserClient interface {
	ParseText(ctx context.Context, req parser.ParseRequest, opts parser.CallOptions) ([]model.ParsedItem, error)
}

// Config は取り込みパイプラインの上流呼び出し設定を保持する。
type Config struct {
	ParseTimeout     time.Duration
	ParseMaxRetries  int
	ParseBackoffBase time.Duration
}

// Service は取り込みパイプラインの実装。
type Service struct {
	rawRepo repository.RawEntryRepository
	txRepo  repository.TransactionRepository
	parser  ParserClient
	metrics metrics.MetricsCollector
	logger  *slog.Logger
	cfg     Config
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	rawRepo repository.RawEntryRepository,
	txRepo repository.TransactionRepository,
	parserClient ParserClient,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
	cfg Config,
) *Service {
	return &Service{
		rawRepo: rawRepo,
		txRepo:  txRepo,
		parser:  parserClient,
		metrics: collector,
		logger:  logger,
		cfg:     cfg,
	}
}

// IngestRequest は取り込みリクエストを表す。
type IngestRequest struct {
	UserID  int64  `json:"user_id"`
	Date    string `json:"date"`
	RawText string `json:"raw_text"`
}

// Ingest は家計テキストを取り込み、取引レコードとして実体化する。
//
// 処理順序は耐久性優先: 生テキストの保存が成功してから上流を呼び出すため、
// パースが失敗しても元のテキストは失われない（後からの再処理が可能）。
// 取引候補の永続化は1件ずつ独立して行い、一部の失敗が残りの処理を
// 中断することはない（部分成功ポリシー）。
//
// 呼び出し元の切断ではパイプラインを中断しない。開始した取り込みは
// 完了またはリトライ上限まで実行される。
func (s *Service) Ingest(ctx context.Context, req IngestRequest) (*Result, error) {
	if err := validateRequest(req); err != nil {
		s.metrics.RecordIngestFailure(model.ErrCodeValidation)
		return nil, err
	}

	// 呼び出し元の切断でパイプラインが中断されないようコンテキストを切り離す
	ctx = context.WithoutCancel(ctx)

	date, _ := time.Parse("2006-01-02", req.Date)

	// 1. 生エントリの保存（無条件・上流呼び出しより先）
	entry := &model.RawEntry{
		UserID:  req.UserID,
		Date:    date,
		RawText: req.RawText,
	}
	if err := s.rawRepo.Create(ctx, entry); err != nil {
		s.logger.Error("failed to persist raw entry",
			slog.Int64("user_id", req.UserID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordIngestFailure(model.ErrCodeStoreUnavailable)
		return nil, model.NewStoreUnavailableError()
	}

	// 2. パースサービス呼び出し
	// 相関IDは論理リクエストごとに1回生成し、全リトライで同一のまま維持する
	correlationID := uuid.NewString()

	s.logger.Info("calling parser service",
		slog.String("correlation_id", correlationID),
		slog.Int64("entry_id", entry.EntryID),
		slog.Int("payload_bytes", len(req.RawText)),
	)

	start := time.Now()
	items, err := s.parser.ParseText(ctx, parser.ParseRequest{
		RawText: req.RawText,
		Date:    req.Date,
	}, parser.CallOptions{
		Timeout:     s.cfg.ParseTimeout,
		MaxRetries:  s.cfg.ParseMaxRetries,
		BackoffBase: s.cfg.ParseBackoffBase,
		Headers: map[string]string{
			parser.CorrelationIDHeader: correlationID,
		},
	})
	s.metrics.RecordUpstreamLatency(time.Since(start))

	if err != nil {
		// 生エントリはロールバックせず、再処理用に保持する
		apiErr := s.mapUpstreamError(err, correlationID)
		s.metrics.RecordIngestFailure(apiErr.Code)
		return nil, apiErr
	}
	s.metrics.RecordUpstreamStatus(200)

	// 3. 空の結果は上流障害とは区別される終端的な結果
	if len(items) == 0 {
		s.logger.Info("no transactions extracted",
			slog.String("correlation_id", correlationID),
			slog.Int64("entry_id", entry.EntryID),
		)
		s.metrics.RecordIngestFailure(model.ErrCodeNothingExtracted)
		return nil, model.NewNothingExtractedError()
	}

	// 4. 取引候補の個別永続化（1件の失敗が残りを中断しない）
	result := &Result{RawEntry: *entry}
	for i, item := range items {
		s.persistItem(ctx, req.UserID, i, item, correlationID, result)
	}

	s.logger.Info("ingest completed",
		slog.String("correlation_id", correlationID),
		slog.Int64("entry_id", entry.EntryID),
		slog.Int("parsed", len(items)),
		slog.Int("persisted", len(result.Transactions)),
		slog.Int("skipped_invalid", result.SkippedInvalid),
		slog.Int("failed_persist", result.FailedPersist),
	)

	s.metrics.RecordIngestSuccess()
	s.metrics.RecordItemsPersisted(len(result.Transactions))

	return result, nil
}

// persistItem は取引候補1件を検証して永続化する。
// 検証失敗は件数のみ記録してスキップし、永続化失敗は内容をログに残してスキップする。
func (s *Service) persistItem(ctx context.Context, userID int64, index int, item model.ParsedItem, correlationID string, result *Result) {
	if err := item.Validate(); err != nil {
		s.logger.Warn("skipping invalid parsed item",
			slog.String("correlation_id", correlationID),
			slog.Int("index", index),
			slog.String("reason", err.Error()),
		)
		s.metrics.RecordItemSkipped(SkipReasonInvalid)
		result.recordInvalid(index, err.Error())
		return
	}

	itemDate, _ := time.Parse("2006-01-02", item.Date)
	txn := &model.Transaction{
		UserID:   userID,
		Amount:   item.Amount,
		Type:     item.NormalizedType(),
		Category: item.Category,
		Date:     itemDate,
	}

	if err := s.txRepo.Create(ctx, txn); err != nil {
		// 診断用に候補の内容ごとログに残す
		s.logger.Error("failed to persist transaction",
			slog.String("correlation_id", correlationID),
			slog.Int("index", index),
			slog.String("amount", item.Amount.String()),
			slog.String("type", txn.Type),
			slog.String("category", item.Category),
			slog.String("date", item.Date),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordItemSkipped(SkipReasonPersistFailed)
		result.recordPersistFailure(index, err.Error())
		return
	}

	result.Transactions = append(result.Transactions, *txn)
}

// mapUpstreamError はパースクライアントのエラーをAPIエラーに変換する。
func (s *Service) mapUpstreamError(err error, correlationID string) *model.APIError {
	var upErr *parser.UpstreamError
	if errors.As(err, &upErr) {
		if upErr.Status > 0 {
			s.metrics.RecordUpstreamStatus(upErr.Status)
		}
		s.logger.Error("parser service call failed",
			slog.String("correlation_id", correlationID),
			slog.Bool("retryable", upErr.Retryable),
			slog.Int("http_status", upErr.Status),
			slog.Int("attempts", upErr.Attempts),
			slog.String("reason", upErr.Reason),
		)
		if upErr.Retryable {
			return model.NewUpstreamUnavailableError(correlationID, upErr.Attempts)
		}
		return model.NewUpstreamRejectedError(correlationID, upErr.Reason)
	}

	s.logger.Error("parser service call failed",
		slog.String("correlation_id", correlationID),
		slog.String("error", err.Error()),
	)
	return model.NewUpstreamRejectedError(correlationID, err.Error())
}

// validateRequest は取り込みリクエストの必須フィールドを検証する。
// 検証に失敗した場合は副作用を一切発生させない。
func validateRequest(req IngestRequest) error {
	if req.UserID <= 0 {
		return model.NewValidationError("user_idは必須です。")
	}
	if _, err := time.Parse("2006-01-02", req.Date); err != nil {
		return model.NewValidationError("dateはYYYY-MM-DD形式で指定してください。")
	}
	if strings.TrimSpace(req.RawText) == "" {
		return model.NewValidationError("raw_textは必須です。")
	}
	return nil
}
