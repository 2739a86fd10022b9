package webhook

import (
	"context"
	"log/slog"

	"github.com/hitoshi/lazyledger/internal/metrics"
	"github.com/hitoshi/lazyledger/internal/model"
	"github.com/hitoshi/lazyledger/internal/repository"
)

// Service はWebhookイベントをストアへ反映する。
// 配送はat-least-onceかつ順序保証なしのため、すべての操作は冪等に実装する。
type Service struct {
	userRepo repository.UserRepository
	metrics  metrics.MetricsCollector
	logger   *slog.Logger
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, collector metrics.MetricsCollector, logger *slog.Logger) *Service {
	return &Service{
		userRepo: userRepo,
		metrics:  collector,
		logger:   logger,
	}
}

// Handle はイベント種別に応じてストアを更新する。
// 不正なペイロードは検証エラーを返し、ストアを変更しない。
// 処理対象外の種別は正常応答する（送信元にとって不要な失敗を見せない）。
func (s *Service) Handle(ctx context.Context, event *Event) error {
	switch event.Kind {
	case EventUserCreated:
		return s.handleCreated(ctx, event)
	case EventUserUpdated:
		return s.handleUpdated(ctx, event)
	case EventUserDeleted:
		return s.handleDeleted(ctx, event)
	default:
		s.logger.Info("ignoring unsupported webhook event",
			slog.String("event_type", event.Type),
		)
		s.metrics.RecordWebhookEvent(event.Type, "ignored")
		return nil
	}
}

// handleCreated はユーザー作成イベントを処理する。
// clerk_idをキーにアップサートするため、同一イベントの再配送でも結果は変わらない。
func (s *Service) handleCreated(ctx context.Context, event *Event) error {
	email := event.Data.PrimaryEmail()
	if event.Data.ID == "" || email == "" {
		s.metrics.RecordWebhookEvent(event.Type, "rejected")
		return model.NewValidationError("user.createdイベントにはidとemail_addressesが必要です。")
	}

	user := &model.User{
		ClerkID:   event.Data.ID,
		FirstName: event.Data.FirstName,
		LastName:  event.Data.LastName,
		Email:     email,
	}

	if err := s.userRepo.Upsert(ctx, user); err != nil {
		s.logger.Error("failed to upsert user",
			slog.String("clerk_id", event.Data.ID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordWebhookEvent(event.Type, "error")
		return model.NewStoreUnavailableError()
	}

	s.logger.Info("user upserted",
		slog.String("clerk_id", event.Data.ID),
	)
	s.metrics.RecordWebhookEvent(event.Type, "ok")
	return nil
}

// handleUpdated はユーザー更新イベントを処理する。
// 欠けたプロファイルフィールドは拒否せず空文字列に落として反映する。
func (s *Service) handleUpdated(ctx context.Context, event *Event) error {
	if event.Data.ID == "" {
		s.metrics.RecordWebhookEvent(event.Type, "rejected")
		return model.NewValidationError("user.updatedイベントにはidが必要です。")
	}

	user := &model.User{
		ClerkID:   event.Data.ID,
		FirstName: event.Data.FirstName,
		LastName:  event.Data.LastName,
		Email:     event.Data.PrimaryEmail(),
	}

	if err := s.userRepo.UpdateByClerkID(ctx, user); err != nil {
		s.logger.Error("failed to update user",
			slog.String("clerk_id", event.Data.ID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordWebhookEvent(event.Type, "error")
		return model.NewStoreUnavailableError()
	}

	s.logger.Info("user updated",
		slog.String("clerk_id", event.Data.ID),
	)
	s.metrics.RecordWebhookEvent(event.Type, "ok")
	return nil
}

// handleDeleted はユーザー削除イベントを処理する。
// 対象が存在しない場合も成功として扱う（削除イベントの再配送に対して冪等）。
func (s *Service) handleDeleted(ctx context.Context, event *Event) error {
	if event.Data.ID == "" {
		s.metrics.RecordWebhookEvent(event.Type, "rejected")
		return model.NewValidationError("user.deletedイベントにはidが必要です。")
	}

	rowsAffected, err := s.userRepo.DeleteByClerkID(ctx, event.Data.ID)
	if err != nil {
		s.logger.Error("failed to delete user",
			slog.String("clerk_id", event.Data.ID),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordWebhookEvent(event.Type, "error")
		return model.NewStoreUnavailableError()
	}

	s.logger.Info("user deleted",
		slog.String("clerk_id", event.Data.ID),
		slog.Int64("rows_affected", rowsAffected),
	)
	s.metrics.RecordWebhookEvent(event.Type, "ok")
	return nil
}
