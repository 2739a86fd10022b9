// Package transaction は取引レコードのCRUDサービスを提供する。
package transaction

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/lazyledger/internal/model"
	"github.com/hitoshi/lazyledger/internal/repository"
)

// Service は取引のCRUD操作を提供する。
type Service struct {
	repo repository.TransactionRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.TransactionRepository) *Service {
	return &Service{repo: repo}
}

// Input は取引の作成・更新入力を表す。
type Input struct {
	UserID   int64           `json:"user_id"`
	Amount   decimal.Decimal `json:"amount"`
	Type     string          `json:"type"`
	Category string          `json:"category"`
	Date     string          `json:"date"`
}

// validate は入力の必須フィールドを検証する。
func (in Input) validate() error {
	if in.UserID <= 0 {
		return model.NewValidationError("user_idは必須です。")
	}
	if !in.Amount.IsPositive() {
		return model.NewValidationError("amountは正の値で指定してください。")
	}
	if strings.TrimSpace(in.Type) == "" {
		return model.NewValidationError("typeは必須です。")
	}
	if strings.TrimSpace(in.Category) == "" {
		return model.NewValidationError("categoryは必須です。")
	}
	if _, err := time.Parse("2006-01-02", in.Date); err != nil {
		return model.NewValidationError("dateはYYYY-MM-DD形式で指定してください。")
	}
	return nil
}

// List は全取引を返す。
func (s *Service) List(ctx context.Context) ([]model.Transaction, error) {
	return s.repo.List(ctx)
}

// Create は取引を作成して返す。
func (s *Service) Create(ctx context.Context, in Input) (*model.Transaction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	date, _ := time.Parse("2006-01-02", in.Date)
	txn := &model.Transaction{
		UserID:   in.UserID,
		Amount:   in.Amount,
		Type:     strings.ToUpper(strings.TrimSpace(in.Type)),
		Category: in.Category,
		Date:     date,
	}

	if err := s.repo.Create(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

// Get は指定IDの取引を返す。見つからない場合はTRANSACTION_NOT_FOUNDエラー。
func (s *Service) Get(ctx context.Context, id int64) (*model.Transaction, error) {
	txn, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if txn == nil {
		return nil, model.NewTransactionNotFoundError(strconv.FormatInt(id, 10))
	}
	return txn, nil
}

// ListByUser は指定ユーザーの取引一覧を返す。
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]model.Transaction, error) {
	return s.repo.ListByUserID(ctx, userID)
}

// Update は取引の全可変フィールドを上書きして返す。
// 対象が存在しない場合はTRANSACTION_NOT_FOUNDエラー。
func (s *Service) Update(ctx context.Context, id int64, in Input) (*model.Transaction, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	date, _ := time.Parse("2006-01-02", in.Date)
	txn := &model.Transaction{
		ID:       id,
		UserID:   in.UserID,
		Amount:   in.Amount,
		Type:     strings.ToUpper(strings.TrimSpace(in.Type)),
		Category: in.Category,
		Date:     date,
	}

	if err := s.repo.Update(ctx, txn); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, model.NewTransactionNotFoundError(strconv.FormatInt(id, 10))
		}
		return nil, err
	}
	return txn, nil
}

// Delete は指定IDの取引を削除する。
// 対象が存在しない場合はTRANSACTION_NOT_FOUNDエラー。
func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.NewTransactionNotFoundError(strconv.FormatInt(id, 10))
		}
		return err
	}
	return nil
}
