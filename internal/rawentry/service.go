// Package rawentry は生エントリの参照・削除サービスを提供する。
// 生エントリの作成は取り込みパイプライン（ingest）経由でのみ行う。
package rawentry

import (
	"context"
	"database/sql"
	"errors"
	"strconv"

	"github.com/hitoshi/lazyledger/internal/model"
	"github.com/hitoshi/lazyledger/internal/repository"
)

// Service は生エントリの参照・削除操作を提供する。
type Service struct {
	repo repository.RawEntryRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(repo repository.RawEntryRepository) *Service {
	return &Service{repo: repo}
}

// List は全生エントリを返す。
func (s *Service) List(ctx context.Context) ([]model.RawEntry, error) {
	return s.repo.List(ctx)
}

// Delete は指定IDの生エントリを削除する。
// 生成済みの取引はカスケード削除しない（独立したライフサイクル）。
func (s *Service) Delete(ctx context.Context, entryID int64) error {
	if err := s.repo.DeleteByID(ctx, entryID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.NewEntryNotFoundError(strconv.FormatInt(entryID, 10))
		}
		return err
	}
	return nil
}

// LastCreatedAt は最後に作成された生エントリの作成時刻を返す。
// 1件もない場合はENTRY_NOT_FOUNDエラー。
func (s *Service) LastCreatedAt(ctx context.Context) (string, error) {
	createdAt, err := s.repo.LastCreatedAt(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", model.NewEntryNotFoundError("latest")
		}
		return "", err
	}
	return createdAt, nil
}
