package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/lazyledger/internal/model"
	"github.com/hitoshi/lazyledger/internal/transaction"
)

// TransactionServiceInterface は取引CRUDのインターフェース。
type TransactionServiceInterface interface {
	List(ctx context.Context) ([]model.Transaction, error)
	Create(ctx context.Context, in transaction.Input) (*model.Transaction, error)
	Get(ctx context.Context, id int64) (*model.Transaction, error)
	ListByUser(ctx context.Context, userID int64) ([]model.Transaction, error)
	Update(ctx context.Context, id int64, in transaction.Input) (*model.Transaction, error)
	Delete(ctx context.Context, id int64) error
}

// TransactionHandler は取引管理のHTTPハンドラー。
type TransactionHandler struct {
	service TransactionServiceInterface
}

// NewTransactionHandler はTransactionHandlerを生成する。
func NewTransactionHandler(service TransactionServiceInterface) *TransactionHandler {
	return &TransactionHandler{service: service}
}

// List は全取引を返す。
// GET /api/transactions
func (h *TransactionHandler) List(w http.ResponseWriter, r *http.Request) {
	txns, err := h.service.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if txns == nil {
		txns = []model.Transaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}

// Create は取引を直接作成する。
// POST /api/transactions
func (h *TransactionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in transaction.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		handleServiceError(w, model.NewValidationError("リクエストボディが不正なJSONです。"))
		return
	}

	txn, err := h.service.Create(r.Context(), in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, txn)
}

// Get は指定IDの取引を返す。
// GET /api/transactions/{id}
func (h *TransactionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	txn, err := h.service.Get(r.Context(), id)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, txn)
}

// ListByUser は指定ユーザーの取引一覧を返す。
// GET /api/transactions/user/{user_id}
func (h *TransactionHandler) ListByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r, "user_id")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	txns, err := h.service.ListByUser(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if txns == nil {
		txns = []model.Transaction{}
	}
	writeJSON(w, http.StatusOK, txns)
}

// Update は取引の全可変フィールドを上書きする。
// PUT /api/transactions/{id}
func (h *TransactionHandler) Update(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	var in transaction.Input
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		handleServiceError(w, model.NewValidationError("リクエストボディが不正なJSONです。"))
		return
	}

	txn, err := h.service.Update(r.Context(), id, in)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, txn)
}

// Delete は指定IDの取引を削除する。
// DELETE /api/transactions/{id}
func (h *TransactionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "取引を削除しました。"})
}
