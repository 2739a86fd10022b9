package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/lazyledger/internal/ingest"
	"github.com/hitoshi/lazyledger/internal/model"
)

// IngestServiceInterface は取り込みパイプラインのインターフェース。
type IngestServiceInterface interface {
	// Ingest は家計テキストを取り込み、取引レコードとして実体化する。
	Ingest(ctx context.Context, req ingest.IngestRequest) (*ingest.Result, error)
}

// RawEntryServiceInterface は生エントリの参照・削除のインターフェース。
type RawEntryServiceInterface interface {
	List(ctx context.Context) ([]model.RawEntry, error)
	Delete(ctx context.Context, entryID int64) error
	LastCreatedAt(ctx context.Context) (string, error)
}

// RecordHandler は生エントリと取り込みのHTTPハンドラー。
type RecordHandler struct {
	ingestService IngestServiceInterface
	entryService  RawEntryServiceInterface
}

// NewRecordHandler はRecordHandlerを生成する。
func NewRecordHandler(ingestService IngestServiceInterface, entryService RawEntryServiceInterface) *RecordHandler {
	return &RecordHandler{
		ingestService: ingestService,
		entryService:  entryService,
	}
}

// ingestResponse は取り込み成功時のレスポンス。
type ingestResponse struct {
	Message        string              `json:"message"`
	RawEntry       model.RawEntry      `json:"raw_entry"`
	Transactions   []model.Transaction `json:"transactions"`
	SkippedInvalid int                 `json:"skipped_invalid"`
	FailedPersist  int                 `json:"failed_persist"`
}

// Create は家計テキストを取り込む。
// POST /api/raw-records
func (h *RecordHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ingest.IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		handleServiceError(w, model.NewValidationError("リクエストボディが不正なJSONです。"))
		return
	}

	result, err := h.ingestService.Ingest(r.Context(), req)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	transactions := result.Transactions
	if transactions == nil {
		transactions = []model.Transaction{}
	}

	writeJSON(w, http.StatusCreated, ingestResponse{
		Message:        "生エントリと取引を保存しました。",
		RawEntry:       result.RawEntry,
		Transactions:   transactions,
		SkippedInvalid: result.SkippedInvalid,
		FailedPersist:  result.FailedPersist,
	})
}

// List は全生エントリを返す。
// GET /api/raw-records
func (h *RecordHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.entryService.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	if entries == nil {
		entries = []model.RawEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// Delete は指定IDの生エントリを削除する。
// DELETE /api/raw-records/{id}
func (h *RecordHandler) Delete(w http.ResponseWriter, r *http.Request) {
	entryID, err := parseIDParam(r, "id")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	if err := h.entryService.Delete(r.Context(), entryID); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "エントリを削除しました。"})
}

// Last は最後に作成された生エントリの作成時刻を返す。
// GET /api/raw-records/last
func (h *RecordHandler) Last(w http.ResponseWriter, r *http.Request) {
	createdAt, err := h.entryService.LastCreatedAt(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"last_created_at": createdAt})
}
