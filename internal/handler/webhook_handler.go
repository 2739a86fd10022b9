package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/hitoshi/lazyledger/internal/model"
	"github.com/hitoshi/lazyledger/internal/webhook"
)

// maxWebhookBodyBytes はWebhookペイロードの最大サイズ。
const maxWebhookBodyBytes = 1 << 20 // 1MiB

// WebhookServiceInterface はWebhookイベント処理のインターフェース。
type WebhookServiceInterface interface {
	Handle(ctx context.Context, event *webhook.Event) error
}

// WebhookHandler は外部IdPからのWebhookを受信するHTTPハンドラー。
type WebhookHandler struct {
	service WebhookServiceInterface
}

// NewWebhookHandler はWebhookHandlerを生成する。
func NewWebhookHandler(service WebhookServiceInterface) *WebhookHandler {
	return &WebhookHandler{service: service}
}

// HandleClerk はClerkのユーザーライフサイクルイベントを処理する。
// POST /api/webhook/clerk
// 配送はat-least-onceのため、同一イベントの再配送でも同じレスポンスを返す。
func (h *WebhookHandler) HandleClerk(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		handleServiceError(w, model.NewValidationError("リクエストボディを読み取れませんでした。"))
		return
	}

	event, err := webhook.ParseEvent(body)
	if err != nil {
		handleServiceError(w, model.NewValidationError("Webhookペイロードが不正なJSONです。"))
		return
	}

	if err := h.service.Handle(r.Context(), event); err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
