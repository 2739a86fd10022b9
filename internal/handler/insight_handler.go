package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hitoshi/lazyledger/internal/model"
)

// InsightFetcher は上流からのインサイト取得のインターフェース。
type InsightFetcher interface {
	Get(ctx context.Context, path string, timeout time.Duration) (int, []byte, error)
}

// InsightHandler はパースサービスのインサイトをプロキシするHTTPハンドラー。
// ブラウザからのクロスオリジン呼び出しを避けるための薄い中継で、
// 上流のステータスとボディをそのまま返す。
type InsightHandler struct {
	fetcher InsightFetcher
	timeout time.Duration
}

// NewInsightHandler はInsightHandlerを生成する。
func NewInsightHandler(fetcher InsightFetcher, timeout time.Duration) *InsightHandler {
	return &InsightHandler{
		fetcher: fetcher,
		timeout: timeout,
	}
}

// Latest は指定ユーザーの最新インサイトを上流から取得して中継する。
// GET /api/insights/user/{id}/latest
func (h *InsightHandler) Latest(w http.ResponseWriter, r *http.Request) {
	userID, err := parseIDParam(r, "id")
	if err != nil {
		handleServiceError(w, err)
		return
	}

	path := fmt.Sprintf("/insights/%s/latest", url.PathEscape(fmt.Sprintf("%d", userID)))
	status, body, err := h.fetcher.Get(r.Context(), path, h.timeout)
	if err != nil {
		handleServiceError(w, &model.APIError{
			Code:     model.ErrCodeUpstreamUnavailable,
			Message:  "インサイトの取得に失敗しました。",
			Category: "upstream",
			Action:   "しばらく待ってから再度お試しください。",
		})
		return
	}

	// 上流がJSONを返した場合はステータスごと中継し、非JSONは502として扱う
	if !json.Valid(body) {
		handleServiceError(w, &model.APIError{
			Code:     model.ErrCodeUpstreamRejected,
			Message:  "上流が不正なレスポンスを返しました。",
			Category: "upstream",
			Action:   "しばらく待ってから再度お試しください。",
		})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
