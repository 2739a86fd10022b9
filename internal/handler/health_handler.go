package handler

import (
	"context"
	"net/http"
	"time"
)

// DBPinger はデータベースの疎通確認のインターフェース。*sql.DBが満たす。
type DBPinger interface {
	PingContext(ctx context.Context) error
}

// ParserPinger は上流パースサービスの疎通確認のインターフェース。
type ParserPinger interface {
	Ping(ctx context.Context, timeout time.Duration) error
}

// HealthHandler は依存先の疎通状態を報告するHTTPハンドラー。
// DB接続が劣化状態でも必ず応答する（起動失敗を外部から観測可能にする）。
type HealthHandler struct {
	db      DBPinger
	parser  ParserPinger
	timeout time.Duration
}

// NewHealthHandler はHealthHandlerを生成する。
func NewHealthHandler(db DBPinger, parser ParserPinger, timeout time.Duration) *HealthHandler {
	return &HealthHandler{
		db:      db,
		parser:  parser,
		timeout: timeout,
	}
}

// serviceStatus は依存先1つの状態を表す。
type serviceStatus struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// healthResponse はヘルスチェックのレスポンス。
type healthResponse struct {
	Status    string                   `json:"status"`
	Timestamp string                   `json:"timestamp"`
	Services  map[string]serviceStatus `json:"services"`
}

// Check は依存先の疎通を確認する。
// GET /health
// すべて正常なら200、いずれかが異常なら207（劣化状態）を返す。
func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	resp := healthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Services:  make(map[string]serviceStatus),
	}

	if err := h.db.PingContext(ctx); err != nil {
		resp.Services["database"] = serviceStatus{Status: "error", Error: err.Error()}
		resp.Status = "degraded"
	} else {
		resp.Services["database"] = serviceStatus{Status: "ok"}
	}

	if err := h.parser.Ping(r.Context(), h.timeout); err != nil {
		resp.Services["parser"] = serviceStatus{Status: "error", Error: err.Error()}
		resp.Status = "degraded"
	} else {
		resp.Services["parser"] = serviceStatus{Status: "ok"}
	}

	statusCode := http.StatusOK
	if resp.Status == "degraded" {
		statusCode = http.StatusMultiStatus
	}
	writeJSON(w, statusCode, resp)
}
