package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/lazyledger/internal/ingest"
	"github.com/hitoshi/lazyledger/internal/metrics"
	"github.com/hitoshi/lazyledger/internal/middleware"
	"github.com/hitoshi/lazyledger/internal/model"
)

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(1000),
		GeneralBurst:    1000,
		IngestRate:      rate.Limit(1000),
		IngestBurst:     1000,
		CleanupInterval: time.Hour,
	})
	t.Cleanup(rl.Stop)

	registry := prometheus.NewRegistry()

	deps := &RouterDeps{
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,

		IngestService: &mockIngestService{
			ingestFunc: func(ctx context.Context, req ingest.IngestRequest) (*ingest.Result, error) {
				return &ingest.Result{RawEntry: model.RawEntry{EntryID: 1}}, nil
			},
		},
		EntryService: &mockRawEntryService{},

		TransactionService: &mockTransactionService{},

		WebhookService: &mockWebhookService{},

		InsightFetcher: &mockInsightFetcher{
			getFunc: func(ctx context.Context, path string, timeout time.Duration) (int, []byte, error) {
				return http.StatusOK, []byte(`{}`), nil
			},
		},
		InsightTimeout: time.Second,

		DB:            &mockPinger{},
		ParserPinger:  &mockParserPinger{},
		HealthTimeout: time.Second,

		MetricsHandler: metrics.Handler(registry),
	}

	return NewRouter(deps)
}

func TestRouter_RoutesExist(t *testing.T) {
	router := newTestRouter(t)

	tests := []struct {
		method string
		path   string
		body   string
	}{
		{http.MethodPost, "/api/raw-records", `{"user_id": 1, "date": "2026-09-01", "raw_text": "x"}`},
		{http.MethodGet, "/api/raw-records", ""},
		{http.MethodGet, "/api/raw-records/last", ""},
		{http.MethodGet, "/api/transactions", ""},
		{http.MethodGet, "/api/transactions/user/1", ""},
		{http.MethodPost, "/api/webhook/clerk", `{"type": "user.banned", "data": {}}`},
		{http.MethodGet, "/api/insights/user/1/latest", ""},
		{http.MethodGet, "/health", ""},
		{http.MethodGet, "/metrics", ""},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			var req *http.Request
			if tt.body != "" {
				req = httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			} else {
				req = httptest.NewRequest(tt.method, tt.path, nil)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code == http.StatusNotFound || rec.Code == http.StatusMethodNotAllowed {
				t.Errorf("%s %s のステータス = %d (ルートが存在すべき)", tt.method, tt.path, rec.Code)
			}
		})
	}
}

func TestRouter_CORSHeadersOnAllRoutes(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Access-Control-Allow-Origin = %s, want http://localhost:3000", got)
	}
}

func TestRouter_PreflightHandled(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/raw-records", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("プリフライトのステータス = %d, want 204", rec.Code)
	}
}

func TestRouter_IngestRateLimitApplied(t *testing.T) {
	rl := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		GeneralRate:     rate.Limit(1000),
		GeneralBurst:    1000,
		IngestRate:      rate.Limit(0.001),
		IngestBurst:     1, // 取り込みは1回で枯渇させる
		CleanupInterval: time.Hour,
	})
	defer rl.Stop()

	registry := prometheus.NewRegistry()
	deps := &RouterDeps{
		CORSAllowedOrigin: "http://localhost:3000",
		RateLimiter:       rl,
		IngestService: &mockIngestService{
			ingestFunc: func(ctx context.Context, req ingest.IngestRequest) (*ingest.Result, error) {
				return &ingest.Result{}, nil
			},
		},
		EntryService:       &mockRawEntryService{},
		TransactionService: &mockTransactionService{},
		WebhookService:     &mockWebhookService{},
		InsightFetcher: &mockInsightFetcher{
			getFunc: func(ctx context.Context, path string, timeout time.Duration) (int, []byte, error) {
				return http.StatusOK, []byte(`{}`), nil
			},
		},
		InsightTimeout: time.Second,
		DB:             &mockPinger{},
		ParserPinger:   &mockParserPinger{},
		HealthTimeout:  time.Second,
		MetricsHandler: metrics.Handler(registry),
	}
	router := NewRouter(deps)

	body := `{"user_id": 1, "date": "2026-09-01", "raw_text": "x"}`

	req1 := httptest.NewRequest(http.MethodPost, "/api/raw-records", strings.NewReader(body))
	req1.RemoteAddr = "10.0.0.1:1234"
	rec1 := httptest.NewRecorder()
	router.ServeHTTP(rec1, req1)
	if rec1.Code != http.StatusCreated {
		t.Fatalf("初回の取り込みステータス = %d, want 201", rec1.Code)
	}

	req2 := httptest.NewRequest(http.MethodPost, "/api/raw-records", strings.NewReader(body))
	req2.RemoteAddr = "10.0.0.1:1234"
	rec2 := httptest.NewRecorder()
	router.ServeHTTP(rec2, req2)
	if rec2.Code != http.StatusTooManyRequests {
		t.Errorf("取り込み枠超過後のステータス = %d, want 429", rec2.Code)
	}

	// 一般枠のGETルートは影響を受けない
	req3 := httptest.NewRequest(http.MethodGet, "/api/raw-records", nil)
	req3.RemoteAddr = "10.0.0.1:1234"
	rec3 := httptest.NewRecorder()
	router.ServeHTTP(rec3, req3)
	if rec3.Code != http.StatusOK {
		t.Errorf("一般枠のステータス = %d, want 200", rec3.Code)
	}
}

func TestRouter_MetricsEndpointOutsideRateLimit(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("/metrics のステータス = %d, want 200", rec.Code)
	}
}
