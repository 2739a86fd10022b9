package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

type mockInsightFetcher struct {
	getFunc func(ctx context.Context, path string, timeout time.Duration) (int, []byte, error)
}

func (m *mockInsightFetcher) Get(ctx context.Context, path string, timeout time.Duration) (int, []byte, error) {
	return m.getFunc(ctx, path, timeout)
}

func newInsightRouter(fetcher InsightFetcher) http.Handler {
	h := NewInsightHandler(fetcher, time.Second)
	r := chi.NewRouter()
	r.Get("/api/insights/user/{id}/latest", h.Latest)
	return r
}

func TestInsightHandler_Latest_PassesThrough(t *testing.T) {
	fetcher := &mockInsightFetcher{
		getFunc: func(ctx context.Context, path string, timeout time.Duration) (int, []byte, error) {
			if path != "/insights/42/latest" {
				t.Errorf("パス = %s, want /insights/42/latest", path)
			}
			return http.StatusOK, []byte(`{"summary": "今月は食費が多めです。"}`), nil
		},
	}
	router := newInsightRouter(fetcher)

	req := httptest.NewRequest(http.MethodGet, "/api/insights/user/42/latest", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want 200", rec.Code)
	}
	if rec.Body.String() != `{"summary": "今月は食費が多めです。"}` {
		t.Errorf("ボディが上流のまま中継されるべき: %s", rec.Body.String())
	}
}

func TestInsightHandler_Latest_UpstreamStatusPreserved(t *testing.T) {
	fetcher := &mockInsightFetcher{
		getFunc: func(ctx context.Context, path string, timeout time.Duration) (int, []byte, error) {
			return http.StatusNotFound, []byte(`{"error": "no insights yet"}`), nil
		},
	}
	router := newInsightRouter(fetcher)

	req := httptest.NewRequest(http.MethodGet, "/api/insights/user/42/latest", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("ステータスコード = %d, want 404 (上流のステータスを保持)", rec.Code)
	}
}

func TestInsightHandler_Latest_NetworkErrorIs503(t *testing.T) {
	fetcher := &mockInsightFetcher{
		getFunc: func(ctx context.Context, path string, timeout time.Duration) (int, []byte, error) {
			return 0, nil, errors.New("dial tcp: connection refused")
		},
	}
	router := newInsightRouter(fetcher)

	req := httptest.NewRequest(http.MethodGet, "/api/insights/user/42/latest", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("ステータスコード = %d, want 503", rec.Code)
	}
}

func TestInsightHandler_Latest_NonJSONBodyIs502(t *testing.T) {
	fetcher := &mockInsightFetcher{
		getFunc: func(ctx context.Context, path string, timeout time.Duration) (int, []byte, error) {
			return http.StatusOK, []byte(`<html>error</html>`), nil
		},
	}
	router := newInsightRouter(fetcher)

	req := httptest.NewRequest(http.MethodGet, "/api/insights/user/42/latest", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("ステータスコード = %d, want 502", rec.Code)
	}
}

func TestInsightHandler_Latest_InvalidID(t *testing.T) {
	fetcher := &mockInsightFetcher{
		getFunc: func(ctx context.Context, path string, timeout time.Duration) (int, []byte, error) {
			t.Error("不正なIDで上流を呼んではならない")
			return 0, nil, nil
		},
	}
	router := newInsightRouter(fetcher)

	req := httptest.NewRequest(http.MethodGet, "/api/insights/user/abc/latest", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("ステータスコード = %d, want 400", rec.Code)
	}
}
