package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func fastOpts(maxRetries int) CallOptions {
	return CallOptions{
		Timeout:     2 * time.Second,
		MaxRetries:  maxRetries,
		BackoffBase: time.Millisecond,
		Headers:     map[string]string{CorrelationIDHeader: "cid-test"},
	}
}

func TestClient_ParseText_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("HTTPメソッド = %s, want POST", r.Method)
		}
		if r.URL.Path != "/parse-text" {
			t.Errorf("パス = %s, want /parse-text", r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %s, want application/json", ct)
		}

		var req ParseRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("リクエストボディのデコードに失敗: %v", err)
		}
		if req.RawText != "コーヒー 500円" {
			t.Errorf("RawText = %s, want コーヒー 500円", req.RawText)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"amount":"500","type":"debit","category":"food","date":"2026-09-01"}]`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), server.URL, newTestLogger(&buf))

	items, err := c.ParseText(context.Background(), ParseRequest{RawText: "コーヒー 500円", Date: "2026-09-01"}, fastOpts(3))
	if err != nil {
		t.Fatalf("ParseText がエラーを返した: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("取引候補数 = %d, want 1", len(items))
	}
	if !items[0].Amount.Equal(decimal.NewFromInt(500)) {
		t.Errorf("Amount = %s, want 500", items[0].Amount)
	}
}

func TestClient_ParseText_RetriesOn503ThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), server.URL, newTestLogger(&buf))

	_, err := c.ParseText(context.Background(), ParseRequest{RawText: "x", Date: "2026-09-01"}, fastOpts(3))
	if err != nil {
		t.Fatalf("ParseText がエラーを返した: %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("物理試行回数 = %d, want 3", got)
	}
}

func TestClient_ParseText_AttemptsBounded(t *testing.T) {
	// 常に503を返す上流: 物理試行は最大 MaxRetries+1 回で打ち切ること
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), server.URL, newTestLogger(&buf))

	_, err := c.ParseText(context.Background(), ParseRequest{RawText: "x", Date: "2026-09-01"}, fastOpts(3))
	if err == nil {
		t.Fatal("全試行が失敗した場合はエラーを返すべき")
	}
	if got := calls.Load(); got != 4 {
		t.Errorf("物理試行回数 = %d, want 4 (MaxRetries+1)", got)
	}

	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("エラー型 = %T, want *UpstreamError", err)
	}
	if !upErr.Retryable {
		t.Error("リトライ上限到達は Retryable=true であるべき")
	}
	if upErr.Attempts != 4 {
		t.Errorf("Attempts = %d, want 4", upErr.Attempts)
	}
	if upErr.Status != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want 503", upErr.Status)
	}
}

func TestClient_ParseText_NoRetryOn400(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"unparseable"}`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), server.URL, newTestLogger(&buf))

	_, err := c.ParseText(context.Background(), ParseRequest{RawText: "x", Date: "2026-09-01"}, fastOpts(3))
	if err == nil {
		t.Fatal("400 はエラーを返すべき")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("物理試行回数 = %d, want 1 (429以外の4xxはリトライしない)", got)
	}

	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("エラー型 = %T, want *UpstreamError", err)
	}
	if upErr.Retryable {
		t.Error("400 は Retryable=false であるべき")
	}
}

func TestClient_ParseText_RetriesOn429(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), server.URL, newTestLogger(&buf))

	_, err := c.ParseText(context.Background(), ParseRequest{RawText: "x", Date: "2026-09-01"}, fastOpts(3))
	if err != nil {
		t.Fatalf("ParseText がエラーを返した: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("物理試行回数 = %d, want 2 (429はリトライ対象)", got)
	}
}

func TestClient_ParseText_CorrelationIDStableAcrossRetries(t *testing.T) {
	var mu []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu = append(mu, r.Header.Get(CorrelationIDHeader))
		if len(mu) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), server.URL, newTestLogger(&buf))

	opts := fastOpts(3)
	opts.Headers[CorrelationIDHeader] = "cid-stable"

	_, err := c.ParseText(context.Background(), ParseRequest{RawText: "x", Date: "2026-09-01"}, opts)
	if err != nil {
		t.Fatalf("ParseText がエラーを返した: %v", err)
	}

	if len(mu) != 3 {
		t.Fatalf("物理試行回数 = %d, want 3", len(mu))
	}
	for i, cid := range mu {
		if cid != "cid-stable" {
			t.Errorf("試行%dの相関ID = %s, want cid-stable (全リトライで同一であるべき)", i+1, cid)
		}
	}
}

func TestClient_ParseText_NetworkErrorRetried(t *testing.T) {
	// 起動していないサーバーへの接続: ネットワークエラーはリトライを尽くすこと
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	var buf bytes.Buffer
	c := NewClient(http.DefaultClient, url, newTestLogger(&buf))

	_, err := c.ParseText(context.Background(), ParseRequest{RawText: "x", Date: "2026-09-01"}, fastOpts(2))
	if err == nil {
		t.Fatal("接続不能な上流に対してエラーを返すべき")
	}

	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("エラー型 = %T, want *UpstreamError", err)
	}
	if !upErr.Retryable {
		t.Error("ネットワークエラーは Retryable=true であるべき")
	}
	if upErr.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3 (MaxRetries+1)", upErr.Attempts)
	}
}

func TestClient_ParseText_MalformedSuccessBodyIsTerminal(t *testing.T) {
	// 200でもボディが配列でない場合は終端エラーにすること（HTML等の誤配信対策）
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Write([]byte(`<html>gateway error</html>`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), server.URL, newTestLogger(&buf))

	_, err := c.ParseText(context.Background(), ParseRequest{RawText: "x", Date: "2026-09-01"}, fastOpts(3))
	if err == nil {
		t.Fatal("配列以外のボディはエラーを返すべき")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("物理試行回数 = %d, want 1", got)
	}

	var upErr *UpstreamError
	if !errors.As(err, &upErr) {
		t.Fatalf("エラー型 = %T, want *UpstreamError", err)
	}
	if upErr.Retryable {
		t.Error("不正な成功ボディは Retryable=false であるべき")
	}
}

func TestClient_ParseText_ContextCancelDuringBackoff(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), server.URL, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())

	opts := fastOpts(5)
	opts.BackoffBase = 10 * time.Second // バックオフ待機中にキャンセルさせる

	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := c.ParseText(ctx, ParseRequest{RawText: "x", Date: "2026-09-01"}, opts)
	if err == nil {
		t.Fatal("キャンセル時はエラーを返すべき")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("キャンセル後も待機し続けた: %v", elapsed)
	}
}

func TestClient_Get_PassesThroughStatusAndBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/insights/7/latest" {
			t.Errorf("パス = %s, want /insights/7/latest", r.URL.Path)
		}
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":"not found"}`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), server.URL, newTestLogger(&buf))

	status, body, err := c.Get(context.Background(), "/insights/7/latest", 2*time.Second)
	if err != nil {
		t.Fatalf("Get がエラーを返した: %v", err)
	}
	if status != http.StatusNotFound {
		t.Errorf("ステータス = %d, want 404", status)
	}
	if string(body) != `{"error":"not found"}` {
		t.Errorf("ボディ = %s, want {\"error\":\"not found\"}", body)
	}
}

func TestClient_Ping(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("パス = %s, want /health", r.URL.Path)
		}
		w.Write([]byte(`{"status":"ok"}`))
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), server.URL, newTestLogger(&buf))

	if err := c.Ping(context.Background(), 2*time.Second); err != nil {
		t.Errorf("Ping がエラーを返した: %v", err)
	}
}

func TestClient_Ping_Non200IsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), server.URL, newTestLogger(&buf))

	if err := c.Ping(context.Background(), 2*time.Second); err == nil {
		t.Error("非200のヘルスチェックはエラーを返すべき")
	}
}

func TestNewClient_TrimsTrailingSlash(t *testing.T) {
	var buf bytes.Buffer
	c := NewClient(http.DefaultClient, "http://example.com/", newTestLogger(&buf))
	if c.baseURL != "http://example.com" {
		t.Errorf("baseURL = %s, want http://example.com", c.baseURL)
	}
}
