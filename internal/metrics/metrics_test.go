package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() == name {
			var total float64
			for _, m := range mf.GetMetric() {
				total += m.GetCounter().GetValue()
			}
			return total
		}
	}
	t.Fatalf("%s metric not found", name)
	return 0
}

// TestRecordIngestSuccess_IncrementsCounter は取り込み成功カウンタが増加することを検証する。
func TestRecordIngestSuccess_IncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordIngestSuccess()
	c.RecordIngestSuccess()

	if got := counterValue(t, reg, "lazyledger_ingest_success_total"); got != 2 {
		t.Errorf("ingest_success_total = %v, want 2", got)
	}
}

// TestRecordIngestFailure_LabelsByCode はエラーコード別に失敗が記録されることを検証する。
func TestRecordIngestFailure_LabelsByCode(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordIngestFailure("UPSTREAM_UNAVAILABLE")
	c.RecordIngestFailure("UPSTREAM_UNAVAILABLE")
	c.RecordIngestFailure("VALIDATION_ERROR")

	if got := counterValue(t, reg, "lazyledger_ingest_fail_total"); got != 3 {
		t.Errorf("ingest_fail_total = %v, want 3", got)
	}
}

// TestRecordItemsPersisted_AddsCount は永続化件数が加算されることを検証する。
func TestRecordItemsPersisted_AddsCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordItemsPersisted(3)
	c.RecordItemsPersisted(2)

	if got := counterValue(t, reg, "lazyledger_items_persisted_total"); got != 5 {
		t.Errorf("items_persisted_total = %v, want 5", got)
	}
}

// TestRecordItemSkipped_LabelsByReason は理由別にスキップが記録されることを検証する。
func TestRecordItemSkipped_LabelsByReason(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordItemSkipped("invalid")
	c.RecordItemSkipped("persist_failed")

	if got := counterValue(t, reg, "lazyledger_items_skipped_total"); got != 2 {
		t.Errorf("items_skipped_total = %v, want 2", got)
	}
}

// TestRecordWebhookEvent_LabelsByTypeAndOutcome はイベント種別・結果別に記録されることを検証する。
func TestRecordWebhookEvent_LabelsByTypeAndOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordWebhookEvent("user.created", "ok")
	c.RecordWebhookEvent("user.deleted", "ok")
	c.RecordWebhookEvent("session.created", "ignored")

	if got := counterValue(t, reg, "lazyledger_webhook_events_total"); got != 3 {
		t.Errorf("webhook_events_total = %v, want 3", got)
	}
}

// TestRecordUpstreamLatency_ObservesHistogram はレイテンシがヒストグラムに記録されることを検証する。
func TestRecordUpstreamLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpstreamLatency(150 * time.Millisecond)

	metrics, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metrics {
		if mf.GetName() == "lazyledger_upstream_latency_seconds" {
			found = true
			if count := mf.GetMetric()[0].GetHistogram().GetSampleCount(); count != 1 {
				t.Errorf("sample count = %d, want 1", count)
			}
		}
	}
	if !found {
		t.Error("lazyledger_upstream_latency_seconds metric not found")
	}
}

// TestHandler_ServesMetrics は/metricsハンドラーが登録済みメトリクスを返すことを検証する。
func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordIngestSuccess()
	c.RecordUpstreamStatus(503)

	h := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ステータスコード = %d, want 200", rec.Code)
	}

	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("failed to read body: %v", err)
	}
	if !strings.Contains(string(body), "lazyledger_ingest_success_total") {
		t.Error("レスポンスに lazyledger_ingest_success_total が含まれるべき")
	}
	if !strings.Contains(string(body), `lazyledger_upstream_status_total{status_code="503"}`) {
		t.Error("レスポンスに status_code=503 のカウンタが含まれるべき")
	}
}
