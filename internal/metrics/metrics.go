// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 取り込みパイプラインとWebhookハンドラーから利用する。
type MetricsCollector interface {
	RecordIngestSuccess()
	RecordIngestFailure(code string)
	RecordUpstreamStatus(statusCode int)
	RecordUpstreamLatency(duration time.Duration)
	RecordItemsPersisted(count int)
	RecordItemSkipped(reason string)
	RecordWebhookEvent(eventType string, outcome string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	ingestSuccess   prometheus.Counter
	ingestFail      *prometheus.CounterVec
	upstreamStatus  *prometheus.CounterVec
	upstreamLatency prometheus.Histogram
	itemsPersisted  prometheus.Counter
	itemsSkipped    *prometheus.CounterVec
	webhookEvents   *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		ingestSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lazyledger_ingest_success_total",
			Help: "取り込み成功の合計数",
		}),
		ingestFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lazyledger_ingest_fail_total",
			Help: "エラーコード別の取り込み失敗数",
		}, []string{"code"}),
		upstreamStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lazyledger_upstream_status_total",
			Help: "パースサービスのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		upstreamLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lazyledger_upstream_latency_seconds",
			Help:    "パースサービス呼び出しのレイテンシ（秒、リトライ込み）",
			Buckets: prometheus.DefBuckets,
		}),
		itemsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lazyledger_items_persisted_total",
			Help: "永続化された取引の合計数",
		}),
		itemsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lazyledger_items_skipped_total",
			Help: "理由別のスキップされた取引候補数",
		}, []string{"reason"}),
		webhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lazyledger_webhook_events_total",
			Help: "イベント種別・結果別のWebhookイベント数",
		}, []string{"event_type", "outcome"}),
	}

	reg.MustRegister(
		c.ingestSuccess,
		c.ingestFail,
		c.upstreamStatus,
		c.upstreamLatency,
		c.itemsPersisted,
		c.itemsSkipped,
		c.webhookEvents,
	)

	return c
}

// RecordIngestSuccess は取り込み成功を記録する。
func (c *Collector) RecordIngestSuccess() {
	c.ingestSuccess.Inc()
}

// RecordIngestFailure はエラーコード別の取り込み失敗を記録する。
func (c *Collector) RecordIngestFailure(code string) {
	c.ingestFail.WithLabelValues(code).Inc()
}

// RecordUpstreamStatus はパースサービスのHTTPステータスコードを記録する。
func (c *Collector) RecordUpstreamStatus(statusCode int) {
	c.upstreamStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordUpstreamLatency はパースサービス呼び出しのレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(duration time.Duration) {
	c.upstreamLatency.Observe(duration.Seconds())
}

// RecordItemsPersisted は永続化された取引数を記録する。
func (c *Collector) RecordItemsPersisted(count int) {
	c.itemsPersisted.Add(float64(count))
}

// RecordItemSkipped はスキップされた取引候補を理由付きで記録する。
func (c *Collector) RecordItemSkipped(reason string) {
	c.itemsSkipped.WithLabelValues(reason).Inc()
}

// RecordWebhookEvent はWebhookイベントの処理結果を記録する。
func (c *Collector) RecordWebhookEvent(eventType string, outcome string) {
	c.webhookEvents.WithLabelValues(eventType, outcome).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
