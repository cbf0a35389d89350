// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// アカウントライフサイクル操作とHTTPレスポンスの計測を担う。
type Collector struct {
	deletionScheduled prometheus.Counter
	cascadeMarked     *prometheus.CounterVec
	cascadeFailed     *prometheus.CounterVec
	exportTotal       prometheus.Counter
	exportDegraded    *prometheus.CounterVec
	httpStatus        *prometheus.CounterVec
	lifecycleLatency  prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		deletionScheduled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jacobsladder_deletion_scheduled_total",
			Help: "削除予約が成立したアカウントの合計数",
		}),
		cascadeMarked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jacobsladder_cascade_marked_total",
			Help: "削除マークが成功したドキュメントのコレクション別合計数",
		}, []string{"collection"}),
		cascadeFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jacobsladder_cascade_failed_total",
			Help: "削除マークに失敗したドキュメントのコレクション別合計数",
		}, []string{"collection"}),
		exportTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "jacobsladder_export_total",
			Help: "生成されたエクスポートの合計数",
		}),
		exportDegraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jacobsladder_export_section_degraded_total",
			Help: "取得に失敗し空配列で代替されたエクスポートセクションの合計数",
		}, []string{"section"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jacobsladder_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		lifecycleLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jacobsladder_lifecycle_latency_seconds",
			Help:    "ライフサイクル操作（削除予約・エクスポート）のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(
		c.deletionScheduled,
		c.cascadeMarked,
		c.cascadeFailed,
		c.exportTotal,
		c.exportDegraded,
		c.httpStatus,
		c.lifecycleLatency,
	)

	return c
}

// RecordDeletionScheduled は削除予約の成立を記録する。
func (c *Collector) RecordDeletionScheduled() {
	c.deletionScheduled.Inc()
}

// RecordCascadeOutcome はコレクション単位の削除マーク結果を記録する。
func (c *Collector) RecordCascadeOutcome(collection string, ok bool) {
	if ok {
		c.cascadeMarked.WithLabelValues(collection).Inc()
	} else {
		c.cascadeFailed.WithLabelValues(collection).Inc()
	}
}

// RecordExport はエクスポート生成を記録する。
func (c *Collector) RecordExport() {
	c.exportTotal.Inc()
}

// RecordExportDegraded はセクション単位のエクスポート縮退を記録する。
func (c *Collector) RecordExportDegraded(section string) {
	c.exportDegraded.WithLabelValues(section).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordLifecycleLatency はライフサイクル操作のレイテンシを記録する。
func (c *Collector) RecordLifecycleLatency(duration time.Duration) {
	c.lifecycleLatency.Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
