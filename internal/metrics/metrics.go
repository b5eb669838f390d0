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
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordEmailSent()
	RecordEmailFailure(reason string)
	RecordDrainLatency(duration time.Duration)
	RecordPaymentNotification(status string)
	RecordInvoicesGenerated(count int)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	emailSent         prometheus.Counter
	emailFail         *prometheus.CounterVec
	drainLatency      prometheus.Histogram
	paymentNotify     *prometheus.CounterVec
	invoicesGenerated prometheus.Counter
	httpStatus        *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		emailSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rentman_email_sent_total",
			Help: "メール送信成功の合計数",
		}),
		emailFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentman_email_fail_total",
			Help: "メール送信失敗の合計数（理由別）",
		}, []string{"reason"}),
		drainLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "rentman_email_drain_latency_seconds",
			Help:    "メールキュードレイン1回のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		paymentNotify: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentman_payment_notification_total",
			Help: "処理したIPN通知の合計数（結果ステータス別）",
		}, []string{"status"}),
		invoicesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rentman_invoices_generated_total",
			Help: "生成した請求書の合計数",
		}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rentman_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.emailSent,
		c.emailFail,
		c.drainLatency,
		c.paymentNotify,
		c.invoicesGenerated,
		c.httpStatus,
	)

	return c
}

// RecordEmailSent はメール送信成功を記録する。
func (c *Collector) RecordEmailSent() {
	c.emailSent.Inc()
}

// RecordEmailFailure はメール送信失敗を記録する。
func (c *Collector) RecordEmailFailure(reason string) {
	c.emailFail.WithLabelValues(reason).Inc()
}

// RecordDrainLatency はキュードレインのレイテンシを記録する。
func (c *Collector) RecordDrainLatency(duration time.Duration) {
	c.drainLatency.Observe(duration.Seconds())
}

// RecordPaymentNotification はIPN通知の処理結果を記録する。
func (c *Collector) RecordPaymentNotification(status string) {
	c.paymentNotify.WithLabelValues(status).Inc()
}

// RecordInvoicesGenerated は生成した請求書数を記録する。
func (c *Collector) RecordInvoicesGenerated(count int) {
	c.invoicesGenerated.Add(float64(count))
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
