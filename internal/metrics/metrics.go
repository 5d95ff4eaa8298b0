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
// ゲートウェイ、インジケーター、購入・ウィッシュリスト操作から利用する。
type MetricsCollector interface {
	RecordGatewayCall(service, operation, outcome string, duration time.Duration)
	RecordIndicatorCheck(kind, outcome string)
	IndicatorStarted(kind string)
	IndicatorStopped(kind string)
	RecordPurchase(outcome string)
	RecordWishlistToggle(action, outcome string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	gatewayCalls     *prometheus.CounterVec
	gatewayLatency   *prometheus.HistogramVec
	indicatorChecks  *prometheus.CounterVec
	activeIndicators *prometheus.GaugeVec
	purchases        *prometheus.CounterVec
	wishlistToggles  *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		gatewayCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gamstore_gateway_calls_total",
			Help: "サービスゲートウェイ呼び出しの合計数",
		}, []string{"service", "operation", "outcome"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "gamstore_gateway_latency_seconds",
			Help:    "サービスゲートウェイ呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
		indicatorChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gamstore_indicator_checks_total",
			Help: "所有・ウィッシュリスト状態の問い合わせ数",
		}, []string{"kind", "outcome"}),
		activeIndicators: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gamstore_indicators_active",
			Help: "ポーリング中のインジケーター数",
		}, []string{"kind"}),
		purchases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gamstore_purchases_total",
			Help: "購入開始の結果別件数",
		}, []string{"outcome"}),
		wishlistToggles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gamstore_wishlist_toggles_total",
			Help: "ウィッシュリスト追加・削除の結果別件数",
		}, []string{"action", "outcome"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gamstore_http_responses_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.gatewayCalls,
		c.gatewayLatency,
		c.indicatorChecks,
		c.activeIndicators,
		c.purchases,
		c.wishlistToggles,
		c.httpStatus,
	)

	return c
}

// RecordGatewayCall はゲートウェイ呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordGatewayCall(service, operation, outcome string, duration time.Duration) {
	c.gatewayCalls.WithLabelValues(service, operation, outcome).Inc()
	c.gatewayLatency.WithLabelValues(service).Observe(duration.Seconds())
}

// RecordIndicatorCheck はインジケーターの問い合わせ結果を記録する。
func (c *Collector) RecordIndicatorCheck(kind, outcome string) {
	c.indicatorChecks.WithLabelValues(kind, outcome).Inc()
}

// IndicatorStarted はポーリング開始を記録する。
func (c *Collector) IndicatorStarted(kind string) {
	c.activeIndicators.WithLabelValues(kind).Inc()
}

// IndicatorStopped はポーリング停止を記録する。
func (c *Collector) IndicatorStopped(kind string) {
	c.activeIndicators.WithLabelValues(kind).Dec()
}

// RecordPurchase は購入開始の結果を記録する。
func (c *Collector) RecordPurchase(outcome string) {
	c.purchases.WithLabelValues(outcome).Inc()
}

// RecordWishlistToggle はウィッシュリスト操作の結果を記録する。
func (c *Collector) RecordWishlistToggle(action, outcome string) {
	c.wishlistToggles.WithLabelValues(action, outcome).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordGatewayCall(string, string, string, time.Duration) {}
func (Nop) RecordIndicatorCheck(string, string) {}
func (Nop) IndicatorStarted(string) {}
func (Nop) IndicatorStopped(string) {}
func (Nop) RecordPurchase(string) {}
func (Nop) RecordWishlistToggle(string, string) {}
func (Nop) RecordHTTPStatus(int) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
