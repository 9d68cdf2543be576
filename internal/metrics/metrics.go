// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MusabMahmoodh/review-pulse-sub001/internal/model"
	"github.com/MusabMahmoodh/review-pulse-sub001/internal/platform"
	"github.com/MusabMahmoodh/review-pulse-sub001/internal/sync"
)

// Collector はPrometheusメトリクスを収集する実装。
// 同期オーケストレーターのRecorderとアダプターのHTTP観測の両方を担う。
type Collector struct {
	syncSuccess     *prometheus.CounterVec
	syncFail        *prometheus.CounterVec
	authExpired     *prometheus.CounterVec
	providerStatus  *prometheus.CounterVec
	syncLatency     *prometheus.HistogramVec
	reviewsUpserted *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewpulse_sync_success_total",
			Help: "レビュー同期成功の合計数",
		}, []string{"platform"}),
		syncFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewpulse_sync_fail_total",
			Help: "レビュー同期失敗の合計数（理由別）",
		}, []string{"platform", "reason"}),
		authExpired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewpulse_auth_expired_total",
			Help: "プロバイダー認証失効の検出数",
		}, []string{"platform"}),
		providerStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewpulse_provider_http_status_total",
			Help: "プロバイダーAPIのHTTPステータスコード別レスポンス数",
		}, []string{"platform", "status_code"}),
		syncLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "reviewpulse_sync_latency_seconds",
			Help:    "プラットフォーム同期のレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"platform"}),
		reviewsUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "reviewpulse_reviews_upserted_total",
			Help: "アップサートされたレビューの合計数（新規/更新別）",
		}, []string{"platform", "kind"}),
	}

	reg.MustRegister(
		c.syncSuccess,
		c.syncFail,
		c.authExpired,
		c.providerStatus,
		c.syncLatency,
		c.reviewsUpserted,
	)

	return c
}

// RecordSyncSuccess は同期成功とそのレイテンシを記録する。
func (c *Collector) RecordSyncSuccess(platform model.Platform, duration time.Duration) {
	c.syncSuccess.WithLabelValues(string(platform)).Inc()
	c.syncLatency.WithLabelValues(string(platform)).Observe(duration.Seconds())
}

// RecordSyncFailure は同期失敗を理由別に記録する。
func (c *Collector) RecordSyncFailure(platform model.Platform, reason model.SyncReason) {
	c.syncFail.WithLabelValues(string(platform), string(reason)).Inc()
}

// RecordAuthExpired はプロバイダー認証失効の検出を記録する。
func (c *Collector) RecordAuthExpired(platform model.Platform) {
	c.authExpired.WithLabelValues(string(platform)).Inc()
}

// RecordProviderStatus はプロバイダーAPIのHTTPステータスコードを記録する。
func (c *Collector) RecordProviderStatus(platform model.Platform, statusCode int) {
	c.providerStatus.WithLabelValues(string(platform), strconv.Itoa(statusCode)).Inc()
}

// RecordReviewsUpserted はアップサートされたレビュー数を新規/更新別に記録する。
func (c *Collector) RecordReviewsUpserted(platform model.Platform, created, updated int) {
	if created > 0 {
		c.reviewsUpserted.WithLabelValues(string(platform), "created").Add(float64(created))
	}
	if updated > 0 {
		c.reviewsUpserted.WithLabelValues(string(platform), "updated").Add(float64(updated))
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface checks
var (
	_ sync.Recorder           = (*Collector)(nil)
	_ platform.StatusRecorder = (*Collector)(nil)
)
