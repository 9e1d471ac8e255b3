// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// サイクルの結果ラベル
const (
	CycleResultOK          = "ok"
	CycleResultFetchFailed = "fetch_failed"
	CycleResultCanceled    = "canceled"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サイクルオーケストレーターとスケジューラーから利用する。
type MetricsCollector interface {
	RecordCycle(result string, duration time.Duration)
	RecordCycleSkipped()
	RecordEntriesFetched(count int)
	RecordDelivered()
	RecordEnrichFailure()
	RecordDispatchFailure()
	RecordPersistenceFailure(op string)
	RecordRollover()
	SetDeliveredToday(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	cycles             *prometheus.CounterVec
	cycleDuration      prometheus.Histogram
	cyclesSkipped      prometheus.Counter
	entriesFetched     prometheus.Counter
	delivered          prometheus.Counter
	enrichFailures     prometheus.Counter
	dispatchFailures   prometheus.Counter
	persistenceFailure *prometheus.CounterVec
	rollovers          prometheus.Counter
	deliveredToday     prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dailyrelay_cycles_total",
			Help: "結果別のポーリングサイクル数",
		}, []string{"result"}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dailyrelay_cycle_duration_seconds",
			Help:    "ポーリングサイクルの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		cyclesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dailyrelay_cycles_skipped_total",
			Help: "前回のサイクルが実行中のためスキップされたサイクル数",
		}),
		entriesFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dailyrelay_entries_fetched_total",
			Help: "フィードから取得したエントリの合計数",
		}),
		delivered: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dailyrelay_delivered_total",
			Help: "配信に成功した記事の合計数",
		}),
		enrichFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dailyrelay_enrich_failures_total",
			Help: "本文取得に失敗した記事の合計数",
		}),
		dispatchFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dailyrelay_dispatch_failures_total",
			Help: "配信に失敗した記事の合計数",
		}),
		persistenceFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dailyrelay_persistence_failures_total",
			Help: "操作別の配信状態の永続化失敗数",
		}, []string{"op"}),
		rollovers: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dailyrelay_day_rollovers_total",
			Help: "日付の切り替わりで配信済みセットをリセットした回数",
		}),
		deliveredToday: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dailyrelay_delivered_today",
			Help: "当日の配信済み記事数",
		}),
	}

	reg.MustRegister(
		c.cycles,
		c.cycleDuration,
		c.cyclesSkipped,
		c.entriesFetched,
		c.delivered,
		c.enrichFailures,
		c.dispatchFailures,
		c.persistenceFailure,
		c.rollovers,
		c.deliveredToday,
	)

	return c
}

// RecordCycle はサイクルの完了を結果と所要時間とともに記録する。
func (c *Collector) RecordCycle(result string, duration time.Duration) {
	c.cycles.WithLabelValues(result).Inc()
	c.cycleDuration.Observe(duration.Seconds())
}

// RecordCycleSkipped はスキップされたサイクルを記録する。
func (c *Collector) RecordCycleSkipped() {
	c.cyclesSkipped.Inc()
}

// RecordEntriesFetched は取得したエントリ数を記録する。
func (c *Collector) RecordEntriesFetched(count int) {
	c.entriesFetched.Add(float64(count))
}

// RecordDelivered は配信成功を記録する。
func (c *Collector) RecordDelivered() {
	c.delivered.Inc()
}

// RecordEnrichFailure は本文取得失敗を記録する。
func (c *Collector) RecordEnrichFailure() {
	c.enrichFailures.Inc()
}

// RecordDispatchFailure は配信失敗を記録する。
func (c *Collector) RecordDispatchFailure() {
	c.dispatchFailures.Inc()
}

// RecordPersistenceFailure は永続化失敗を記録する。opはput/delete/getのいずれか。
func (c *Collector) RecordPersistenceFailure(op string) {
	c.persistenceFailure.WithLabelValues(op).Inc()
}

// RecordRollover は日付の切り替わりを記録する。
func (c *Collector) RecordRollover() {
	c.rollovers.Inc()
}

// SetDeliveredToday は当日の配信済み記事数を設定する。
func (c *Collector) SetDeliveredToday(count int) {
	c.deliveredToday.Set(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
