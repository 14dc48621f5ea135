// Package metrics holds Prometheus collectors for rate updates and trades.
// All methods are safe on a nil *Metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopspring/decimal"
)

const namespace = "valutatrade"

type Metrics struct {
	// fetches per source, status is "ok" or "error"
	SourceFetchTotal    *prometheus.CounterVec
	SourceFetchDuration *prometheus.HistogramVec

	RatesUpdatedTotal prometheus.Counter
	LastRefresh       prometheus.Gauge
	CachedPairs       prometheus.Gauge

	// trades by side, status is "applied" or "rejected"
	TradesTotal *prometheus.CounterVec
	TradeAmount *prometheus.CounterVec
}

// New registers collectors on reg. Passing a fresh prometheus.NewRegistry()
// keeps tests isolated from the default registry.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)

	return &Metrics{
		SourceFetchTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_source_fetch_total",
			Help:      "Rate source fetches by source and outcome",
		}, []string{"source", "status"}),
		SourceFetchDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rate_source_fetch_duration_seconds",
			Help:      "Rate source fetch latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source"}),
		RatesUpdatedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rates_updated_total",
			Help:      "Rate records applied to the cache",
		}),
		LastRefresh: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rates_last_refresh_timestamp_seconds",
			Help:      "Unix time of the last successful rate update",
		}),
		CachedPairs: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rates_cached_pairs",
			Help:      "Number of pairs in the rate cache",
		}),
		TradesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trades_total",
			Help:      "Buy and sell operations by outcome",
		}, []string{"side", "status"}),
		TradeAmount: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trade_amount_total",
			Help:      "Traded amount by side and currency",
		}, []string{"side", "currency"}),
	}
}

// ObserveFetch records one source fetch.
func (m *Metrics) ObserveFetch(source string, took time.Duration, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.SourceFetchTotal.WithLabelValues(source, status).Inc()
	m.SourceFetchDuration.WithLabelValues(source).Observe(took.Seconds())
}

// ObserveUpdate records a committed rate update.
func (m *Metrics) ObserveUpdate(applied, cached int, at time.Time) {
	if m == nil {
		return
	}
	m.RatesUpdatedTotal.Add(float64(applied))
	m.CachedPairs.Set(float64(cached))
	m.LastRefresh.Set(float64(at.Unix()))
}

// ObserveTrade records a trade outcome.
func (m *Metrics) ObserveTrade(side, currency string, amount decimal.Decimal, applied bool) {
	if m == nil {
		return
	}
	status := "rejected"
	if applied {
		status = "applied"
		m.TradeAmount.WithLabelValues(side, currency).Add(amount.InexactFloat64())
	}
	m.TradesTotal.WithLabelValues(side, status).Inc()
}
