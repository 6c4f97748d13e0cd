package observability

import (
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	settlementMetricsOnce sync.Once
	settlementRegistry    *SettlementMetrics

	ledgerMetricsOnce sync.Once
	ledgerRegistry    *LedgerMetrics
)

// ModuleMetrics returns the lazily-initialised module metrics registry used to
// record RPC module activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "premarket",
				Subsystem: "module",
				Name:      "requests_total",
				Help:      "Total JSON-RPC module requests segmented by module and method.",
			}, []string{"module", "method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "premarket",
				Subsystem: "module",
				Name:      "errors_total",
				Help:      "Total JSON-RPC module errors segmented by module, method, and status code.",
			}, []string{"module", "method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "premarket",
				Subsystem: "module",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC module handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"module", "method"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of a module request. The status code should be
// the HTTP status that was ultimately written to the response writer.
func (m *moduleMetrics) Observe(module, method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	if module == "" {
		module = "unknown"
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if status >= 400 {
		outcome = "error"
	}
	m.requests.WithLabelValues(module, method, outcome).Inc()
	if status >= 400 {
		m.errors.WithLabelValues(module, method, fmt.Sprintf("%d", status)).Inc()
	}
	m.latency.WithLabelValues(module, method).Observe(duration.Seconds())
}

// SettlementMetrics wraps collectors tracking the delivery engine.
type SettlementMetrics struct {
	settlements   *prometheus.CounterVec
	settledPoints *prometheus.CounterVec
	errors        *prometheus.CounterVec
}

// Settlement exposes the metrics registry for settlement-phase operations.
func Settlement() *SettlementMetrics {
	settlementMetricsOnce.Do(func() {
		settlementRegistry = &SettlementMetrics{
			settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "premarket",
				Subsystem: "settlement",
				Name:      "operations_total",
				Help:      "Count of settlement operations segmented by operation and outcome.",
			}, []string{"operation", "outcome"}),
			settledPoints: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "premarket",
				Subsystem: "settlement",
				Name:      "settled_points_total",
				Help:      "Total points settled per marketplace.",
			}, []string{"marketplace"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "premarket",
				Subsystem: "settlement",
				Name:      "errors_total",
				Help:      "Count of settlement failures segmented by operation and reason.",
			}, []string{"operation", "reason"}),
		}
		prometheus.MustRegister(
			settlementRegistry.settlements,
			settlementRegistry.settledPoints,
			settlementRegistry.errors,
		)
	})
	return settlementRegistry
}

// Observe records the outcome of a settlement operation.
func (m *SettlementMetrics) Observe(operation string, err error) {
	if m == nil {
		return
	}
	op := strings.TrimSpace(operation)
	if op == "" {
		op = "unknown"
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		reason := strings.TrimSpace(err.Error())
		if reason == "" {
			reason = "unknown"
		}
		m.errors.WithLabelValues(op, reason).Inc()
	}
	m.settlements.WithLabelValues(op, outcome).Inc()
}

// RecordSettledPoints adds the settled point volume for a marketplace.
func (m *SettlementMetrics) RecordSettledPoints(marketplace string, points *big.Int) {
	if m == nil {
		return
	}
	label := strings.TrimSpace(marketplace)
	if label == "" {
		label = "unknown"
	}
	m.settledPoints.WithLabelValues(label).Add(bigToFloat(points))
}

// LedgerMetrics bundles collectors for custody flows.
type LedgerMetrics struct {
	tillVolume     *prometheus.CounterVec
	withdrawVolume *prometheus.CounterVec
	vaultBalance   *prometheus.GaugeVec
}

// Ledger exposes the metrics registry for the custodial ledger.
func Ledger() *LedgerMetrics {
	ledgerMetricsOnce.Do(func() {
		ledgerRegistry = &LedgerMetrics{
			tillVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "premarket",
				Subsystem: "ledger",
				Name:      "till_volume_total",
				Help:      "Total value pulled into custody per token.",
			}, []string{"token"}),
			withdrawVolume: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "premarket",
				Subsystem: "ledger",
				Name:      "withdraw_volume_total",
				Help:      "Total value withdrawn from claimable buckets per token and category.",
			}, []string{"token", "category"}),
			vaultBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "premarket",
				Subsystem: "ledger",
				Name:      "vault_balance",
				Help:      "Current custody balance per token in integer units.",
			}, []string{"token"}),
		}
		prometheus.MustRegister(
			ledgerRegistry.tillVolume,
			ledgerRegistry.withdrawVolume,
			ledgerRegistry.vaultBalance,
		)
	})
	return ledgerRegistry
}

// RecordTillIn adds inbound custody volume for a token.
func (m *LedgerMetrics) RecordTillIn(token string, amount *big.Int) {
	if m == nil {
		return
	}
	m.tillVolume.WithLabelValues(labelToken(token)).Add(bigToFloat(amount))
}

// RecordWithdraw adds outbound claim volume for a token and category.
func (m *LedgerMetrics) RecordWithdraw(token, category string, amount *big.Int) {
	if m == nil {
		return
	}
	if category = strings.TrimSpace(category); category == "" {
		category = "unspecified"
	}
	m.withdrawVolume.WithLabelValues(labelToken(token), category).Add(bigToFloat(amount))
}

// SetVaultBalance updates the custody gauge for a token.
func (m *LedgerMetrics) SetVaultBalance(token string, balance *big.Int) {
	if m == nil {
		return
	}
	m.vaultBalance.WithLabelValues(labelToken(token)).Set(bigToFloat(balance))
}

func labelToken(token string) string {
	trimmed := strings.TrimSpace(token)
	if trimmed == "" {
		return "unknown"
	}
	return strings.ToLower(trimmed)
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	floatVal, acc := new(big.Float).SetInt(value).Float64()
	if acc != big.Exact {
		// Guard against NaN/Inf when conversion fails.
		if math.IsNaN(floatVal) || math.IsInf(floatVal, 0) {
			return 0
		}
	}
	return floatVal
}
