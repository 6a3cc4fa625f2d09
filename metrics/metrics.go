// Package metrics exposes the process-wide prometheus registry and the
// gauges/counters/histograms the workflow engine, backtest core, live
// engine, and broker adapters report into.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Registry is the custom prometheus registry for tradeforge metrics
	Registry = prometheus.NewRegistry()

	// ============================================
	// Workflow Engine Metrics
	// ============================================

	// WorkflowSessionsTotal counts workflow sessions by terminal outcome
	WorkflowSessionsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradeforge",
			Subsystem: "workflow",
			Name:      "sessions_total",
			Help:      "Total workflow sessions by outcome",
		},
		[]string{"outcome"}, // outcome: "complete", "error"
	)

	// WorkflowIterationsTotal counts iterations executed across all sessions
	WorkflowIterationsTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: "tradeforge",
			Subsystem: "workflow",
			Name:      "iterations_total",
			Help:      "Total workflow iterations executed",
		},
	)

	// WorkflowActiveSessions tracks currently running sessions
	WorkflowActiveSessions = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tradeforge",
			Subsystem: "workflow",
			Name:      "active_sessions",
			Help:      "Number of currently running workflow sessions",
		},
	)

	// ============================================
	// Backtest Core Metrics
	// ============================================

	// BacktestDuration tracks backtest run duration as histogram
	BacktestDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "tradeforge",
			Subsystem: "backtest",
			Name:      "duration_seconds",
			Help:      "Backtest run duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
	)

	// BacktestRunsTotal counts backtest runs by result
	BacktestRunsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradeforge",
			Subsystem: "backtest",
			Name:      "runs_total",
			Help:      "Total backtest runs",
		},
		[]string{"result"}, // result: "ok", "error"
	)

	// ============================================
	// Live Trading Engine Metrics
	// ============================================

	// LiveActiveDeployments tracks the in-memory active deployment set size
	LiveActiveDeployments = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: "tradeforge",
			Subsystem: "live",
			Name:      "active_deployments",
			Help:      "Number of deployments in the active execution set",
		},
	)

	// LiveTicksTotal counts per-deployment ticks by result
	LiveTicksTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradeforge",
			Subsystem: "live",
			Name:      "ticks_total",
			Help:      "Total deployment ticks executed",
		},
		[]string{"deployment_id", "result"}, // result: "ok", "skipped", "error"
	)

	// LiveTickDuration tracks tick duration as histogram
	LiveTickDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tradeforge",
			Subsystem: "live",
			Name:      "tick_duration_seconds",
			Help:      "Deployment tick duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"deployment_id"},
	)

	// LivePortfolioValue tracks each deployment's virtual portfolio value
	LivePortfolioValue = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tradeforge",
			Subsystem: "live",
			Name:      "portfolio_value",
			Help:      "Virtual portfolio value per deployment in USD",
		},
		[]string{"deployment_id"},
	)

	// LiveRealizedPnL tracks each deployment's realized P&L
	LiveRealizedPnL = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "tradeforge",
			Subsystem: "live",
			Name:      "realized_pnl",
			Help:      "Realized P&L per deployment in USD",
		},
		[]string{"deployment_id"},
	)

	// ============================================
	// Broker Metrics
	// ============================================

	// BrokerOrdersTotal counts orders submitted by side and status
	BrokerOrdersTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradeforge",
			Subsystem: "broker",
			Name:      "orders_total",
			Help:      "Total orders submitted to the broker",
		},
		[]string{"side", "status"},
	)

	// BrokerErrorsTotal counts broker call errors
	BrokerErrorsTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: "tradeforge",
			Subsystem: "broker",
			Name:      "errors_total",
			Help:      "Total broker call errors",
		},
	)

	// ============================================
	// LLM / Agent Metrics
	// ============================================

	// AIRequestDuration tracks LLM request latency as histogram
	AIRequestDuration = promauto.With(Registry).NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "tradeforge",
			Subsystem: "ai",
			Name:      "request_duration_seconds",
			Help:      "LLM request duration in seconds",
			Buckets:   []float64{1, 2, 5, 10, 20, 30, 45, 60},
		},
		[]string{"model"},
	)

	// AICallsTotal tracks total LLM calls per model
	AICallsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradeforge",
			Subsystem: "ai",
			Name:      "calls_total",
			Help:      "Total number of LLM calls",
		},
		[]string{"model"},
	)

	// AIErrorsTotal tracks LLM call errors per model
	AIErrorsTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "tradeforge",
			Subsystem: "ai",
			Name:      "errors_total",
			Help:      "Total LLM call errors",
		},
		[]string{"model"},
	)
)

// RecordAICall records one LLM call with its duration.
func RecordAICall(model string, duration time.Duration, hasError bool) {
	AIRequestDuration.WithLabelValues(model).Observe(duration.Seconds())
	AICallsTotal.WithLabelValues(model).Inc()
	if hasError {
		AIErrorsTotal.WithLabelValues(model).Inc()
	}
}

// RecordTick records one deployment tick with its duration.
func RecordTick(deploymentID, result string, durationSeconds float64) {
	LiveTicksTotal.WithLabelValues(deploymentID, result).Inc()
	if result != "skipped" {
		LiveTickDuration.WithLabelValues(deploymentID).Observe(durationSeconds)
	}
}

// UpdateDeploymentMetrics updates the per-deployment gauges after a tick.
func UpdateDeploymentMetrics(deploymentID string, portfolioValue, realizedPnL float64) {
	LivePortfolioValue.WithLabelValues(deploymentID).Set(portfolioValue)
	LiveRealizedPnL.WithLabelValues(deploymentID).Set(realizedPnL)
}

// ClearDeploymentMetrics removes gauges for a stopped deployment.
func ClearDeploymentMetrics(deploymentID string) {
	LivePortfolioValue.DeleteLabelValues(deploymentID)
	LiveRealizedPnL.DeleteLabelValues(deploymentID)
}

// Init registers the default prometheus collectors
func Init() {
	Registry.MustRegister(prometheus.NewGoCollector())
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
}
