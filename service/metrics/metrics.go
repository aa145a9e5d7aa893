// Package metrics 提供对话引擎的 Prometheus 指标
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "assistant"

type Metrics struct {
	// 每次上游请求计一轮
	RoundsTotal prometheus.Counter

	UpstreamErrorsTotal prometheus.Counter

	// outcome: ok, error, unknown_tool, rejected
	ToolExecutionsTotal *prometheus.CounterVec

	// decision: approved, rejected
	ConfirmationsTotal *prometheus.CounterVec

	// outcome: done, paused, error
	TurnsTotal *prometheus.CounterVec

	ActiveTurns prometheus.Gauge
}

// New 创建指标并注册到 reg，reg 为 nil 时不注册
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RoundsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_total",
			Help:      "Total number of upstream completion rounds",
		}),
		UpstreamErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_errors_total",
			Help:      "Total number of failed upstream completion rounds",
		}),
		ToolExecutionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tool_executions_total",
			Help:      "Total number of tool results produced",
		}, []string{"tool", "outcome"}),
		ConfirmationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "confirmations_total",
			Help:      "Total number of resolved tool confirmations",
		}, []string{"tool", "decision"}),
		TurnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of finished turns by terminal outcome",
		}, []string{"outcome"}),
		ActiveTurns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_turns",
			Help:      "Number of turns currently streaming",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.RoundsTotal,
			m.UpstreamErrorsTotal,
			m.ToolExecutionsTotal,
			m.ConfirmationsTotal,
			m.TurnsTotal,
			m.ActiveTurns,
		)
	}
	return m
}

// 以下方法允许 nil 接收者，未配置指标时调用方无需判断

func (m *Metrics) ObserveRound() {
	if m == nil {
		return
	}
	m.RoundsTotal.Inc()
}

func (m *Metrics) ObserveUpstreamError() {
	if m == nil {
		return
	}
	m.UpstreamErrorsTotal.Inc()
}

func (m *Metrics) ObserveTool(tool, outcome string) {
	if m == nil {
		return
	}
	m.ToolExecutionsTotal.WithLabelValues(tool, outcome).Inc()
}

func (m *Metrics) ObserveConfirmation(tool, decision string) {
	if m == nil {
		return
	}
	m.ConfirmationsTotal.WithLabelValues(tool, decision).Inc()
}

func (m *Metrics) ObserveTurn(outcome string) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) TurnStarted() {
	if m == nil {
		return
	}
	m.ActiveTurns.Inc()
}

func (m *Metrics) TurnFinished() {
	if m == nil {
		return
	}
	m.ActiveTurns.Dec()
}
