package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/tsbuk33/aqlhr-ai-gateway/internal/domain"
)

type Metrics struct {
	// Latency: сколько времени заняла обработка (включая провайдеров)
	RequestDuration *prometheus.HistogramVec

	// Traffic: общее кол-во запросов
	TotalRequests *prometheus.CounterVec

	// Errors: классификация отказов
	ErrorTotal *prometheus.CounterVec

	// Маршрутизация: какое правило сработало
	RoutingDecisions *prometheus.CounterVec

	ProviderCalls   *prometheus.CounterVec
	ProviderLatency *prometheus.HistogramVec

	// Saturation: состояние Circuit Breaker (0 - ок, 1 - выбило)
	CircuitBreakerState *prometheus.GaugeVec
}

// NewMetrics: auditPending (может быть nil) - заполненность буфера журнала (backpressure)
func NewMetrics(reg prometheus.Registerer, auditPending func() int) *Metrics {
	// Null Object Pattern - если рег не передан, используем локальный, который никуда не подключен
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	m := &Metrics{
		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aqlhr_gateway_request_duration_seconds",
			Help:    "Histogram of request latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"route", "status"}),

		TotalRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aqlhr_gateway_requests_total",
			Help: "Total number of processed requests.",
		}, []string{"route"}),

		ErrorTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aqlhr_gateway_errors_total",
			Help: "Total number of errors by kind.",
		}, []string{"kind"}), // authentication, rate_limit_exceeded, no_provider_available, infrastructure ...

		RoutingDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aqlhr_gateway_routing_decisions_total",
			Help: "Provider selections by rule.",
		}, []string{"provider", "rule"}),

		ProviderCalls: f.NewCounterVec(prometheus.CounterOpts{
			Name: "aqlhr_gateway_provider_calls_total",
			Help: "Provider calls by outcome.",
		}, []string{"provider", "outcome"}),

		ProviderLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aqlhr_gateway_provider_latency_seconds",
			Help:    "Provider call latency.",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 20, 30},
		}, []string{"provider"}),

		CircuitBreakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "aqlhr_gateway_circuit_breaker_state",
			Help: "Current state of the circuit breaker (0=closed, 1=open).",
		}, []string{"provider"}),
	}

	if auditPending != nil {
		f.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "aqlhr_gateway_audit_buffer_utilization",
			Help: "Current number of records in audit buffer.",
		}, func() float64 { return float64(auditPending()) })
	}

	return m
}

// ObserveProvider подходит как provider.Observer
func (m *Metrics) ObserveProvider(p domain.ProviderID, success bool, latency time.Duration) {
	outcome := "success"
	if !success {
		outcome = "failure"
	}
	m.ProviderCalls.WithLabelValues(string(p), outcome).Inc()
	m.ProviderLatency.WithLabelValues(string(p)).Observe(latency.Seconds())
}

// SetBreaker подходит как provider.BreakerObserver
func (m *Metrics) SetBreaker(provider string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.CircuitBreakerState.WithLabelValues(provider).Set(v)
}
