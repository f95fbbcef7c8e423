package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusRecorder implements Recorder using Prometheus collectors.
// Construct at most once per process (collectors register globally).
type PrometheusRecorder struct {
	callsTotal    *prometheus.CounterVec
	tokensTotal   *prometheus.CounterVec
	callDuration  *prometheus.HistogramVec
	agentHealthy  *prometheus.GaugeVec
	agentErrRate  *prometheus.GaugeVec
	healthyAgents prometheus.Gauge
}

// NewPrometheusRecorder creates a Prometheus-backed metrics recorder.
func NewPrometheusRecorder() *PrometheusRecorder {
	return &PrometheusRecorder{
		callsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_calls_total",
				Help: "Total backend calls by agent, model, status, and error kind",
			},
			[]string{"agent_id", "model", "status", "error_kind"},
		),
		tokensTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "backend_tokens_total",
				Help: "Total tokens used in backend calls",
			},
			[]string{"agent_id", "model", "type"},
		),
		callDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "backend_call_duration_seconds",
				Help:    "Duration of backend calls in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent_id", "model"},
		),
		agentHealthy: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agent_healthy",
				Help: "Whether an agent is currently considered healthy (1) or not (0)",
			},
			[]string{"agent_id"},
		),
		agentErrRate: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "agent_error_rate",
				Help: "Cumulative error rate per agent",
			},
			[]string{"agent_id"},
		),
		healthyAgents: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "healthy_agents",
				Help: "Number of agents currently passing the health check",
			},
		),
	}
}

// ObserveCall records one completed backend call.
func (p *PrometheusRecorder) ObserveCall(agentID, model, status, errorKind string, promptTokens, completionTokens int, duration time.Duration) {
	p.callsTotal.WithLabelValues(agentID, model, status, errorKind).Inc()
	if status == "success" {
		p.tokensTotal.WithLabelValues(agentID, model, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(agentID, model, "completion").Add(float64(completionTokens))
	}
	p.callDuration.WithLabelValues(agentID, model).Observe(duration.Seconds())
}

// SetAgentHealth records an agent's health verdict and error rate.
func (p *PrometheusRecorder) SetAgentHealth(agentID string, healthy bool, errorRate float64) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	p.agentHealthy.WithLabelValues(agentID).Set(v)
	p.agentErrRate.WithLabelValues(agentID).Set(errorRate)
}

// SetHealthyAgents records the healthy agent count.
func (p *PrometheusRecorder) SetHealthyAgents(n int) {
	p.healthyAgents.Set(float64(n))
}
