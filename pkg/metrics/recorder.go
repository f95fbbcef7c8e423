// Package metrics records backend call and agent health metrics.
package metrics

import "time"

// Recorder receives call outcomes and health state for observability.
// The registry and the provider metrics middleware both report through it.
type Recorder interface {
	// ObserveCall records one completed backend call.
	ObserveCall(agentID, model, status, errorKind string, promptTokens, completionTokens int, duration time.Duration)

	// SetAgentHealth records an agent's current health verdict and error rate.
	SetAgentHealth(agentID string, healthy bool, errorRate float64)

	// SetHealthyAgents records the current number of healthy agents.
	SetHealthyAgents(n int)
}

// NoopRecorder discards all metrics, for tests and metric-less deployments.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder.
func Nop() Recorder {
	return &NoopRecorder{}
}

func (n *NoopRecorder) ObserveCall(_, _, _, _ string, _, _ int, _ time.Duration) {}

func (n *NoopRecorder) SetAgentHealth(_ string, _ bool, _ float64) {}

func (n *NoopRecorder) SetHealthyAgents(_ int) {}
