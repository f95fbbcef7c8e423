package orchestrator

import (
	"fmt"
	"strings"

	"conductor/pkg/provider/providererr"
	"conductor/pkg/task"
)

// NoAgentAvailableError is returned when no enabled, healthy agent
// declares the task's required capability.
type NoAgentAvailableError struct {
	Capability task.Capability
}

func (e *NoAgentAvailableError) Error() string {
	return fmt.Sprintf("no agent available for capability %q", e.Capability)
}

// CallFailedError wraps one agent's failed backend call.
type CallFailedError struct {
	AgentID string
	Err     error
}

func (e *CallFailedError) Error() string {
	return fmt.Sprintf("agent %s: call failed: %v", e.AgentID, e.Err)
}

func (e *CallFailedError) Unwrap() error {
	return e.Err
}

// Transient reports whether retrying against a different agent could
// still succeed. Permanent failures (bad credentials, malformed request)
// are permanent only for the agent that produced them, so the fallback
// strategy advances past them either way; callers use this to decide
// whether resubmitting the same task later is worthwhile.
func (e *CallFailedError) Transient() bool {
	return !providererr.IsPermanent(e.Err)
}

// Attempt records one failed try within a multi-agent strategy.
type Attempt struct {
	AgentID string
	Err     error
}

// AllAttemptsFailedError is returned when every attempted agent failed:
// by the fallback strategy after exhausting its attempt budget, and by
// the parallel strategy when no participant succeeded.
type AllAttemptsFailedError struct {
	Capability task.Capability
	Attempts   []Attempt
}

func (e *AllAttemptsFailedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "all %d attempts failed for capability %q", len(e.Attempts), e.Capability)
	for _, a := range e.Attempts {
		fmt.Fprintf(&b, "; %s: %v", a.AgentID, a.Err)
	}
	return b.String()
}

// PipelineStageFailedError reports which pipeline stage broke the chain.
// The per-stage results, the failed stage's included, are returned
// alongside, not inside, this error.
type PipelineStageFailedError struct {
	Stage    int // zero-based stage index
	TaskType task.Type
	Err      error
}

func (e *PipelineStageFailedError) Error() string {
	return fmt.Sprintf("pipeline stage %d (%s) failed: %v", e.Stage, e.TaskType, e.Err)
}

func (e *PipelineStageFailedError) Unwrap() error {
	return e.Err
}
