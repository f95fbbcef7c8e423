// Package task defines the shared data types passed between callers, the
// agent registry, and the orchestrator: tasks, capabilities, and results.
package task

import (
	"time"

	"github.com/google/uuid"
)

// Capability is a tag describing a kind of work an agent can perform.
// Tasks declare one required capability; agents declare a set.
type Capability string

// Capabilities recognized for task routing.
const (
	CapCodeGeneration Capability = "code_generation"
	CapCodeReview     Capability = "code_review"
	CapArchitecture   Capability = "architecture"
	CapSecurity       Capability = "security"
	CapFrontend       Capability = "frontend"
	CapBackend        Capability = "backend"
	CapDevOps         Capability = "devops"
	CapTesting        Capability = "testing"
	CapDocumentation  Capability = "documentation"

	// Specialized capabilities.
	CapMultimodal     Capability = "multimodal"      // Images, audio, video
	CapLongContext    Capability = "long_context"    // Large codebases
	CapRealTime       Capability = "real_time"       // Live collaboration
	CapCodeCompletion Capability = "code_completion" // IDE integration
)

// KnownCapabilities lists every capability the router understands.
// Config validation rejects descriptors that declare anything else.
//
//nolint:gochecknoglobals // Static registry of valid tags
var KnownCapabilities = map[Capability]bool{
	CapCodeGeneration: true,
	CapCodeReview:     true,
	CapArchitecture:   true,
	CapSecurity:       true,
	CapFrontend:       true,
	CapBackend:        true,
	CapDevOps:         true,
	CapTesting:        true,
	CapDocumentation:  true,
	CapMultimodal:     true,
	CapLongContext:    true,
	CapRealTime:       true,
	CapCodeCompletion: true,
}

// Type categorizes a task for logging and metrics. It does not affect
// routing; routing is driven by RequiredCapability alone.
type Type string

// Task types.
const (
	TypeCodeGeneration     Type = "code_generation"
	TypeCodeReview         Type = "code_review"
	TypeArchitectureDesign Type = "architecture_design"
	TypeSecurityAudit      Type = "security_audit"
	TypeDocumentation      Type = "documentation"
	TypeMultimodalAnalysis Type = "multimodal_analysis"
	TypeRealTimeCollab     Type = "real_time_collaboration"
)

// Well-known context keys. Context is otherwise opaque to the engine.
const (
	// CtxSystem carries a system-level instruction for the backend.
	CtxSystem = "system"
	// CtxTemperature overrides the agent's default sampling temperature.
	CtxTemperature = "temperature"
	// CtxMaxTokens overrides the agent's default output token budget.
	CtxMaxTokens = "max_tokens"
	// CtxMedia carries attached media references for multimodal tasks.
	CtxMedia = "media"
	// CtxTimeout overrides the per-call timeout for this task.
	CtxTimeout = "timeout"
	// CtxPipeline is the reserved key under which the orchestrator injects
	// upstream stage output during pipeline execution. Callers must not set
	// it themselves.
	CtxPipeline = "pipeline_context"
)

// Task is one unit of work submitted to the orchestrator. Treat as
// immutable once submitted: the orchestrator copies Context before
// injecting pipeline state rather than mutating the caller's map.
type Task struct {
	Type               Type
	Description        string
	RequiredCapability Capability
	Context            map[string]any
}

// StageOutput records one completed pipeline stage for downstream stages.
type StageOutput struct {
	TaskType Type   `json:"task_type"`
	Content  string `json:"content"`
	AgentID  string `json:"agent"`
}

// Response is one backend's answer within a task execution. For parallel
// execution every participating agent contributes one Response, failed
// calls included.
type Response struct {
	AgentID       string
	Content       string
	TokensUsed    int
	Latency       time.Duration
	Err           error // nil for successful calls
}

// Result is the outcome of one orchestrator invocation. Created once per
// call and never mutated after return.
type Result struct {
	ID            string
	Success       bool
	AgentID       string     // producing agent ("best", "fallback") or representative agent ("parallel")
	AgentIDs      []string   // all participating agents for multi-agent strategies
	Content       string
	TokensUsed    int
	AllResponses  []Response // populated only by the parallel strategy
	ExecutionTime time.Duration
	Err           error // populated iff Success is false
}

// NewResult creates a result shell with a fresh invocation ID.
func NewResult() Result {
	return Result{ID: uuid.New().String()}
}

// System returns the system instruction from the task context, if any.
func (t *Task) System() string {
	s, _ := t.Context[CtxSystem].(string)
	return s
}

// Temperature returns the temperature override and whether one was set.
func (t *Task) Temperature() (float32, bool) {
	switch v := t.Context[CtxTemperature].(type) {
	case float32:
		return v, true
	case float64:
		return float32(v), true
	case int:
		return float32(v), true
	}
	return 0, false
}

// MaxTokens returns the output token budget override and whether one was set.
func (t *Task) MaxTokens() (int, bool) {
	switch v := t.Context[CtxMaxTokens].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

// Media returns attached media references for multimodal tasks.
func (t *Task) Media() []string {
	switch v := t.Context[CtxMedia].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, m := range v {
			if s, ok := m.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// Timeout returns the per-call timeout override and whether one was set.
func (t *Task) Timeout() (time.Duration, bool) {
	switch v := t.Context[CtxTimeout].(type) {
	case time.Duration:
		return v, true
	case string:
		d, err := time.ParseDuration(v)
		if err == nil {
			return d, true
		}
	case int:
		return time.Duration(v) * time.Second, true
	}
	return 0, false
}

// CloneContext returns a shallow copy of the task context, never nil.
// The orchestrator uses it to inject pipeline state without mutating the
// submitted task.
func (t *Task) CloneContext() map[string]any {
	out := make(map[string]any, len(t.Context)+1)
	for k, v := range t.Context {
		out[k] = v
	}
	return out
}
