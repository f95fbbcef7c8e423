// Package registry owns the set of registered agents and their health
// records. It answers capability queries in deterministic priority order,
// excluding agents whose cumulative error rate has crossed the health
// threshold. Health is advisory exclusion, not removal: an unhealthy agent
// stays registered and becomes eligible again once its error rate recovers.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"conductor/pkg/logx"
	"conductor/pkg/metrics"
	"conductor/pkg/task"
)

// UnhealthyErrorRate is the exclusive threshold above which an agent is
// excluded from candidate selection. An agent with no recorded calls is
// healthy by definition.
const UnhealthyErrorRate = 0.5

// Registration policy errors.
var (
	// ErrDuplicateAgent is returned by Register when the id is taken.
	ErrDuplicateAgent = errors.New("agent already registered")
	// ErrUnknownAgent is returned for operations on unregistered ids.
	ErrUnknownAgent = errors.New("agent not registered")
)

// Descriptor is the static configuration of one backend agent. Immutable
// after registration; the registry hands out copies, never its own value.
//
//nolint:govet // fieldalignment: logical grouping preferred
type Descriptor struct {
	ID           string
	Provider     string
	Model        string
	Priority     int // higher = preferred
	Enabled      bool
	Capabilities map[task.Capability]bool
	Temperature  float32
	MaxTokens    int
}

// HasCapability reports whether the descriptor declares cap.
func (d *Descriptor) HasCapability(cap task.Capability) bool {
	return d.Capabilities[cap]
}

// health is the mutable per-agent record. Counters only grow within a
// process lifetime; they reset on re-registration or restart.
type health struct {
	successCount uint64
	failureCount uint64
	totalLatency time.Duration
	lastLatency  time.Duration
	lastChecked  time.Time
}

func (h *health) calls() uint64 {
	return h.successCount + h.failureCount
}

// errorRate returns the cumulative failure ratio, 0 with no calls recorded.
func (h *health) errorRate() float64 {
	total := h.calls()
	if total == 0 {
		return 0
	}
	return float64(h.failureCount) / float64(total)
}

func (h *health) avgLatency() time.Duration {
	total := h.calls()
	if total == 0 {
		return 0
	}
	return h.totalLatency / time.Duration(total)
}

type entry struct {
	desc   Descriptor
	health health
	seq    int // registration order, stable tie-break key
}

func (e *entry) healthy() bool {
	return e.desc.Enabled && e.health.errorRate() <= UnhealthyErrorRate
}

// Registry is the single owner of agent descriptors and health records.
// Safe for concurrent use; all health mutation funnels through
// RecordOutcome under one lock so reads never observe a torn record.
type Registry struct {
	mu       sync.RWMutex
	agents   map[string]*entry
	nextSeq  int
	logger   *logx.Logger
	recorder metrics.Recorder
}

// Option configures a Registry.
type Option func(*Registry)

// WithRecorder wires a metrics recorder. Defaults to the no-op recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(reg *Registry) {
		reg.recorder = r
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		agents:   make(map[string]*entry),
		logger:   logx.NewLogger("registry"),
		recorder: metrics.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a new agent and initializes its health record. Fails with
// ErrDuplicateAgent when the id is taken; use Replace to overwrite.
func (r *Registry) Register(desc Descriptor) error {
	return r.add(desc, false)
}

// Replace registers an agent, overwriting any existing descriptor with the
// same id. The health record is re-initialized, and the original
// registration position is kept so candidate ordering stays stable.
func (r *Registry) Replace(desc Descriptor) error {
	return r.add(desc, true)
}

func (r *Registry) add(desc Descriptor, replace bool) error {
	if desc.ID == "" {
		return fmt.Errorf("register: descriptor has no id")
	}
	if len(desc.Capabilities) == 0 {
		return fmt.Errorf("register %s: descriptor declares no capabilities", desc.ID)
	}

	// Copy the capability set so callers cannot mutate registry state.
	caps := make(map[task.Capability]bool, len(desc.Capabilities))
	for c, ok := range desc.Capabilities {
		if ok {
			caps[c] = true
		}
	}
	desc.Capabilities = caps

	r.mu.Lock()
	defer r.mu.Unlock()

	seq := r.nextSeq
	if existing, ok := r.agents[desc.ID]; ok {
		if !replace {
			return fmt.Errorf("register %s: %w", desc.ID, ErrDuplicateAgent)
		}
		seq = existing.seq
	} else {
		r.nextSeq++
	}

	r.agents[desc.ID] = &entry{desc: desc, seq: seq}
	r.logger.Info("Registered agent %s (provider=%s model=%s priority=%d)",
		desc.ID, desc.Provider, desc.Model, desc.Priority)
	r.publishHealthLocked()
	return nil
}

// Deregister removes an agent and its health record.
func (r *Registry) Deregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.agents[id]; !ok {
		return fmt.Errorf("deregister %s: %w", id, ErrUnknownAgent)
	}
	delete(r.agents, id)
	r.logger.Info("Deregistered agent %s", id)
	r.publishHealthLocked()
	return nil
}

// SetEnabled flips the operator override on a registered agent.
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("enable %s: %w", id, ErrUnknownAgent)
	}
	e.desc.Enabled = enabled
	r.publishHealthLocked()
	return nil
}

// Get returns a copy of the descriptor for id.
func (r *Registry) Get(id string) (Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.agents[id]
	if !ok {
		return Descriptor{}, fmt.Errorf("get %s: %w", id, ErrUnknownAgent)
	}
	return e.desc, nil
}

// CandidatesFor returns every enabled, healthy agent declaring cap,
// ordered by priority descending, then error rate ascending, then
// registration order. An empty slice is a valid answer, never an error:
// turning "no candidates" into a failure is the orchestrator's job.
func (r *Registry) CandidatesFor(capability task.Capability) []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	eligible := make([]*entry, 0, len(r.agents))
	for _, e := range r.agents {
		if e.desc.HasCapability(capability) && e.healthy() {
			eligible = append(eligible, e)
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if a.desc.Priority != b.desc.Priority {
			return a.desc.Priority > b.desc.Priority
		}
		ra, rb := a.health.errorRate(), b.health.errorRate()
		if ra != rb {
			return ra < rb
		}
		return a.seq < b.seq
	})

	out := make([]Descriptor, len(eligible))
	for i, e := range eligible {
		out[i] = e.desc
	}
	return out
}

// RecordOutcome atomically updates an agent's health record with one call
// outcome. Safe under concurrent invocation from in-flight parallel and
// fallback calls.
func (r *Registry) RecordOutcome(id string, success bool, latency time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.agents[id]
	if !ok {
		return fmt.Errorf("record outcome %s: %w", id, ErrUnknownAgent)
	}

	if success {
		e.health.successCount++
	} else {
		e.health.failureCount++
	}
	e.health.lastLatency = latency
	e.health.totalLatency += latency
	e.health.lastChecked = time.Now()

	if !success && !e.healthy() {
		r.logger.Warn("Agent %s unhealthy (error rate %.0f%%)", id, e.health.errorRate()*100)
	}
	r.publishHealthLocked()
	return nil
}

// publishHealthLocked pushes health gauges to the recorder. Caller holds mu.
func (r *Registry) publishHealthLocked() {
	healthy := 0
	for _, e := range r.agents {
		ok := e.healthy()
		if ok {
			healthy++
		}
		r.recorder.SetAgentHealth(e.desc.ID, ok, e.health.errorRate())
	}
	r.recorder.SetHealthyAgents(healthy)
}
