// Package orchestrator routes tasks to registered agents and executes
// them under one of three strategies: best (single highest-ranked
// candidate), parallel (every candidate at once, keep the most complete
// answer), and fallback (candidates in order until one succeeds).
// Pipelines chain single-task executions with upstream output injected
// into each downstream stage.
package orchestrator

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"conductor/pkg/config"
	"conductor/pkg/logx"
	"conductor/pkg/provider"
	"conductor/pkg/registry"
	"conductor/pkg/task"
)

// Strategy selects how Execute distributes a task across candidates.
type Strategy string

const (
	// StrategyBest calls only the highest-ranked healthy candidate.
	StrategyBest Strategy = "best"
	// StrategyParallel calls every healthy candidate concurrently and
	// keeps the most complete response.
	StrategyParallel Strategy = "parallel"
	// StrategyFallback tries candidates in rank order until one succeeds
	// or the attempt budget is exhausted.
	StrategyFallback Strategy = "fallback"
)

// ParseStrategy validates a strategy name. An empty string means best.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyBest, "":
		return StrategyBest, nil
	case StrategyParallel:
		return StrategyParallel, nil
	case StrategyFallback:
		return StrategyFallback, nil
	default:
		return "", fmt.Errorf("unknown strategy %q", s)
	}
}

// ClientSource resolves an agent to a ready-to-call backend client.
// *factory.Factory is the production implementation; tests substitute
// their own to avoid touching real SDKs.
type ClientSource interface {
	ClientFor(agentID, model string) (provider.Client, error)
}

// Orchestrator executes tasks against the agents a Registry tracks.
// Stateless apart from its collaborators, so safe for concurrent use.
type Orchestrator struct {
	registry *registry.Registry
	clients  ClientSource
	defaults config.EngineDefaults
	logger   *logx.Logger
}

// New creates an orchestrator over the given registry and client source.
func New(reg *registry.Registry, clients ClientSource, defaults config.EngineDefaults) *Orchestrator {
	return &Orchestrator{
		registry: reg,
		clients:  clients,
		defaults: defaults,
		logger:   logx.NewLogger("orchestrator"),
	}
}

// Registry exposes the underlying registry for health reporting and
// runtime agent management.
func (o *Orchestrator) Registry() *registry.Registry {
	return o.registry
}

// Execute runs one task under the given strategy. The returned Result
// always carries the invocation ID and execution time; on failure its
// Err field holds the same error Execute returns.
func (o *Orchestrator) Execute(ctx context.Context, t task.Task, strategy Strategy) (task.Result, error) {
	start := time.Now()
	res := task.NewResult()

	candidates := o.registry.CandidatesFor(t.RequiredCapability)
	if len(candidates) == 0 {
		res.Err = &NoAgentAvailableError{Capability: t.RequiredCapability}
		res.ExecutionTime = time.Since(start)
		o.logger.Warn("No agent available for capability %s (task type %s)", t.RequiredCapability, t.Type)
		return res, res.Err
	}

	switch strategy {
	case StrategyBest, "":
		o.runBest(ctx, &res, t, candidates)
	case StrategyParallel:
		o.runParallel(ctx, &res, t, candidates)
	case StrategyFallback:
		o.runFallback(ctx, &res, t, candidates)
	default:
		res.Err = fmt.Errorf("unknown strategy %q", strategy)
	}

	res.ExecutionTime = time.Since(start)
	return res, res.Err
}

// runBest executes against the single top-ranked candidate. No retry:
// callers wanting recovery ask for the fallback strategy.
func (o *Orchestrator) runBest(ctx context.Context, res *task.Result, t task.Task, candidates []registry.Descriptor) {
	desc := candidates[0]
	o.logger.Debug("Best strategy selected agent %s (priority %d) for %s", desc.ID, desc.Priority, t.RequiredCapability)

	resp := o.callAgent(ctx, desc, t)
	res.AgentID = desc.ID
	res.AgentIDs = []string{desc.ID}
	if resp.Err != nil {
		res.Err = resp.Err
		return
	}
	res.Success = true
	res.Content = resp.Content
	res.TokensUsed = resp.TokensUsed
}

// runParallel fans the task out to every candidate and waits for all of
// them. Every response, failed ones included, lands in AllResponses in
// candidate rank order. The winner is the successful response with the
// highest token usage; content length, then rank order break ties.
func (o *Orchestrator) runParallel(ctx context.Context, res *task.Result, t task.Task, candidates []registry.Descriptor) {
	responses := make([]task.Response, len(candidates))
	var wg sync.WaitGroup
	for i, desc := range candidates {
		wg.Add(1)
		go func(i int, desc registry.Descriptor) {
			defer wg.Done()
			responses[i] = o.callAgent(ctx, desc, t)
		}(i, desc)
	}
	wg.Wait()

	res.AllResponses = responses
	res.AgentIDs = make([]string, len(candidates))
	for i, desc := range candidates {
		res.AgentIDs[i] = desc.ID
	}

	winner := -1
	for i := range responses {
		if responses[i].Err != nil {
			continue
		}
		if winner == -1 {
			winner = i
			continue
		}
		w := &responses[winner]
		r := &responses[i]
		if r.TokensUsed > w.TokensUsed ||
			(r.TokensUsed == w.TokensUsed && len(r.Content) > len(w.Content)) {
			winner = i
		}
	}
	if winner == -1 {
		attempts := make([]Attempt, len(responses))
		for i := range responses {
			attempts[i] = Attempt{AgentID: responses[i].AgentID, Err: responses[i].Err}
		}
		res.Err = &AllAttemptsFailedError{Capability: t.RequiredCapability, Attempts: attempts}
		return
	}

	res.Success = true
	res.AgentID = responses[winner].AgentID
	res.Content = responses[winner].Content
	res.TokensUsed = responses[winner].TokensUsed
	o.logger.Debug("Parallel strategy: %d/%d succeeded, selected %s (%d tokens)",
		len(responses)-failureCount(responses), len(responses), res.AgentID, res.TokensUsed)
}

func failureCount(responses []task.Response) int {
	n := 0
	for i := range responses {
		if responses[i].Err != nil {
			n++
		}
	}
	return n
}

// runFallback tries candidates in rank order, stopping at the first
// success or after the configured attempt budget. A permanent failure
// still advances to the next agent: permanence is per-backend, and the
// next candidate is a different backend.
func (o *Orchestrator) runFallback(ctx context.Context, res *task.Result, t task.Task, candidates []registry.Descriptor) {
	limit := o.defaults.FallbackAttempts
	if limit <= 0 {
		limit = config.DefaultFallbackAttempts
	}
	if limit > len(candidates) {
		limit = len(candidates)
	}

	attempts := make([]Attempt, 0, limit)
	for i := 0; i < limit; i++ {
		desc := candidates[i]
		res.AgentIDs = append(res.AgentIDs, desc.ID)

		resp := o.callAgent(ctx, desc, t)
		if resp.Err == nil {
			res.Success = true
			res.AgentID = desc.ID
			res.Content = resp.Content
			res.TokensUsed = resp.TokensUsed
			return
		}
		attempts = append(attempts, Attempt{AgentID: desc.ID, Err: resp.Err})
		o.logger.Warn("Fallback attempt %d/%d: agent %s failed: %v", i+1, limit, desc.ID, resp.Err)

		if ctx.Err() != nil {
			break
		}
	}
	res.Err = &AllAttemptsFailedError{Capability: t.RequiredCapability, Attempts: attempts}
}

// callAgent performs one backend call for one agent and records the
// outcome against the agent's health, whatever the strategy.
func (o *Orchestrator) callAgent(ctx context.Context, desc registry.Descriptor, t task.Task) task.Response {
	resp := task.Response{AgentID: desc.ID}

	client, err := o.clients.ClientFor(desc.ID, desc.Model)
	if err != nil {
		// Construction failures (unresolvable provider, missing credential)
		// count against health: the agent cannot serve either way.
		resp.Err = &CallFailedError{AgentID: desc.ID, Err: err}
		_ = o.registry.RecordOutcome(desc.ID, false, 0)
		return resp
	}

	callCtx := ctx
	if d, ok := t.Timeout(); ok {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, d)
		defer cancel()
	}

	start := time.Now()
	out, err := client.Generate(callCtx, o.buildRequest(desc, t))
	latency := out.Latency
	if latency == 0 {
		latency = time.Since(start)
	}
	resp.Latency = latency

	if err != nil {
		resp.Err = &CallFailedError{AgentID: desc.ID, Err: err}
		_ = o.registry.RecordOutcome(desc.ID, false, latency)
		return resp
	}

	resp.Content = out.Content
	resp.TokensUsed = out.TokensUsed
	_ = o.registry.RecordOutcome(desc.ID, true, latency)
	return resp
}

// buildRequest resolves the effective call parameters: task context
// overrides win over the agent descriptor, which wins over engine
// defaults. A descriptor value of zero means "unset", matching the
// config file convention.
func (o *Orchestrator) buildRequest(desc registry.Descriptor, t task.Task) provider.Request {
	req := provider.Request{
		Prompt: buildPrompt(t),
		System: t.System(),
		Media:  t.Media(),
	}

	switch temp, ok := t.Temperature(); {
	case ok:
		req.Temperature = temp
	case desc.Temperature != 0:
		req.Temperature = desc.Temperature
	default:
		req.Temperature = o.defaults.Temperature
	}

	switch mt, ok := t.MaxTokens(); {
	case ok:
		req.MaxTokens = mt
	case desc.MaxTokens != 0:
		req.MaxTokens = desc.MaxTokens
	default:
		req.MaxTokens = o.defaults.MaxTokens
	}

	return req
}

// buildPrompt renders the task description, prefixed with upstream
// pipeline output when a prior stage injected any.
func buildPrompt(t task.Task) string {
	stages, ok := t.Context[task.CtxPipeline].(map[string]task.StageOutput)
	if !ok || len(stages) == 0 {
		return t.Description
	}

	keys := make([]string, 0, len(stages))
	for k := range stages {
		keys = append(keys, k)
	}
	// Numeric order, not lexical: stage_10 comes after stage_2.
	sort.Slice(keys, func(i, j int) bool {
		return stageNumber(keys[i]) < stageNumber(keys[j])
	})

	var b strings.Builder
	b.WriteString("Results from previous pipeline stages:\n\n")
	for _, k := range keys {
		out := stages[k]
		fmt.Fprintf(&b, "[%s] %s (agent %s):\n%s\n\n", k, out.TaskType, out.AgentID, out.Content)
	}
	b.WriteString(t.Description)
	return b.String()
}

// stageNumber extracts the numeric suffix of a stage key. Keys that do
// not follow the stage_N convention sort last.
func stageNumber(key string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(key, "stage_"))
	if err != nil {
		return math.MaxInt
	}
	return n
}
