package orchestrator

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conductor/pkg/config"
	"conductor/pkg/provider"
	"conductor/pkg/provider/providererr"
	"conductor/pkg/registry"
	"conductor/pkg/task"
)

// mockClient scripts one backend's behavior.
type mockClient struct {
	model    string
	generate func(ctx context.Context, req provider.Request) (provider.Response, error)
	calls    atomic.Int64
}

func (m *mockClient) Generate(ctx context.Context, req provider.Request) (provider.Response, error) {
	m.calls.Add(1)
	return m.generate(ctx, req)
}

func (m *mockClient) ModelName() string { return m.model }

func succeedWith(content string, tokens int) *mockClient {
	return &mockClient{
		model: "claude-sonnet-4-5",
		generate: func(_ context.Context, _ provider.Request) (provider.Response, error) {
			return provider.Response{Content: content, TokensUsed: tokens}, nil
		},
	}
}

func failWith(err error) *mockClient {
	return &mockClient{
		model: "claude-sonnet-4-5",
		generate: func(_ context.Context, _ provider.Request) (provider.Response, error) {
			return provider.Response{}, err
		},
	}
}

// mockSource resolves agent ids to scripted clients.
type mockSource struct {
	clients map[string]provider.Client
}

func (s *mockSource) ClientFor(agentID, _ string) (provider.Client, error) {
	c, ok := s.clients[agentID]
	if !ok {
		return nil, fmt.Errorf("no client for agent %s", agentID)
	}
	return c, nil
}

func testDefaults() config.EngineDefaults {
	return config.EngineDefaults{
		Temperature:      0.7,
		MaxTokens:        8192,
		CallTimeout:      time.Second,
		FallbackAttempts: 3,
	}
}

// newTestOrchestrator registers the given agents and wires their clients.
func newTestOrchestrator(t *testing.T, agents map[string]registry.Descriptor, clients map[string]provider.Client) (*Orchestrator, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	// Fixed registration order for stable seq tie-breaks.
	for _, id := range []string{"agent-a", "agent-b", "agent-c", "agent-d", "agent-e"} {
		if desc, ok := agents[id]; ok {
			require.NoError(t, reg.Register(desc))
		}
	}
	return New(reg, &mockSource{clients: clients}, testDefaults()), reg
}

func agentDesc(id string, priority int) registry.Descriptor {
	return registry.Descriptor{
		ID:           id,
		Provider:     "anthropic",
		Model:        "claude-sonnet-4-5",
		Priority:     priority,
		Enabled:      true,
		Capabilities: map[task.Capability]bool{task.CapCodeGeneration: true},
	}
}

func codeTask(description string) task.Task {
	return task.Task{
		Type:               task.TypeCodeGeneration,
		Description:        description,
		RequiredCapability: task.CapCodeGeneration,
	}
}

func TestParseStrategy(t *testing.T) {
	tests := []struct {
		in      string
		want    Strategy
		wantErr bool
	}{
		{in: "best", want: StrategyBest},
		{in: "", want: StrategyBest},
		{in: "parallel", want: StrategyParallel},
		{in: "fallback", want: StrategyFallback},
		{in: "bogus", wantErr: true},
	}
	for _, tt := range tests {
		t.Run("strategy_"+tt.in, func(t *testing.T) {
			got, err := ParseStrategy(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExecuteNoAgentAvailable(t *testing.T) {
	o, _ := newTestOrchestrator(t,
		map[string]registry.Descriptor{"agent-a": agentDesc("agent-a", 10)},
		map[string]provider.Client{"agent-a": succeedWith("ok", 10)},
	)

	res, err := o.Execute(context.Background(), task.Task{
		RequiredCapability: task.CapSecurity,
		Description:        "audit this",
	}, StrategyBest)

	require.Error(t, err)
	var naa *NoAgentAvailableError
	require.ErrorAs(t, err, &naa)
	assert.Equal(t, task.CapSecurity, naa.Capability)
	assert.False(t, res.Success)
	assert.NotEmpty(t, res.ID)
	assert.Same(t, err, res.Err)
}

func TestBestSelectsHighestPriority(t *testing.T) {
	clientA := succeedWith("from a", 50)
	clientB := succeedWith("from b", 50)
	o, _ := newTestOrchestrator(t,
		map[string]registry.Descriptor{
			"agent-a": agentDesc("agent-a", 10),
			"agent-b": agentDesc("agent-b", 8),
		},
		map[string]provider.Client{"agent-a": clientA, "agent-b": clientB},
	)

	res, err := o.Execute(context.Background(), codeTask("write code"), StrategyBest)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "agent-a", res.AgentID)
	assert.Equal(t, []string{"agent-a"}, res.AgentIDs)
	assert.Equal(t, "from a", res.Content)
	assert.Equal(t, int64(1), clientA.calls.Load())
	assert.Equal(t, int64(0), clientB.calls.Load())
}

func TestBestSkipsUnhealthyAgent(t *testing.T) {
	o, reg := newTestOrchestrator(t,
		map[string]registry.Descriptor{
			"agent-a": agentDesc("agent-a", 10),
			"agent-b": agentDesc("agent-b", 8),
		},
		map[string]provider.Client{
			"agent-a": succeedWith("from a", 50),
			"agent-b": succeedWith("from b", 50),
		},
	)

	// agent-a has failed 6 of 10 calls: error rate 0.6 puts it past the
	// threshold despite its higher priority.
	for i := 0; i < 4; i++ {
		require.NoError(t, reg.RecordOutcome("agent-a", true, time.Millisecond))
	}
	for i := 0; i < 6; i++ {
		require.NoError(t, reg.RecordOutcome("agent-a", false, time.Millisecond))
	}

	res, err := o.Execute(context.Background(), codeTask("write code"), StrategyBest)
	require.NoError(t, err)
	assert.Equal(t, "agent-b", res.AgentID)
}

func TestBestFailureRecordsHealthAndReturnsError(t *testing.T) {
	o, reg := newTestOrchestrator(t,
		map[string]registry.Descriptor{"agent-a": agentDesc("agent-a", 10)},
		map[string]provider.Client{
			"agent-a": failWith(providererr.New(providererr.KindServer, "backend down")),
		},
	)

	res, err := o.Execute(context.Background(), codeTask("write code"), StrategyBest)
	require.Error(t, err)
	assert.False(t, res.Success)

	var cf *CallFailedError
	require.ErrorAs(t, err, &cf)
	assert.Equal(t, "agent-a", cf.AgentID)
	assert.True(t, cf.Transient())

	report := reg.HealthReport()
	require.Len(t, report.Agents, 1)
	assert.Equal(t, uint64(1), report.Agents[0].FailureCount)
}

func TestSuccessRecordsHealth(t *testing.T) {
	o, reg := newTestOrchestrator(t,
		map[string]registry.Descriptor{"agent-a": agentDesc("agent-a", 10)},
		map[string]provider.Client{"agent-a": succeedWith("ok", 10)},
	)

	_, err := o.Execute(context.Background(), codeTask("write code"), StrategyBest)
	require.NoError(t, err)

	report := reg.HealthReport()
	assert.Equal(t, uint64(1), report.Agents[0].SuccessCount)
	assert.Equal(t, uint64(0), report.Agents[0].FailureCount)
}

func TestClientConstructionFailureCountsAsFailure(t *testing.T) {
	o, reg := newTestOrchestrator(t,
		map[string]registry.Descriptor{"agent-a": agentDesc("agent-a", 10)},
		map[string]provider.Client{}, // no client wired
	)

	_, err := o.Execute(context.Background(), codeTask("write code"), StrategyBest)
	require.Error(t, err)
	var cf *CallFailedError
	require.ErrorAs(t, err, &cf)

	report := reg.HealthReport()
	assert.Equal(t, uint64(1), report.Agents[0].FailureCount)
}

func TestParallelCollectsAllResponses(t *testing.T) {
	o, _ := newTestOrchestrator(t,
		map[string]registry.Descriptor{
			"agent-a": agentDesc("agent-a", 10),
			"agent-b": agentDesc("agent-b", 8),
			"agent-c": agentDesc("agent-c", 6),
		},
		map[string]provider.Client{
			"agent-a": succeedWith("short answer", 40),
			"agent-b": succeedWith("a much more thorough answer", 90),
			"agent-c": failWith(providererr.New(providererr.KindRateLimit, "429")),
		},
	)

	res, err := o.Execute(context.Background(), codeTask("write code"), StrategyParallel)
	require.NoError(t, err)
	assert.True(t, res.Success)

	// One failure does not fail the strategy, and every response is kept.
	require.Len(t, res.AllResponses, 3)
	assert.Equal(t, []string{"agent-a", "agent-b", "agent-c"}, res.AgentIDs)
	assert.NoError(t, res.AllResponses[0].Err)
	assert.NoError(t, res.AllResponses[1].Err)
	assert.Error(t, res.AllResponses[2].Err)

	// Most complete response wins: agent-b reported the most tokens.
	assert.Equal(t, "agent-b", res.AgentID)
	assert.Equal(t, "a much more thorough answer", res.Content)
	assert.Equal(t, 90, res.TokensUsed)
}

func TestParallelTieBreaksOnContentLength(t *testing.T) {
	o, _ := newTestOrchestrator(t,
		map[string]registry.Descriptor{
			"agent-a": agentDesc("agent-a", 10),
			"agent-b": agentDesc("agent-b", 8),
		},
		map[string]provider.Client{
			"agent-a": succeedWith("terse", 50),
			"agent-b": succeedWith("noticeably longer content", 50),
		},
	)

	res, err := o.Execute(context.Background(), codeTask("write code"), StrategyParallel)
	require.NoError(t, err)
	assert.Equal(t, "agent-b", res.AgentID)
}

func TestParallelAllFail(t *testing.T) {
	o, reg := newTestOrchestrator(t,
		map[string]registry.Descriptor{
			"agent-a": agentDesc("agent-a", 10),
			"agent-b": agentDesc("agent-b", 8),
		},
		map[string]provider.Client{
			"agent-a": failWith(providererr.New(providererr.KindServer, "down")),
			"agent-b": failWith(providererr.New(providererr.KindTimeout, "slow")),
		},
	)

	res, err := o.Execute(context.Background(), codeTask("write code"), StrategyParallel)
	require.Error(t, err)
	assert.False(t, res.Success)

	var aaf *AllAttemptsFailedError
	require.ErrorAs(t, err, &aaf)
	assert.Len(t, aaf.Attempts, 2)
	assert.Len(t, res.AllResponses, 2)

	// Both failures recorded against health.
	report := reg.HealthReport()
	for _, a := range report.Agents {
		assert.Equal(t, uint64(1), a.FailureCount)
	}
}

func TestFallbackStopsAtFirstSuccess(t *testing.T) {
	clientA := failWith(providererr.New(providererr.KindServer, "down"))
	clientB := succeedWith("recovered", 30)
	clientC := succeedWith("never called", 30)
	o, _ := newTestOrchestrator(t,
		map[string]registry.Descriptor{
			"agent-a": agentDesc("agent-a", 10),
			"agent-b": agentDesc("agent-b", 8),
			"agent-c": agentDesc("agent-c", 6),
		},
		map[string]provider.Client{"agent-a": clientA, "agent-b": clientB, "agent-c": clientC},
	)

	res, err := o.Execute(context.Background(), codeTask("write code"), StrategyFallback)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "agent-b", res.AgentID)
	assert.Equal(t, "recovered", res.Content)
	assert.Equal(t, []string{"agent-a", "agent-b"}, res.AgentIDs)
	assert.Equal(t, int64(1), clientA.calls.Load())
	assert.Equal(t, int64(1), clientB.calls.Load())
	assert.Equal(t, int64(0), clientC.calls.Load())
}

func TestFallbackAttemptBudget(t *testing.T) {
	down := providererr.New(providererr.KindServer, "down")
	clients := make(map[string]provider.Client)
	agents := make(map[string]registry.Descriptor)
	for i, id := range []string{"agent-a", "agent-b", "agent-c", "agent-d", "agent-e"} {
		agents[id] = agentDesc(id, 10-i)
		clients[id] = failWith(down)
	}
	o, _ := newTestOrchestrator(t, agents, clients)

	res, err := o.Execute(context.Background(), codeTask("write code"), StrategyFallback)
	require.Error(t, err)

	// Five candidates, but the budget caps tries at three.
	var aaf *AllAttemptsFailedError
	require.ErrorAs(t, err, &aaf)
	require.Len(t, aaf.Attempts, 3)
	assert.Equal(t, "agent-a", aaf.Attempts[0].AgentID)
	assert.Equal(t, "agent-b", aaf.Attempts[1].AgentID)
	assert.Equal(t, "agent-c", aaf.Attempts[2].AgentID)
	assert.Equal(t, []string{"agent-a", "agent-b", "agent-c"}, res.AgentIDs)
}

func TestFallbackAdvancesPastPermanentFailure(t *testing.T) {
	o, _ := newTestOrchestrator(t,
		map[string]registry.Descriptor{
			"agent-a": agentDesc("agent-a", 10),
			"agent-b": agentDesc("agent-b", 8),
		},
		map[string]provider.Client{
			// Auth failure is permanent for agent-a, but agent-b is a
			// different backend with different credentials.
			"agent-a": failWith(providererr.New(providererr.KindAuth, "bad key")),
			"agent-b": succeedWith("ok", 20),
		},
	)

	res, err := o.Execute(context.Background(), codeTask("write code"), StrategyFallback)
	require.NoError(t, err)
	assert.Equal(t, "agent-b", res.AgentID)
}

func TestBuildRequestPrecedence(t *testing.T) {
	var captured provider.Request
	capture := &mockClient{
		model: "claude-sonnet-4-5",
		generate: func(_ context.Context, req provider.Request) (provider.Response, error) {
			captured = req
			return provider.Response{Content: "ok", TokensUsed: 5}, nil
		},
	}

	desc := agentDesc("agent-a", 10)
	desc.Temperature = 0.2
	desc.MaxTokens = 1024
	o, _ := newTestOrchestrator(t,
		map[string]registry.Descriptor{"agent-a": desc},
		map[string]provider.Client{"agent-a": capture},
	)

	t.Run("descriptor over defaults", func(t *testing.T) {
		_, err := o.Execute(context.Background(), codeTask("write code"), StrategyBest)
		require.NoError(t, err)
		assert.InDelta(t, 0.2, captured.Temperature, 1e-6)
		assert.Equal(t, 1024, captured.MaxTokens)
		assert.Equal(t, "write code", captured.Prompt)
	})

	t.Run("task context over descriptor", func(t *testing.T) {
		tk := codeTask("write code")
		tk.Context = map[string]any{
			task.CtxTemperature: 0.9,
			task.CtxMaxTokens:   256,
			task.CtxSystem:      "be terse",
		}
		_, err := o.Execute(context.Background(), tk, StrategyBest)
		require.NoError(t, err)
		assert.InDelta(t, 0.9, captured.Temperature, 1e-6)
		assert.Equal(t, 256, captured.MaxTokens)
		assert.Equal(t, "be terse", captured.System)
	})
}

func TestPerCallTimeoutFromTaskContext(t *testing.T) {
	slow := &mockClient{
		model: "claude-sonnet-4-5",
		generate: func(ctx context.Context, _ provider.Request) (provider.Response, error) {
			select {
			case <-ctx.Done():
				return provider.Response{}, providererr.Classify(ctx.Err())
			case <-time.After(5 * time.Second):
				return provider.Response{Content: "too late"}, nil
			}
		},
	}
	o, _ := newTestOrchestrator(t,
		map[string]registry.Descriptor{"agent-a": agentDesc("agent-a", 10)},
		map[string]provider.Client{"agent-a": slow},
	)

	tk := codeTask("write code")
	tk.Context = map[string]any{task.CtxTimeout: 20 * time.Millisecond}

	start := time.Now()
	_, err := o.Execute(context.Background(), tk, StrategyBest)
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, providererr.Is(err, providererr.KindTimeout))
}

func TestExecuteUnknownStrategy(t *testing.T) {
	o, _ := newTestOrchestrator(t,
		map[string]registry.Descriptor{"agent-a": agentDesc("agent-a", 10)},
		map[string]provider.Client{"agent-a": succeedWith("ok", 5)},
	)
	_, err := o.Execute(context.Background(), codeTask("write code"), Strategy("bogus"))
	require.Error(t, err)
}

func TestResultMetadataAlwaysSet(t *testing.T) {
	o, _ := newTestOrchestrator(t,
		map[string]registry.Descriptor{"agent-a": agentDesc("agent-a", 10)},
		map[string]provider.Client{"agent-a": succeedWith("ok", 5)},
	)
	res, err := o.Execute(context.Background(), codeTask("write code"), StrategyBest)
	require.NoError(t, err)
	assert.NotEmpty(t, res.ID)
	assert.Greater(t, res.ExecutionTime, time.Duration(0))
}
