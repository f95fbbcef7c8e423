package registry

import (
	"sort"
	"time"
)

// AgentHealth is one agent's entry in a health report snapshot.
type AgentHealth struct {
	ID           string        `json:"id"`
	Provider     string        `json:"provider"`
	Model        string        `json:"model"`
	Healthy      bool          `json:"healthy"`
	Enabled      bool          `json:"enabled"`
	ErrorRate    float64       `json:"error_rate"`
	SuccessCount uint64        `json:"success_count"`
	FailureCount uint64        `json:"failure_count"`
	AvgLatency   time.Duration `json:"avg_latency_ns"`
	LastLatency  time.Duration `json:"last_latency_ns"`
	LastChecked  time.Time     `json:"last_checked"`
}

// Report is a consistent snapshot of all agents' health, taken under one
// lock acquisition so no per-agent record is torn and the healthy count
// matches the entries.
type Report struct {
	GeneratedAt   time.Time     `json:"generated_at"`
	TotalAgents   int           `json:"total_agents"`
	HealthyAgents int           `json:"healthy_agents"`
	Agents        []AgentHealth `json:"agents"`
}

// HealthReport returns a snapshot of all agents for the status surface.
// Entries are ordered by registration for stable output.
func (r *Registry) HealthReport() Report {
	r.mu.RLock()
	defer r.mu.RUnlock()

	report := Report{
		GeneratedAt: time.Now(),
		TotalAgents: len(r.agents),
		Agents:      make([]AgentHealth, 0, len(r.agents)),
	}

	// Collect then sort by seq for deterministic ordering.
	entries := make([]*entry, 0, len(r.agents))
	for _, e := range r.agents {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })

	for _, e := range entries {
		healthy := e.healthy()
		if healthy {
			report.HealthyAgents++
		}
		report.Agents = append(report.Agents, AgentHealth{
			ID:           e.desc.ID,
			Provider:     e.desc.Provider,
			Model:        e.desc.Model,
			Healthy:      healthy,
			Enabled:      e.desc.Enabled,
			ErrorRate:    e.health.errorRate(),
			SuccessCount: e.health.successCount,
			FailureCount: e.health.failureCount,
			AvgLatency:   e.health.avgLatency(),
			LastLatency:  e.health.lastLatency,
			LastChecked:  e.health.lastChecked,
		})
	}
	return report
}
