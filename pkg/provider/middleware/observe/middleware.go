// Package observe provides the metrics-and-latency middleware for backend
// clients: it times every call, fills in token usage for backends that do
// not report it, and publishes outcomes to the metrics recorder.
package observe

import (
	"context"
	"time"

	"conductor/pkg/metrics"
	"conductor/pkg/provider"
	"conductor/pkg/provider/providererr"
	"conductor/pkg/tokens"
)

// Middleware wraps a client with call timing, token accounting, and
// metrics publication for the given agent.
func Middleware(agentID string, recorder metrics.Recorder) provider.Middleware {
	return func(next provider.Client) provider.Client {
		return provider.WrapClient(
			func(ctx context.Context, req provider.Request) (provider.Response, error) {
				start := time.Now()
				resp, err := next.Generate(ctx, req)
				duration := time.Since(start)
				resp.Latency = duration

				if err != nil {
					recorder.ObserveCall(agentID, next.ModelName(), "error",
						providererr.KindOf(err).String(), 0, 0, duration)
					return resp, err
				}

				// Backends that report no usage get a tiktoken estimate so
				// token metrics and parallel-result ranking stay meaningful.
				if resp.TokensUsed == 0 {
					resp.PromptTokens = tokens.Count(req.System + req.Prompt)
					resp.CompletionTokens = tokens.Count(resp.Content)
					resp.TokensUsed = resp.PromptTokens + resp.CompletionTokens
				}

				recorder.ObserveCall(agentID, next.ModelName(), "success", "",
					resp.PromptTokens, resp.CompletionTokens, duration)
				return resp, nil
			},
			next.ModelName,
		)
	}
}
