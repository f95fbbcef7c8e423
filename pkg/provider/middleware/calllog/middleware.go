// Package calllog provides debug request/response logging middleware for
// backend clients.
package calllog

import (
	"context"

	"conductor/pkg/logx"
	"conductor/pkg/provider"
)

const maxLoggedPrompt = 200

// Middleware wraps a client with debug-level call logging under the
// "provider" domain. Prompts are truncated; responses log size only.
func Middleware(agentID string, logger *logx.Logger) provider.Middleware {
	return func(next provider.Client) provider.Client {
		return provider.WrapClient(
			func(ctx context.Context, req provider.Request) (provider.Response, error) {
				prompt := req.Prompt
				if len(prompt) > maxLoggedPrompt {
					prompt = prompt[:maxLoggedPrompt] + "..."
				}
				logger.Debug("call %s model=%s max_tokens=%d prompt=%q",
					agentID, next.ModelName(), req.MaxTokens, prompt)

				resp, err := next.Generate(ctx, req)
				if err != nil {
					logger.Debug("call %s failed: %v", agentID, err)
					return resp, err
				}
				logger.Debug("call %s ok: %d tokens, %d content bytes", agentID, resp.TokensUsed, len(resp.Content))
				return resp, nil
			},
			next.ModelName,
		)
	}
}
