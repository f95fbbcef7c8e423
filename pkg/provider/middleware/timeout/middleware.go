// Package timeout provides per-call deadline middleware for backend clients.
package timeout

import (
	"context"
	"time"

	"conductor/pkg/provider"
)

// Middleware wraps a client so every call carries a deadline. Callers that
// already set a shorter deadline keep it; this is the system default
// backstop against hanging calls.
func Middleware(duration time.Duration) provider.Middleware {
	return func(next provider.Client) provider.Client {
		return provider.WrapClient(
			func(ctx context.Context, req provider.Request) (provider.Response, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()
				return next.Generate(timeoutCtx, req)
			},
			next.ModelName,
		)
	}
}
