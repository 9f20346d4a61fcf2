// Package middleware implements the onion model middleware chain wrapping
// dispatch.Engine.Dispatch with cross-cutting concerns (logging, timeout,
// rate limiting) without modifying the dispatch engine itself.
//
// Onion model execution order:
//
//	Chain(A, B, C)(handler)  →  A(B(C(handler)))
//
//	Request:   A.before → B.before → C.before → handler
//	Response:  handler → C.after → B.after → A.after
//
// Each middleware can:
//   - Do pre-processing (before calling next)
//   - Call next(ctx, req) to pass to the next layer
//   - Do post-processing (after next returns)
//   - Short-circuit by returning early without calling next (e.g., rate limiting)
package middleware

import (
	"context"

	"github.com/DKorablin/NamedPipesProxy/message"
)

// HandlerFunc matches dispatch.Engine.Dispatch's signature, so any chain
// built here can wrap an Engine directly: Chain(...)(engine.Dispatch).
type HandlerFunc func(ctx context.Context, req *message.PipeMessage) (*message.PipeMessage, error)

// Middleware takes a handler and returns a new handler that wraps it.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes multiple middlewares into a single middleware, applied
// outermost-first on the request and innermost-first on the response.
//
// Example:
//
//	chained := Chain(LoggingMiddleware(logger), TimeoutMiddleware(time.Second))
//	handler := chained(engine.Dispatch)
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
