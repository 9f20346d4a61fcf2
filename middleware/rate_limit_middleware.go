package middleware

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"

	"github.com/DKorablin/NamedPipesProxy/message"
	"github.com/DKorablin/NamedPipesProxy/rpcerr"
)

// RateLimitMiddleware rejects dispatch calls once the token bucket (r
// tokens/second, burst capacity) is empty, short-circuiting before next
// is ever called.
//
// The limiter is built once in the outer closure, not per request — a
// fresh limiter per call would defeat rate limiting entirely.
func RateLimitMiddleware(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.PipeMessage) (*message.PipeMessage, error) {
			if !limiter.Allow() {
				return req.CopyFor(message.TypeError, message.ErrorPayload{
					Message: fmt.Sprintf("%s: %s", req.Type, rpcerr.ErrRateLimited.Error()),
				})
			}
			return next(ctx, req)
		}
	}
}
