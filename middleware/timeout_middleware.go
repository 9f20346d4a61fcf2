package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/DKorablin/NamedPipesProxy/message"
	"github.com/DKorablin/NamedPipesProxy/rpcerr"
)

// TimeoutMiddleware enforces a maximum duration for each dispatched call.
// If the handler doesn't complete within the timeout, it returns an error
// immediately; the handler goroutine is not cancelled and keeps running
// in the background unless it itself checks ctx.Done().
func TimeoutMiddleware(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.PipeMessage) (*message.PipeMessage, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			type outcome struct {
				reply *message.PipeMessage
				err   error
			}
			done := make(chan outcome, 1) // buffered: prevent goroutine leak if timeout fires first
			go func() {
				reply, err := next(ctx, req)
				done <- outcome{reply, err}
			}()

			select {
			case o := <-done:
				return o.reply, o.err
			case <-ctx.Done():
				return nil, fmt.Errorf("middleware: dispatch %q: %w", req.Type, rpcerr.ErrTimeout)
			}
		}
	}
}
