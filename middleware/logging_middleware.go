package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/DKorablin/NamedPipesProxy/message"
)

// LoggingMiddleware records the request Type, duration, and any error or
// Error-typed reply for each dispatched call.
func LoggingMiddleware(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.PipeMessage) (*message.PipeMessage, error) {
			start := time.Now()

			reply, err := next(ctx, req)

			duration := time.Since(start)
			fields := []zap.Field{zap.String("type", req.Type), zap.Duration("duration", duration)}
			if err != nil {
				logger.Warn("dispatch failed", append(fields, zap.Error(err))...)
			} else if reply != nil && reply.Type == message.TypeError {
				logger.Warn("dispatch returned error reply", fields...)
			} else {
				logger.Debug("dispatch completed", fields...)
			}
			return reply, err
		}
	}
}
