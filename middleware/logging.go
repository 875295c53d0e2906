package middleware

import (
	"context"
	"time"

	"go.uber.org/zap"

	"sync-rpc/message"
)

// Logging records every call with its procedure, handle, latency and outcome.
func Logging(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (message.Payload, error) {
			start := time.Now()
			result, err := next(ctx, req)
			fields := []zap.Field{
				zap.String("procedure", req.Procedure),
				zap.Int("handle", req.Handle),
				zap.Int32("tag", req.Args.Tag),
				zap.Int("#body", len(req.Args.Body)),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Warn("rpc: call failed", append(fields, zap.Error(err))...)
				return result, err
			}
			logger.Debug("rpc: call", fields...)
			return result, nil
		}
	}
}
