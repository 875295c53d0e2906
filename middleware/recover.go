package middleware

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"sync-rpc/message"
	"sync-rpc/rpcerr"
)

// Recover turns a panicking procedure into an ordinary failed call.
func Recover(logger *zap.Logger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (result message.Payload, err error) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("rpc: procedure panicked",
						zap.String("procedure", req.Procedure),
						zap.Any("panic", rec),
						zap.ByteString("stack", debug.Stack()))
					result = message.Payload{}
					err = fmt.Errorf("%w: %s panicked: %v", rpcerr.ErrRemoteFailure, req.Procedure, rec)
				}
			}()
			return next(ctx, req)
		}
	}
}
