package middleware

import (
	"context"
	"fmt"
	"time"

	"sync-rpc/message"
	"sync-rpc/rpcerr"
)

type callResult struct {
	payload message.Payload
	err     error
}

// Timeout bounds how long a procedure may run. The procedure receives a
// context with the deadline; if it overruns, the call fails with ErrTimeout
// and its eventual result is discarded.
func Timeout(timeout time.Duration) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (message.Payload, error) {
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			done := make(chan callResult, 1)
			go func() {
				p, err := next(ctx, req)
				done <- callResult{payload: p, err: err}
			}()

			select {
			case r := <-done:
				return r.payload, r.err
			case <-ctx.Done():
				return message.Payload{}, fmt.Errorf("%w: %s after %s", rpcerr.ErrTimeout, req.Procedure, timeout)
			}
		}
	}
}
