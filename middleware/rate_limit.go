package middleware

import (
	"context"

	"golang.org/x/time/rate"

	"sync-rpc/message"
	"sync-rpc/rpcerr"
)

// RateLimit admits calls through a token bucket refilled at r per second
// with the given burst. Rejected calls fail with ErrRateLimited.
func RateLimit(r float64, burst int) Middleware {
	limiter := rate.NewLimiter(rate.Limit(r), burst)
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, req *message.Request) (message.Payload, error) {
			if !limiter.Allow() {
				return message.Payload{}, rpcerr.ErrRateLimited
			}
			return next(ctx, req)
		}
	}
}
