// Package middleware wraps procedure invocation on the server.
//
// A chain sits between the dispatch loop and the registered procedure. Any
// error a middleware returns is answered with CALL_ERROR, exactly like a
// failing procedure; the connection is never affected.
package middleware

import (
	"context"

	"sync-rpc/message"
)

// HandlerFunc invokes one procedure call.
type HandlerFunc func(ctx context.Context, req *message.Request) (message.Payload, error)

type Middleware func(next HandlerFunc) HandlerFunc

// Chain composes middlewares so the first one given is the outermost:
// Chain(A, B)(h) runs A → B → h → B → A.
func Chain(middlewares ...Middleware) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
