// Package registry is a directory of which servers expose which procedures.
//
// A server publishes one Instance per registered procedure name; a client
// looks a procedure up, picks an instance and dials it. The directory never
// hands out handles: handles are resolved per connection with FIND.
package registry

import (
	"context"
	"net/url"
)

// Instance is one server address advertising a procedure.
type Instance struct {
	Addr    string `json:"addr"`
	Weight  int    `json:"weight"` // relative share for weighted balancing
	Version string `json:"version,omitempty"`
}

type Registry interface {
	Register(ctx context.Context, procedure string, instance Instance, ttl int64) error
	Deregister(ctx context.Context, procedure string, addr string) error
	Discover(ctx context.Context, procedure string) ([]Instance, error)
	// Watch emits the full instance list for procedure after every change
	// until ctx is done.
	Watch(ctx context.Context, procedure string) <-chan []Instance
}

// KeyPrefix roots every key this package writes.
const KeyPrefix = "/sync-rpc/procedures/"

// procedurePrefix returns the key prefix holding all instances of procedure.
// Names may contain '/', so they are path-escaped to keep one procedure's
// prefix from matching another's keys.
func procedurePrefix(procedure string) string {
	return KeyPrefix + url.PathEscape(procedure) + "/"
}

func instanceKey(procedure, addr string) string {
	return procedurePrefix(procedure) + addr
}
