package client

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"sync-rpc/loadbalance"
	"sync-rpc/registry"
	"sync-rpc/rpcerr"
	"sync-rpc/transport"
)

// DialProcedure looks up the servers advertising procedure, lets balancer
// pick one and connects to it. It does not FIND the procedure; handles are
// resolved on the returned connection as usual.
func DialProcedure(ctx context.Context, reg registry.Registry, balancer loadbalance.Balancer,
	procedure string, cfg transport.Config, opts ...Option) (*Client, error) {
	instances, err := reg.Discover(ctx, procedure)
	if err != nil {
		return nil, fmt.Errorf("discover %q: %w", procedure, err)
	}
	if len(instances) == 0 {
		return nil, fmt.Errorf("%w: no server advertises %q", rpcerr.ErrNotFound, procedure)
	}

	inst, err := balancer.Pick(procedure, instances)
	if err != nil {
		return nil, err
	}

	c, err := Dial(ctx, inst.Addr, cfg, opts...)
	if err != nil {
		return nil, err
	}
	c.logger.Debug("rpc: discovered",
		zap.String("procedure", procedure),
		zap.String("addr", inst.Addr),
		zap.String("balancer", balancer.Name()),
		zap.Int("#instances", len(instances)))
	return c, nil
}
