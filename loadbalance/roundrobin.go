package loadbalance

import (
	"sync/atomic"

	"sync-rpc/registry"
)

// RoundRobinBalancer cycles through the instances with a lock-free counter.
type RoundRobinBalancer struct {
	counter atomic.Uint64
}

func (b *RoundRobinBalancer) Pick(_ string, instances []registry.Instance) (registry.Instance, error) {
	if len(instances) == 0 {
		return registry.Instance{}, ErrNoInstances
	}
	n := b.counter.Add(1) - 1
	return instances[n%uint64(len(instances))], nil
}

func (b *RoundRobinBalancer) Name() string {
	return "RoundRobin"
}
