// Package loadbalance chooses which advertising server a client dials.
//
//   - RoundRobin:     equal-capacity servers
//   - WeightedRandom: servers of different capacity, by Instance.Weight
//   - ConsistentHash: the same procedure keeps landing on the same server
package loadbalance

import (
	"errors"

	"sync-rpc/registry"
)

var ErrNoInstances = errors.New("loadbalance: no instances available")

// Balancer selects one instance. key is the procedure being dialed for;
// strategies that do not need it ignore it. Implementations are safe for
// concurrent use.
type Balancer interface {
	Pick(key string, instances []registry.Instance) (registry.Instance, error)
	Name() string
}

// New returns the balancer registered under name, falling back to round
// robin for an unknown name.
func New(name string) Balancer {
	switch name {
	case "weighted", "WeightedRandom":
		return &WeightedRandomBalancer{}
	case "hash", "ConsistentHash":
		return NewConsistentHashBalancer(defaultReplicas)
	}
	return &RoundRobinBalancer{}
}
