package loadbalance

import (
	"math/rand"

	"sync-rpc/registry"
)

// WeightedRandomBalancer picks an instance with probability proportional to
// its weight. Weights below 1 count as 1.
type WeightedRandomBalancer struct{}

func (b *WeightedRandomBalancer) Pick(_ string, instances []registry.Instance) (registry.Instance, error) {
	if len(instances) == 0 {
		return registry.Instance{}, ErrNoInstances
	}

	total := 0
	for _, inst := range instances {
		total += weight(inst)
	}

	r := rand.Intn(total)
	for _, inst := range instances {
		r -= weight(inst)
		if r < 0 {
			return inst, nil
		}
	}
	return instances[len(instances)-1], nil
}

func (b *WeightedRandomBalancer) Name() string {
	return "WeightedRandom"
}

func weight(inst registry.Instance) int {
	if inst.Weight < 1 {
		return 1
	}
	return inst.Weight
}
