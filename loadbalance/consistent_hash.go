package loadbalance

import (
	"hash/crc32"
	"slices"
	"sort"
	"strconv"
	"strings"
	"sync"

	"sync-rpc/registry"
)

const defaultReplicas = 100

// ConsistentHashBalancer maps a key onto a hash ring of the instances, each
// placed replicas times as virtual nodes. A key keeps its instance until the
// instance set changes, and then only keys near the changed nodes move.
type ConsistentHashBalancer struct {
	replicas int

	mu     sync.Mutex
	ringOf string // instance set the ring was built for
	ring   []uint32
	nodes  map[uint32]registry.Instance
}

func NewConsistentHashBalancer(replicas int) *ConsistentHashBalancer {
	if replicas < 1 {
		replicas = defaultReplicas
	}
	return &ConsistentHashBalancer{replicas: replicas}
}

// Pick hashes key and walks clockwise to the first virtual node.
func (b *ConsistentHashBalancer) Pick(key string, instances []registry.Instance) (registry.Instance, error) {
	if len(instances) == 0 {
		return registry.Instance{}, ErrNoInstances
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if sig := signature(instances); sig != b.ringOf {
		b.build(instances)
		b.ringOf = sig
	}

	hash := crc32.ChecksumIEEE([]byte(key))
	idx := sort.Search(len(b.ring), func(i int) bool {
		return b.ring[i] >= hash
	})
	if idx == len(b.ring) {
		idx = 0
	}
	return b.nodes[b.ring[idx]], nil
}

func (b *ConsistentHashBalancer) Name() string {
	return "ConsistentHash"
}

func (b *ConsistentHashBalancer) build(instances []registry.Instance) {
	b.ring = b.ring[:0]
	b.nodes = make(map[uint32]registry.Instance, len(instances)*b.replicas)
	for _, inst := range instances {
		for i := 0; i < b.replicas; i++ {
			hash := crc32.ChecksumIEEE([]byte(inst.Addr + "#" + strconv.Itoa(i)))
			if _, taken := b.nodes[hash]; taken {
				continue
			}
			b.ring = append(b.ring, hash)
			b.nodes[hash] = inst
		}
	}
	slices.Sort(b.ring)
}

// signature identifies an instance set independent of its order.
func signature(instances []registry.Instance) string {
	addrs := make([]string, len(instances))
	for i, inst := range instances {
		addrs[i] = inst.Addr
	}
	slices.Sort(addrs)
	return strings.Join(addrs, ",")
}
