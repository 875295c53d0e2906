package registry

import (
	"context"
	"sync"
)

// MemoryRegistry is a process-local Registry. TTLs are ignored. It serves
// tests and single-host setups without etcd.
type MemoryRegistry struct {
	mu        sync.Mutex
	instances map[string][]Instance
	watchers  map[string][]chan []Instance
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		instances: make(map[string][]Instance),
		watchers:  make(map[string][]chan []Instance),
	}
}

// Register adds instance, replacing an existing entry with the same address.
func (m *MemoryRegistry) Register(ctx context.Context, procedure string, instance Instance, ttl int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	insts := m.instances[procedure]
	for i := range insts {
		if insts[i].Addr == instance.Addr {
			insts[i] = instance
			m.notify(procedure)
			return nil
		}
	}
	m.instances[procedure] = append(insts, instance)
	m.notify(procedure)
	return nil
}

func (m *MemoryRegistry) Deregister(ctx context.Context, procedure string, addr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	insts := m.instances[procedure]
	for i, inst := range insts {
		if inst.Addr == addr {
			m.instances[procedure] = append(insts[:i:i], insts[i+1:]...)
			m.notify(procedure)
			break
		}
	}
	return nil
}

func (m *MemoryRegistry) Discover(ctx context.Context, procedure string) ([]Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Instance(nil), m.instances[procedure]...), nil
}

func (m *MemoryRegistry) Watch(ctx context.Context, procedure string) <-chan []Instance {
	ch := make(chan []Instance, 1)

	m.mu.Lock()
	m.watchers[procedure] = append(m.watchers[procedure], ch)
	m.mu.Unlock()

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		ws := m.watchers[procedure]
		for i, w := range ws {
			if w == ch {
				m.watchers[procedure] = append(ws[:i:i], ws[i+1:]...)
				break
			}
		}
		close(ch)
	}()
	return ch
}

// notify pushes the current list to every watcher, replacing an update the
// watcher has not consumed yet. m.mu must be held.
func (m *MemoryRegistry) notify(procedure string) {
	snapshot := append([]Instance(nil), m.instances[procedure]...)
	for _, ch := range m.watchers[procedure] {
		select {
		case <-ch:
		default:
		}
		ch <- snapshot
	}
}
