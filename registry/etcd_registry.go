package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"
)

// EtcdRegistry implements Registry on etcd v3.
//
//	Key:   /sync-rpc/procedures/{escaped procedure}/{addr}
//	Value: JSON-encoded Instance
//
// Registration attaches a TTL lease kept alive in the background. If the
// server dies the lease expires and its entries disappear with it.
type EtcdRegistry struct {
	client *clientv3.Client
	logger *zap.Logger

	mu     sync.Mutex
	leases map[string]clientv3.LeaseID // instance key → lease
}

// NewEtcdRegistry connects to the given etcd endpoints.
func NewEtcdRegistry(endpoints []string, dialTimeout time.Duration, logger *zap.Logger) (*EtcdRegistry, error) {
	c, err := clientv3.New(clientv3.Config{
		Endpoints:   endpoints,
		DialTimeout: dialTimeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EtcdRegistry{client: c, logger: logger, leases: make(map[string]clientv3.LeaseID)}, nil
}

// Register publishes instance under procedure with a lease of ttl seconds.
//
// The keep-alive runs on a background context: it has to outlive ctx,
// which usually only covers the registration call.
func (r *EtcdRegistry) Register(ctx context.Context, procedure string, instance Instance, ttl int64) error {
	val, err := json.Marshal(instance)
	if err != nil {
		return err
	}

	key := instanceKey(procedure, instance.Addr)

	// re-registering replaces the old lease, which also ends its keep-alive
	r.mu.Lock()
	old, had := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()
	if had {
		if _, err := r.client.Revoke(ctx, old); err != nil {
			return fmt.Errorf("revoke previous lease of %s: %w", key, err)
		}
	}

	lease, err := r.client.Grant(ctx, ttl)
	if err != nil {
		return err
	}

	if _, err := r.client.Put(ctx, key, string(val), clientv3.WithLease(lease.ID)); err != nil {
		return err
	}

	ch, err := r.client.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		return err
	}
	go func() {
		for range ch {
		}
		r.logger.Debug("registry: keep-alive stopped", zap.String("key", key))
	}()

	r.mu.Lock()
	r.leases[key] = lease.ID
	r.mu.Unlock()
	return nil
}

// Deregister removes the instance and revokes its lease, which also stops
// the keep-alive.
func (r *EtcdRegistry) Deregister(ctx context.Context, procedure string, addr string) error {
	key := instanceKey(procedure, addr)

	r.mu.Lock()
	id, ok := r.leases[key]
	delete(r.leases, key)
	r.mu.Unlock()

	if ok {
		if _, err := r.client.Revoke(ctx, id); err != nil {
			return err
		}
		return nil
	}
	_, err := r.client.Delete(ctx, key)
	return err
}

// Discover returns every live instance advertising procedure.
func (r *EtcdRegistry) Discover(ctx context.Context, procedure string) ([]Instance, error) {
	resp, err := r.client.Get(ctx, procedurePrefix(procedure), clientv3.WithPrefix())
	if err != nil {
		return nil, err
	}

	instances := make([]Instance, 0, len(resp.Kvs))
	for _, kv := range resp.Kvs {
		var instance Instance
		if err := json.Unmarshal(kv.Value, &instance); err != nil {
			r.logger.Warn("registry: skipping malformed entry", zap.ByteString("key", kv.Key), zap.Error(err))
			continue
		}
		instances = append(instances, instance)
	}
	return instances, nil
}

// Watch re-reads the instance list whenever anything under the procedure's
// prefix changes. The channel closes when ctx is done.
func (r *EtcdRegistry) Watch(ctx context.Context, procedure string) <-chan []Instance {
	ch := make(chan []Instance, 1)

	go func() {
		defer close(ch)
		watchChan := r.client.Watch(ctx, procedurePrefix(procedure), clientv3.WithPrefix())
		for range watchChan {
			instances, err := r.Discover(ctx, procedure)
			if err != nil {
				r.logger.Warn("registry: discover after watch event", zap.String("procedure", procedure), zap.Error(err))
				continue
			}
			select {
			case ch <- instances:
			case <-ctx.Done():
				return
			}
		}
	}()

	return ch
}

func (r *EtcdRegistry) Close() error {
	return r.client.Close()
}
