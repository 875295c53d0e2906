package server

import (
	"context"
	"fmt"
	"sync"

	"sync-rpc/codec"
	"sync-rpc/message"
	"sync-rpc/rpcerr"
)

// Procedure is a registered procedure body. Returning an error, or a result
// that fails validation, makes the call fail with CALL_ERROR. A procedure
// must not modify args.Body after returning.
type Procedure func(ctx context.Context, args message.Payload) (message.Payload, error)

// MaxProcedures is the table capacity imposed by one-byte handles.
const MaxProcedures = codec.MaxHandle + 1

type entry struct {
	name string
	proc Procedure
}

// Registry is an ordered table of procedures. Indices are assigned in
// registration order and never change; registering an existing name swaps
// the procedure in place.
type Registry struct {
	mu      sync.RWMutex
	entries []entry
	index   map[string]int
}

func NewRegistry() *Registry {
	return &Registry{index: make(map[string]int)}
}

// Register adds or replaces the procedure for name.
func (r *Registry) Register(name string, proc Procedure) error {
	if err := message.ValidateName(name); err != nil {
		return err
	}
	if proc == nil {
		return fmt.Errorf("%w: nil procedure for %q", rpcerr.ErrInvalidArgument, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if i, ok := r.index[name]; ok {
		r.entries[i].proc = proc
		return nil
	}
	if len(r.entries) >= MaxProcedures {
		return fmt.Errorf("%w: %d procedures registered", rpcerr.ErrCapacityExceeded, len(r.entries))
	}
	r.index[name] = len(r.entries)
	r.entries = append(r.entries, entry{name: name, proc: proc})
	return nil
}

// Resolve returns the handle index for an exact, case-sensitive name match.
func (r *Registry) Resolve(name string) (int, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[name]
	return i, ok
}

// Name returns the name registered at index.
func (r *Registry) Name(index int) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if index < 0 || index >= len(r.entries) {
		return "", false
	}
	return r.entries[index].name, true
}

// Invoke runs the procedure at index and returns its result unchanged.
func (r *Registry) Invoke(ctx context.Context, index int, args message.Payload) (message.Payload, error) {
	r.mu.RLock()
	if index < 0 || index >= len(r.entries) {
		n := len(r.entries)
		r.mu.RUnlock()
		return message.Payload{}, fmt.Errorf("%w: index %d, %d registered", rpcerr.ErrUnknownHandle, index, n)
	}
	proc := r.entries[index].proc
	r.mu.RUnlock()

	return proc(ctx, args)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Names lists registered names in index order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}
