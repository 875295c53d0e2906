package server

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sync-rpc/message"
	"sync-rpc/rpcerr"
)

func constProc(tag int32) Procedure {
	return func(ctx context.Context, args message.Payload) (message.Payload, error) {
		return message.Payload{Tag: tag}, nil
	}
}

func TestRegistryReplaceKeepsIndex(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("echo2", constProc(0)))
	require.NoError(t, r.Register("add2", constProc(1)))
	require.NoError(t, r.Register("add2", constProc(2)))

	assert.Equal(t, 2, r.Len())
	assert.Equal(t, []string{"echo2", "add2"}, r.Names())

	index, ok := r.Resolve("add2")
	require.True(t, ok)
	assert.Equal(t, 1, index)

	result, err := r.Invoke(context.Background(), index, message.Payload{})
	require.NoError(t, err)
	assert.Equal(t, int32(2), result.Tag, "second registration should win")
}

func TestRegistryResolveIsExact(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("add2", constProc(0)))

	for _, name := range []string{"ADD2", "add", "add2 ", "missing"} {
		_, ok := r.Resolve(name)
		assert.False(t, ok, name)
	}
}

func TestRegistryRejects(t *testing.T) {
	r := NewRegistry()

	assert.ErrorIs(t, r.Register("", constProc(0)), rpcerr.ErrInvalidName)
	assert.ErrorIs(t, r.Register("bad\x01", constProc(0)), rpcerr.ErrInvalidName)
	assert.ErrorIs(t, r.Register("nil", nil), rpcerr.ErrInvalidArgument)
	assert.Equal(t, 0, r.Len())
}

func TestRegistryCapacity(t *testing.T) {
	r := NewRegistry()
	for i := 0; i < MaxProcedures; i++ {
		require.NoError(t, r.Register(fmt.Sprintf("p%d", i), constProc(int32(i))))
	}

	assert.ErrorIs(t, r.Register("one-too-many", constProc(0)), rpcerr.ErrCapacityExceeded)
	// replacing an existing name still works when full
	assert.NoError(t, r.Register("p0", constProc(99)))
}

func TestRegistryInvokeUnknown(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("add2", constProc(0)))

	for _, index := range []int{-1, 1, 200} {
		_, err := r.Invoke(context.Background(), index, message.Payload{})
		assert.ErrorIs(t, err, rpcerr.ErrUnknownHandle, "index %d", index)
	}

	_, ok := r.Name(-1)
	assert.False(t, ok)
	name, ok := r.Name(0)
	assert.True(t, ok)
	assert.Equal(t, "add2", name)
}
