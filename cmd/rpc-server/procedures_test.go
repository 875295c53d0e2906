package main

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sync-rpc/message"
	"sync-rpc/server"
)

func TestAdd2(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		tag     int32
		operand byte
		want    int32
	}{
		{127, 127, 254},
		{-127, 0x81, -254},
		{0, 0, 0},
		{math.MaxInt32, 0xff, math.MaxInt32 - 1},
	}
	for _, tt := range tests {
		got, err := add2(ctx, message.Payload{Tag: tt.tag, Body: []byte{tt.operand}})
		require.NoError(t, err)
		assert.Equal(t, tt.want, got.Tag)
		assert.Nil(t, got.Body)
		assert.NoError(t, got.Validate())
	}
}

func TestAdd2Failures(t *testing.T) {
	ctx := context.Background()

	_, err := add2(ctx, message.Payload{Tag: 1})
	assert.ErrorIs(t, err, errOperand)

	_, err = add2(ctx, message.Payload{Tag: 1, Body: []byte{1, 2}})
	assert.ErrorIs(t, err, errOperand)

	_, err = add2(ctx, message.Payload{Tag: math.MaxInt32, Body: []byte{1}})
	assert.ErrorContains(t, err, "overflows")

	_, err = add2(ctx, message.Payload{Tag: math.MinInt32, Body: []byte{0xff}})
	assert.ErrorContains(t, err, "overflows")
}

func TestEcho2Copies(t *testing.T) {
	args := message.Payload{Tag: 1234, Body: []byte("abc")}
	got, err := echo2(context.Background(), args)
	require.NoError(t, err)
	assert.Equal(t, args, got)

	got.Body[0] = 'x'
	assert.Equal(t, "abc", string(args.Body))
}

func TestRegisterDemoHandles(t *testing.T) {
	r := server.NewRegistry()
	require.NoError(t, registerDemo(r))

	index, ok := r.Resolve("add2")
	require.True(t, ok)
	assert.Equal(t, 0, index)

	index, ok = r.Resolve("echo2")
	require.True(t, ok)
	assert.Equal(t, 1, index)
}
