package transport

import (
	"context"
	"errors"
	"net"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithDeadlinesReadTimeout(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()

	conn := WithDeadlines(a, 30*time.Millisecond, 0)
	defer conn.Close()

	buf := make([]byte, 1)
	_, err := conn.Read(buf)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrDeadlineExceeded), "expect deadline exceeded, got %v", err)
}

func TestWithDeadlinesPassThrough(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	assert.Same(t, a, WithDeadlines(a, 0, 0))

	conn := WithDeadlines(a, time.Second, time.Second)
	go b.Write([]byte("hi"))

	buf := make([]byte, 2)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(buf[:n]))
}

func TestHardDeadlineCapsOperationTimeout(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()

	conn := WithDeadlines(a, time.Hour, 0)
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	reset := ApplyContext(ctx, conn)
	defer reset()

	start := time.Now()
	_, err := conn.Read(make([]byte, 1))
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestDial(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		c, err := ln.Accept()
		if err == nil {
			c.Write([]byte("x"))
			c.Close()
		}
	}()

	conn, err := Dial(context.Background(), ln.Addr().String(), Config{DialTimeout: time.Second, ReadTimeout: time.Second})
	require.NoError(t, err)
	defer conn.Close()

	buf := make([]byte, 1)
	_, err = conn.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, byte('x'), buf[0])
}

func TestApplyContextWithoutDeadline(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	// no deadline on ctx: nothing to arm, clearing is a no-op
	ApplyContext(context.Background(), a)()
}

func TestApplyContextCancel(t *testing.T) {
	a, b := net.Pipe()
	defer a.Close()
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	reset := ApplyContext(ctx, a)

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := a.Read(make([]byte, 1))
	require.ErrorIs(t, err, os.ErrDeadlineExceeded)

	reset()
	go b.Write([]byte("x"))
	n, err := a.Read(make([]byte, 1))
	require.NoError(t, err, "reset should clear the expired deadline")
	assert.Equal(t, 1, n)
}
