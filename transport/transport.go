// Package transport provides the byte streams the rpc core runs over.
//
// The core only needs an ordered, reliable, bidirectional stream with
// blocking Read/Write. This package dials TCP connections and optionally
// arms a fresh deadline before every read and write, so a stalled peer turns
// into an I/O error instead of a hung session.
package transport

import (
	"context"
	"net"
	"sync/atomic"
	"time"
)

// Stream is what client and server need from a connection.
type Stream interface {
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	Close() error
}

// Config holds dialing and per-operation timeouts. Zero disables a timeout.
type Config struct {
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	KeepAlive    time.Duration
}

// Dial opens a TCP connection to address and applies cfg's deadlines.
func Dial(ctx context.Context, address string, cfg Config) (net.Conn, error) {
	d := net.Dialer{Timeout: cfg.DialTimeout, KeepAlive: cfg.KeepAlive}
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	return WithDeadlines(conn, cfg.ReadTimeout, cfg.WriteTimeout), nil
}

// WithDeadlines wraps conn so each Read and Write gets its own deadline.
// It returns conn unchanged when both timeouts are zero.
func WithDeadlines(conn net.Conn, read, write time.Duration) net.Conn {
	if read <= 0 && write <= 0 {
		return conn
	}
	return &deadlineConn{Conn: conn, read: read, write: write}
}

type deadlineConn struct {
	net.Conn
	read  time.Duration
	write time.Duration
	// hard is an absolute deadline set through SetDeadline, in UnixNano,
	// 0 for none. Per-operation deadlines never extend past it. It may be
	// set from another goroutine while an operation is blocked.
	hard atomic.Int64
}

func (c *deadlineConn) SetDeadline(t time.Time) error {
	if t.IsZero() {
		c.hard.Store(0)
	} else {
		c.hard.Store(t.UnixNano())
	}
	return c.Conn.SetDeadline(t)
}

func (c *deadlineConn) next(timeout time.Duration) time.Time {
	d := time.Now().Add(timeout)
	if hard := c.hard.Load(); hard != 0 && hard < d.UnixNano() {
		return time.Unix(0, hard)
	}
	return d
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if c.read > 0 {
		if err := c.Conn.SetReadDeadline(c.next(c.read)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if c.write > 0 {
		if err := c.Conn.SetWriteDeadline(c.next(c.write)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(p)
}

// deadliner is implemented by streams that support deadlines, net.Conn
// among them.
type deadliner interface {
	SetDeadline(t time.Time) error
}

// ApplyContext bounds blocking I/O on s by ctx: ctx's deadline becomes the
// stream deadline, and cancelling ctx expires it immediately. Streams that
// cannot take deadlines are left alone. The returned function must be called
// once the operation is over; it clears the deadline again.
func ApplyContext(ctx context.Context, s Stream) func() {
	dl, ok := s.(deadliner)
	if !ok || ctx.Done() == nil {
		return func() {}
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := dl.SetDeadline(deadline); err != nil {
			return func() {}
		}
	}
	fired := make(chan struct{})
	stop := context.AfterFunc(ctx, func() {
		dl.SetDeadline(time.Unix(1, 0))
		close(fired)
	})
	return func() {
		if !stop() {
			<-fired
		}
		dl.SetDeadline(time.Time{})
	}
}
