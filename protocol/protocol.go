// Package protocol implements the length-prefixed binary frame used by sync-rpc.
//
// A stream socket gives no guarantee that one write arrives as one read, so
// every frame declares its own total length up front. The receiver reads the
// 4-byte prefix, then keeps reading until exactly that many bytes arrived.
//
// Frame format (network byte order):
//
//	0          4    5
//	┌──────────┬────┬──────────────────────┐
//	│ frameLen │type│   body ...           │
//	│  uint32  │ u8 │ frameLen - 5 bytes   │
//	└──────────┴────┴──────────────────────┘
//
// frameLen counts the whole frame, including the length field itself.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"sync-rpc/rpcerr"
)

const (
	LenFieldSize = 4
	HeaderSize   = LenFieldSize + 1 // length + type

	// CallOverhead is the fixed part of a CALL_REQUEST: header, handle byte,
	// 8-byte tag and 8-byte body length.
	CallOverhead = HeaderSize + 1 + 8 + 8

	// DefaultMaxBodySize bounds the payload body a peer may make us allocate.
	DefaultMaxBodySize = 1 << 20
)

// MsgType identifies the frame body layout.
type MsgType byte

const (
	MsgFindRequest  MsgType = 0 // Client → Server: resolve a name
	MsgCallRequest  MsgType = 1 // Client → Server: invoke by handle
	MsgFindResponse MsgType = 2 // Server → Client: handle index or -1
	MsgCallResponse MsgType = 3 // Server → Client: result payload
	MsgCallError    MsgType = 4 // Server → Client: call failed, no payload
)

func (t MsgType) Valid() bool {
	return t <= MsgCallError
}

func (t MsgType) String() string {
	switch t {
	case MsgFindRequest:
		return "FIND_REQUEST"
	case MsgCallRequest:
		return "CALL_REQUEST"
	case MsgFindResponse:
		return "FIND_RESPONSE"
	case MsgCallResponse:
		return "CALL_RESPONSE"
	case MsgCallError:
		return "CALL_ERROR"
	}
	return fmt.Sprintf("MsgType(%d)", byte(t))
}

// Frame is one complete message. It is built right before a write and
// dropped right after.
type Frame struct {
	Type MsgType
	Body []byte
}

// Len returns the encoded size of f, prefix included.
func (f *Frame) Len() int {
	return HeaderSize + len(f.Body)
}

// Bytes returns the wire encoding of f.
func (f *Frame) Bytes() ([]byte, error) {
	if uint64(f.Len()) > math.MaxUint32 {
		return nil, fmt.Errorf("%w: frame of %d bytes", rpcerr.ErrInvalidArgument, f.Len())
	}
	buf := make([]byte, f.Len())
	binary.BigEndian.PutUint32(buf[0:4], uint32(len(buf)))
	buf[4] = byte(f.Type)
	copy(buf[HeaderSize:], f.Body)
	return buf, nil
}

// MaxFrameSize returns the largest frame a peer may send when call bodies
// are limited to maxBody bytes.
func MaxFrameSize(maxBody uint64) uint32 {
	if maxBody > math.MaxUint32-CallOverhead {
		return math.MaxUint32
	}
	return uint32(maxBody) + CallOverhead
}

// MaxResponseFrameSize is MaxFrameSize for frames sent by a server, which
// carry no handle byte.
func MaxResponseFrameSize(maxBody uint64) uint32 {
	if maxBody > math.MaxUint32-(CallOverhead-1) {
		return math.MaxUint32
	}
	return uint32(maxBody) + CallOverhead - 1
}

// Encode writes the complete frame to w, looping until every byte is
// accepted. The caller owns w exclusively for the duration of the call.
func Encode(w io.Writer, f *Frame) error {
	buf, err := f.Bytes()
	if err != nil {
		return err
	}
	return rpcerr.Transport(writeFull(w, buf))
}

// Decode reads one complete frame from r.
//
// The declared length is checked against maxFrame before anything is
// allocated. A clean end-of-stream before the first byte is reported as a
// transport error wrapping io.EOF; a stream cut mid-frame wraps
// io.ErrUnexpectedEOF.
func Decode(r io.Reader, maxFrame uint32) (*Frame, error) {
	var prefix [LenFieldSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, rpcerr.Transport(err)
	}

	frameLen := binary.BigEndian.Uint32(prefix[:])
	if frameLen < HeaderSize {
		return nil, rpcerr.Protocolf("declared frame length %d is shorter than the header", frameLen)
	}
	if frameLen > maxFrame {
		return nil, rpcerr.Protocolf("declared frame length %d exceeds limit %d", frameLen, maxFrame)
	}

	rest := make([]byte, frameLen-LenFieldSize)
	if _, err := io.ReadFull(r, rest); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, rpcerr.Transport(err)
	}

	f := &Frame{Type: MsgType(rest[0])}
	if !f.Type.Valid() {
		return nil, rpcerr.Protocolf("unknown message type %d", rest[0])
	}
	if len(rest) > 1 {
		f.Body = rest[1:]
	}
	return f, nil
}

// writeFull keeps writing until buf is drained. A writer that reports
// progress of zero bytes without an error is treated as a short write.
func writeFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		buf = buf[n:]
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}
	return nil
}
