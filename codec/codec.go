// Package codec translates between in-memory messages and protocol frames.
//
// Everything here is pure: no I/O, no shared state. Each message type has
// an Encode/Decode pair whose body layouts are:
//
//	FIND_REQUEST   name bytes
//	FIND_RESPONSE  i8 handle (-1 = not found)
//	CALL_REQUEST   i8 handle | i64 tag | u64 bodyLen | body
//	CALL_RESPONSE  i64 tag | u64 bodyLen | body
//	CALL_ERROR     (empty)
//
// The tag is a 32-bit value sign-extended to 64 bits on the wire and
// truncated back on decode, so negative tags round-trip exactly.
package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"sync-rpc/message"
	"sync-rpc/protocol"
	"sync-rpc/rpcerr"
)

// NotFound is the FIND_RESPONSE sentinel for an unregistered name.
const NotFound = -1

// MaxHandle is the largest index a one-byte handle can carry.
const MaxHandle = math.MaxInt8

const payloadHeaderSize = 8 + 8 // tag + body length

func EncodeFindRequest(name string) (*protocol.Frame, error) {
	if err := message.ValidateName(name); err != nil {
		return nil, err
	}
	return &protocol.Frame{Type: protocol.MsgFindRequest, Body: []byte(name)}, nil
}

// DecodeFindRequest extracts the requested name. A name that fails
// validation is returned together with ErrInvalidName so the server can
// answer "not found" without dropping the connection.
func DecodeFindRequest(f *protocol.Frame) (string, error) {
	if err := expect(f, protocol.MsgFindRequest); err != nil {
		return "", err
	}
	name := string(f.Body)
	return name, message.ValidateName(name)
}

// EncodeFindResponse carries either a handle in [0, MaxHandle] or NotFound.
func EncodeFindResponse(handle int) (*protocol.Frame, error) {
	if handle < NotFound || handle > MaxHandle {
		return nil, fmt.Errorf("%w: handle %d does not fit the wire", rpcerr.ErrInvalidArgument, handle)
	}
	return &protocol.Frame{Type: protocol.MsgFindResponse, Body: []byte{byte(int8(handle))}}, nil
}

// DecodeFindResponse returns the handle and whether the name was found.
func DecodeFindResponse(f *protocol.Frame) (handle int, found bool, err error) {
	if err := expect(f, protocol.MsgFindResponse); err != nil {
		return 0, false, err
	}
	if len(f.Body) != 1 {
		return 0, false, rpcerr.Protocolf("FIND_RESPONSE body of %d bytes", len(f.Body))
	}
	handle = int(int8(f.Body[0]))
	switch {
	case handle == NotFound:
		return NotFound, false, nil
	case handle < 0:
		return 0, false, rpcerr.Protocolf("FIND_RESPONSE carries negative handle %d", handle)
	}
	return handle, true, nil
}

func EncodeCallRequest(handle int, p message.Payload) (*protocol.Frame, error) {
	if handle < 0 || handle > MaxHandle {
		return nil, fmt.Errorf("%w: %w: %d", rpcerr.ErrInvalidArgument, rpcerr.ErrUnknownHandle, handle)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	body := make([]byte, 1+payloadHeaderSize+len(p.Body))
	body[0] = byte(int8(handle))
	putPayload(body[1:], p)
	return &protocol.Frame{Type: protocol.MsgCallRequest, Body: body}, nil
}

// DecodeCallRequest splits a CALL_REQUEST into handle and arguments.
//
// A body too short for the fixed fields is a ProtocolViolation. A declared
// body length that disagrees with the frame is reported as ErrInconsistent;
// the handle is still returned so the caller can apply its own checks first.
func DecodeCallRequest(f *protocol.Frame) (int, message.Payload, error) {
	if err := expect(f, protocol.MsgCallRequest); err != nil {
		return 0, message.Payload{}, err
	}
	if len(f.Body) < 1+payloadHeaderSize {
		return 0, message.Payload{}, rpcerr.Protocolf("CALL_REQUEST body of %d bytes", len(f.Body))
	}
	handle := int(int8(f.Body[0]))
	p, err := readPayload(f.Body[1:])
	return handle, p, err
}

func EncodeCallResponse(p message.Payload) (*protocol.Frame, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	body := make([]byte, payloadHeaderSize+len(p.Body))
	putPayload(body, p)
	return &protocol.Frame{Type: protocol.MsgCallResponse, Body: body}, nil
}

func EncodeCallError() *protocol.Frame {
	return &protocol.Frame{Type: protocol.MsgCallError}
}

// EncodeCallResult maps a handler outcome onto CALL_RESPONSE or CALL_ERROR.
// A result that fails validation becomes CALL_ERROR; the returned error
// explains why, and the frame is always safe to send.
func EncodeCallResult(p message.Payload, err error) (*protocol.Frame, error) {
	if err != nil {
		return EncodeCallError(), err
	}
	f, err := EncodeCallResponse(p)
	if err != nil {
		return EncodeCallError(), err
	}
	return f, nil
}

// DecodeCallResponse returns the result payload, ErrRemoteFailure for
// CALL_ERROR, or a ProtocolViolation for anything else.
func DecodeCallResponse(f *protocol.Frame) (message.Payload, error) {
	switch f.Type {
	case protocol.MsgCallError:
		if len(f.Body) != 0 {
			return message.Payload{}, rpcerr.Protocolf("CALL_ERROR carries %d body bytes", len(f.Body))
		}
		return message.Payload{}, rpcerr.ErrRemoteFailure
	case protocol.MsgCallResponse:
		if len(f.Body) < payloadHeaderSize {
			return message.Payload{}, rpcerr.Protocolf("CALL_RESPONSE body of %d bytes", len(f.Body))
		}
		return readPayload(f.Body)
	}
	return message.Payload{}, rpcerr.Protocolf("expect CALL_RESPONSE or CALL_ERROR, got %v", f.Type)
}

func putPayload(buf []byte, p message.Payload) {
	binary.BigEndian.PutUint64(buf[0:8], uint64(int64(p.Tag)))
	binary.BigEndian.PutUint64(buf[8:16], uint64(len(p.Body)))
	copy(buf[payloadHeaderSize:], p.Body)
}

// readPayload decodes tag, length and body. buf holds at least
// payloadHeaderSize bytes. The body is copied so the result owns it.
func readPayload(buf []byte) (message.Payload, error) {
	p := message.Payload{Tag: int32(int64(binary.BigEndian.Uint64(buf[0:8])))}
	declared := binary.BigEndian.Uint64(buf[8:16])
	rest := buf[payloadHeaderSize:]
	if declared != uint64(len(rest)) {
		return message.Payload{}, fmt.Errorf("%w: declared body length %d, frame carries %d",
			rpcerr.ErrInconsistent, declared, len(rest))
	}
	if declared > 0 {
		p.Body = make([]byte, declared)
		copy(p.Body, rest)
	}
	return p, p.Validate()
}

func expect(f *protocol.Frame, t protocol.MsgType) error {
	if f == nil {
		return rpcerr.Protocolf("missing frame, expect %v", t)
	}
	if f.Type != t {
		return rpcerr.Protocolf("expect %v, got %v", t, f.Type)
	}
	return nil
}
