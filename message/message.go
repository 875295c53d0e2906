// Package message defines the values exchanged between client and server.
//
// A Payload is the application-level (tag, body) pair carried by every call
// and every successful response. It gets encoded by the codec layer and
// wrapped in a protocol frame for transmission.
package message

import (
	"fmt"

	"sync-rpc/rpcerr"
)

// MaxNameLen is the longest procedure name accepted anywhere.
const MaxNameLen = 1000

// Payload carries the data for a single call or response.
//
//   - Tag is application defined and travels sign-extended to 64 bits.
//   - Body is nil when there is no data. A non-nil empty Body is inconsistent.
type Payload struct {
	Tag  int32
	Body []byte
}

// Validate is the consistency check applied before every encode and after
// every decode: a body is present if and only if it is non-empty.
func (p Payload) Validate() error {
	if (len(p.Body) == 0) != (p.Body == nil) {
		return fmt.Errorf("%w: zero-length body must be absent", rpcerr.ErrInconsistent)
	}
	return nil
}

// Clone returns a deep copy so the receiver can be handed to the next stage
// without sharing its buffer.
func (p Payload) Clone() Payload {
	if p.Body == nil {
		return Payload{Tag: p.Tag}
	}
	body := make([]byte, len(p.Body))
	copy(body, p.Body)
	return Payload{Tag: p.Tag, Body: body}
}

// ValidateName checks a procedure name: 1..MaxNameLen bytes, each a
// printable ASCII character in [32,126].
func ValidateName(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("%w: empty", rpcerr.ErrInvalidName)
	}
	if len(name) > MaxNameLen {
		return fmt.Errorf("%w: %d bytes exceeds %d", rpcerr.ErrInvalidName, len(name), MaxNameLen)
	}
	for i := 0; i < len(name); i++ {
		if c := name[i]; c < 32 || c > 126 {
			return fmt.Errorf("%w: byte 0x%02x at offset %d", rpcerr.ErrInvalidName, c, i)
		}
	}
	return nil
}

// Request is what a middleware chain sees for one call: the resolved
// procedure, the handle it was invoked through, and the decoded arguments.
type Request struct {
	Procedure string
	Handle    int
	Args      Payload
}
