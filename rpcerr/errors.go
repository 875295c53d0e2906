// Package rpcerr defines the failure taxonomy shared by client and server.
//
// Every failure surfaced by the library wraps one of the sentinels below, so
// callers classify with errors.Is. Transport and ProtocolViolation end the
// session; the rest are scoped to a single request.
package rpcerr

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidName       = errors.New("rpc: invalid procedure name")
	ErrNotFound          = errors.New("rpc: procedure not found")
	ErrUnknownHandle     = errors.New("rpc: unknown handle")
	ErrInconsistent      = errors.New("rpc: inconsistent payload")
	ErrRemoteFailure     = errors.New("rpc: remote procedure failed")
	ErrTransport         = errors.New("rpc: transport failure")
	ErrProtocolViolation = errors.New("rpc: protocol violation")
	ErrInvalidArgument   = errors.New("rpc: invalid argument")
	ErrCapacityExceeded  = errors.New("rpc: registry capacity exceeded")

	// Raised by middleware in front of a procedure. The peer only ever sees
	// CALL_ERROR for these.
	ErrRateLimited = errors.New("rpc: rate limit exceeded")
	ErrTimeout     = errors.New("rpc: procedure timed out")
)

// Transport marks err as a connection-level I/O failure. It returns nil for a
// nil err and leaves errors that are already classified as transport alone.
func Transport(err error) error {
	if err == nil || errors.Is(err, ErrTransport) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrTransport, err)
}

// Protocolf builds a ProtocolViolation with a formatted reason.
func Protocolf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrProtocolViolation, fmt.Sprintf(format, args...))
}

// IsFatal reports whether err must terminate the session it occurred on.
func IsFatal(err error) bool {
	return errors.Is(err, ErrTransport) || errors.Is(err, ErrProtocolViolation)
}
