package main

import (
	"context"
	"errors"
	"fmt"
	"math"

	"sync-rpc/message"
	"sync-rpc/server"
)

var errOperand = errors.New("add2: body must hold exactly one operand byte")

// add2 adds the signed operand in body[0] to the tag. The result carries
// no body.
func add2(ctx context.Context, args message.Payload) (message.Payload, error) {
	if len(args.Body) != 1 {
		return message.Payload{}, errOperand
	}
	sum := int64(args.Tag) + int64(int8(args.Body[0]))
	if sum > math.MaxInt32 || sum < math.MinInt32 {
		return message.Payload{}, fmt.Errorf("add2: %d + %d overflows int32", args.Tag, int8(args.Body[0]))
	}
	return message.Payload{Tag: int32(sum)}, nil
}

func echo2(ctx context.Context, args message.Payload) (message.Payload, error) {
	return args.Clone(), nil
}

// registrar is satisfied by both *server.Server and *server.Registry.
type registrar interface {
	Register(name string, proc server.Procedure) error
}

// registerDemo installs the demo procedures in a fixed order so their
// handles are stable: add2 is 0, echo2 is 1.
func registerDemo(s registrar) error {
	for _, p := range []struct {
		name string
		proc server.Procedure
	}{
		{"add2", add2},
		{"echo2", echo2},
	} {
		if err := s.Register(p.name, p.proc); err != nil {
			return fmt.Errorf("register %s: %w", p.name, err)
		}
	}
	return nil
}
