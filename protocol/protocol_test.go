package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"sync-rpc/rpcerr"
)

// oneByteReader hands out at most one byte per Read, like a congested socket.
type oneByteReader struct {
	r io.Reader
}

func (o *oneByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return o.r.Read(p[:1])
}

// shortWriter accepts at most max bytes per Write and reports no error.
type shortWriter struct {
	buf bytes.Buffer
	max int
}

func (s *shortWriter) Write(p []byte) (int, error) {
	if len(p) > s.max {
		p = p[:s.max]
	}
	return s.buf.Write(p)
}

type stuckWriter struct{}

func (stuckWriter) Write(p []byte) (int, error) { return 0, nil }

func TestEncodeDecode(t *testing.T) {
	frame := &Frame{Type: MsgFindRequest, Body: []byte("add2")}

	var buf bytes.Buffer
	if err := Encode(&buf, frame); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	want := []byte{0, 0, 0, 9, 0, 'a', 'd', 'd', '2'}
	if !bytes.Equal(buf.Bytes(), want) {
		t.Fatalf("wire bytes mismatch: got %v, want %v", buf.Bytes(), want)
	}

	decoded, err := Decode(&buf, MaxFrameSize(DefaultMaxBodySize))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Type != frame.Type {
		t.Errorf("Type mismatch: got %v, want %v", decoded.Type, frame.Type)
	}
	if !bytes.Equal(decoded.Body, frame.Body) {
		t.Errorf("Body mismatch: got %q, want %q", decoded.Body, frame.Body)
	}
}

func TestDecodeEmptyBody(t *testing.T) {
	var buf bytes.Buffer
	if err := Encode(&buf, &Frame{Type: MsgCallError}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	if buf.Len() != HeaderSize {
		t.Fatalf("expect %d bytes on the wire, got %d", HeaderSize, buf.Len())
	}

	decoded, err := Decode(&buf, MaxFrameSize(DefaultMaxBodySize))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Type != MsgCallError || decoded.Body != nil {
		t.Fatalf("expect empty CALL_ERROR, got %v with %d body bytes", decoded.Type, len(decoded.Body))
	}
}

func TestDecodeLargeBodyOneByteAtATime(t *testing.T) {
	body := make([]byte, 64*1024)
	for i := range body {
		body[i] = byte(i % 251)
	}

	var buf bytes.Buffer
	if err := Encode(&buf, &Frame{Type: MsgCallResponse, Body: body}); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(&oneByteReader{r: &buf}, MaxFrameSize(DefaultMaxBodySize))
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(decoded.Body, body) {
		t.Fatalf("large body mismatch after fragmented read")
	}
}

func TestDecodeBackToBackFrames(t *testing.T) {
	var buf bytes.Buffer
	Encode(&buf, &Frame{Type: MsgFindRequest, Body: []byte("a")})
	Encode(&buf, &Frame{Type: MsgFindRequest, Body: []byte("bc")})

	first, err := Decode(&buf, 64)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Decode(&buf, 64)
	if err != nil {
		t.Fatal(err)
	}
	if string(first.Body) != "a" || string(second.Body) != "bc" {
		t.Fatalf("frames bled into each other: %q, %q", first.Body, second.Body)
	}

	_, err = Decode(&buf, 64)
	if !errors.Is(err, io.EOF) || !errors.Is(err, rpcerr.ErrTransport) {
		t.Fatalf("expect transport EOF on drained stream, got %v", err)
	}
}

func TestEncodeShortWrites(t *testing.T) {
	w := &shortWriter{max: 3}
	frame := &Frame{Type: MsgCallResponse, Body: bytes.Repeat([]byte{0xab}, 1000)}
	if err := Encode(w, frame); err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	decoded, err := Decode(&w.buf, 2048)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if !bytes.Equal(decoded.Body, frame.Body) {
		t.Fatalf("body mismatch after short writes")
	}
}

func TestEncodeStuckWriter(t *testing.T) {
	err := Encode(stuckWriter{}, &Frame{Type: MsgCallError})
	if !errors.Is(err, io.ErrShortWrite) || !errors.Is(err, rpcerr.ErrTransport) {
		t.Fatalf("expect transport short write, got %v", err)
	}
}

func TestDecodeTruncatedFrame(t *testing.T) {
	raw := []byte{0, 0, 0, 10, byte(MsgFindRequest), 'a', 'b'}
	_, err := Decode(bytes.NewReader(raw), 64)
	if !errors.Is(err, io.ErrUnexpectedEOF) || !errors.Is(err, rpcerr.ErrTransport) {
		t.Fatalf("expect unexpected EOF, got %v", err)
	}

	_, err = Decode(bytes.NewReader(raw[:2]), 64)
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Fatalf("expect unexpected EOF inside the prefix, got %v", err)
	}
}

func TestDecodeInvalidLength(t *testing.T) {
	cases := [][]byte{
		{0, 0, 0, 4, 0},             // shorter than the header
		{0, 0, 0, 0},                // zero
		{0x7f, 0xff, 0xff, 0xff, 0}, // above limit
	}
	for _, raw := range cases {
		_, err := Decode(bytes.NewReader(raw), 1024)
		if !errors.Is(err, rpcerr.ErrProtocolViolation) {
			t.Errorf("Decode(%v): expect protocol violation, got %v", raw, err)
		}
	}
}

func TestDecodeUnknownType(t *testing.T) {
	raw := []byte{0, 0, 0, 6, 9, 0}
	_, err := Decode(bytes.NewReader(raw), 64)
	if !errors.Is(err, rpcerr.ErrProtocolViolation) {
		t.Fatalf("expect protocol violation, got %v", err)
	}
}

func TestMaxFrameSize(t *testing.T) {
	if got := MaxFrameSize(100); got != 100+CallOverhead {
		t.Fatalf("MaxFrameSize(100) = %d", got)
	}
	if got := MaxFrameSize(1 << 40); got != 1<<32-1 {
		t.Fatalf("MaxFrameSize should saturate, got %d", got)
	}
}

func TestMaxResponseFrameSize(t *testing.T) {
	// a CALL_RESPONSE with a 100-byte body is one byte shorter than the
	// CALL_REQUEST carrying the same body
	if got := MaxResponseFrameSize(100); got != MaxFrameSize(100)-1 {
		t.Fatalf("MaxResponseFrameSize(100) = %d", got)
	}
	if got := MaxResponseFrameSize(1 << 40); got != 1<<32-1 {
		t.Fatalf("MaxResponseFrameSize should saturate, got %d", got)
	}
}
