package codec

import (
	"bytes"
	"testing"

	"sync-rpc/message"
)

func BenchmarkCallRequest(b *testing.B) {
	p := message.Payload{Tag: 1234, Body: bytes.Repeat([]byte("x"), 256)}

	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		f, err := EncodeCallRequest(3, p)
		if err != nil {
			b.Fatal(err)
		}
		if _, _, err := DecodeCallRequest(f); err != nil {
			b.Fatal(err)
		}
	}
}
