package message

import (
	"errors"
	"strings"
	"testing"

	"sync-rpc/rpcerr"
)

func TestPayloadValidate(t *testing.T) {
	cases := []struct {
		name    string
		payload Payload
		valid   bool
	}{
		{"absent body", Payload{Tag: 1}, true},
		{"present body", Payload{Tag: 1, Body: []byte("abc")}, true},
		{"empty but present body", Payload{Tag: 1, Body: []byte{}}, false},
	}

	for _, tc := range cases {
		err := tc.payload.Validate()
		if tc.valid && err != nil {
			t.Errorf("%s: expect valid, got %v", tc.name, err)
		}
		if !tc.valid && !errors.Is(err, rpcerr.ErrInconsistent) {
			t.Errorf("%s: expect ErrInconsistent, got %v", tc.name, err)
		}
	}
}

func TestPayloadClone(t *testing.T) {
	orig := Payload{Tag: -7, Body: []byte{1, 2, 3}}
	cp := orig.Clone()
	cp.Body[0] = 9

	if orig.Body[0] != 1 {
		t.Fatalf("clone shares its buffer with the original")
	}
	if (Payload{Tag: 3}).Clone().Body != nil {
		t.Fatalf("clone of an absent body must stay absent")
	}
}

func TestValidateName(t *testing.T) {
	valid := []string{"add2", "echo2", " ~", strings.Repeat("a", MaxNameLen)}
	for _, name := range valid {
		if err := ValidateName(name); err != nil {
			t.Errorf("ValidateName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", "tab\tname", "nul\x00", "del\x7f", "caf\xc3\xa9", strings.Repeat("a", MaxNameLen+1)}
	for _, name := range invalid {
		if err := ValidateName(name); !errors.Is(err, rpcerr.ErrInvalidName) {
			t.Errorf("ValidateName(%q) = %v, want ErrInvalidName", name, err)
		}
	}
}
