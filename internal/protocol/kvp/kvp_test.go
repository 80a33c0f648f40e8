package kvp

import (
	"bytes"
	"testing"

	"github.com/tturner/wiredecode/internal/diag"
	"github.com/tturner/wiredecode/internal/protocol"
	"github.com/tturner/wiredecode/internal/reassembly"
)

var scenarioA = []byte{
	0x01, 0x00, 0x00, 0x00, 0x0B,
	'f', 'u', 'n', 'c', 0x00,
	0x00, 0x00, 0x00, 0x01,
	's', 0x00,
}

func decode(b []byte) protocol.Result {
	return protocol.DecodeMessage(New(), reassembly.Message{Bytes: b, Valid: true}, nil)
}

func TestDecodeSingleParam(t *testing.T) {
	r := decode(scenarioA)
	if len(r.Diagnostics) != 0 {
		t.Fatalf("diagnostics = %v", r.Diagnostics)
	}
	if !r.ChecksumValid {
		t.Errorf("checksum not valid")
	}
	if len(r.Fields) != 1 {
		t.Fatalf("fields = %d, want 1", len(r.Fields))
	}
	f := r.Fields[0]
	if f.Name != "func" || f.Value != "s" {
		t.Errorf("field = %s=%v, want func=s", f.Name, f.Value)
	}
	if f.Offset != 14 || f.Length != 1 {
		t.Errorf("field range = %d+%d, want 14+1", f.Offset, f.Length)
	}
}

func TestFramingScenarioLength(t *testing.T) {
	res := Framing.Resolve(scenarioA[:5])
	if res.N != len(scenarioA) {
		t.Fatalf("resolved length = %d, want %d", res.N, len(scenarioA))
	}
}

func TestChecksumIsolation(t *testing.T) {
	corrupt := append([]byte(nil), scenarioA...)
	corrupt[0] = 0x7F
	r := decode(corrupt)
	if r.ChecksumValid {
		t.Errorf("corrupt checksum reported valid")
	}
	if len(r.Diagnostics) != 1 || r.Diagnostics[0].Kind != diag.ChecksumMismatch {
		t.Fatalf("diagnostics = %v, want only ChecksumMismatch", r.Diagnostics)
	}
	clean := decode(scenarioA)
	if len(r.Fields) != len(clean.Fields) || r.Fields[0].Display != clean.Fields[0].Display {
		t.Errorf("fields changed by checksum corruption: %+v", r.Fields)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	params := []Param{
		{Name: "func", Value: []byte("s")},
		{Name: "session", Value: []byte("4f2a")},
		{Name: "login_time", Value: []byte("1700000000.25")},
		{Name: "empty", Value: nil},
		{Name: "bin", Value: []byte{0x00, 0x01, 0xFE}},
	}
	frame := Encode(params...)
	if !bytes.Equal(Encode(Param{Name: "func", Value: []byte("s")}), scenarioA) {
		t.Fatalf("encoder does not reproduce the reference frame")
	}

	r := decode(frame)
	if len(r.Diagnostics) != 0 || !r.ChecksumValid {
		t.Fatalf("diagnostics = %v checksum %v", r.Diagnostics, r.ChecksumValid)
	}
	if len(r.Fields) != len(params) {
		t.Fatalf("fields = %d, want %d", len(r.Fields), len(params))
	}
	for i, p := range params {
		if r.Fields[i].Name != p.Name || !bytes.Equal(r.Fields[i].Raw, p.Value) {
			t.Errorf("field %d = %s %x, want %s %x", i, r.Fields[i].Name, r.Fields[i].Raw, p.Name, p.Value)
		}
	}
	if got := r.Fields[2].Display; got != "2023-11-14T22:13:20.25Z" {
		t.Errorf("login_time = %q", got)
	}
}

func TestDeclaredLengthMismatch(t *testing.T) {
	tests := []struct {
		name     string
		frame    []byte
		fields   int
		trailing bool
	}{
		{name: "truncated", frame: scenarioA[:12], fields: 1},
		{name: "extra bytes", frame: append(append([]byte(nil), scenarioA...), 0xAA, 0xBB), fields: 2, trailing: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := decode(tt.frame)
			if !r.Diagnostics.Has(diag.MalformedLength) {
				t.Fatalf("diagnostics = %v, want MalformedLength", r.Diagnostics)
			}
			if len(r.Fields) != tt.fields {
				t.Errorf("fields = %d, want %d", len(r.Fields), tt.fields)
			}
			if r.Diagnostics.Has(diag.TrailingData) != tt.trailing {
				t.Errorf("diagnostics = %v", r.Diagnostics)
			}
		})
	}
}

func TestDecodeTruncatedHeaders(t *testing.T) {
	for n := 0; n < HeaderSize; n++ {
		r := decode(scenarioA[:n])
		if !r.Diagnostics.Has(diag.ShortRead) {
			t.Errorf("%d bytes: diagnostics = %v, want ShortRead", n, r.Diagnostics)
		}
	}
}

func TestDecodeEveryPrefix(t *testing.T) {
	frame := Encode(Param{Name: "a", Value: []byte("1")}, Param{Name: "b", Value: []byte("22")})
	for n := 0; n <= len(frame); n++ {
		r := decode(frame[:n])
		if n < len(frame) && len(r.Diagnostics) == 0 {
			t.Errorf("%d of %d bytes decoded without diagnostics", n, len(frame))
		}
	}
}
