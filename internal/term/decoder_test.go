package term

import (
	"bytes"
	"encoding/binary"
	"math/big"
	"reflect"
	"runtime"
	"testing"

	"github.com/tturner/wiredecode/internal/codec"
	"github.com/tturner/wiredecode/internal/diag"
)

func TestDecodeScalars(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
		kind  Kind
		bits  int
		check func(Value) bool
	}{
		{"small int", NewEncoder().SmallInt(200).Bytes(), KindUint, 8, func(v Value) bool { return v.Uint == 200 }},
		{"int32 negative", NewEncoder().Int32(-5).Bytes(), KindInt, 32, func(v Value) bool { return v.Int == -5 }},
		{"uint24", NewEncoder().Uint(3, 0xABCDEF).Bytes(), KindUint, 24, func(v Value) bool { return v.Uint == 0xABCDEF }},
		{"uint40", NewEncoder().Uint(5, 0x0102030405).Bytes(), KindUint, 40, func(v Value) bool { return v.Uint == 0x0102030405 }},
		{"int56 negative", NewEncoder().Int(7, -1).Bytes(), KindInt, 56, func(v Value) bool { return v.Int == -1 }},
		{"uint64 max", NewEncoder().Uint(8, ^uint64(0)).Bytes(), KindUint, 64, func(v Value) bool { return v.Uint == ^uint64(0) }},
		{"float", NewEncoder().Float(2.5).Bytes(), KindFloat, 64, func(v Value) bool { return v.Float == 2.5 }},
		{"atom", NewEncoder().Atom("ok").Bytes(), KindText, 0, func(v Value) bool { return v.Text == "ok" }},
		{"small atom", NewEncoder().SmallAtom("error").Bytes(), KindText, 0, func(v Value) bool { return v.Text == "error" }},
		{"string", NewEncoder().Text("hello").Bytes(), KindText, 0, func(v Value) bool { return v.Text == "hello" }},
		{"binary", NewEncoder().Binary([]byte{0xDE, 0xAD}).Bytes(), KindBytes, 0, func(v Value) bool { return bytes.Equal(v.Bytes, []byte{0xDE, 0xAD}) }},
		{"empty binary", NewEncoder().Binary(nil).Bytes(), KindBytes, 0, func(v Value) bool { return len(v.Bytes) == 0 }},
		{"nil", NewEncoder().Nil().Bytes(), KindList, 0, func(v Value) bool { return len(v.Children) == 0 }},
	}

	dec := NewDecoder(nil, 0)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, diags := dec.DecodeBytes(tt.input)
			if len(diags) != 0 {
				t.Fatalf("unexpected diagnostics: %v", diags)
			}
			if v.Kind != tt.kind {
				t.Fatalf("kind = %s, want %s", v.Kind, tt.kind)
			}
			if v.Bits != tt.bits {
				t.Errorf("bits = %d, want %d", v.Bits, tt.bits)
			}
			if v.Offset != 0 || v.Length != len(tt.input) {
				t.Errorf("range = [%d,+%d), want [0,+%d)", v.Offset, v.Length, len(tt.input))
			}
			if !tt.check(v) {
				t.Errorf("unexpected value %+v", v)
			}
		})
	}
}

func TestDecodeBigBoundary(t *testing.T) {
	dec := NewDecoder(nil, 0)

	eight := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06, 0x07, 0xFF}
	v, diags := dec.DecodeBytes(NewEncoder().Big(false, eight).Bytes())
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if v.Kind != KindBig || !v.Big.Compact {
		t.Fatalf("8-digit big should be compact: %+v", v.Big)
	}
	if v.Big.Magnitude != 0xFF07060504030201 {
		t.Errorf("magnitude = 0x%X", v.Big.Magnitude)
	}
	if v.Big.Hex != "0xff07060504030201" {
		t.Errorf("hex = %s", v.Big.Hex)
	}

	nine := append(append([]byte{}, eight...), 0x01)
	v, diags = dec.DecodeBytes(NewEncoder().Big(true, nine).Bytes())
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	if v.Big.Compact {
		t.Fatal("9-digit big must fall back to hex")
	}
	if v.Big.Hex != "-0x1ff07060504030201" {
		t.Errorf("hex = %s", v.Big.Hex)
	}
	if _, ok := v.Big.Int64(); ok {
		t.Error("Int64 should fail for non-compact value")
	}

	// A 9-digit value with a zero top digit still uses the fallback.
	padded := []byte{0x05, 0, 0, 0, 0, 0, 0, 0, 0}
	v, _ = dec.DecodeBytes(NewEncoder().Big(false, padded).Bytes())
	if v.Big.Compact || v.Big.Hex != "0x5" {
		t.Errorf("padded big = %+v", v.Big)
	}
}

func TestDecodeBigNegativeCompact(t *testing.T) {
	dec := NewDecoder(nil, 0)
	v, _ := dec.DecodeBytes(NewEncoder().BigInt(big.NewInt(-300)).Bytes())
	n, ok := v.Big.Int64()
	if !ok || n != -300 {
		t.Errorf("Int64 = %d, %v; want -300", n, ok)
	}
}

// An unknown tag as the fifth of ten siblings leaves the other nine intact.
func TestUnknownTagSibling(t *testing.T) {
	enc := NewEncoder().Tuple(10)
	for i := 0; i < 10; i++ {
		if i == 4 {
			enc.Raw(0xEE)
			continue
		}
		enc.SmallInt(uint8(i))
	}

	v, diags := NewDecoder(nil, 0).DecodeBytes(enc.Bytes())
	if len(diags) != 1 || diags[0].Kind != diag.UnknownTag {
		t.Fatalf("diagnostics = %v, want one UnknownTag", diags)
	}
	if diags[0].Offset != 2+4*2 {
		t.Errorf("UnknownTag offset = %d, want %d", diags[0].Offset, 2+4*2)
	}
	if len(v.Children) != 10 {
		t.Fatalf("children = %d, want 10", len(v.Children))
	}
	for i, c := range v.Children {
		if i == 4 {
			if c.Kind != KindUndecoded || c.Tag != 0xEE || c.Length != 1 {
				t.Errorf("placeholder = %+v", c)
			}
			continue
		}
		if c.Kind != KindUint || c.Uint != uint64(i) {
			t.Errorf("child %d = %+v", i, c)
		}
	}
}

func TestRecursionLimit(t *testing.T) {
	enc := NewEncoder()
	for i := 0; i < 50; i++ {
		enc.Tuple(1)
	}
	enc.SmallInt(7)

	dec := NewDecoder(nil, 10)
	v, diags := dec.DecodeBytes(enc.Bytes())
	if !diags.Has(diag.RecursionLimitExceeded) {
		t.Fatalf("expected RecursionLimitExceeded, got %v", diags)
	}
	if !diags.Fatal() {
		t.Error("recursion limit must be fatal")
	}
	if diags.Has(diag.TrailingData) {
		t.Error("aborted decode should not report trailing data")
	}
	if !v.Undecoded() {
		t.Error("tree should contain the undecoded branch")
	}

	// The same input is fine with the default cap.
	_, diags = NewDecoder(nil, 0).DecodeBytes(enc.Bytes())
	if len(diags) != 0 {
		t.Errorf("default cap diagnostics: %v", diags)
	}
}

func TestDeepNestingDoesNotCrash(t *testing.T) {
	data := bytes.Repeat([]byte{TagSmallTuple, 0x01}, 100000)
	_, diags := NewDecoder(nil, 0).DecodeBytes(data)
	if !diags.Has(diag.RecursionLimitExceeded) {
		t.Fatalf("expected RecursionLimitExceeded")
	}
}

func TestMalformedLengthTruncates(t *testing.T) {
	// Binary declares 10 bytes, 3 present.
	data := []byte{TagBinary, 0x00, 0x00, 0x00, 0x0A, 'a', 'b', 'c'}
	v, diags := NewDecoder(nil, 0).DecodeBytes(data)
	if !diags.Has(diag.MalformedLength) {
		t.Fatalf("expected MalformedLength, got %v", diags)
	}
	if string(v.Bytes) != "abc" || v.Length != len(data) {
		t.Errorf("value = %+v", v)
	}
}

func TestHugeArityDoesNotAllocate(t *testing.T) {
	data := []byte{TagList, 0xFF, 0xFF, 0xFF, 0xFF, TagSmallInt, 0x01}
	v, diags := NewDecoder(nil, 0).DecodeBytes(data)
	if !diags.Has(diag.MalformedLength) {
		t.Fatalf("expected MalformedLength, got %v", diags)
	}
	if len(v.Children) == 0 || v.Children[0].Uint != 1 {
		t.Errorf("children = %+v", v.Children)
	}
}

func TestCompleteSkipsPayloads(t *testing.T) {
	// Binary declares 2 MiB, 1 MiB present.
	data := make([]byte, 5+1<<20)
	data[0] = TagBinary
	binary.BigEndian.PutUint32(data[1:5], 2<<20)
	dec := NewDecoder(nil, 0)

	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	for i := 0; i < 10; i++ {
		if dec.Complete(data).Complete {
			t.Fatal("truncated binary reported complete")
		}
	}
	runtime.ReadMemStats(&after)
	if got := after.TotalAlloc - before.TotalAlloc; got > 1<<20 {
		t.Errorf("Complete allocated %d bytes over 10 calls, want payloads skipped", got)
	}

	binary.BigEndian.PutUint32(data[1:5], 1<<20)
	if c := dec.Complete(data); !c.Complete || c.Size != len(data) {
		t.Errorf("Complete(full) = %+v", c)
	}
}

func TestShortReadEveryTruncation(t *testing.T) {
	enc := NewEncoder().Tuple(4).Atom("reply").Uint(6, 0x0000AABBCCDD).
		List(2).Text("x").Binary([]byte{1, 2, 3}).Big(false, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9})
	full := enc.Bytes()
	dec := NewDecoder(nil, 0)

	for cut := 0; cut < len(full); cut++ {
		v, diags := dec.DecodeBytes(full[:cut])
		if !diags.Has(diag.ShortRead) && !diags.Has(diag.MalformedLength) {
			t.Fatalf("cut=%d: expected short read diagnostics, got %v", cut, diags)
		}
		if v.End() > cut {
			t.Fatalf("cut=%d: value range ends at %d", cut, v.End())
		}
		if dec.Complete(full[:cut]).Complete {
			t.Fatalf("cut=%d: truncated value reported complete", cut)
		}
	}
	c := dec.Complete(full)
	if !c.Complete || c.Size != len(full) {
		t.Errorf("Complete(full) = %+v", c)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	enc := NewEncoder().Tuple(6).
		SmallAtom("call").
		Int(3, -42).
		List(3).Float(-0.5).Nil().Binary([]byte("blob")).
		Big(false, []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}).
		Big(true, []byte{0x10, 0x00}).
		Tuple(0)
	original := enc.Bytes()

	v, diags := NewDecoder(nil, 0).DecodeBytes(original)
	if len(diags) != 0 {
		t.Fatalf("unexpected diagnostics: %v", diags)
	}
	again, err := Encode(nil, v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if !bytes.Equal(again, original) {
		t.Fatalf("round trip mismatch:\n got %x\nwant %x", again, original)
	}

	v2, _ := NewDecoder(nil, 0).DecodeBytes(again)
	if !reflect.DeepEqual(v, v2) {
		t.Error("re-decoded tree differs")
	}
	if v.String() != `{"call",-42,[-0.5,[],<<626c6f62>>],0xa090807060504030201,-16,{}}` {
		t.Errorf("String() = %s", v.String())
	}
}

func TestEncodeUndecodedFails(t *testing.T) {
	v, _ := NewDecoder(nil, 0).DecodeBytes([]byte{0xEE})
	if _, err := Encode(nil, v); err == nil {
		t.Error("expected error encoding undecoded value")
	}
}

func TestDecodeChildOffsets(t *testing.T) {
	data := NewEncoder().Tuple(2).SmallInt(1).Text("ab").Bytes()
	c := codec.NewCursor(data)
	v, _ := NewDecoder(nil, 0).Decode(c)
	if v.Children[0].Offset != 2 || v.Children[0].Length != 2 {
		t.Errorf("child 0 range = %d+%d", v.Children[0].Offset, v.Children[0].Length)
	}
	if v.Children[1].Offset != 4 || v.Children[1].Length != 5 {
		t.Errorf("child 1 range = %d+%d", v.Children[1].Offset, v.Children[1].Length)
	}
}

func TestRegistryValidation(t *testing.T) {
	if _, err := NewRegistry(FixedRule{Code: 1, Width: 9}); err == nil {
		t.Error("expected width error")
	}
	if _, err := NewRegistry(CompoundRule{Code: 1, ArityWidth: 2}); err == nil {
		t.Error("expected arity width error")
	}
	if _, err := NewRegistry(NilRule{Code: 1}, NilRule{Code: 1}); err == nil {
		t.Error("expected duplicate tag error")
	}
	reg := DefaultRegistry()
	if reg.Len() != 29 {
		t.Errorf("default registry has %d rules, want 29", reg.Len())
	}
	if _, ok := reg.Lookup(0xEE); ok {
		t.Error("0xEE should be unregistered")
	}
}
