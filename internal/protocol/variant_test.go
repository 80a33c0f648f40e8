package protocol

import (
	"testing"

	"github.com/tturner/wiredecode/internal/codec"
	"github.com/tturner/wiredecode/internal/diag"
)

var statusBase = []FieldSpec{{"node", 4}, {"uptime", 4}}

func statusTable(t *testing.T) *VariantTable {
	t.Helper()
	vt, err := NewVariantTable(statusBase,
		Variant{Length: 20, Name: "v3", Fields: []FieldSpec{{"flags", 2}, {"queue", 2}, {"started_time", 8}}},
		Variant{Length: 8, Name: "v1"},
		Variant{Length: 12, Name: "v2", Fields: []FieldSpec{{"flags", 2}, {"queue", 2}}},
	)
	if err != nil {
		t.Fatalf("NewVariantTable: %v", err)
	}
	return vt
}

func TestVariantTableSorted(t *testing.T) {
	got := statusTable(t).Variants()
	for i, want := range []int{8, 12, 20} {
		if got[i].Length != want {
			t.Errorf("variant %d length = %d, want %d", i, got[i].Length, want)
		}
	}
}

func TestVariantTableDecode(t *testing.T) {
	body := make([]byte, 24)
	for i := range body {
		body[i] = byte(i + 1)
	}
	tests := []struct {
		length   int
		variant  string
		fields   int
		trailing bool
	}{
		{length: 8, variant: "v1", fields: 2},
		{length: 12, variant: "v2", fields: 4},
		{length: 20, variant: "v3", fields: 5},
		{length: 10, variant: "", fields: 3, trailing: true},
		{length: 24, variant: "", fields: 3, trailing: true},
	}
	for _, tt := range tests {
		var r Result
		name := statusTable(t).Decode(codec.NewCursor(body[:tt.length]), tt.length, &r)
		if name != tt.variant {
			t.Errorf("length %d: variant = %q, want %q", tt.length, name, tt.variant)
		}
		if len(r.Fields) != tt.fields {
			t.Errorf("length %d: fields = %d, want %d", tt.length, len(r.Fields), tt.fields)
		}
		if r.Diagnostics.Has(diag.TrailingData) != tt.trailing {
			t.Errorf("length %d: diagnostics = %v", tt.length, r.Diagnostics)
		}
	}
}

func TestVariantTableShortBase(t *testing.T) {
	var r Result
	name := statusTable(t).Decode(codec.NewCursor([]byte{0, 0, 0, 1, 0, 0}), 6, &r)
	if name != "" || !r.Diagnostics.Has(diag.ShortRead) {
		t.Fatalf("variant = %q diagnostics = %v", name, r.Diagnostics)
	}
	if len(r.Fields) != 2 || !r.Fields[1].Undecoded {
		t.Errorf("fields = %+v", r.Fields)
	}
}

func TestVariantTableValues(t *testing.T) {
	body := []byte{0, 0, 0, 7, 0, 0, 1, 0, 0x80, 0x01, 0x00, 0x05}
	var r Result
	statusTable(t).Decode(codec.NewCursor(body), len(body), &r)
	want := map[string]uint64{"node": 7, "uptime": 256, "flags": 0x8001, "queue": 5}
	for name, v := range want {
		f, ok := r.Field(name)
		if !ok {
			t.Fatalf("missing field %s", name)
		}
		if f.Value != v {
			t.Errorf("%s = %v, want %d", name, f.Value, v)
		}
	}
}

func TestNewVariantTableErrors(t *testing.T) {
	if _, err := NewVariantTable(statusBase, Variant{Length: 8}, Variant{Length: 8}); err == nil {
		t.Errorf("duplicate lengths accepted")
	}
	if _, err := NewVariantTable(statusBase, Variant{Length: 10, Fields: []FieldSpec{{"x", 4}}}); err == nil {
		t.Errorf("inconsistent length accepted")
	}
}

func TestDispatch(t *testing.T) {
	d := Dispatch{
		0x01: {Kind: "one", Handle: func(c *codec.Cursor, r *Result) {
			DecodeFixed(c, []FieldSpec{{"v", 1}}, r)
		}},
	}
	var r Result
	d.Run(0x01, codec.NewCursor([]byte{0x2A}), &r)
	if r.Kind != "one" || len(r.Fields) != 1 || r.Fields[0].Value != uint64(42) {
		t.Fatalf("known route result = %+v", r)
	}

	var u Result
	d.Run(0x09, codec.NewCursor([]byte{0xAA, 0xBB}), &u)
	if !u.Diagnostics.Has(diag.UnknownTag) {
		t.Fatalf("diagnostics = %v, want UnknownTag", u.Diagnostics)
	}
	if len(u.Fields) != 1 || !u.Fields[0].Undecoded || u.Fields[0].Length != 2 {
		t.Errorf("fields = %+v", u.Fields)
	}
}
