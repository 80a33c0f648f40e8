package protocol

import (
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/tturner/wiredecode/internal/codec"
	"github.com/tturner/wiredecode/internal/diag"
)

// FieldSpec is one fixed-width unsigned field.
type FieldSpec struct {
	Name  string
	Width int
}

// Variant is one historical layout, identified by its total body length.
// Fields follow the base layout.
type Variant struct {
	Length int
	Name   string
	Fields []FieldSpec
}

// VariantTable disambiguates layouts sharing one discriminant by length.
type VariantTable struct {
	base     []FieldSpec
	baseSize int
	variants []Variant
}

// NewVariantTable validates that every variant length covers the base and
// its own fields, and that lengths are unique.
func NewVariantTable(base []FieldSpec, variants ...Variant) (*VariantTable, error) {
	t := &VariantTable{base: base, baseSize: specSize(base)}
	seen := make(map[int]bool)
	for _, v := range variants {
		if seen[v.Length] {
			return nil, fmt.Errorf("duplicate variant length %d", v.Length)
		}
		seen[v.Length] = true
		if want := t.baseSize + specSize(v.Fields); want != v.Length {
			return nil, fmt.Errorf("variant %s: fields cover %d bytes, length is %d", v.Name, want, v.Length)
		}
		t.variants = append(t.variants, v)
	}
	sort.Slice(t.variants, func(i, j int) bool { return t.variants[i].Length < t.variants[j].Length })
	return t, nil
}

// MustVariantTable panics on an invalid table.
func MustVariantTable(base []FieldSpec, variants ...Variant) *VariantTable {
	t, err := NewVariantTable(base, variants...)
	if err != nil {
		panic(err)
	}
	return t
}

// Variants returns the layouts sorted by length.
func (t *VariantTable) Variants() []Variant {
	return append([]Variant(nil), t.variants...)
}

// Lookup finds the variant for a body length.
func (t *VariantTable) Lookup(length int) (Variant, bool) {
	i := sort.Search(len(t.variants), func(i int) bool { return t.variants[i].Length >= length })
	if i < len(t.variants) && t.variants[i].Length == length {
		return t.variants[i], true
	}
	return Variant{}, false
}

// Decode reads length bytes from c: the base layout, then the extra fields
// of the matching variant. An unmatched length keeps the bytes after the
// base as one undecoded field. It returns the variant name, or "" when
// nothing matched.
func (t *VariantTable) Decode(c *codec.Cursor, length int, r *Result) string {
	end := c.Offset() + length
	if !DecodeFixed(c, t.base, r) {
		return ""
	}
	v, ok := t.Lookup(length)
	if !ok {
		extra := end - c.Offset()
		if extra > c.Remaining() {
			extra = c.Remaining()
		}
		if extra > 0 {
			at := c.Offset()
			raw, _ := c.Bytes(extra)
			r.Diagnostics.Add(diag.TrailingData, at, "%d bytes match no layout of %d-byte base", extra, t.baseSize)
			r.Undecoded("extension", at, raw)
		}
		return ""
	}
	DecodeFixed(c, v.Fields, r)
	return v.Name
}

// DecodeFixed reads big-endian unsigned fields in order. It stops with a
// ShortRead diagnostic when the cursor runs out and reports false.
func DecodeFixed(c *codec.Cursor, specs []FieldSpec, r *Result) bool {
	for _, s := range specs {
		at := c.Offset()
		raw, err := c.Peek(s.Width)
		if err != nil {
			r.Diagnostics.Add(diag.ShortRead, at, "field %s: need %d bytes, have %d", s.Name, s.Width, c.Remaining())
			if !c.Empty() {
				r.Undecoded(s.Name, at, c.Rest())
			}
			return false
		}
		v, _ := c.Uint(s.Width, binary.BigEndian)
		r.AddField(UintField(s.Name, at, s.Width, append([]byte(nil), raw...), v))
	}
	return true
}

func specSize(specs []FieldSpec) int {
	n := 0
	for _, s := range specs {
		n += s.Width
	}
	return n
}
