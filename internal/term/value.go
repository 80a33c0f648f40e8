// Package term decodes self-describing tagged binary values.
//
// A value is one tag byte followed by a body whose shape is selected by the
// tag's Rule: a fixed-width scalar, a length-prefixed blob or text, an
// arbitrary-precision integer, or a compound holding a counted number of
// child values. Compounds nest to any depth up to the decoder's cap.
package term

import (
	"fmt"
	"strings"
)

// Kind identifies the shape of a decoded Value.
type Kind int

const (
	KindUndecoded Kind = iota
	KindInt
	KindUint
	KindFloat
	KindBytes
	KindText
	KindBig
	KindTuple
	KindList
)

var kindNames = [...]string{
	KindUndecoded: "undecoded",
	KindInt:       "int",
	KindUint:      "uint",
	KindFloat:     "float",
	KindBytes:     "bytes",
	KindText:      "text",
	KindBig:       "big",
	KindTuple:     "tuple",
	KindList:      "list",
}

func (k Kind) String() string {
	if int(k) >= 0 && int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// BigInt is an arbitrary-precision integer. Hex is always populated;
// Magnitude is meaningful only when Compact is set.
type BigInt struct {
	Negative  bool   `json:"negative"`
	Compact   bool   `json:"compact"`
	Magnitude uint64 `json:"magnitude,omitempty"`
	Digits    int    `json:"digits"`
	Hex       string `json:"hex"`
}

// Int64 returns the signed value when it fits in an int64.
func (b *BigInt) Int64() (int64, bool) {
	if !b.Compact {
		return 0, false
	}
	if b.Negative {
		if b.Magnitude > 1<<63 {
			return 0, false
		}
		return -int64(b.Magnitude), true
	}
	if b.Magnitude > 1<<63-1 {
		return 0, false
	}
	return int64(b.Magnitude), true
}

// Value is one decoded node. Offset and Length cover the exact source
// bytes including the tag.
type Value struct {
	Kind     Kind    `json:"kind"`
	Tag      byte    `json:"tag"`
	Name     string  `json:"name,omitempty"`
	Offset   int     `json:"offset"`
	Length   int     `json:"length"`
	Bits     int     `json:"bits,omitempty"`
	Int      int64   `json:"int,omitempty"`
	Uint     uint64  `json:"uint,omitempty"`
	Float    float64 `json:"float,omitempty"`
	Bytes    []byte  `json:"bytes,omitempty"`
	Text     string  `json:"text,omitempty"`
	Big      *BigInt `json:"big,omitempty"`
	Children []Value `json:"children,omitempty"`
}

// End returns the offset just past the value.
func (v Value) End() int {
	return v.Offset + v.Length
}

// IsCompound reports whether the value holds children.
func (v Value) IsCompound() bool {
	return v.Kind == KindTuple || v.Kind == KindList
}

// Undecoded reports whether any node in the tree is a placeholder.
func (v Value) Undecoded() bool {
	if v.Kind == KindUndecoded {
		return true
	}
	for _, c := range v.Children {
		if c.Undecoded() {
			return true
		}
	}
	return false
}

// String renders a compact single-line form, e.g. {1,"ok",[]}.
func (v Value) String() string {
	var sb strings.Builder
	v.write(&sb)
	return sb.String()
}

func (v Value) write(sb *strings.Builder) {
	switch v.Kind {
	case KindInt:
		fmt.Fprintf(sb, "%d", v.Int)
	case KindUint:
		fmt.Fprintf(sb, "%d", v.Uint)
	case KindFloat:
		fmt.Fprintf(sb, "%g", v.Float)
	case KindBytes:
		fmt.Fprintf(sb, "<<%x>>", v.Bytes)
	case KindText:
		fmt.Fprintf(sb, "%q", v.Text)
	case KindBig:
		if n, ok := v.Big.Int64(); ok {
			fmt.Fprintf(sb, "%d", n)
		} else {
			sb.WriteString(v.Big.Hex)
		}
	case KindTuple, KindList:
		left, right := "{", "}"
		if v.Kind == KindList {
			left, right = "[", "]"
		}
		sb.WriteString(left)
		for i, c := range v.Children {
			if i > 0 {
				sb.WriteByte(',')
			}
			c.write(sb)
		}
		sb.WriteString(right)
	default:
		fmt.Fprintf(sb, "?0x%02X", v.Tag)
	}
}
