package report

import (
	"encoding/hex"
	"math"
	"strconv"

	"github.com/tturner/wiredecode/internal/term"
)

// Node is a JSON-safe view of a decoded term value. Floats that JSON cannot
// carry (NaN, infinities) are rendered as strings.
type Node struct {
	Kind     string `json:"kind"`
	Name     string `json:"name,omitempty"`
	Tag      string `json:"tag"`
	Offset   int    `json:"offset"`
	Length   int    `json:"length"`
	Bits     int    `json:"bits,omitempty"`
	Value    any    `json:"value,omitempty"`
	Hex      string `json:"hex,omitempty"`
	Children []Node `json:"children,omitempty"`
}

// TreeOf converts a decoded value; nil yields nil.
func TreeOf(v *term.Value) *Node {
	if v == nil {
		return nil
	}
	n := nodeOf(*v)
	return &n
}

func nodeOf(v term.Value) Node {
	n := Node{
		Kind:   v.Kind.String(),
		Name:   v.Name,
		Tag:    "0x" + strconv.FormatUint(uint64(v.Tag), 16),
		Offset: v.Offset,
		Length: v.Length,
		Bits:   v.Bits,
	}
	switch v.Kind {
	case term.KindInt:
		n.Value = v.Int
	case term.KindUint:
		n.Value = v.Uint
	case term.KindFloat:
		if math.IsNaN(v.Float) || math.IsInf(v.Float, 0) {
			n.Value = strconv.FormatFloat(v.Float, 'g', -1, 64)
		} else {
			n.Value = v.Float
		}
	case term.KindText:
		n.Value = v.Text
	case term.KindBytes:
		n.Hex = hex.EncodeToString(v.Bytes)
	case term.KindBig:
		n.Hex = v.Big.Hex
		if i, ok := v.Big.Int64(); ok {
			n.Value = i
		}
	case term.KindTuple, term.KindList:
		n.Children = make([]Node, 0, len(v.Children))
		for _, c := range v.Children {
			n.Children = append(n.Children, nodeOf(c))
		}
	}
	return n
}
