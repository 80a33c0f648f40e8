// Package framing resolves message boundaries from leading stream bytes.
//
// A Resolver looks only at the bytes it is given. It answers NeedMore until
// every header field that determines the total length has arrived, then
// FrameLength with the full message size including the header.
package framing

import (
	"encoding/binary"
	"fmt"

	"github.com/tturner/wiredecode/internal/codec"
)

// Status is the kind of answer a resolver gives.
type Status int

const (
	StatusNeedMore Status = iota
	StatusFrameLength
	StatusMalformed
)

// Resolution is the outcome of Resolve.
type Resolution struct {
	Status Status
	N      int    // bytes still needed (NeedMore) or total frame length (FrameLength)
	Reason string // set for Malformed
}

// NeedMore reports that n more bytes are required before the length is known.
func NeedMore(n int) Resolution {
	return Resolution{Status: StatusNeedMore, N: n}
}

// FrameLength reports the total length of the message starting at byte 0.
func FrameLength(total int) Resolution {
	return Resolution{Status: StatusFrameLength, N: total}
}

// Malformed reports a header that can never describe a valid frame.
func Malformed(format string, args ...any) Resolution {
	return Resolution{Status: StatusMalformed, Reason: fmt.Sprintf(format, args...)}
}

func (r Resolution) String() string {
	switch r.Status {
	case StatusNeedMore:
		return fmt.Sprintf("need %d more bytes", r.N)
	case StatusFrameLength:
		return fmt.Sprintf("frame length %d", r.N)
	default:
		return "malformed: " + r.Reason
	}
}

// Resolver inspects the leading bytes of a pending buffer.
type Resolver interface {
	Resolve(lead []byte) Resolution
}

// Fixed frames every message at Size bytes.
type Fixed struct {
	Size int
}

func (f Fixed) Resolve(lead []byte) Resolution {
	if f.Size <= 0 {
		return Malformed("fixed frame size %d", f.Size)
	}
	if len(lead) == 0 {
		return NeedMore(1)
	}
	return FrameLength(f.Size)
}

// LengthField reads a Width-byte length at Offset. The total frame length is
// HeaderSize + length + Adjust.
type LengthField struct {
	Offset     int
	Width      int
	Order      binary.ByteOrder
	HeaderSize int
	Adjust     int
}

func (l LengthField) Resolve(lead []byte) Resolution {
	need := l.Offset + l.Width
	if len(lead) < need {
		return NeedMore(need - len(lead))
	}
	order := l.Order
	if order == nil {
		order = binary.BigEndian
	}
	declared := codec.ReadUint(lead[l.Offset:need], order)
	total := int64(l.HeaderSize) + int64(declared) + int64(l.Adjust)
	if total < int64(l.HeaderSize) || total < int64(need) {
		return Malformed("declared length %d gives frame of %d bytes, smaller than header", declared, total)
	}
	if total > int64(MaxFrame) {
		return Malformed("declared length %d exceeds maximum frame size", declared)
	}
	return FrameLength(int(total))
}

// MaxFrame bounds any resolved frame length, matching the largest value a
// 32-bit length field can describe plus a small header.
const MaxFrame = 1<<32 + 64

// Discriminated tests the byte at Offset and hands the buffer to Short when
// Test holds, otherwise to Long.
type Discriminated struct {
	Offset int
	Test   func(b byte) bool
	Short  Resolver
	Long   Resolver
}

func (d Discriminated) Resolve(lead []byte) Resolution {
	if len(lead) <= d.Offset {
		return NeedMore(d.Offset + 1 - len(lead))
	}
	if d.Test(lead[d.Offset]) {
		return d.Short.Resolve(lead)
	}
	return d.Long.Resolve(lead)
}

// HighBitSet is the discriminant test for records whose first byte flags a
// short fixed-size form.
func HighBitSet(b byte) bool {
	return b&0x80 != 0
}

// Equals builds a test matching one discriminant value.
func Equals(want byte) func(byte) bool {
	return func(b byte) bool { return b == want }
}
