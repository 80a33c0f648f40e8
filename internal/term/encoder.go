package term

// Reference encoder. Produces the exact byte layout the decoder reads so
// captures can be synthesized and decoded trees re-encoded.

import (
	"encoding/binary"
	"fmt"
	"math"
	"math/big"

	"github.com/tturner/wiredecode/internal/codec"
)

// Encoder appends tagged values to an internal buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Bytes returns the encoded buffer.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Raw appends bytes verbatim, e.g. to plant an unknown tag.
func (e *Encoder) Raw(b ...byte) *Encoder {
	e.buf = append(e.buf, b...)
	return e
}

// Uint appends an unsigned integer of width bytes (1..8).
func (e *Encoder) Uint(width int, v uint64) *Encoder {
	e.buf = append(e.buf, TagUintBase+byte(width))
	e.buf = codec.AppendUint(binary.BigEndian, e.buf, v, width)
	return e
}

// Int appends a signed integer of width bytes (1..8).
func (e *Encoder) Int(width int, v int64) *Encoder {
	e.buf = append(e.buf, TagIntBase+byte(width))
	e.buf = codec.AppendUint(binary.BigEndian, e.buf, uint64(v), width)
	return e
}

// SmallInt appends a one-byte unsigned integer.
func (e *Encoder) SmallInt(v uint8) *Encoder {
	e.buf = append(e.buf, TagSmallInt, v)
	return e
}

// Int32 appends a four-byte signed integer.
func (e *Encoder) Int32(v int32) *Encoder {
	e.buf = append(e.buf, TagInt)
	e.buf = codec.AppendUint32(binary.BigEndian, e.buf, uint32(v))
	return e
}

// Float appends an IEEE-754 double.
func (e *Encoder) Float(v float64) *Encoder {
	e.buf = append(e.buf, TagFloat)
	e.buf = codec.AppendUint64(binary.BigEndian, e.buf, math.Float64bits(v))
	return e
}

// Atom appends text with a two-byte length.
func (e *Encoder) Atom(s string) *Encoder {
	return e.lengthPrefixed(TagAtom, 2, []byte(s))
}

// SmallAtom appends text with a one-byte length.
func (e *Encoder) SmallAtom(s string) *Encoder {
	return e.lengthPrefixed(TagSmallAtom, 1, []byte(s))
}

// Text appends a string with a two-byte length.
func (e *Encoder) Text(s string) *Encoder {
	return e.lengthPrefixed(TagString, 2, []byte(s))
}

// Binary appends a blob with a four-byte length.
func (e *Encoder) Binary(b []byte) *Encoder {
	return e.lengthPrefixed(TagBinary, 4, b)
}

func (e *Encoder) lengthPrefixed(tag byte, width int, payload []byte) *Encoder {
	e.buf = append(e.buf, tag)
	e.buf = codec.AppendUint(binary.BigEndian, e.buf, uint64(len(payload)), width)
	e.buf = append(e.buf, payload...)
	return e
}

// Big appends a big integer from little-endian digits, choosing the small
// form when the digit count fits in one byte.
func (e *Encoder) Big(negative bool, digits []byte) *Encoder {
	if len(digits) <= 0xFF {
		e.buf = append(e.buf, TagSmallBig, byte(len(digits)))
	} else {
		e.buf = append(e.buf, TagLargeBig)
		e.buf = codec.AppendUint32(binary.BigEndian, e.buf, uint32(len(digits)))
	}
	sign := byte(0)
	if negative {
		sign = 1
	}
	e.buf = append(e.buf, sign)
	e.buf = append(e.buf, digits...)
	return e
}

// BigInt appends n using the minimal number of digits.
func (e *Encoder) BigInt(n *big.Int) *Encoder {
	be := new(big.Int).Abs(n).Bytes()
	digits := make([]byte, len(be))
	for i, d := range be {
		digits[len(be)-1-i] = d
	}
	return e.Big(n.Sign() < 0, digits)
}

// Tuple writes a tuple header for n children; the caller appends them.
func (e *Encoder) Tuple(n int) *Encoder {
	if n <= 0xFF {
		e.buf = append(e.buf, TagSmallTuple, byte(n))
		return e
	}
	e.buf = append(e.buf, TagLargeTuple)
	e.buf = codec.AppendUint32(binary.BigEndian, e.buf, uint32(n))
	return e
}

// List writes a list header for n children; n == 0 writes the nil sentinel.
func (e *Encoder) List(n int) *Encoder {
	if n == 0 {
		return e.Nil()
	}
	e.buf = append(e.buf, TagList)
	e.buf = codec.AppendUint32(binary.BigEndian, e.buf, uint32(n))
	return e
}

// Nil appends the empty-list sentinel.
func (e *Encoder) Nil() *Encoder {
	e.buf = append(e.buf, TagNil)
	return e
}

// Encode re-encodes a decoded tree using the rule registered for each
// node's tag. Undecoded nodes cannot be encoded.
func Encode(reg *Registry, v Value) ([]byte, error) {
	if reg == nil {
		reg = DefaultRegistry()
	}
	return appendValue(reg, nil, v)
}

func appendValue(reg *Registry, dst []byte, v Value) ([]byte, error) {
	rule, ok := reg.Lookup(v.Tag)
	if !ok || v.Kind == KindUndecoded {
		return nil, fmt.Errorf("cannot encode %s value with tag 0x%02X at offset %d", v.Kind, v.Tag, v.Offset)
	}
	dst = append(dst, v.Tag)
	switch r := rule.(type) {
	case FixedRule:
		var raw uint64
		switch {
		case r.Float && r.Width == 4:
			raw = uint64(math.Float32bits(float32(v.Float)))
		case r.Float:
			raw = math.Float64bits(v.Float)
		case r.Signed:
			raw = uint64(v.Int)
		default:
			raw = v.Uint
		}
		return codec.AppendUint(binary.BigEndian, dst, raw, r.Width), nil
	case LengthRule:
		payload := v.Bytes
		if r.Text {
			payload = []byte(v.Text)
		}
		dst = codec.AppendUint(binary.BigEndian, dst, uint64(len(payload)), r.LengthWidth)
		return append(dst, payload...), nil
	case BigRule:
		if v.Big == nil {
			return nil, fmt.Errorf("big value at offset %d has no magnitude", v.Offset)
		}
		digits, err := bigDigits(v.Big)
		if err != nil {
			return nil, err
		}
		dst = codec.AppendUint(binary.BigEndian, dst, uint64(len(digits)), r.LengthWidth)
		sign := byte(0)
		if v.Big.Negative {
			sign = 1
		}
		dst = append(dst, sign)
		return append(dst, digits...), nil
	case CompoundRule:
		dst = codec.AppendUint(binary.BigEndian, dst, uint64(len(v.Children)), r.ArityWidth)
		var err error
		for _, child := range v.Children {
			if dst, err = appendValue(reg, dst, child); err != nil {
				return nil, err
			}
		}
		return dst, nil
	case NilRule:
		return dst, nil
	}
	return nil, fmt.Errorf("unsupported rule %T", rule)
}

// bigDigits recovers little-endian digits, padded to the original count.
func bigDigits(b *BigInt) ([]byte, error) {
	hex := b.Hex
	if len(hex) > 0 && hex[0] == '-' {
		hex = hex[1:]
	}
	mag, ok := new(big.Int).SetString(hex, 0)
	if !ok {
		return nil, fmt.Errorf("invalid big integer hex %q", b.Hex)
	}
	be := mag.Bytes()
	if len(be) > b.Digits {
		return nil, fmt.Errorf("big integer %s needs %d digits, declared %d", b.Hex, len(be), b.Digits)
	}
	digits := make([]byte, b.Digits)
	for i, d := range be {
		digits[len(be)-1-i] = d
	}
	return digits, nil
}
