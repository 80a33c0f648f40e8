package term

import (
	"encoding/binary"
	"errors"
	"math"
	"math/big"

	"github.com/tturner/wiredecode/internal/codec"
	"github.com/tturner/wiredecode/internal/diag"
)

// DefaultMaxDepth bounds compound nesting when no cap is configured.
const DefaultMaxDepth = 1000

// Decoder decodes values against a registry. It holds no per-call state
// and is safe to share.
type Decoder struct {
	registry *Registry
	maxDepth int
}

// NewDecoder returns a decoder over reg. A nil registry selects the
// built-in table; maxDepth <= 0 selects DefaultMaxDepth.
func NewDecoder(reg *Registry, maxDepth int) *Decoder {
	if reg == nil {
		reg = DefaultRegistry()
	}
	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Decoder{registry: reg, maxDepth: maxDepth}
}

// MaxDepth returns the nesting cap.
func (d *Decoder) MaxDepth() int {
	return d.maxDepth
}

// Registry returns the tag table in use.
func (d *Decoder) Registry() *Registry {
	return d.registry
}

type decodeState struct {
	dec     *Decoder
	c       *codec.Cursor
	diags   diag.List
	aborted bool
	skip    bool // walk the framing only; leave payloads and children out
}

// Decode reads one value at the cursor. It always returns a value; problems
// are reported as diagnostics and leave Undecoded placeholders in the tree.
func (d *Decoder) Decode(c *codec.Cursor) (Value, diag.List) {
	st := &decodeState{dec: d, c: c}
	v, _ := st.value(1)
	return v, st.diags
}

// DecodeBytes decodes one top-level value from b and flags trailing bytes.
func (d *Decoder) DecodeBytes(b []byte) (Value, diag.List) {
	c := codec.NewCursor(b)
	v, diags := d.Decode(c)
	if !diags.Fatal() && c.Remaining() > 0 {
		diags.Add(diag.TrailingData, c.Offset(), "%d bytes after top-level value", c.Remaining())
	}
	return v, diags
}

// Completion reports whether a buffer holds a whole top-level value.
type Completion struct {
	Complete bool
	Size     int // bytes consumed by the value when complete
}

// Complete walks b and reports whether the first value is whole. A value
// that ran out of bytes is incomplete; a value that is undecodable for any
// other reason is complete, since more bytes cannot repair it. Payloads are
// skipped, not copied.
func (d *Decoder) Complete(b []byte) Completion {
	c := codec.NewCursor(b)
	st := &decodeState{dec: d, c: c, skip: true}
	st.value(1)
	diags := st.diags
	if !diags.Fatal() && (diags.Has(diag.ShortRead) || diags.Has(diag.MalformedLength)) {
		return Completion{}
	}
	return Completion{Complete: true, Size: c.Offset()}
}

// value decodes one tagged value at depth. The bool is false when the
// cursor ran out of bytes or decoding was aborted, telling the enclosing
// compound to stop.
func (st *decodeState) value(depth int) (Value, bool) {
	start := st.c.Offset()
	if depth > st.dec.maxDepth {
		st.diags.Add(diag.RecursionLimitExceeded, start, "nesting deeper than %d", st.dec.maxDepth)
		st.aborted = true
		return Value{Kind: KindUndecoded, Offset: start}, false
	}

	tag, err := st.c.Uint8()
	if err != nil {
		st.diags.Add(diag.ShortRead, start, "missing tag byte")
		return Value{Kind: KindUndecoded, Offset: start}, false
	}

	rule, ok := st.dec.registry.Lookup(tag)
	if !ok {
		st.diags.Add(diag.UnknownTag, start, "unknown tag 0x%02X", tag)
		return Value{Kind: KindUndecoded, Tag: tag, Offset: start, Length: 1}, true
	}

	v, complete := rule.decode(st, tag, depth)
	v.Tag = tag
	v.Name = rule.Name()
	v.Offset = start
	v.Length = st.c.Offset() - start
	return v, complete
}

func (st *decodeState) shortRead(start int, what string, err error) {
	var sre *codec.ShortReadError
	if errors.As(err, &sre) {
		st.diags.Add(diag.ShortRead, start, "%s: need %d bytes, have %d", what, sre.Want, sre.Have)
		return
	}
	st.diags.Add(diag.ShortRead, start, "%s: %v", what, err)
}

// prefix reads a length or count field and clamps it to what remains.
// truncated is set when the declared value exceeded the remaining bytes.
func (st *decodeState) prefix(width int, what string) (n int, truncated bool, ok bool) {
	at := st.c.Offset()
	raw, err := st.c.Uint(width, binary.BigEndian)
	if err != nil {
		st.shortRead(at, what, err)
		return 0, false, false
	}
	avail := uint64(st.c.Remaining())
	if raw > avail {
		st.diags.Add(diag.MalformedLength, at, "%s %d exceeds %d remaining bytes", what, raw, avail)
		return int(avail), true, true
	}
	return int(raw), false, true
}

func (r FixedRule) decode(st *decodeState, tag byte, depth int) (Value, bool) {
	at := st.c.Offset()
	raw, err := st.c.Uint(r.Width, binary.BigEndian)
	if err != nil {
		st.shortRead(at, r.Label, err)
		return Value{Kind: KindUndecoded}, false
	}
	bits := 8 * r.Width
	switch {
	case r.Float && r.Width == 4:
		return Value{Kind: KindFloat, Bits: bits, Float: float64(math.Float32frombits(uint32(raw)))}, true
	case r.Float:
		return Value{Kind: KindFloat, Bits: bits, Float: math.Float64frombits(raw)}, true
	case r.Signed:
		return Value{Kind: KindInt, Bits: bits, Int: codec.SignExtend(raw, r.Width)}, true
	default:
		return Value{Kind: KindUint, Bits: bits, Uint: raw}, true
	}
}

func (r LengthRule) decode(st *decodeState, tag byte, depth int) (Value, bool) {
	n, truncated, ok := st.prefix(r.LengthWidth, r.Label+" length")
	if !ok {
		return Value{Kind: KindUndecoded}, false
	}
	if st.skip {
		_ = st.c.Skip(n)
		return Value{Kind: KindBytes}, !truncated
	}
	payload, _ := st.c.Bytes(n)
	if r.Text {
		return Value{Kind: KindText, Text: string(payload)}, !truncated
	}
	return Value{Kind: KindBytes, Bytes: payload}, !truncated
}

func (r BigRule) decode(st *decodeState, tag byte, depth int) (Value, bool) {
	at := st.c.Offset()
	count, err := st.c.Uint(r.LengthWidth, binary.BigEndian)
	if err != nil {
		st.shortRead(at, r.Label+" digit count", err)
		return Value{Kind: KindUndecoded}, false
	}
	signAt := st.c.Offset()
	sign, err := st.c.Uint8()
	if err != nil {
		st.shortRead(signAt, r.Label+" sign", err)
		return Value{Kind: KindUndecoded}, false
	}
	n := count
	truncated := false
	if avail := uint64(st.c.Remaining()); n > avail {
		st.diags.Add(diag.MalformedLength, at, "%s digit count %d exceeds %d remaining bytes", r.Label, count, avail)
		n = avail
		truncated = true
	}
	if st.skip {
		_ = st.c.Skip(int(n))
		return Value{Kind: KindBig}, !truncated
	}
	digits, _ := st.c.Bytes(int(n))
	return Value{Kind: KindBig, Big: newBigInt(sign != 0, digits)}, !truncated
}

// CompactDigits is the largest digit count whose magnitude is reported as
// a uint64; longer magnitudes are only available in hex.
const CompactDigits = 8

func newBigInt(negative bool, digits []byte) *BigInt {
	be := make([]byte, len(digits))
	for i, d := range digits {
		be[len(digits)-1-i] = d
	}
	mag := new(big.Int).SetBytes(be)
	if mag.Sign() == 0 {
		negative = false
	}
	out := &BigInt{Negative: negative, Digits: len(digits)}
	if len(digits) <= CompactDigits {
		out.Compact = true
		out.Magnitude = mag.Uint64()
	}
	out.Hex = "0x" + mag.Text(16)
	if negative {
		out.Hex = "-" + out.Hex
	}
	return out
}

func (r CompoundRule) decode(st *decodeState, tag byte, depth int) (Value, bool) {
	kind := KindTuple
	if r.List {
		kind = KindList
	}
	arity, truncated, ok := st.prefix(r.ArityWidth, r.Label+" arity")
	if !ok {
		return Value{Kind: KindUndecoded}, false
	}
	v := Value{Kind: kind}
	if arity > 0 && !st.skip {
		v.Children = make([]Value, 0, arity)
	}
	complete := !truncated
	for i := 0; i < arity; i++ {
		child, more := st.value(depth + 1)
		if !st.skip {
			v.Children = append(v.Children, child)
		}
		if !more || st.aborted {
			complete = false
			break
		}
	}
	return v, complete && !st.aborted
}

func (r NilRule) decode(st *decodeState, tag byte, depth int) (Value, bool) {
	return Value{Kind: KindList}, true
}
