package protocol

import (
	"encoding/binary"

	"github.com/tturner/wiredecode/internal/codec"
	"github.com/tturner/wiredecode/internal/diag"
)

// ParamLayout describes a `name NUL | length | raw | terminator` stream.
type ParamLayout struct {
	LengthWidth int              // bytes in the length field, 1..8
	Order       binary.ByteOrder // length byte order, big-endian when nil
	Terminator  bool             // each param ends with a one-byte zero terminator
}

// DecodeParams reads parameters until the cursor is empty. Field offsets are
// cursor offsets, so a cursor over the whole message yields message offsets.
func DecodeParams(c *codec.Cursor, layout ParamLayout) ([]Field, diag.List) {
	order := layout.Order
	if order == nil {
		order = binary.BigEndian
	}
	var (
		fields []Field
		diags  diag.List
	)
	for !c.Empty() {
		start := c.Offset()
		name, err := c.CString()
		if err != nil {
			diags.Add(diag.ShortRead, start, "parameter name is not NUL-terminated")
			fields = append(fields, UndecodedField("", start, c.Rest()))
			break
		}
		lenAt := c.Offset()
		declared, err := c.Uint(layout.LengthWidth, order)
		if err != nil {
			diags.Add(diag.ShortRead, lenAt, "parameter %q: missing %d-byte length", name, layout.LengthWidth)
			fields = append(fields, UndecodedField(name, lenAt, c.Rest()))
			break
		}
		rawAt := c.Offset()
		truncated := declared > uint64(c.Remaining())
		n := c.Remaining()
		if truncated {
			diags.Add(diag.MalformedLength, lenAt, "parameter %q declares %d bytes, %d remain", name, declared, c.Remaining())
		} else {
			n = int(declared)
		}
		raw, _ := c.Bytes(n)
		f := BytesField(name, rawAt, raw)
		fields = append(fields, f)
		if truncated || !layout.Terminator {
			continue
		}
		termAt := c.Offset()
		t, err := c.Uint8()
		if err != nil {
			diags.Add(diag.ShortRead, termAt, "parameter %q: missing terminator", name)
			break
		}
		if t != 0 {
			diags.Add(diag.BadTerminator, termAt, "parameter %q: terminator 0x%02X", name, t)
		}
	}
	return fields, diags
}

// AppendParam is the matching encoder.
func AppendParam(dst []byte, layout ParamLayout, name string, raw []byte) []byte {
	order := layout.Order
	if order == nil {
		order = binary.BigEndian
	}
	dst = codec.AppendCString(dst, name)
	dst = codec.AppendUint(order, dst, uint64(len(raw)), layout.LengthWidth)
	dst = append(dst, raw...)
	if layout.Terminator {
		dst = append(dst, 0x00)
	}
	return dst
}
