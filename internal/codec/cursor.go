package codec

// Bounds-checked read cursor over one message's bytes.

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrShortRead is returned (wrapped) by every cursor read that would cross
// the end of the buffer.
var ErrShortRead = errors.New("short read")

// ShortReadError carries the position and size of a failed read.
type ShortReadError struct {
	Offset int // cursor offset when the read was attempted
	Want   int // bytes requested
	Have   int // bytes remaining
}

func (e *ShortReadError) Error() string {
	return fmt.Sprintf("short read at offset %d: want %d bytes, have %d", e.Offset, e.Want, e.Have)
}

func (e *ShortReadError) Unwrap() error {
	return ErrShortRead
}

// Cursor wraps an immutable buffer and a read offset. A failed read never
// moves the offset.
type Cursor struct {
	buf []byte
	off int
}

// NewCursor returns a cursor positioned at the start of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Offset returns the current read position.
func (c *Cursor) Offset() int {
	return c.off
}

// Len returns the total buffer length.
func (c *Cursor) Len() int {
	return len(c.buf)
}

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int {
	return len(c.buf) - c.off
}

// Empty reports whether every byte has been consumed.
func (c *Cursor) Empty() bool {
	return c.off >= len(c.buf)
}

func (c *Cursor) check(n int) error {
	if n < 0 || n > len(c.buf)-c.off {
		return &ShortReadError{Offset: c.off, Want: n, Have: len(c.buf) - c.off}
	}
	return nil
}

// Peek returns the next n bytes without advancing. The returned slice
// aliases the buffer and must not be modified.
func (c *Cursor) Peek(n int) ([]byte, error) {
	if err := c.check(n); err != nil {
		return nil, err
	}
	return c.buf[c.off : c.off+n : c.off+n], nil
}

// Skip advances past n bytes.
func (c *Cursor) Skip(n int) error {
	if err := c.check(n); err != nil {
		return err
	}
	c.off += n
	return nil
}

// Bytes returns a copy of the next n bytes.
func (c *Cursor) Bytes(n int) ([]byte, error) {
	if err := c.check(n); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, c.buf[c.off:c.off+n])
	c.off += n
	return out, nil
}

// Rest returns a copy of every unread byte and moves to the end.
func (c *Cursor) Rest() []byte {
	out, _ := c.Bytes(c.Remaining())
	return out
}

// CString reads a NUL-terminated string. The terminator is consumed but not
// returned. A missing terminator is a short read.
func (c *Cursor) CString() (string, error) {
	idx := bytes.IndexByte(c.buf[c.off:], 0x00)
	if idx < 0 {
		return "", &ShortReadError{Offset: c.off, Want: c.Remaining() + 1, Have: c.Remaining()}
	}
	s := string(c.buf[c.off : c.off+idx])
	c.off += idx + 1
	return s, nil
}

// Uint reads an unsigned integer of n bytes (1..8) in the given order.
func (c *Cursor) Uint(n int, order binary.ByteOrder) (uint64, error) {
	if n < 1 || n > 8 {
		return 0, fmt.Errorf("invalid integer width %d", n)
	}
	if err := c.check(n); err != nil {
		return 0, err
	}
	v := ReadUint(c.buf[c.off:c.off+n], order)
	c.off += n
	return v, nil
}

// Int reads a two's-complement signed integer of n bytes (1..8).
func (c *Cursor) Int(n int, order binary.ByteOrder) (int64, error) {
	v, err := c.Uint(n, order)
	if err != nil {
		return 0, err
	}
	return SignExtend(v, n), nil
}

// Uint8 reads one byte.
func (c *Cursor) Uint8() (uint8, error) {
	if err := c.check(1); err != nil {
		return 0, err
	}
	v := c.buf[c.off]
	c.off++
	return v, nil
}

// Uint16 reads a 16-bit unsigned integer.
func (c *Cursor) Uint16(order binary.ByteOrder) (uint16, error) {
	v, err := c.Uint(2, order)
	return uint16(v), err
}

// Uint24 reads a 24-bit unsigned integer.
func (c *Cursor) Uint24(order binary.ByteOrder) (uint32, error) {
	v, err := c.Uint(3, order)
	return uint32(v), err
}

// Uint32 reads a 32-bit unsigned integer.
func (c *Cursor) Uint32(order binary.ByteOrder) (uint32, error) {
	v, err := c.Uint(4, order)
	return uint32(v), err
}

// Uint40 reads a 40-bit unsigned integer.
func (c *Cursor) Uint40(order binary.ByteOrder) (uint64, error) {
	return c.Uint(5, order)
}

// Uint48 reads a 48-bit unsigned integer.
func (c *Cursor) Uint48(order binary.ByteOrder) (uint64, error) {
	return c.Uint(6, order)
}

// Uint56 reads a 56-bit unsigned integer.
func (c *Cursor) Uint56(order binary.ByteOrder) (uint64, error) {
	return c.Uint(7, order)
}

// Uint64 reads a 64-bit unsigned integer.
func (c *Cursor) Uint64(order binary.ByteOrder) (uint64, error) {
	return c.Uint(8, order)
}

// ReadUint interprets b (1..8 bytes) as an unsigned integer.
func ReadUint(b []byte, order binary.ByteOrder) uint64 {
	var v uint64
	if IsLittleEndian(order) {
		for i := len(b) - 1; i >= 0; i-- {
			v = v<<8 | uint64(b[i])
		}
		return v
	}
	for _, x := range b {
		v = v<<8 | uint64(x)
	}
	return v
}

// SignExtend treats the low n bytes of v as a two's-complement value.
func SignExtend(v uint64, n int) int64 {
	shift := uint(64 - 8*n)
	return int64(v<<shift) >> shift
}

// IsLittleEndian reports whether order stores the least significant byte first.
func IsLittleEndian(order binary.ByteOrder) bool {
	var probe [2]byte
	order.PutUint16(probe[:], 1)
	return probe[0] == 1
}
