package codec

import "encoding/binary"

// AppendUint16 appends a uint16 to dst using the provided byte order.
func AppendUint16(order binary.ByteOrder, dst []byte, value uint16) []byte {
	var buf [2]byte
	order.PutUint16(buf[:], value)
	return append(dst, buf[:]...)
}

// AppendUint32 appends a uint32 to dst using the provided byte order.
func AppendUint32(order binary.ByteOrder, dst []byte, value uint32) []byte {
	var buf [4]byte
	order.PutUint32(buf[:], value)
	return append(dst, buf[:]...)
}

// AppendUint64 appends a uint64 to dst using the provided byte order.
func AppendUint64(order binary.ByteOrder, dst []byte, value uint64) []byte {
	var buf [8]byte
	order.PutUint64(buf[:], value)
	return append(dst, buf[:]...)
}

// AppendUint appends the low n bytes (1..8) of value in the given order.
func AppendUint(order binary.ByteOrder, dst []byte, value uint64, n int) []byte {
	if IsLittleEndian(order) {
		for i := 0; i < n; i++ {
			dst = append(dst, byte(value>>(8*i)))
		}
		return dst
	}
	for i := n - 1; i >= 0; i-- {
		dst = append(dst, byte(value>>(8*i)))
	}
	return dst
}

// AppendUint24 appends a 24-bit value.
func AppendUint24(order binary.ByteOrder, dst []byte, value uint32) []byte {
	return AppendUint(order, dst, uint64(value), 3)
}

// AppendCString appends s followed by a NUL terminator.
func AppendCString(dst []byte, s string) []byte {
	dst = append(dst, s...)
	return append(dst, 0x00)
}
