// Package checksum computes and verifies the integrity values carried by
// framed messages. Every function is pure and total.
package checksum

import (
	"encoding/binary"
	"fmt"

	"github.com/tturner/wiredecode/internal/codec"
)

// Algorithm computes a checksum over a byte range.
type Algorithm interface {
	Name() string
	Sum(data []byte) uint32
}

// XorFold interprets data as an unsigned length field of Width bytes and
// XORs its bytes together with Seed. Bytes beyond Width are ignored; a
// shorter input folds what is present.
type XorFold struct {
	Width int
	Order binary.ByteOrder
	Seed  uint8
}

func (x XorFold) Name() string { return "xor-fold" }

func (x XorFold) Sum(data []byte) uint32 {
	width := x.Width
	if width <= 0 || width > 8 {
		width = 4
	}
	if len(data) < width {
		width = len(data)
	}
	order := x.Order
	if order == nil {
		order = binary.BigEndian
	}
	length := codec.ReadUint(data[:width], order)
	acc := x.Seed
	for i := 0; i < width; i++ {
		acc ^= uint8(length >> (8 * i))
	}
	return uint32(acc)
}

// AddXor sums the payload bytes modulo 256 and XORs the result with Seed.
type AddXor struct {
	Seed uint8
}

func (a AddXor) Name() string { return "add-xor" }

func (a AddXor) Sum(data []byte) uint32 {
	var sum uint8
	for _, b := range data {
		sum += b
	}
	return uint32(sum ^ a.Seed)
}

// CRC16Modbus is the reflected 0xA001 CRC-16 used by RTU-style trailers.
type CRC16Modbus struct{}

func (CRC16Modbus) Name() string { return "crc16-modbus" }

func (CRC16Modbus) Sum(data []byte) uint32 {
	crc := uint16(0xFFFF)
	for _, b := range data {
		crc ^= uint16(b)
		for i := 0; i < 8; i++ {
			if crc&0x0001 != 0 {
				crc = (crc >> 1) ^ 0xA001
			} else {
				crc >>= 1
			}
		}
	}
	return uint32(crc)
}

// Compute runs alg over data.
func Compute(data []byte, alg Algorithm) uint32 {
	return alg.Sum(data)
}

// Result is the outcome of a verification.
type Result struct {
	Algorithm string `json:"algorithm"`
	Match     bool   `json:"match"`
	Computed  uint32 `json:"computed"`
	Declared  uint32 `json:"declared"`
}

func (r Result) String() string {
	if r.Match {
		return fmt.Sprintf("%s 0x%X ok", r.Algorithm, r.Declared)
	}
	return fmt.Sprintf("%s mismatch: computed 0x%X, declared 0x%X", r.Algorithm, r.Computed, r.Declared)
}

// Verify compares the computed checksum against the declared one.
func Verify(data []byte, alg Algorithm, declared uint32) Result {
	computed := alg.Sum(data)
	return Result{
		Algorithm: alg.Name(),
		Match:     computed == declared,
		Computed:  computed,
		Declared:  declared,
	}
}
