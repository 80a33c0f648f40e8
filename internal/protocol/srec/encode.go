package srec

import (
	"encoding/binary"

	"github.com/tturner/wiredecode/internal/checksum"
	"github.com/tturner/wiredecode/internal/codec"
	"github.com/tturner/wiredecode/internal/protocol"
)

// EncodeShort builds a 4-byte short record.
func EncodeShort(kind, a byte, b uint16) []byte {
	out := []byte{shortFlag | kind, a}
	return codec.AppendUint16(binary.BigEndian, out, b)
}

// EncodeLong builds a long record with a correct checksum and length.
func EncodeLong(kind byte, body []byte) []byte {
	out := make([]byte, 0, LongHeaderSize+len(body))
	out = append(out, kind, byte(checksum.Compute(body, Checksum)))
	out = codec.AppendUint16(binary.BigEndian, out, uint16(len(body)))
	return append(out, body...)
}

// EncodeData builds one DATA record.
func EncodeData(sequence, fragment uint16, payload []byte) []byte {
	body := make([]byte, 0, dataHeaderSize+len(payload))
	body = codec.AppendUint16(binary.BigEndian, body, sequence)
	body = codec.AppendUint16(binary.BigEndian, body, fragment)
	return EncodeLong(KindData, append(body, payload...))
}

// SplitData cuts payload into DATA records of at most size payload bytes,
// numbering fragments from 1.
func SplitData(sequence uint16, payload []byte, size int) [][]byte {
	if size <= 0 {
		size = len(payload)
	}
	var out [][]byte
	frag := uint16(1)
	for len(payload) > 0 || frag == 1 {
		n := size
		if n > len(payload) {
			n = len(payload)
		}
		out = append(out, EncodeData(sequence, frag, payload[:n]))
		payload = payload[n:]
		frag++
	}
	return out
}

// Status is the newest STATUS layout; Encode writes the first length
// fields of it.
type Status struct {
	Node        uint32
	Uptime      uint32
	Flags       uint16
	Queue       uint16
	StartedTime uint64
}

// EncodeStatus builds a STATUS record whose body is length bytes long
// (8, 12 or 20 for the known layouts).
func EncodeStatus(s Status, length int) []byte {
	var body []byte
	body = codec.AppendUint32(binary.BigEndian, body, s.Node)
	body = codec.AppendUint32(binary.BigEndian, body, s.Uptime)
	body = codec.AppendUint16(binary.BigEndian, body, s.Flags)
	body = codec.AppendUint16(binary.BigEndian, body, s.Queue)
	body = codec.AppendUint64(binary.BigEndian, body, s.StartedTime)
	for len(body) < length {
		body = append(body, 0x00)
	}
	return EncodeLong(KindStatus, body[:length])
}

// EncodeParams builds a PARAMS record from name/value pairs.
func EncodeParams(pairs ...[2]string) []byte {
	var body []byte
	for _, kv := range pairs {
		body = protocol.AppendParam(body, Params, kv[0], []byte(kv[1]))
	}
	return EncodeLong(KindParams, body)
}

// EncodeTerm wraps an encoded term value in a TERM record.
func EncodeTerm(value []byte) []byte {
	return EncodeLong(KindTerm, value)
}
