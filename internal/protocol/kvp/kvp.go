// Package kvp decodes the checksummed name/value parameter stream:
//
//	checksum u8 | length u32 BE | params
//
// where each parameter is `name NUL | length u32 BE | raw | terminator u8`
// and the checksum is an XOR fold of the length field with seed 0x0A.
package kvp

import (
	"encoding/binary"

	"github.com/tturner/wiredecode/internal/checksum"
	"github.com/tturner/wiredecode/internal/codec"
	"github.com/tturner/wiredecode/internal/diag"
	"github.com/tturner/wiredecode/internal/framing"
	"github.com/tturner/wiredecode/internal/protocol"
	"github.com/tturner/wiredecode/internal/reassembly"
)

// Name is the protocol name used in config and reports.
const Name = "kvp"

// HeaderSize is the checksum byte plus the length field.
const HeaderSize = 5

var (
	// Framing resolves the total frame length from the length field.
	Framing = framing.LengthField{Offset: 1, Width: 4, Order: binary.BigEndian, HeaderSize: HeaderSize}
	// Checksum covers the length field.
	Checksum = checksum.XorFold{Width: 4, Order: binary.BigEndian, Seed: 0x0A}
	// Params is the parameter layout of the body.
	Params = protocol.ParamLayout{LengthWidth: 4, Order: binary.BigEndian, Terminator: true}
)

// Protocol implements protocol.Protocol.
type Protocol struct{}

// New returns the kvp decoder.
func New() *Protocol {
	return &Protocol{}
}

func (p *Protocol) Name() string { return Name }

func (p *Protocol) Resolver() framing.Resolver { return Framing }

// Segment reports false; kvp has no fragments.
func (p *Protocol) Segment(reassembly.Message) (protocol.Segment, bool) {
	return protocol.Segment{}, false
}

func (p *Protocol) Decode(msg reassembly.Message) protocol.Result {
	r := protocol.Result{Protocol: Name, Kind: "params"}
	c := codec.NewCursor(msg.Bytes)

	declaredSum, err := c.Uint8()
	if err != nil {
		r.Diagnostics.Add(diag.ShortRead, 0, "missing checksum byte")
		return r
	}
	lengthField, err := c.Peek(4)
	if err != nil {
		r.Diagnostics.Add(diag.ShortRead, 1, "length field: need 4 bytes, have %d", c.Remaining())
		r.Undecoded("header", 1, c.Rest())
		return r
	}
	sum := checksum.Verify(lengthField, Checksum, uint32(declaredSum))
	r.ChecksumValid = sum.Match
	if !sum.Match {
		r.Diagnostics.Add(diag.ChecksumMismatch, 0, "%s", sum)
	}
	declared, _ := c.Uint32(binary.BigEndian)

	bodyLen := c.Remaining()
	if uint64(declared) != uint64(bodyLen) {
		r.Diagnostics.Add(diag.MalformedLength, 1, "declared body length %d, message carries %d", declared, bodyLen)
		if uint64(declared) < uint64(bodyLen) {
			bodyLen = int(declared)
		}
	}

	body := codec.NewCursor(msg.Bytes[:HeaderSize+bodyLen])
	_ = body.Skip(HeaderSize)
	fields, diags := protocol.DecodeParams(body, Params)
	r.Fields = fields
	r.Diagnostics.Merge(diags)

	if tail := len(msg.Bytes) - (HeaderSize + bodyLen); tail > 0 {
		at := HeaderSize + bodyLen
		r.Diagnostics.Add(diag.TrailingData, at, "%d bytes after declared body", tail)
		r.Undecoded("trailer", at, append([]byte(nil), msg.Bytes[at:]...))
	}
	return r
}

// Param is one name/value pair for Encode.
type Param struct {
	Name  string
	Value []byte
}

// Encode builds a frame with a correct checksum and length.
func Encode(params ...Param) []byte {
	var body []byte
	for _, p := range params {
		body = protocol.AppendParam(body, Params, p.Name, p.Value)
	}
	out := make([]byte, 1, HeaderSize+len(body))
	out = codec.AppendUint32(binary.BigEndian, out, uint32(len(body)))
	out[0] = byte(checksum.Compute(out[1:5], Checksum))
	return append(out, body...)
}
