// Package srec decodes segmented records. A set high bit in the first byte
// marks a fixed 4-byte short record:
//
//	0x80|kind u8 | a u8 | b u16 BE
//
// otherwise the record is long:
//
//	kind u8 | checksum u8 | length u16 BE | body
//
// with an add-xor checksum over the body. DATA records carry one fragment
// of a term value; STATUS bodies grew optional trailing fields over time and
// are told apart by length.
package srec

import (
	"encoding/binary"

	"github.com/tturner/wiredecode/internal/checksum"
	"github.com/tturner/wiredecode/internal/codec"
	"github.com/tturner/wiredecode/internal/diag"
	"github.com/tturner/wiredecode/internal/framing"
	"github.com/tturner/wiredecode/internal/protocol"
	"github.com/tturner/wiredecode/internal/reassembly"
	"github.com/tturner/wiredecode/internal/term"
)

// Name is the protocol name used in config and reports.
const Name = "srec"

// Record kinds.
const (
	ShortHeartbeat byte = 0x01
	ShortAck       byte = 0x02

	KindData   byte = 0x01
	KindStatus byte = 0x02
	KindParams byte = 0x03
	KindTerm   byte = 0x04
)

const (
	ShortSize      = 4
	LongHeaderSize = 4
	dataHeaderSize = 4
	shortFlag      = 0x80
)

var (
	// Framing tells short from long records by the high bit of byte 0.
	Framing = framing.Discriminated{
		Offset: 0,
		Test:   framing.HighBitSet,
		Short:  framing.Fixed{Size: ShortSize},
		Long:   framing.LengthField{Offset: 2, Width: 2, Order: binary.BigEndian, HeaderSize: LongHeaderSize},
	}
	// Checksum covers the body of long records.
	Checksum = checksum.AddXor{Seed: 0x5A}
	// Params is the PARAMS body layout.
	Params = protocol.ParamLayout{LengthWidth: 2, Order: binary.BigEndian, Terminator: true}

	// StatusVariants keys STATUS layouts by body length.
	StatusVariants = protocol.MustVariantTable(
		[]protocol.FieldSpec{{Name: "node", Width: 4}, {Name: "uptime", Width: 4}},
		protocol.Variant{Length: 8, Name: "status.v1"},
		protocol.Variant{Length: 12, Name: "status.v2", Fields: []protocol.FieldSpec{
			{Name: "flags", Width: 2}, {Name: "queue", Width: 2},
		}},
		protocol.Variant{Length: 20, Name: "status.v3", Fields: []protocol.FieldSpec{
			{Name: "flags", Width: 2}, {Name: "queue", Width: 2}, {Name: "started_time", Width: 8},
		}},
	)
)

// Protocol implements protocol.Protocol.
type Protocol struct {
	terms *term.Decoder
	short protocol.Dispatch
	long  protocol.Dispatch
}

// New returns an srec decoder. A nil decoder selects the built-in tag table
// and depth cap.
func New(terms *term.Decoder) *Protocol {
	if terms == nil {
		terms = term.NewDecoder(nil, 0)
	}
	p := &Protocol{terms: terms}
	p.short = protocol.Dispatch{
		ShortHeartbeat: {Kind: "heartbeat", Handle: shortFields("node", "counter")},
		ShortAck:       {Kind: "ack", Handle: shortFields("status", "sequence")},
	}
	p.long = protocol.Dispatch{
		KindData:   {Kind: "data", Handle: p.decodeDataRecord},
		KindStatus: {Kind: "status", Handle: decodeStatus},
		KindParams: {Kind: "params", Handle: decodeParams},
		KindTerm:   {Kind: "term", Handle: p.decodeTerm},
	}
	return p
}

func (p *Protocol) Name() string { return Name }

func (p *Protocol) Resolver() framing.Resolver { return Framing }

// Completer reports a fragment payload complete once it holds a whole term.
func (p *Protocol) Completer() reassembly.Completer {
	return func(b []byte) bool { return p.terms.Complete(b).Complete }
}

// Segment extracts the fragment carried by a long DATA record.
func (p *Protocol) Segment(record reassembly.Message) (protocol.Segment, bool) {
	b := record.Bytes
	if len(b) < LongHeaderSize+dataHeaderSize || b[0] != KindData {
		return protocol.Segment{}, false
	}
	var diags diag.List
	body, sum := p.body(b, &diags)
	if len(body) < dataHeaderSize {
		return protocol.Segment{}, false
	}
	return protocol.Segment{
		Sequence:      uint32(binary.BigEndian.Uint16(body[0:2])),
		Fragment:      uint32(binary.BigEndian.Uint16(body[2:4])),
		Payload:       body[dataHeaderSize:],
		ChecksumValid: sum,
		Diagnostics:   diags,
	}, true
}

func (p *Protocol) Decode(msg reassembly.Message) protocol.Result {
	r := protocol.Result{Protocol: Name}
	if msg.HasSequence {
		p.decodeAssembled(msg, &r)
		return r
	}

	c := codec.NewCursor(msg.Bytes)
	lead, err := c.Uint8()
	if err != nil {
		r.Diagnostics.Add(diag.ShortRead, 0, "empty record")
		return r
	}
	if lead&shortFlag != 0 {
		r.ChecksumValid = true
		p.short.Run(lead&^shortFlag, c, &r)
		if r.Kind != "unknown" {
			r.Kind = "short." + r.Kind
		}
		return r
	}
	if len(msg.Bytes) < LongHeaderSize {
		r.Diagnostics.Add(diag.ShortRead, 0, "long header: need %d bytes, have %d", LongHeaderSize, len(msg.Bytes))
		r.Undecoded("header", 0, append([]byte(nil), msg.Bytes...))
		return r
	}
	body, ok := p.body(msg.Bytes, &r.Diagnostics)
	r.ChecksumValid = ok
	bc := codec.NewCursor(msg.Bytes[:LongHeaderSize+len(body)])
	_ = bc.Skip(LongHeaderSize)
	p.long.Run(lead, bc, &r)
	if tail := len(msg.Bytes) - LongHeaderSize - len(body); tail > 0 {
		at := LongHeaderSize + len(body)
		r.Diagnostics.Add(diag.TrailingData, at, "%d bytes after declared body", tail)
		r.Undecoded("trailer", at, append([]byte(nil), msg.Bytes[at:]...))
	}
	return r
}

// body returns the declared body clamped to the record and whether its
// checksum matched.
func (p *Protocol) body(b []byte, diags *diag.List) ([]byte, bool) {
	declared := int(binary.BigEndian.Uint16(b[2:4]))
	body := b[LongHeaderSize:]
	if declared != len(body) {
		diags.Add(diag.MalformedLength, 2, "declared body length %d, record carries %d", declared, len(body))
		if declared < len(body) {
			body = body[:declared]
		}
	}
	sum := checksum.Verify(body, Checksum, uint32(b[1]))
	if !sum.Match {
		diags.Add(diag.ChecksumMismatch, 1, "%s", sum)
	}
	return body, sum.Match
}

func shortFields(a, b string) protocol.Handler {
	return func(c *codec.Cursor, r *protocol.Result) {
		protocol.DecodeFixed(c, []protocol.FieldSpec{{Name: a, Width: 1}, {Name: b, Width: 2}}, r)
	}
}

func decodeStatus(c *codec.Cursor, r *protocol.Result) {
	if name := StatusVariants.Decode(c, c.Remaining(), r); name != "" {
		r.Kind = name
	}
}

func decodeParams(c *codec.Cursor, r *protocol.Result) {
	fields, diags := protocol.DecodeParams(c, Params)
	r.Fields = append(r.Fields, fields...)
	r.Diagnostics.Merge(diags)
}

func (p *Protocol) decodeTerm(c *codec.Cursor, r *protocol.Result) {
	p.decodeTree(c, r)
}

// decodeDataRecord handles a DATA record decoded on its own, outside the
// fragment path.
func (p *Protocol) decodeDataRecord(c *codec.Cursor, r *protocol.Result) {
	if !protocol.DecodeFixed(c, []protocol.FieldSpec{{Name: "sequence", Width: 2}, {Name: "fragment", Width: 2}}, r) {
		return
	}
	if !c.Empty() {
		r.AddField(protocol.UndecodedField("payload", c.Offset(), c.Rest()))
	}
}

func (p *Protocol) decodeAssembled(msg reassembly.Message, r *protocol.Result) {
	r.Kind = "data"
	r.ChecksumValid = true
	r.AddField(protocol.UintField("sequence", 0, 0, nil, uint64(msg.Sequence)))
	r.AddField(protocol.UintField("fragments", 0, 0, nil, uint64(msg.Fragments)))
	p.decodeTree(codec.NewCursor(msg.Bytes), r)
}

// decodeTree reads one term value that must fill the cursor.
func (p *Protocol) decodeTree(c *codec.Cursor, r *protocol.Result) {
	v, diags := p.terms.Decode(c)
	r.Tree = &v
	r.Diagnostics.Merge(diags)
	if !diags.Fatal() && !c.Empty() {
		at := c.Offset()
		r.Diagnostics.Add(diag.TrailingData, at, "%d bytes after term value", c.Remaining())
		r.Undecoded("trailer", at, c.Rest())
	}
}
