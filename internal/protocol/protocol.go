// Package protocol holds the message decoder contract and the helpers that
// concrete protocols share: parameter streams, discriminant dispatch,
// length-keyed variant tables and field post-processing.
package protocol

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"unicode"
	"unicode/utf8"

	"github.com/tturner/wiredecode/internal/diag"
	"github.com/tturner/wiredecode/internal/framing"
	"github.com/tturner/wiredecode/internal/reassembly"
	"github.com/tturner/wiredecode/internal/term"
)

// Protocol decodes framed messages of one wire format.
type Protocol interface {
	Name() string
	// Resolver frames the transport stream.
	Resolver() framing.Resolver
	// Segment reports whether a framed record carries one fragment of a
	// larger logical message.
	Segment(record reassembly.Message) (Segment, bool)
	// Decode decodes a framed record or an assembled fragment payload
	// (HasSequence set). It never fails; problems become diagnostics.
	Decode(msg reassembly.Message) Result
}

// FragmentCompleter is implemented by protocols whose fragment payloads
// need a completion rule other than "one whole term value".
type FragmentCompleter interface {
	Completer() reassembly.Completer
}

// Segment is the fragment carried by one record.
type Segment struct {
	Sequence      uint32
	Fragment      uint32
	Payload       []byte
	ChecksumValid bool
	Diagnostics   diag.List
}

// Result is the decoded view of one message.
type Result struct {
	Protocol      string      `json:"protocol"`
	Kind          string      `json:"kind"`
	Fields        []Field     `json:"fields,omitempty"`
	Tree          *term.Value `json:"-"`
	Diagnostics   diag.List   `json:"diagnostics,omitempty"`
	ChecksumValid bool        `json:"checksum_valid"`
	Aborted       bool        `json:"aborted,omitempty"`
}

// Field is one named, decoded slice of a message.
type Field struct {
	Name      string `json:"name"`
	Offset    int    `json:"offset"`
	Length    int    `json:"length"`
	Raw       []byte `json:"-"`
	Value     any    `json:"value,omitempty"`
	Display   string `json:"display"`
	Fallback  bool   `json:"fallback,omitempty"`
	Undecoded bool   `json:"undecoded,omitempty"`
}

// Field returns the first field named name.
func (r *Result) Field(name string) (Field, bool) {
	for _, f := range r.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}

// AddField appends a field.
func (r *Result) AddField(f Field) {
	r.Fields = append(r.Fields, f)
}

// Undecoded appends the bytes as one opaque field.
func (r *Result) Undecoded(name string, offset int, raw []byte) {
	r.Fields = append(r.Fields, UndecodedField(name, offset, raw))
}

// UintField builds a numeric field.
func UintField(name string, offset, length int, raw []byte, v uint64) Field {
	return Field{
		Name:    name,
		Offset:  offset,
		Length:  length,
		Raw:     raw,
		Value:   v,
		Display: strconv.FormatUint(v, 10),
	}
}

// BytesField builds a field from raw bytes, shown as text when printable.
func BytesField(name string, offset int, raw []byte) Field {
	f := Field{Name: name, Offset: offset, Length: len(raw), Raw: raw}
	if printable(raw) {
		f.Value = string(raw)
		f.Display = string(raw)
	} else {
		f.Value = raw
		f.Display = "0x" + hex.EncodeToString(raw)
	}
	return f
}

// UndecodedField builds an opaque field.
func UndecodedField(name string, offset int, raw []byte) Field {
	return Field{
		Name:      name,
		Offset:    offset,
		Length:    len(raw),
		Raw:       raw,
		Display:   fmt.Sprintf("%d undecoded bytes", len(raw)),
		Undecoded: true,
	}
}

func printable(b []byte) bool {
	if !utf8.Valid(b) {
		return false
	}
	for _, r := range string(b) {
		if !unicode.IsPrint(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// DecodeMessage runs p over msg and applies field post-processing. A nil
// post processor applies DefaultPostProcessor.
func DecodeMessage(p Protocol, msg reassembly.Message, post *PostProcessor) Result {
	r := p.Decode(msg)
	if r.Protocol == "" {
		r.Protocol = p.Name()
	}
	if post == nil {
		post = DefaultPostProcessor()
	}
	r.Fields = post.Apply(r.Fields)
	r.Aborted = r.Aborted || r.Diagnostics.Fatal()
	return r
}
