package protocol

import (
	"github.com/tturner/wiredecode/internal/codec"
	"github.com/tturner/wiredecode/internal/diag"
)

// Handler decodes the body following a discriminant into r.
type Handler func(c *codec.Cursor, r *Result)

// Route names a record kind and the handler for it.
type Route struct {
	Kind   string
	Handle Handler
}

// Dispatch maps a discriminant byte to its route.
type Dispatch map[byte]Route

// Run decodes with the route for disc. An unknown discriminant is reported
// and the remaining bytes are kept as one undecoded field.
func (d Dispatch) Run(disc byte, c *codec.Cursor, r *Result) {
	route, ok := d[disc]
	if !ok {
		r.Kind = "unknown"
		r.Diagnostics.Add(diag.UnknownTag, c.Offset(), "unknown record kind 0x%02X", disc)
		if !c.Empty() {
			r.Undecoded("body", c.Offset(), c.Rest())
		}
		return
	}
	r.Kind = route.Kind
	route.Handle(c, r)
}
