// Package report renders decoded results as JSON documents or styled text.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/tturner/wiredecode/internal/engine"
)

// Sink consumes decoded results and writes them out.
type Sink interface {
	Write(r engine.DecodedResult) error
	// Close writes any buffered output and the run summary.
	Close() error
}

// Options controls rendering.
type Options struct {
	Format  string // "text" or "json"
	Hexdump bool
	Color   bool
	Inputs  []string
	Version string
}

// NewSink returns the sink for opts.Format.
func NewSink(w io.Writer, opts Options) (Sink, error) {
	switch opts.Format {
	case "", "text":
		return newTextSink(w, opts), nil
	case "json":
		return &jsonSink{w: w, raw: opts.Hexdump, inputs: opts.Inputs, version: opts.Version}, nil
	default:
		return nil, fmt.Errorf("unknown output format %q (expected text or json)", opts.Format)
	}
}

type jsonSink struct {
	w       io.Writer
	raw     bool
	inputs  []string
	version string
	records []Record
}

func (s *jsonSink) Write(r engine.DecodedResult) error {
	s.records = append(s.records, NewRecord(r, s.raw))
	return nil
}

func (s *jsonSink) Close() error {
	doc := NewDocument(s.records, s.inputs, s.version, time.Now())
	return WriteJSON(s.w, doc)
}
