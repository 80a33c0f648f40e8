package report

import (
	"encoding/hex"
	"sort"
	"time"

	"github.com/tturner/wiredecode/internal/diag"
	"github.com/tturner/wiredecode/internal/engine"
	"github.com/tturner/wiredecode/internal/protocol"
)

// Record is the rendered form of one decoded result.
type Record struct {
	Session       string           `json:"session"`
	Protocol      string           `json:"protocol"`
	Kind          string           `json:"kind"`
	StreamOffset  int64            `json:"stream_offset"`
	Length        int              `json:"length"`
	Sequence      *uint32          `json:"sequence,omitempty"`
	Fragments     int              `json:"fragments,omitempty"`
	Valid         bool             `json:"valid"`
	ChecksumValid bool             `json:"checksum_valid"`
	Aborted       bool             `json:"aborted,omitempty"`
	Timestamp     *time.Time       `json:"timestamp,omitempty"`
	Fields        []protocol.Field `json:"fields,omitempty"`
	Tree          *Node            `json:"tree,omitempty"`
	Diagnostics   diag.List        `json:"diagnostics,omitempty"`
	Raw           string           `json:"raw,omitempty"`
}

// NewRecord converts a decoded result. Raw message bytes are included as
// hex when withRaw is set.
func NewRecord(r engine.DecodedResult, withRaw bool) Record {
	rec := Record{
		Session:       string(r.Message.Session),
		Protocol:      r.Result.Protocol,
		Kind:          r.Result.Kind,
		StreamOffset:  r.Message.StreamOffset,
		Length:        r.Message.Len(),
		Fragments:     r.Message.Fragments,
		Valid:         r.Message.Valid,
		ChecksumValid: r.Result.ChecksumValid,
		Aborted:       r.Result.Aborted,
		Fields:        r.Result.Fields,
		Tree:          TreeOf(r.Result.Tree),
		Diagnostics:   r.Diagnostics,
	}
	if r.Message.HasSequence {
		seq := r.Message.Sequence
		rec.Sequence = &seq
	}
	if !r.Message.Timestamp.IsZero() {
		ts := r.Message.Timestamp.UTC()
		rec.Timestamp = &ts
	}
	if withRaw && len(r.Message.Bytes) > 0 {
		rec.Raw = hex.EncodeToString(r.Message.Bytes)
	}
	return rec
}

// IsStream reports whether the record only carries reassembly diagnostics.
func (r Record) IsStream() bool {
	return r.Kind == engine.KindStream
}

// Summary totals a run.
type Summary struct {
	Messages    int              `json:"messages"`
	Valid       int              `json:"valid"`
	Invalid     int              `json:"invalid"`
	BadChecksum int              `json:"bad_checksum"`
	Aborted     int              `json:"aborted"`
	StreamNotes int              `json:"stream_notes"`
	Kinds       map[string]int   `json:"kinds,omitempty"`
	Diagnostics []diag.KindCount `json:"diagnostics,omitempty"`
}

// Summarize totals records.
func Summarize(records []Record) Summary {
	s := Summary{Kinds: make(map[string]int)}
	for _, r := range records {
		s.Add(r)
	}
	return s
}

// Add counts one record into the totals.
func (s *Summary) Add(r Record) {
	for _, d := range r.Diagnostics {
		s.countDiagnostic(d.Kind)
	}
	if r.IsStream() {
		s.StreamNotes++
		return
	}
	if s.Kinds == nil {
		s.Kinds = make(map[string]int)
	}
	s.Messages++
	s.Kinds[r.Protocol+"/"+r.Kind]++
	if r.Valid && !r.Aborted {
		s.Valid++
	} else {
		s.Invalid++
	}
	if !r.ChecksumValid {
		s.BadChecksum++
	}
	if r.Aborted {
		s.Aborted++
	}
}

// countDiagnostic keeps Diagnostics sorted by kind.
func (s *Summary) countDiagnostic(k diag.Kind) {
	i := sort.Search(len(s.Diagnostics), func(i int) bool { return s.Diagnostics[i].Kind >= k })
	if i < len(s.Diagnostics) && s.Diagnostics[i].Kind == k {
		s.Diagnostics[i].Count++
		return
	}
	s.Diagnostics = append(s.Diagnostics, diag.KindCount{})
	copy(s.Diagnostics[i+1:], s.Diagnostics[i:])
	s.Diagnostics[i] = diag.KindCount{Kind: k, Count: 1}
}

// SortedKinds returns the protocol/kind keys in order.
func (s Summary) SortedKinds() []string {
	keys := make([]string, 0, len(s.Kinds))
	for k := range s.Kinds {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Document is the JSON report written at the end of a run.
type Document struct {
	GeneratedAt string   `json:"generated_at"`
	Version     string   `json:"wiredecode_version,omitempty"`
	Inputs      []string `json:"inputs,omitempty"`
	Records     []Record `json:"records"`
	Summary     Summary  `json:"summary"`
}

// NewDocument assembles a report with its summary.
func NewDocument(records []Record, inputs []string, version string, now time.Time) Document {
	if records == nil {
		records = []Record{}
	}
	return Document{
		GeneratedAt: FormatTimestamp(now),
		Version:     version,
		Inputs:      inputs,
		Records:     records,
		Summary:     Summarize(records),
	}
}
