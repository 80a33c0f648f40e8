// Package diag defines the decode diagnostic taxonomy. Diagnostics attach to
// the nearest enclosing result; decoding never raises.
package diag

import (
	"fmt"
	"sort"
)

// Kind classifies a diagnostic.
type Kind int

const (
	ShortRead              Kind = iota // insufficient bytes for a declared field
	UnknownTag                         // tag or discriminant with no rule
	ChecksumMismatch                   // advisory, result flagged invalid
	MalformedLength                    // declared length inconsistent with the bytes present
	OversizeAssembly                   // per-session accumulation exceeded its ceiling
	RecursionLimitExceeded             // compound nesting exceeded the depth cap
	BadTerminator                      // parameter terminator byte was not zero
	TrailingData                       // bytes left over that match no known layout
	OrphanFragment                     // continuation fragment with no assembly to join
	DuplicateFragment                  // fragment id already seen in the assembly
	EvictedAssembly                    // assembly dropped by the session table
)

var kindNames = map[Kind]string{
	ShortRead:              "ShortRead",
	UnknownTag:             "UnknownTag",
	ChecksumMismatch:       "ChecksumMismatch",
	MalformedLength:        "MalformedLength",
	OversizeAssembly:       "OversizeAssembly",
	RecursionLimitExceeded: "RecursionLimitExceeded",
	BadTerminator:          "BadTerminator",
	TrailingData:           "TrailingData",
	OrphanFragment:         "OrphanFragment",
	DuplicateFragment:      "DuplicateFragment",
	EvictedAssembly:        "EvictedAssembly",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// MarshalText renders the kind by name in JSON reports.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Fatal reports whether the kind aborts the current message.
func (k Kind) Fatal() bool {
	return k == OversizeAssembly || k == RecursionLimitExceeded
}

// Diagnostic is one problem found while framing or decoding.
type Diagnostic struct {
	Kind    Kind   `json:"kind"`
	Offset  int    `json:"offset"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	return fmt.Sprintf("%s at offset %d: %s", d.Kind, d.Offset, d.Message)
}

// New builds a diagnostic with a formatted message.
func New(kind Kind, offset int, format string, args ...any) Diagnostic {
	return Diagnostic{Kind: kind, Offset: offset, Message: fmt.Sprintf(format, args...)}
}

// List is an append-only collection of diagnostics.
type List []Diagnostic

// Add appends a formatted diagnostic.
func (l *List) Add(kind Kind, offset int, format string, args ...any) {
	*l = append(*l, New(kind, offset, format, args...))
}

// Merge appends every diagnostic from other.
func (l *List) Merge(other List) {
	*l = append(*l, other...)
}

// Has reports whether any diagnostic of kind is present.
func (l List) Has(kind Kind) bool {
	for _, d := range l {
		if d.Kind == kind {
			return true
		}
	}
	return false
}

// Count returns how many diagnostics have the given kind.
func (l List) Count(kind Kind) int {
	n := 0
	for _, d := range l {
		if d.Kind == kind {
			n++
		}
	}
	return n
}

// Fatal reports whether any diagnostic aborts the message.
func (l List) Fatal() bool {
	for _, d := range l {
		if d.Kind.Fatal() {
			return true
		}
	}
	return false
}

// Shift returns a copy with every offset moved by delta. Used when a
// sub-buffer was decoded on its own.
func (l List) Shift(delta int) List {
	if len(l) == 0 {
		return nil
	}
	out := make(List, len(l))
	for i, d := range l {
		d.Offset += delta
		out[i] = d
	}
	return out
}

// Tally counts diagnostics by kind name, sorted for stable output.
func Tally(l List) []KindCount {
	counts := make(map[Kind]int)
	for _, d := range l {
		counts[d.Kind]++
	}
	out := make([]KindCount, 0, len(counts))
	for k, n := range counts {
		out = append(out, KindCount{Kind: k, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

// KindCount pairs a kind with an occurrence count.
type KindCount struct {
	Kind  Kind `json:"kind"`
	Count int  `json:"count"`
}
