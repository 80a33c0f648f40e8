// Package reassembly recovers complete messages from transport deliveries.
//
// Reassembler handles byte streams whose boundaries are found by a
// framing.Resolver. FragmentAssembler handles logical messages split across
// independently delivered records tagged with (sequence, fragment) ids.
// Both keep one PendingAssembly per identity in an owned, bounded session
// table; neither is safe for concurrent use, so callers shard by session.
package reassembly

import (
	"time"
)

// SessionKey identifies one transport flow, e.g. "10.0.0.1:5000->10.0.0.2:7000".
type SessionKey string

// Message is one complete application unit. Bytes are owned by the message
// and never alias assembly buffers.
type Message struct {
	Session        SessionKey `json:"session"`
	Sequence       uint32     `json:"sequence,omitempty"`
	HasSequence    bool       `json:"has_sequence,omitempty"`
	Fragments      int        `json:"fragments,omitempty"`
	StreamOffset   int64      `json:"stream_offset"`
	Bytes          []byte     `json:"-"`
	DeclaredLength int        `json:"declared_length"`
	Valid          bool       `json:"valid"` // false when flushed before framing completed
	Timestamp      time.Time  `json:"timestamp,omitempty"`
}

// Len returns the number of bytes in the message.
func (m Message) Len() int {
	return len(m.Bytes)
}

// State is the lifecycle phase of a PendingAssembly.
type State int

const (
	StateIdle State = iota
	StateAccumulating
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAccumulating:
		return "accumulating"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// PendingAssembly is the mutable accumulation state for one stream or one
// fragment group.
type PendingAssembly struct {
	Session  SessionKey
	Sequence uint32
	State    State
	Expected int // total frame length once the header resolved, -1 before
	LastSeen time.Time

	buf    []byte
	offset int64 // stream bytes already emitted or skipped

	// Fragment groups. joined holds the pieces accepted so far in join
	// order; under OrderFragmentID, pieces past a gap wait in held.
	joined []byte
	seen   map[uint32]struct{}
	held   map[uint32][]byte
	next   uint32
	size   int
}

func newPending(key SessionKey, now time.Time) *PendingAssembly {
	return &PendingAssembly{Session: key, State: StateIdle, Expected: -1, LastSeen: now}
}

// Buffered returns the number of bytes held.
func (p *PendingAssembly) Buffered() int {
	return len(p.buf) + p.size
}

// Fragments returns the number of fragments accepted into a group.
func (p *PendingAssembly) Fragments() int {
	return len(p.seen)
}

// Limits bound reassembly resources.
type Limits struct {
	MaxAssemblyBytes int           // ceiling for one assembly's buffered bytes
	MaxSessions      int           // session table capacity
	IdleTimeout      time.Duration // assemblies untouched this long are expired
}

// Defaults.
const (
	DefaultMaxAssemblyBytes = 16 << 20
	DefaultMaxSessions      = 4096
	DefaultIdleTimeout      = 30 * time.Second
)

// DefaultLimits returns the default ceilings.
func DefaultLimits() Limits {
	return Limits{
		MaxAssemblyBytes: DefaultMaxAssemblyBytes,
		MaxSessions:      DefaultMaxSessions,
		IdleTimeout:      DefaultIdleTimeout,
	}
}

func (l Limits) withDefaults() Limits {
	def := DefaultLimits()
	if l.MaxAssemblyBytes <= 0 {
		l.MaxAssemblyBytes = def.MaxAssemblyBytes
	}
	if l.MaxSessions <= 0 {
		l.MaxSessions = def.MaxSessions
	}
	if l.IdleTimeout <= 0 {
		l.IdleTimeout = def.IdleTimeout
	}
	return l
}
