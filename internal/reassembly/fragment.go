package reassembly

import (
	"fmt"
	"strings"
	"time"

	"github.com/tturner/wiredecode/internal/diag"
)

// FragmentOrder selects how pieces are concatenated.
type FragmentOrder int

const (
	// OrderArrival joins pieces in the order they were added.
	OrderArrival FragmentOrder = iota
	// OrderFragmentID joins pieces by ascending fragment id.
	OrderFragmentID
)

func (o FragmentOrder) String() string {
	if o == OrderFragmentID {
		return "id"
	}
	return "arrival"
}

// ParseFragmentOrder maps a config value to an order.
func ParseFragmentOrder(s string) (FragmentOrder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "arrival":
		return OrderArrival, nil
	case "id", "fragment_id":
		return OrderFragmentID, nil
	default:
		return OrderArrival, fmt.Errorf("unknown fragment order %q (expected arrival or id)", s)
	}
}

// Completer reports whether joined reports a whole logical message.
type Completer func(joined []byte) bool

type fragmentKey struct {
	session  SessionKey
	sequence uint32
}

// FragmentAssembler joins records that carry (sequence, fragment) ids.
// Fragment 1 starts a logical message; completion is decided by the
// Completer after each accepted piece.
type FragmentAssembler struct {
	complete Completer
	order    FragmentOrder
	limits   Limits
	table    *sessionTable
}

// NewFragmentAssembler builds an assembler. Zero limit fields take defaults.
func NewFragmentAssembler(complete Completer, order FragmentOrder, limits Limits) *FragmentAssembler {
	limits = limits.withDefaults()
	return &FragmentAssembler{
		complete: complete,
		order:    order,
		limits:   limits,
		table:    newSessionTable(limits.MaxSessions),
	}
}

// Order returns the configured ordering rule.
func (a *FragmentAssembler) Order() FragmentOrder {
	return a.order
}

// Pending returns the number of open fragment groups.
func (a *FragmentAssembler) Pending() int {
	return a.table.len()
}

// Add accepts one fragment. It returns the assembled message once the
// Completer accepts the joined pieces. Under OrderFragmentID the Completer
// only runs while the accepted ids form an unbroken run from 1.
func (a *FragmentAssembler) Add(key SessionKey, sequence, fragment uint32, payload []byte, ts time.Time) (*Message, diag.List) {
	fk := fragmentKey{session: key, sequence: sequence}
	var diags diag.List

	p, ok := a.table.get(fk)
	if fragment == 1 {
		if ok {
			diags.Add(diag.EvictedAssembly, 0, "sequence %d restarted: dropped %d pending fragments", sequence, p.Fragments())
			a.table.remove(fk)
		}
		p = newPending(key, ts)
		p.Sequence = sequence
		p.seen = make(map[uint32]struct{})
		p.next = 1
		a.table.put(fk, p)
		diags.Merge(a.table.drain())
	} else if !ok {
		diags.Add(diag.OrphanFragment, 0, "fragment %d of sequence %d has no open assembly", fragment, sequence)
		return nil, diags
	}

	if _, dup := p.seen[fragment]; dup {
		diags.Add(diag.DuplicateFragment, 0, "fragment %d of sequence %d already received", fragment, sequence)
		return nil, diags
	}
	p.seen[fragment] = struct{}{}
	p.LastSeen = ts
	p.State = StateAccumulating
	p.size += len(payload)
	if p.size > a.limits.MaxAssemblyBytes {
		diags.Add(diag.OversizeAssembly, 0, "sequence %d reached %d bytes, limit %d", sequence, p.size, a.limits.MaxAssemblyBytes)
		a.table.remove(fk)
		return nil, diags
	}

	if !a.accept(p, fragment, payload) || !a.complete(p.joined) {
		return nil, diags
	}
	p.State = StateComplete
	a.table.remove(fk)
	return &Message{
		Session:        key,
		Sequence:       sequence,
		HasSequence:    true,
		Fragments:      p.Fragments(),
		Bytes:          p.joined,
		DeclaredLength: len(p.joined),
		Valid:          true,
		Timestamp:      ts,
	}, diags
}

// accept appends payload to the group's joined bytes and reports whether
// they are ready for a completion check.
func (a *FragmentAssembler) accept(p *PendingAssembly, fragment uint32, payload []byte) bool {
	if a.order != OrderFragmentID {
		p.joined = append(p.joined, payload...)
		return true
	}
	if fragment != p.next {
		if p.held == nil {
			p.held = make(map[uint32][]byte)
		}
		p.held[fragment] = append([]byte(nil), payload...)
		return false
	}
	p.joined = append(p.joined, payload...)
	p.next++
	for {
		b, ok := p.held[p.next]
		if !ok {
			break
		}
		p.joined = append(p.joined, b...)
		delete(p.held, p.next)
		p.next++
	}
	return len(p.held) == 0
}

// Close drops every open fragment group of the session.
func (a *FragmentAssembler) Close(key SessionKey) diag.List {
	var diags diag.List
	for _, k := range a.table.lru.Keys() {
		fk := k.(fragmentKey)
		if fk.session != key {
			continue
		}
		if p, ok := a.table.peek(fk); ok {
			diags.Add(diag.ShortRead, 0, "session closed with sequence %d incomplete after %d fragments", fk.sequence, p.Fragments())
		}
		a.table.remove(fk)
	}
	return diags
}

// Expire drops fragment groups idle longer than the configured timeout.
func (a *FragmentAssembler) Expire(now time.Time) diag.List {
	return a.table.expire(now, a.limits.IdleTimeout)
}
