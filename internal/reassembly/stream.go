package reassembly

import (
	"time"

	"github.com/tturner/wiredecode/internal/diag"
	"github.com/tturner/wiredecode/internal/framing"
)

// Reassembler splits and coalesces per-session byte streams into framed
// messages.
type Reassembler struct {
	resolver framing.Resolver
	limits   Limits
	table    *sessionTable
}

// NewReassembler builds a stream reassembler. Zero limit fields take defaults.
func NewReassembler(resolver framing.Resolver, limits Limits) *Reassembler {
	limits = limits.withDefaults()
	return &Reassembler{
		resolver: resolver,
		limits:   limits,
		table:    newSessionTable(limits.MaxSessions),
	}
}

// Limits returns the effective limits.
func (r *Reassembler) Limits() Limits {
	return r.limits
}

// Sessions returns the number of sessions with buffered bytes.
func (r *Reassembler) Sessions() int {
	return r.table.len()
}

// Pending returns the assembly for key without touching its recency.
func (r *Reassembler) Pending(key SessionKey) (*PendingAssembly, bool) {
	return r.table.peek(key)
}

// Feed appends data to the session's stream and returns every message it
// completes.
func (r *Reassembler) Feed(key SessionKey, data []byte) ([]Message, diag.List) {
	return r.FeedAt(key, data, time.Now())
}

// FeedAt is Feed with an explicit capture timestamp.
func (r *Reassembler) FeedAt(key SessionKey, data []byte, ts time.Time) ([]Message, diag.List) {
	p, ok := r.table.get(key)
	if !ok {
		if len(data) == 0 {
			return nil, nil
		}
		p = newPending(key, ts)
		r.table.put(key, p)
	}
	diags := r.table.drain()

	p.buf = append(p.buf, data...)
	p.LastSeen = ts
	p.State = StateAccumulating

	var msgs []Message
	skipped := 0
	skipStart := p.offset
	flushSkip := func() {
		if skipped > 0 {
			diags.Add(diag.MalformedLength, int(skipStart), "resynchronized past %d unframeable bytes", skipped)
			skipped = 0
		}
	}

	for len(p.buf) > 0 {
		res := r.resolver.Resolve(p.buf)
		if res.Status == framing.StatusMalformed {
			if skipped == 0 {
				skipStart = p.offset
			}
			skipped++
			p.consume(1)
			continue
		}
		flushSkip()

		if res.Status == framing.StatusNeedMore {
			p.Expected = -1
			break
		}

		total := res.N
		if total > r.limits.MaxAssemblyBytes {
			diags.Add(diag.OversizeAssembly, int(p.offset), "declared frame of %d bytes exceeds limit %d", total, r.limits.MaxAssemblyBytes)
			r.table.remove(key)
			return msgs, diags
		}
		if len(p.buf) < total {
			p.Expected = total
			break
		}

		p.State = StateComplete
		msgs = append(msgs, Message{
			Session:        key,
			StreamOffset:   p.offset,
			Bytes:          append([]byte(nil), p.buf[:total]...),
			DeclaredLength: total,
			Valid:          true,
			Timestamp:      ts,
		})
		p.consume(total)
		p.Expected = -1
		p.State = StateAccumulating
	}
	flushSkip()

	if len(p.buf) > r.limits.MaxAssemblyBytes {
		diags.Add(diag.OversizeAssembly, int(p.offset), "pending buffer of %d bytes exceeds limit %d", len(p.buf), r.limits.MaxAssemblyBytes)
		r.table.remove(key)
		return msgs, diags
	}
	if len(p.buf) == 0 {
		p.State = StateIdle
		r.table.remove(key)
	}
	return msgs, diags
}

// Close ends the session. A non-empty pending buffer is flushed as one
// message with Valid set to false.
func (r *Reassembler) Close(key SessionKey) (*Message, diag.List) {
	p, ok := r.table.peek(key)
	if !ok {
		return nil, nil
	}
	r.table.remove(key)
	if len(p.buf) == 0 {
		return nil, nil
	}
	var diags diag.List
	if p.Expected > 0 {
		diags.Add(diag.ShortRead, int(p.offset), "stream closed with %d of %d frame bytes", len(p.buf), p.Expected)
	} else {
		diags.Add(diag.ShortRead, int(p.offset), "stream closed with %d bytes before frame length was known", len(p.buf))
	}
	return &Message{
		Session:        key,
		StreamOffset:   p.offset,
		Bytes:          p.buf,
		DeclaredLength: p.Expected,
		Valid:          false,
		Timestamp:      p.LastSeen,
	}, diags
}

// Expire drops sessions idle longer than the configured timeout.
func (r *Reassembler) Expire(now time.Time) diag.List {
	return r.table.expire(now, r.limits.IdleTimeout)
}

func (p *PendingAssembly) consume(n int) {
	p.offset += int64(n)
	if n >= len(p.buf) {
		p.buf = nil
		return
	}
	p.buf = p.buf[n:]
}
