package reassembly

import (
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/simplelru"

	"github.com/tturner/wiredecode/internal/diag"
)

// sessionTable owns every PendingAssembly of one assembler. Capacity
// overflow evicts the least recently touched entry.
type sessionTable struct {
	lru     *simplelru.LRU
	evicted diag.List
	quiet   bool
}

func newSessionTable(size int) *sessionTable {
	t := &sessionTable{}
	lru, err := simplelru.NewLRU(size, t.onEvict)
	if err != nil {
		// Only a non-positive size fails; limits are defaulted before this.
		panic(fmt.Sprintf("session table: %v", err))
	}
	t.lru = lru
	return t
}

func (t *sessionTable) onEvict(key, value interface{}) {
	if t.quiet {
		return
	}
	p := value.(*PendingAssembly)
	if p.Buffered() == 0 && p.Fragments() == 0 {
		return
	}
	t.evicted.Add(diag.EvictedAssembly, int(p.offset), "session table full: dropped %d buffered bytes of %v", p.Buffered(), key)
}

func (t *sessionTable) get(key interface{}) (*PendingAssembly, bool) {
	v, ok := t.lru.Get(key)
	if !ok {
		return nil, false
	}
	return v.(*PendingAssembly), true
}

func (t *sessionTable) peek(key interface{}) (*PendingAssembly, bool) {
	v, ok := t.lru.Peek(key)
	if !ok {
		return nil, false
	}
	return v.(*PendingAssembly), true
}

func (t *sessionTable) put(key interface{}, p *PendingAssembly) {
	t.lru.Add(key, p)
}

func (t *sessionTable) remove(key interface{}) {
	t.quiet = true
	t.lru.Remove(key)
	t.quiet = false
}

func (t *sessionTable) len() int {
	return t.lru.Len()
}

// drain returns and clears diagnostics produced by capacity evictions.
func (t *sessionTable) drain() diag.List {
	out := t.evicted
	t.evicted = nil
	return out
}

// expire removes entries idle for longer than timeout, oldest first.
func (t *sessionTable) expire(now time.Time, timeout time.Duration) diag.List {
	var diags diag.List
	for {
		key, v, ok := t.lru.GetOldest()
		if !ok {
			break
		}
		p := v.(*PendingAssembly)
		if now.Sub(p.LastSeen) < timeout {
			break
		}
		if p.Buffered() > 0 || p.Fragments() > 0 {
			diags.Add(diag.EvictedAssembly, int(p.offset), "idle for %s: dropped %d buffered bytes of %v",
				now.Sub(p.LastSeen).Truncate(time.Millisecond), p.Buffered(), key)
		}
		t.remove(key)
	}
	return diags
}
