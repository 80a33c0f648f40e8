package reassembly

import (
	"bytes"
	"encoding/binary"
	"runtime"
	"testing"
	"time"

	"github.com/tturner/wiredecode/internal/diag"
	"github.com/tturner/wiredecode/internal/term"
)

func termCompleter() Completer {
	dec := term.NewDecoder(nil, 0)
	return func(b []byte) bool { return dec.Complete(b).Complete }
}

// scenarioPieces splits a 9-byte binary term into three fragments.
func scenarioPieces() (p1, p2, p3 []byte) {
	header := []byte{term.TagBinary, 0x00, 0x00, 0x00, 0x09}
	p1 = append(header, "abc"...)
	return p1, []byte("def"), []byte("ghi")
}

func TestFragmentAssemblerOrdering(t *testing.T) {
	tests := []struct {
		name  string
		order FragmentOrder
		want  string
	}{
		{name: "arrival", order: OrderArrival, want: "abcghidef"},
		{name: "fragment id", order: OrderFragmentID, want: "abcdefghi"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewFragmentAssembler(termCompleter(), tt.order, Limits{})
			p1, p2, p3 := scenarioPieces()
			now := time.Unix(1700000000, 0)

			if msg, diags := a.Add("s", 7, 1, p1, now); msg != nil || len(diags) != 0 {
				t.Fatalf("fragment 1: msg=%v diags=%v", msg, diags)
			}
			if msg, diags := a.Add("s", 7, 3, p3, now); msg != nil || len(diags) != 0 {
				t.Fatalf("fragment 3: msg=%v diags=%v", msg, diags)
			}
			msg, diags := a.Add("s", 7, 2, p2, now)
			if len(diags) != 0 {
				t.Fatalf("fragment 2: diags=%v", diags)
			}
			if msg == nil {
				t.Fatalf("fragment 2 did not complete the message")
			}
			if msg.Sequence != 7 || !msg.HasSequence || msg.Fragments != 3 {
				t.Errorf("message = seq %d fragments %d", msg.Sequence, msg.Fragments)
			}
			v, vd := term.NewDecoder(nil, 0).DecodeBytes(msg.Bytes)
			if len(vd) != 0 {
				t.Fatalf("decode: %v", vd)
			}
			if got := string(v.Bytes); got != tt.want {
				t.Errorf("payload = %q, want %q", got, tt.want)
			}
			if a.Pending() != 0 {
				t.Errorf("pending = %d, want 0", a.Pending())
			}
		})
	}
}

func TestFragmentAssemblerSingleFragment(t *testing.T) {
	a := NewFragmentAssembler(termCompleter(), OrderArrival, Limits{})
	payload := term.NewEncoder().Tuple(2).Atom("ok").SmallInt(3).Bytes()
	msg, diags := a.Add("s", 1, 1, payload, time.Now())
	if msg == nil || len(diags) != 0 {
		t.Fatalf("msg=%v diags=%v", msg, diags)
	}
	if !bytes.Equal(msg.Bytes, payload) || msg.Fragments != 1 {
		t.Errorf("message = %x fragments %d", msg.Bytes, msg.Fragments)
	}
}

func TestFragmentAssemblerOrphanAndDuplicate(t *testing.T) {
	a := NewFragmentAssembler(termCompleter(), OrderArrival, Limits{})
	p1, p2, _ := scenarioPieces()
	now := time.Now()

	if _, diags := a.Add("s", 9, 2, p2, now); !diags.Has(diag.OrphanFragment) {
		t.Fatalf("orphan diags = %v", diags)
	}
	a.Add("s", 9, 1, p1, now)
	if _, diags := a.Add("s", 9, 1, p1, now); !diags.Has(diag.EvictedAssembly) {
		t.Fatalf("restart diags = %v, want stale assembly dropped", diags)
	}
	a.Add("s", 9, 2, p2, now)
	if _, diags := a.Add("s", 9, 2, p2, now); !diags.Has(diag.DuplicateFragment) {
		t.Fatalf("duplicate diags = %v", diags)
	}
	msg, _ := a.Add("s", 9, 3, []byte("ghi"), now)
	if msg == nil || !bytes.HasSuffix(msg.Bytes, []byte("abcdefghi")) {
		t.Fatalf("message after duplicate = %v", msg)
	}
}

func TestFragmentAssemblerSequencesAreIndependent(t *testing.T) {
	a := NewFragmentAssembler(termCompleter(), OrderArrival, Limits{})
	p1, p2, p3 := scenarioPieces()
	now := time.Now()
	a.Add("s", 1, 1, p1, now)
	a.Add("s", 2, 1, p1, now)
	a.Add("t", 1, 1, p1, now)
	if a.Pending() != 3 {
		t.Fatalf("pending = %d, want 3", a.Pending())
	}
	a.Add("s", 2, 2, p2, now)
	msg, _ := a.Add("s", 2, 3, p3, now)
	if msg == nil || msg.Sequence != 2 || msg.Session != "s" {
		t.Fatalf("message = %v", msg)
	}
	if diags := a.Close("s"); diags.Count(diag.ShortRead) != 1 {
		t.Errorf("close diags = %v, want one incomplete sequence", diags)
	}
	if a.Pending() != 1 {
		t.Errorf("pending = %d, want only session t", a.Pending())
	}
}

func TestFragmentAssemblerOversize(t *testing.T) {
	a := NewFragmentAssembler(termCompleter(), OrderArrival, Limits{MaxAssemblyBytes: 10})
	p1, p2, _ := scenarioPieces()
	now := time.Now()
	a.Add("s", 1, 1, p1, now)
	_, diags := a.Add("s", 1, 2, p2, now)
	if !diags.Has(diag.OversizeAssembly) {
		t.Fatalf("diags = %v, want OversizeAssembly", diags)
	}
	if _, diags := a.Add("s", 1, 3, []byte("ghi"), now); !diags.Has(diag.OrphanFragment) {
		t.Errorf("fragment after oversize: %v, want OrphanFragment", diags)
	}
}

func TestFragmentAssemblerExpire(t *testing.T) {
	a := NewFragmentAssembler(termCompleter(), OrderArrival, Limits{IdleTimeout: time.Minute})
	p1, _, _ := scenarioPieces()
	base := time.Unix(1700000000, 0)
	a.Add("s", 1, 1, p1, base)
	if diags := a.Expire(base.Add(30 * time.Second)); len(diags) != 0 {
		t.Fatalf("early expire: %v", diags)
	}
	if diags := a.Expire(base.Add(2 * time.Minute)); !diags.Has(diag.EvictedAssembly) {
		t.Fatalf("expire diags = %v", diags)
	}
	if a.Pending() != 0 {
		t.Errorf("pending = %d, want 0", a.Pending())
	}
}

func TestFragmentAssemblerManySmallFragments(t *testing.T) {
	const n = 20000
	header := []byte{term.TagBinary, 0x00, 0x00, 0x00, 0x00}
	binary.BigEndian.PutUint32(header[1:], n)

	tests := []struct {
		name      string
		order     FragmentOrder
		reversed  bool
		wantCalls int
	}{
		{name: "arrival", order: OrderArrival, wantCalls: n + 1},
		{name: "fragment id", order: OrderFragmentID, wantCalls: n + 1},
		{name: "fragment id reversed", order: OrderFragmentID, reversed: true, wantCalls: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			inner := termCompleter()
			a := NewFragmentAssembler(func(b []byte) bool {
				calls++
				return inner(b)
			}, tt.order, Limits{})
			now := time.Unix(1700000000, 0)

			var before, after runtime.MemStats
			runtime.ReadMemStats(&before)
			if msg, diags := a.Add("s", 1, 1, header, now); msg != nil || len(diags) != 0 {
				t.Fatalf("header: msg=%v diags=%v", msg, diags)
			}
			var done *Message
			for i := 0; i < n; i++ {
				frag := uint32(i + 2)
				if tt.reversed {
					frag = uint32(n + 1 - i)
				}
				msg, diags := a.Add("s", 1, frag, []byte{byte(frag)}, now)
				if len(diags) != 0 {
					t.Fatalf("fragment %d: diags=%v", frag, diags)
				}
				if msg != nil && i != n-1 {
					t.Fatalf("completed early at fragment %d", frag)
				}
				done = msg
			}
			runtime.ReadMemStats(&after)

			if done == nil {
				t.Fatal("message never completed")
			}
			if done.Fragments != n+1 || len(done.Bytes) != len(header)+n {
				t.Errorf("message = %d fragments %d bytes", done.Fragments, len(done.Bytes))
			}
			last := uint32(n + 1)
			if got := done.Bytes[len(header)+n-1]; got != byte(last) {
				t.Errorf("last byte = %d, want %d", got, byte(last))
			}
			if calls != tt.wantCalls {
				t.Errorf("completion checks = %d, want %d", calls, tt.wantCalls)
			}
			// Rejoining every piece on each add costs hundreds of MiB here.
			if got := after.TotalAlloc - before.TotalAlloc; got > 32<<20 {
				t.Errorf("assembly allocated %d bytes", got)
			}
		})
	}
}

func TestParseFragmentOrder(t *testing.T) {
	tests := []struct {
		in      string
		want    FragmentOrder
		wantErr bool
	}{
		{"", OrderArrival, false},
		{"arrival", OrderArrival, false},
		{"ID", OrderFragmentID, false},
		{"random", OrderArrival, true},
	}
	for _, tt := range tests {
		got, err := ParseFragmentOrder(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseFragmentOrder(%q) error = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseFragmentOrder(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
