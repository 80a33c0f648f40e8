// Package engine is the feed(session, bytes) entry point. An Engine owns the
// stream reassembler, fragment assembler and decoder for one protocol and
// turns transport deliveries into decoded results.
package engine

import (
	"time"

	"github.com/tturner/wiredecode/internal/diag"
	"github.com/tturner/wiredecode/internal/logging"
	"github.com/tturner/wiredecode/internal/protocol"
	"github.com/tturner/wiredecode/internal/reassembly"
	"github.com/tturner/wiredecode/internal/term"
)

// KindStream marks results that carry only reassembly diagnostics.
const KindStream = "stream"

// DecodedResult is one decoded message, or a diagnostics-only record for
// reassembly problems not tied to a message.
type DecodedResult struct {
	Message     reassembly.Message `json:"message"`
	Result      protocol.Result    `json:"result"`
	Diagnostics diag.List          `json:"diagnostics,omitempty"` // reassembly then decode
}

// Options configures an Engine.
type Options struct {
	Protocol      protocol.Protocol
	Limits        reassembly.Limits
	FragmentOrder reassembly.FragmentOrder
	Post          *protocol.PostProcessor
	Logger        *logging.Logger
}

// Stats counts engine activity.
type Stats struct {
	Deliveries  int   `json:"deliveries"`
	Bytes       int64 `json:"bytes"`
	Messages    int   `json:"messages"`
	Fragments   int   `json:"fragments"`
	Diagnostics int   `json:"diagnostics"`
}

// Engine is not safe for concurrent use; Pool shards sessions over engines.
type Engine struct {
	proto  protocol.Protocol
	stream *reassembly.Reassembler
	frags  *reassembly.FragmentAssembler
	post   *protocol.PostProcessor
	log    *logging.Logger
	stats  Stats
}

// New builds an engine for opts.Protocol.
func New(opts Options) *Engine {
	complete := defaultCompleter()
	if fc, ok := opts.Protocol.(protocol.FragmentCompleter); ok {
		complete = fc.Completer()
	}
	post := opts.Post
	if post == nil {
		post = protocol.DefaultPostProcessor()
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Engine{
		proto:  opts.Protocol,
		stream: reassembly.NewReassembler(opts.Protocol.Resolver(), opts.Limits),
		frags:  reassembly.NewFragmentAssembler(complete, opts.FragmentOrder, opts.Limits),
		post:   post,
		log:    log,
	}
}

func defaultCompleter() reassembly.Completer {
	dec := term.NewDecoder(nil, 0)
	return func(b []byte) bool { return dec.Complete(b).Complete }
}

// Protocol returns the protocol the engine decodes.
func (e *Engine) Protocol() protocol.Protocol {
	return e.proto
}

// Stats returns activity counters.
func (e *Engine) Stats() Stats {
	return e.stats
}

// Feed delivers bytes for a session.
func (e *Engine) Feed(key reassembly.SessionKey, data []byte) []DecodedResult {
	return e.FeedAt(key, data, time.Now())
}

// FeedAt delivers bytes with their capture timestamp.
func (e *Engine) FeedAt(key reassembly.SessionKey, data []byte, ts time.Time) []DecodedResult {
	e.stats.Deliveries++
	e.stats.Bytes += int64(len(data))

	msgs, diags := e.stream.FeedAt(key, data, ts)
	var out []DecodedResult
	if len(diags) > 0 {
		out = append(out, e.streamResult(key, ts, diags))
	}
	for _, msg := range msgs {
		out = append(out, e.handle(msg, nil)...)
	}
	return out
}

// Close ends a session, flushing any partial frame as an invalid message
// and dropping its open fragment groups.
func (e *Engine) Close(key reassembly.SessionKey) []DecodedResult {
	out := e.CloseStream(key)
	if fd := e.frags.Close(key); len(fd) > 0 {
		out = append(out, e.streamResult(key, time.Time{}, fd))
	}
	return out
}

// CloseStream flushes the session's partial frame but keeps its fragment
// groups open. Datagram transports call it after every delivery, since a
// logical message may span several datagrams.
func (e *Engine) CloseStream(key reassembly.SessionKey) []DecodedResult {
	msg, diags := e.stream.Close(key)
	if msg != nil {
		e.log.Verbose("%s: closed with %d unframed bytes", key, msg.Len())
		return []DecodedResult{e.decode(*msg, diags)}
	}
	if len(diags) > 0 {
		return []DecodedResult{e.streamResult(key, time.Time{}, diags)}
	}
	return nil
}

// Expire drops sessions and fragment groups idle past the timeout.
func (e *Engine) Expire(now time.Time) []DecodedResult {
	var diags diag.List
	diags.Merge(e.stream.Expire(now))
	diags.Merge(e.frags.Expire(now))
	if len(diags) == 0 {
		return nil
	}
	return []DecodedResult{e.streamResult("", now, diags)}
}

// handle routes one framed record through the fragment path when it carries
// a fragment, otherwise decodes it directly.
func (e *Engine) handle(msg reassembly.Message, pre diag.List) []DecodedResult {
	seg, ok := e.proto.Segment(msg)
	if !ok {
		return []DecodedResult{e.decode(msg, pre)}
	}
	e.stats.Fragments++
	e.log.Debug("%s: fragment %d of sequence %d, %d bytes", msg.Session, seg.Fragment, seg.Sequence, len(seg.Payload))

	var diags diag.List
	diags.Merge(pre)
	diags.Merge(seg.Diagnostics)
	assembled, fd := e.frags.Add(msg.Session, seg.Sequence, seg.Fragment, seg.Payload, msg.Timestamp)
	diags.Merge(fd)
	if assembled == nil {
		if len(diags) == 0 {
			return nil
		}
		return []DecodedResult{e.streamResult(msg.Session, msg.Timestamp, diags)}
	}
	assembled.StreamOffset = msg.StreamOffset
	r := e.decode(*assembled, diags)
	r.Result.ChecksumValid = r.Result.ChecksumValid && seg.ChecksumValid
	return []DecodedResult{r}
}

func (e *Engine) decode(msg reassembly.Message, pre diag.List) DecodedResult {
	res := protocol.DecodeMessage(e.proto, msg, e.post)
	var diags diag.List
	diags.Merge(pre)
	diags.Merge(res.Diagnostics)
	if pre.Fatal() {
		res.Aborted = true
	}

	e.stats.Messages++
	e.stats.Diagnostics += len(diags)
	e.log.LogMessage(string(msg.Session), res.Kind, msg.Len(), diags)
	e.log.LogHex(string(msg.Session), msg.Bytes)
	return DecodedResult{Message: msg, Result: res, Diagnostics: diags}
}

func (e *Engine) streamResult(key reassembly.SessionKey, ts time.Time, diags diag.List) DecodedResult {
	e.stats.Diagnostics += len(diags)
	e.log.LogDiagnostics(string(key), diags)
	return DecodedResult{
		Message:     reassembly.Message{Session: key, Timestamp: ts},
		Result:      protocol.Result{Protocol: e.proto.Name(), Kind: KindStream, Diagnostics: diags},
		Diagnostics: diags,
	}
}
