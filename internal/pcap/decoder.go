package pcap

import (
	"fmt"
	"sort"
	"time"

	"github.com/tturner/wiredecode/internal/config"
	"github.com/tturner/wiredecode/internal/engine"
	"github.com/tturner/wiredecode/internal/logging"
	"github.com/tturner/wiredecode/internal/reassembly"
)

// expireEvery is how far capture time must advance between idle sweeps.
const expireEvery = time.Second

// Options configures a Decoder.
type Options struct {
	Config *config.Config
	// Protocol forces every payload through one decoder, ignoring ports.
	Protocol string
	Logger   *logging.Logger
}

// Stats counts capture traffic seen by a Decoder.
type Stats struct {
	Packets   int `json:"packets"`
	Payloads  int `json:"payloads"`
	Unmatched int `json:"unmatched"`
	Sessions  int `json:"sessions"`
	Closed    int `json:"closed"`
}

// Decoder routes capture packets to one engine per protocol, keyed by the
// directional flow.
type Decoder struct {
	cfg       *config.Config
	force     string
	log       *logging.Logger
	engines   map[string]*engine.Engine
	open      map[reassembly.SessionKey]string
	lastSweep time.Time
	stats     Stats
}

// NewDecoder builds engines for every configured protocol, or only for
// opts.Protocol when it is set.
func NewDecoder(opts Options) (*Decoder, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.CreateDefaultConfig()
	}
	log := opts.Logger
	if log == nil {
		log = logging.Discard()
	}
	d := &Decoder{
		cfg:     cfg,
		force:   opts.Protocol,
		log:     log,
		engines: make(map[string]*engine.Engine),
		open:    make(map[reassembly.SessionKey]string),
	}

	names := []string{opts.Protocol}
	if opts.Protocol == "" {
		names = names[:0]
		for _, b := range cfg.Protocols {
			names = append(names, b.Name)
		}
	}
	for _, name := range names {
		if _, ok := d.engines[name]; ok {
			continue
		}
		eng, err := engine.NewFromConfig(name, cfg.Decoder, log)
		if err != nil {
			return nil, fmt.Errorf("protocol %s: %w", name, err)
		}
		d.engines[name] = eng
	}
	if len(d.engines) == 0 {
		return nil, fmt.Errorf("no protocols configured")
	}
	return d, nil
}

// Stats returns traffic counters.
func (d *Decoder) Stats() Stats {
	return d.stats
}

// EngineStats returns per-protocol engine counters.
func (d *Decoder) EngineStats() map[string]engine.Stats {
	out := make(map[string]engine.Stats, len(d.engines))
	for name, eng := range d.engines {
		out[name] = eng.Stats()
	}
	return out
}

// protocolFor picks the decoder for a packet: the forced protocol, else
// the binding for the destination port, else the source port.
func (d *Decoder) protocolFor(p Packet) (string, bool) {
	if d.force != "" {
		return d.force, true
	}
	if name, ok := d.cfg.ProtocolForPort(int(p.DstPort), p.Transport); ok {
		return name, true
	}
	return d.cfg.ProtocolForPort(int(p.SrcPort), p.Transport)
}

// Packet feeds one packet. TCP payloads accumulate per flow until FIN or
// RST closes it; each UDP datagram is fed and closed on its own.
func (d *Decoder) Packet(p Packet) []engine.DecodedResult {
	d.stats.Packets++
	out := d.sweep(p.Timestamp)

	name, ok := d.protocolFor(p)
	if !ok {
		if len(p.Payload) > 0 {
			d.stats.Unmatched++
		}
		return out
	}
	eng := d.engines[name]
	key := p.Key()

	if len(p.Payload) > 0 {
		d.stats.Payloads++
		if _, seen := d.open[key]; !seen {
			d.stats.Sessions++
			d.log.Verbose("%s: new %s session (%s)", key, p.Transport, name)
		}
		d.open[key] = name
		out = append(out, eng.FeedAt(key, p.Payload, p.Timestamp)...)
	}

	switch {
	case p.Transport == "udp":
		// Each datagram is a whole record; fragment groups stay open until
		// idle expiry or Finish.
		out = append(out, eng.CloseStream(key)...)
	case p.RST:
		out = append(out, d.close(key)...)
		out = append(out, d.close(p.ReverseKey())...)
	case p.FIN:
		out = append(out, d.close(key)...)
	}
	return out
}

func (d *Decoder) close(key reassembly.SessionKey) []engine.DecodedResult {
	name, ok := d.open[key]
	if !ok {
		return nil
	}
	delete(d.open, key)
	d.stats.Closed++
	return d.engines[name].Close(key)
}

// sweep expires idle sessions once capture time has moved on enough.
func (d *Decoder) sweep(now time.Time) []engine.DecodedResult {
	if now.IsZero() {
		return nil
	}
	if d.lastSweep.IsZero() {
		d.lastSweep = now
		return nil
	}
	if now.Sub(d.lastSweep) < expireEvery {
		return nil
	}
	d.lastSweep = now
	var out []engine.DecodedResult
	for _, name := range d.engineNames() {
		out = append(out, d.engines[name].Expire(now)...)
	}
	return out
}

// Finish closes every open session in key order, flushing partial frames.
func (d *Decoder) Finish() []engine.DecodedResult {
	keys := make([]string, 0, len(d.open))
	for key := range d.open {
		keys = append(keys, string(key))
	}
	sort.Strings(keys)
	var out []engine.DecodedResult
	for _, key := range keys {
		out = append(out, d.close(reassembly.SessionKey(key))...)
	}
	return out
}

func (d *Decoder) engineNames() []string {
	names := make([]string, 0, len(d.engines))
	for name := range d.engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DecodeFile reads a capture through d, passing every result to emit, and
// closes the remaining sessions at the end of the file.
func DecodeFile(path string, d *Decoder, emit func(engine.DecodedResult) error) error {
	capture, err := Open(path)
	if err != nil {
		return err
	}
	defer capture.Close()
	d.log.Info("Reading %s (%s, link type %s)", path, capture.Format(), capture.LinkType())

	emitAll := func(results []engine.DecodedResult) error {
		for _, r := range results {
			if err := emit(r); err != nil {
				return err
			}
		}
		return nil
	}

	err = capture.Each(func(p Packet) error {
		if !p.Timestamp.IsZero() {
			capture.Discard(p.Timestamp.Add(-d.cfg.Decoder.IdleTimeout()))
		}
		return emitAll(d.Packet(p))
	})
	if err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	if capture.Truncated() {
		d.log.Info("%s: capture truncated after %d frames", path, capture.Frames())
	}
	return emitAll(d.Finish())
}
