package engine

import (
	"fmt"

	"github.com/tturner/wiredecode/internal/config"
	"github.com/tturner/wiredecode/internal/logging"
	"github.com/tturner/wiredecode/internal/protocol"
	"github.com/tturner/wiredecode/internal/protocol/kvp"
	"github.com/tturner/wiredecode/internal/protocol/srec"
	"github.com/tturner/wiredecode/internal/term"
)

// NewProtocol returns the decoder registered under name. terms configures
// term decoding for protocols that carry term values; nil selects defaults.
func NewProtocol(name string, terms *term.Decoder) (protocol.Protocol, error) {
	switch name {
	case kvp.Name:
		return kvp.New(), nil
	case srec.Name:
		return srec.New(terms), nil
	default:
		return nil, fmt.Errorf("unknown protocol %q (expected %s or %s)", name, kvp.Name, srec.Name)
	}
}

// NewFromConfig builds an engine for the named protocol with the limits,
// fragment order and timestamp suffixes of the decoder section.
func NewFromConfig(name string, dc config.DecoderConfig, log *logging.Logger) (*Engine, error) {
	proto, err := NewProtocol(name, term.NewDecoder(nil, dc.MaxDepth))
	if err != nil {
		return nil, err
	}
	return New(Options{
		Protocol:      proto,
		Limits:        dc.Limits(),
		FragmentOrder: dc.Order(),
		Post:          protocol.TimestampProcessor(dc.TimestampSuffixes),
		Logger:        log,
	}), nil
}
