package config

// Configuration loading and validation for wiredecode

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/tturner/wiredecode/internal/errors"
	"github.com/tturner/wiredecode/internal/logging"
	"github.com/tturner/wiredecode/internal/protocol"
	"github.com/tturner/wiredecode/internal/protocol/kvp"
	"github.com/tturner/wiredecode/internal/protocol/srec"
	"github.com/tturner/wiredecode/internal/reassembly"
	"github.com/tturner/wiredecode/internal/term"
)

// DecoderConfig bounds decoding and reassembly resources.
type DecoderConfig struct {
	MaxDepth          int      `yaml:"max_depth" toml:"max_depth"`
	MaxAssemblyBytes  int      `yaml:"max_assembly_bytes" toml:"max_assembly_bytes"`
	MaxSessions       int      `yaml:"max_sessions" toml:"max_sessions"`
	IdleTimeoutMs     int      `yaml:"idle_timeout_ms" toml:"idle_timeout_ms"`
	FragmentOrder     string   `yaml:"fragment_order" toml:"fragment_order"` // "arrival" or "id"
	TimestampSuffixes []string `yaml:"timestamp_suffixes" toml:"timestamp_suffixes"`
}

// ProtocolBinding selects a decoder for traffic on the listed ports.
type ProtocolBinding struct {
	Name      string `yaml:"name" toml:"name"`
	Ports     []int  `yaml:"ports" toml:"ports"`
	Transport string `yaml:"transport,omitempty" toml:"transport,omitempty"` // "tcp", "udp", or "any"
}

// LoggingConfig controls log verbosity and destination.
type LoggingConfig struct {
	Level     string `yaml:"level" toml:"level"`
	File      string `yaml:"file,omitempty" toml:"file,omitempty"`
	Format    string `yaml:"format" toml:"format"` // "text" or "json"
	LogEveryN int    `yaml:"log_every_n" toml:"log_every_n"`
}

// OutputConfig controls report rendering.
type OutputConfig struct {
	Format  string `yaml:"format" toml:"format"` // "text" or "json"
	Hexdump bool   `yaml:"hexdump" toml:"hexdump"`
	Color   bool   `yaml:"color" toml:"color"`
}

// Config is the wiredecode configuration.
type Config struct {
	Decoder   DecoderConfig     `yaml:"decoder" toml:"decoder"`
	Protocols []ProtocolBinding `yaml:"protocols" toml:"protocols"`
	Logging   LoggingConfig     `yaml:"logging" toml:"logging"`
	Output    OutputConfig      `yaml:"output" toml:"output"`
}

// Defaults
const (
	DefaultKVPPort  = 7000
	DefaultSRECPort = 7100
)

// CreateDefaultConfig returns a configuration with every default applied.
func CreateDefaultConfig() *Config {
	cfg := &Config{
		Protocols: []ProtocolBinding{
			{Name: kvp.Name, Ports: []int{DefaultKVPPort}, Transport: "any"},
			{Name: srec.Name, Ports: []int{DefaultSRECPort}, Transport: "any"},
		},
		Output: defaultOutput(),
	}
	ApplyDefaults(cfg)
	return cfg
}

// defaultOutput holds the output switches whose default is on. A zero bool
// cannot tell "unset" from "false", so Parse decodes over these values.
func defaultOutput() OutputConfig {
	return OutputConfig{Hexdump: true, Color: true}
}

// ApplyDefaults fills every zero field with its default.
func ApplyDefaults(cfg *Config) {
	limits := reassembly.DefaultLimits()
	if cfg.Decoder.MaxDepth == 0 {
		cfg.Decoder.MaxDepth = term.DefaultMaxDepth
	}
	if cfg.Decoder.MaxAssemblyBytes == 0 {
		cfg.Decoder.MaxAssemblyBytes = limits.MaxAssemblyBytes
	}
	if cfg.Decoder.MaxSessions == 0 {
		cfg.Decoder.MaxSessions = limits.MaxSessions
	}
	if cfg.Decoder.IdleTimeoutMs == 0 {
		cfg.Decoder.IdleTimeoutMs = int(limits.IdleTimeout / time.Millisecond)
	}
	if cfg.Decoder.FragmentOrder == "" {
		cfg.Decoder.FragmentOrder = reassembly.OrderArrival.String()
	}
	if len(cfg.Decoder.TimestampSuffixes) == 0 {
		cfg.Decoder.TimestampSuffixes = append([]string(nil), protocol.DefaultTimestampSuffixes...)
	}
	for i := range cfg.Protocols {
		if cfg.Protocols[i].Transport == "" {
			cfg.Protocols[i].Transport = "any"
		}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.LogEveryN == 0 {
		cfg.Logging.LogEveryN = 1
	}
	if cfg.Output.Format == "" {
		cfg.Output.Format = "text"
	}
}

// Limits converts the decoder section to reassembly limits.
func (d DecoderConfig) Limits() reassembly.Limits {
	return reassembly.Limits{
		MaxAssemblyBytes: d.MaxAssemblyBytes,
		MaxSessions:      d.MaxSessions,
		IdleTimeout:      d.IdleTimeout(),
	}
}

// IdleTimeout returns the session idle timeout.
func (d DecoderConfig) IdleTimeout() time.Duration {
	return time.Duration(d.IdleTimeoutMs) * time.Millisecond
}

// Order returns the parsed fragment order; Validate has rejected bad values.
func (d DecoderConfig) Order() reassembly.FragmentOrder {
	order, _ := reassembly.ParseFragmentOrder(d.FragmentOrder)
	return order
}

// ProtocolForPort returns the protocol bound to port for the transport.
func (c *Config) ProtocolForPort(port int, transport string) (string, bool) {
	for _, b := range c.Protocols {
		if b.Transport != "any" && b.Transport != transport {
			continue
		}
		for _, p := range b.Ports {
			if p == port {
				return b.Name, true
			}
		}
	}
	return "", false
}

// Format reports the config encoding implied by the file extension.
func Format(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return "toml"
	default:
		return "yaml"
	}
}

// WriteDefaultConfig writes the default configuration in the format implied
// by the file extension.
func WriteDefaultConfig(path string) error {
	data, err := Marshal(CreateDefaultConfig(), Format(path))
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Marshal encodes cfg as "yaml" or "toml".
func Marshal(cfg *Config, format string) ([]byte, error) {
	if format == "toml" {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return yaml.Marshal(cfg)
}

// Parse decodes, defaults, and validates configuration data.
func Parse(data []byte, format string) (*Config, error) {
	cfg := Config{Output: defaultOutput()}
	switch format {
	case "toml":
		md, err := toml.Decode(string(data), &cfg)
		if err != nil {
			return nil, fmt.Errorf("parse TOML: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("parse TOML: unknown key %s", undecoded[0])
		}
	default:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && err != io.EOF {
			return nil, fmt.Errorf("parse YAML: %w", err)
		}
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &cfg, nil
}

// Load reads a configuration file. YAML is assumed unless the file ends in
// .toml.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.WrapConfigError(
				fmt.Errorf("config file not found: %s", path),
				path,
			)
		}
		return nil, errors.WrapConfigError(
			fmt.Errorf("read config file: %w", err),
			path,
		)
	}
	cfg, err := Parse(data, Format(path))
	if err != nil {
		return nil, errors.WrapConfigError(err, path)
	}
	return cfg, nil
}

// Validate checks a defaulted configuration.
func Validate(cfg *Config) error {
	d := cfg.Decoder
	if d.MaxDepth < 1 {
		return fmt.Errorf("decoder.max_depth must be positive")
	}
	if d.MaxAssemblyBytes < 64 {
		return fmt.Errorf("decoder.max_assembly_bytes must be at least 64")
	}
	if d.MaxSessions < 1 {
		return fmt.Errorf("decoder.max_sessions must be positive")
	}
	if d.IdleTimeoutMs < 1 {
		return fmt.Errorf("decoder.idle_timeout_ms must be positive")
	}
	if _, err := reassembly.ParseFragmentOrder(d.FragmentOrder); err != nil {
		return fmt.Errorf("decoder.fragment_order: %w", err)
	}
	for i, s := range d.TimestampSuffixes {
		if s == "" {
			return fmt.Errorf("decoder.timestamp_suffixes[%d] is empty", i)
		}
	}

	seen := make(map[string]string)
	for i, b := range cfg.Protocols {
		if err := validateBinding(b, i); err != nil {
			return err
		}
		for _, p := range b.Ports {
			for _, tr := range transportsOf(b.Transport) {
				key := fmt.Sprintf("%s/%d", tr, p)
				if prev, ok := seen[key]; ok {
					return fmt.Errorf("protocols[%d]: port %d already bound to %s", i, p, prev)
				}
				seen[key] = b.Name
			}
		}
	}

	if _, err := logging.ParseLevel(cfg.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	switch strings.ToLower(cfg.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", cfg.Logging.Format)
	}
	if cfg.Logging.LogEveryN < 0 {
		return fmt.Errorf("logging.log_every_n must be >= 0")
	}
	switch strings.ToLower(cfg.Output.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("output.format must be text or json, got %q", cfg.Output.Format)
	}
	return nil
}

// KnownProtocols lists the decoders a binding may name.
var KnownProtocols = []string{kvp.Name, srec.Name}

func validateBinding(b ProtocolBinding, index int) error {
	known := false
	for _, name := range KnownProtocols {
		if b.Name == name {
			known = true
		}
	}
	if !known {
		return fmt.Errorf("protocols[%d]: unknown protocol %q (expected one of %s)", index, b.Name, strings.Join(KnownProtocols, ", "))
	}
	if len(b.Ports) == 0 {
		return fmt.Errorf("protocols[%d]: at least one port is required", index)
	}
	for _, p := range b.Ports {
		if p < 1 || p > 65535 {
			return fmt.Errorf("protocols[%d]: invalid port %d", index, p)
		}
	}
	switch b.Transport {
	case "tcp", "udp", "any":
	default:
		return fmt.Errorf("protocols[%d]: transport must be tcp, udp, or any, got %q", index, b.Transport)
	}
	return nil
}

func transportsOf(t string) []string {
	if t == "any" {
		return []string{"tcp", "udp"}
	}
	return []string{t}
}
