package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tturner/wiredecode/internal/config"
)

type ValidateConfigOptions struct {
	ConfigPath string
	Stdout     io.Writer
}

// RunValidateConfig loads a config file and prints its effective bindings.
func RunValidateConfig(opts ValidateConfigOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	out := opts.Stdout
	if out == nil {
		out = os.Stdout
	}
	fmt.Fprintf(out, "Configuration %s is valid\n", opts.ConfigPath)
	d := cfg.Decoder
	fmt.Fprintf(out, "  decoder: max_depth=%d max_assembly_bytes=%d max_sessions=%d idle_timeout_ms=%d fragment_order=%s\n",
		d.MaxDepth, d.MaxAssemblyBytes, d.MaxSessions, d.IdleTimeoutMs, d.FragmentOrder)
	for _, b := range cfg.Protocols {
		ports := make([]string, len(b.Ports))
		for i, p := range b.Ports {
			ports[i] = fmt.Sprint(p)
		}
		fmt.Fprintf(out, "  protocol %-6s %s ports %s\n", b.Name, b.Transport, strings.Join(ports, ","))
	}
	return nil
}

type InitConfigOptions struct {
	ConfigPath string
	Force      bool
}

// RunInitConfig writes the default configuration, refusing to overwrite an
// existing file unless forced.
func RunInitConfig(opts InitConfigOptions) error {
	if !opts.Force {
		if _, err := os.Stat(opts.ConfigPath); err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", opts.ConfigPath)
		}
	}
	return config.WriteDefaultConfig(opts.ConfigPath)
}
