package app

import (
	"fmt"
	"io"
	"os"

	"github.com/tturner/wiredecode/internal/config"
	"github.com/tturner/wiredecode/internal/logging"
)

// OutputOptions are the rendering overrides shared by decode and hex.
type OutputOptions struct {
	Format    string // overrides output.format when set
	NoHexdump bool
	NoColor   bool
	LogLevel  string // overrides logging.level when set
	LogFile   string // overrides logging.file when set
	Stdout    io.Writer
	Stderr    io.Writer
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.CreateDefaultConfig(), nil
	}
	return config.Load(path)
}

// newLogger builds the run logger. Console logging goes to stderr so that
// rendered output on stdout stays machine readable.
func newLogger(cfg *config.Config, opts OutputOptions) (*logging.Logger, error) {
	levelName := cfg.Logging.Level
	if opts.LogLevel != "" {
		levelName = opts.LogLevel
	}
	level, err := logging.ParseLevel(levelName)
	if err != nil {
		return nil, err
	}
	file := cfg.Logging.File
	if opts.LogFile != "" {
		file = opts.LogFile
	}
	logger, err := logging.NewLoggerWithOptions(level, file, cfg.Logging.Format, cfg.Logging.LogEveryN)
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	logger.SetOutput(opts.stderr(), opts.stderr())
	return logger, nil
}

func (o OutputOptions) stdout() io.Writer {
	if o.Stdout == nil {
		return os.Stdout
	}
	return o.Stdout
}

func (o OutputOptions) stderr() io.Writer {
	if o.Stderr == nil {
		return os.Stderr
	}
	return o.Stderr
}

func (o OutputOptions) format(cfg *config.Config) string {
	if o.Format != "" {
		return o.Format
	}
	return cfg.Output.Format
}
