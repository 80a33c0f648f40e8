package app

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tturner/wiredecode/internal/engine"
	"github.com/tturner/wiredecode/internal/logging"
	"github.com/tturner/wiredecode/internal/pcap"
	"github.com/tturner/wiredecode/internal/progress"
	"github.com/tturner/wiredecode/internal/report"
)

type DecodeOptions struct {
	Input      string // capture file or directory of captures
	ConfigPath string
	Protocol   string // force one decoder for every flow
	OutputFile string // tee rendered output to this file
	ReportJSON string // also write a JSON document here
	Version    string
	Progress   bool // draw a per-capture progress bar on stderr
	Output     OutputOptions
}

// DecodeStats totals a decode run.
type DecodeStats struct {
	Files     int
	Packets   int
	Payloads  int
	Sessions  int
	Unmatched int
	Results   int
}

func RunDecode(opts DecodeOptions) (DecodeStats, error) {
	var stats DecodeStats

	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return stats, err
	}
	logger, err := newLogger(cfg, opts.Output)
	if err != nil {
		return stats, err
	}
	defer logger.Close()

	files, err := pcap.CollectFiles(opts.Input)
	if err != nil {
		return stats, err
	}
	if len(files) == 0 {
		return stats, fmt.Errorf("no capture files found in %s", opts.Input)
	}

	var out io.Writer = opts.Output.stdout()
	if opts.OutputFile != "" {
		f, err := os.Create(opts.OutputFile)
		if err != nil {
			return stats, fmt.Errorf("create output file: %w", err)
		}
		defer f.Close()
		out = logging.NewMultiWriter(out, f)
	}

	sink, err := report.NewSink(out, report.Options{
		Format:  opts.Output.format(cfg),
		Hexdump: cfg.Output.Hexdump && !opts.Output.NoHexdump,
		Color:   cfg.Output.Color && !opts.Output.NoColor,
		Inputs:  files,
		Version: opts.Version,
	})
	if err != nil {
		return stats, err
	}

	var bar *progress.Bar
	if opts.Progress {
		bar = progress.NewBar(opts.Output.stderr(), int64(len(files)), "Decoding")
	}

	var records []report.Record
	for _, path := range files {
		d, err := pcap.NewDecoder(pcap.Options{Config: cfg, Protocol: opts.Protocol, Logger: logger})
		if err != nil {
			return stats, err
		}
		err = pcap.DecodeFile(path, d, func(r engine.DecodedResult) error {
			stats.Results++
			if opts.ReportJSON != "" {
				records = append(records, report.NewRecord(r, true))
			}
			return sink.Write(r)
		})
		if err != nil {
			return stats, err
		}

		fs := d.Stats()
		stats.Files++
		stats.Packets += fs.Packets
		stats.Payloads += fs.Payloads
		stats.Sessions += fs.Sessions
		stats.Unmatched += fs.Unmatched
		logger.Verbose("%s: %d packets, %d payloads, %d sessions, %d unmatched",
			path, fs.Packets, fs.Payloads, fs.Sessions, fs.Unmatched)
		for name, es := range d.EngineStats() {
			logger.Debug("%s: %s engine %d messages, %d diagnostics", path, name, es.Messages, es.Diagnostics)
		}
		if bar != nil {
			bar.Add(1)
		}
	}
	if bar != nil {
		bar.Finish()
	}

	if err := sink.Close(); err != nil {
		return stats, err
	}
	if opts.ReportJSON != "" {
		doc := report.NewDocument(records, files, opts.Version, time.Now())
		if err := report.WriteJSONFile(opts.ReportJSON, doc); err != nil {
			return stats, err
		}
		logger.Info("JSON report written to %s", opts.ReportJSON)
	}
	return stats, nil
}
