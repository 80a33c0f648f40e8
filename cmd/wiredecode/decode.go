package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/tturner/wiredecode/internal/app"
)

type outputFlags struct {
	format    string
	noHexdump bool
	noColor   bool
	logLevel  string
	logFile   string
}

func (f *outputFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.format, "format", "", "Output format: text or json (default from config)")
	cmd.Flags().BoolVar(&f.noHexdump, "no-hexdump", false, "Omit hexdumps of undecoded bytes")
	cmd.Flags().BoolVar(&f.noColor, "no-color", false, "Disable styled text output")
	cmd.Flags().StringVar(&f.logLevel, "log-level", "", "Log level: silent, error, info, verbose, debug")
	cmd.Flags().StringVar(&f.logFile, "log-file", "", "Also write logs to this file")
}

func (f *outputFlags) options(cmd *cobra.Command) app.OutputOptions {
	return app.OutputOptions{
		Format:    f.format,
		NoHexdump: f.noHexdump,
		NoColor:   f.noColor,
		LogLevel:  f.logLevel,
		LogFile:   f.logFile,
		Stdout:    cmd.OutOrStdout(),
		Stderr:    cmd.ErrOrStderr(),
	}
}

type decodeFlags struct {
	input      string
	configPath string
	protocol   string
	outFile    string
	reportJSON string
	progress   bool
	output     outputFlags
}

func newDecodeCmd() *cobra.Command {
	flags := &decodeFlags{}

	cmd := &cobra.Command{
		Use:   "decode",
		Short: "Decode protocol messages from a pcap or pcapng capture",
		Long: `Read a capture (or every capture in a directory), reassemble TCP and UDP
payloads per flow, and decode each framed message with the protocol bound
to its port in the config.

Partial frames are flushed as truncated messages when a flow sees FIN or RST,
goes idle, or the capture ends.`,
		Example: `  # Decode with the default port bindings
  wiredecode decode --pcap captures/session.pcap

  # Force the srec decoder and write a JSON report
  wiredecode decode --pcap captures/ --protocol srec --report-json reports/srec.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.input == "" && len(args) > 0 {
				flags.input = args[0]
			}
			if flags.input == "" {
				return missingFlagError(cmd, "--pcap")
			}
			return runDecode(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.input, "pcap", "", "Capture file or directory (required)")
	cmd.Flags().StringVar(&flags.configPath, "config", "", "Config file (YAML or TOML)")
	cmd.Flags().StringVar(&flags.protocol, "protocol", "", "Decode every flow with this protocol (kvp or srec)")
	cmd.Flags().StringVar(&flags.outFile, "out", "", "Also write rendered output to this file")
	cmd.Flags().StringVar(&flags.reportJSON, "report-json", "", "Write a JSON report to this file")
	cmd.Flags().BoolVar(&flags.progress, "progress", false, "Show a progress bar across capture files")
	flags.output.register(cmd)

	return cmd
}

func runDecode(cmd *cobra.Command, flags *decodeFlags) error {
	stats, err := app.RunDecode(app.DecodeOptions{
		Input:      flags.input,
		ConfigPath: flags.configPath,
		Protocol:   flags.protocol,
		OutputFile: flags.outFile,
		ReportJSON: flags.reportJSON,
		Version:    version,
		Progress:   flags.progress,
		Output:     flags.output.options(cmd),
	})
	if err != nil {
		return err
	}
	if stats.Payloads > 0 && stats.Results == 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "No messages decoded from %d payloads (%d unmatched packets)\n", stats.Payloads, stats.Unmatched)
	}
	return nil
}
