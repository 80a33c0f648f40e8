package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/tturner/wiredecode/internal/app"
)

type hexFlags struct {
	file       string
	protocol   string
	session    string
	chunk      int
	workers    int
	copy       bool
	configPath string
	output     outputFlags
}

func newHexCmd() *cobra.Command {
	flags := &hexFlags{}

	cmd := &cobra.Command{
		Use:   "hex [hex bytes...]",
		Short: "Decode a hex payload as one session",
		Long: `Decode hex bytes as if they arrived on one session. Arguments are joined, and
spaces, colons and 0x prefixes are ignored.

Use --chunk to feed the bytes in pieces and exercise reassembly, or --file to
decode one payload per line, each as its own session.`,
		Example: `  # Decode a kvp frame
  wiredecode hex --protocol kvp 01 00 00 00 0b 66 75 6e 63 00 00 00 00 01 73 00

  # Feed each srec payload in a file one byte at a time on four workers
  wiredecode hex --protocol srec --file payloads.txt --chunk 1 --workers 4 --copy`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if handleHelpArg(cmd, args) {
				return nil
			}
			if flags.protocol == "" {
				return missingFlagError(cmd, "--protocol")
			}
			if len(args) == 0 && flags.file == "" {
				return missingFlagError(cmd, "hex bytes or --file")
			}
			return runHex(cmd, flags, strings.Join(args, " "))
		},
	}

	cmd.Flags().StringVar(&flags.file, "file", "", "File with one hex payload per line")
	cmd.Flags().StringVar(&flags.protocol, "protocol", "", "Protocol decoder: kvp or srec (required)")
	cmd.Flags().StringVar(&flags.session, "session", "hex", "Session name used in output")
	cmd.Flags().IntVar(&flags.chunk, "chunk", 0, "Feed the payload in chunks of this many bytes")
	cmd.Flags().IntVar(&flags.workers, "workers", 1, "Worker shards for --file input")
	cmd.Flags().BoolVar(&flags.copy, "copy", false, "Copy the rendered output to the clipboard")
	cmd.Flags().StringVar(&flags.configPath, "config", "", "Config file (YAML or TOML)")
	flags.output.register(cmd)

	return cmd
}

func runHex(cmd *cobra.Command, flags *hexFlags, input string) error {
	return app.RunHex(app.HexOptions{
		Hex:        input,
		File:       flags.file,
		Protocol:   flags.protocol,
		Session:    flags.session,
		Chunk:      flags.chunk,
		Workers:    flags.workers,
		Copy:       flags.copy,
		ConfigPath: flags.configPath,
		Output:     flags.output.options(cmd),
	})
}
