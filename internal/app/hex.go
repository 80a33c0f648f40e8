package app

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/atotto/clipboard"

	"github.com/tturner/wiredecode/internal/config"
	"github.com/tturner/wiredecode/internal/engine"
	"github.com/tturner/wiredecode/internal/errors"
	"github.com/tturner/wiredecode/internal/logging"
	"github.com/tturner/wiredecode/internal/reassembly"
	"github.com/tturner/wiredecode/internal/report"
)

type HexOptions struct {
	Hex        string // one payload
	File       string // one payload per line, each its own session
	Protocol   string
	Session    string
	Chunk      int // feed in chunks of this many bytes; 0 feeds at once
	Workers    int
	Copy       bool
	ConfigPath string
	Output     OutputOptions
}

// ParseHex decodes hex text. Whitespace, colons, commas and 0x prefixes
// are ignored.
func ParseHex(s string) ([]byte, error) {
	var digits strings.Builder
	for _, field := range strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || r == ':' || r == ','
	}) {
		field = strings.TrimPrefix(field, "0x")
		field = strings.TrimPrefix(field, "0X")
		digits.WriteString(field)
	}
	if digits.Len() == 0 {
		return nil, fmt.Errorf("no hex digits")
	}
	data, err := hex.DecodeString(digits.String())
	if err != nil {
		return nil, err
	}
	return data, nil
}

type hexInput struct {
	key  reassembly.SessionKey
	data []byte
}

func RunHex(opts HexOptions) error {
	cfg, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg, opts.Output)
	if err != nil {
		return err
	}
	defer logger.Close()

	if opts.Protocol == "" {
		return fmt.Errorf("a protocol is required")
	}
	if opts.Session == "" {
		opts.Session = "hex"
	}
	inputs, err := readHexInputs(opts)
	if err != nil {
		return err
	}

	var results []engine.DecodedResult
	if len(inputs) == 1 || opts.Workers <= 1 {
		results, err = decodeSerial(opts, cfg, logger, inputs)
	} else {
		results, err = decodePooled(opts, cfg, logger, inputs)
	}
	if err != nil {
		return err
	}

	var copied bytes.Buffer
	var out io.Writer = opts.Output.stdout()
	if opts.Copy {
		out = logging.NewMultiWriter(out, &copied)
	}
	sink, err := report.NewSink(out, report.Options{
		Format:  opts.Output.format(cfg),
		Hexdump: cfg.Output.Hexdump && !opts.Output.NoHexdump,
		Color:   cfg.Output.Color && !opts.Output.NoColor && !opts.Copy,
	})
	if err != nil {
		return err
	}
	for _, r := range results {
		if err := sink.Write(r); err != nil {
			return err
		}
	}
	if err := sink.Close(); err != nil {
		return err
	}
	if opts.Copy {
		if err := clipboard.WriteAll(copied.String()); err != nil {
			return fmt.Errorf("copy to clipboard: %w", err)
		}
		logger.Info("Output copied to clipboard")
	}
	return nil
}

func readHexInputs(opts HexOptions) ([]hexInput, error) {
	if opts.File == "" {
		data, err := ParseHex(opts.Hex)
		if err != nil {
			return nil, errors.WrapHexInputError(err, opts.Hex)
		}
		return []hexInput{{key: reassembly.SessionKey(opts.Session), data: data}}, nil
	}

	f, err := os.Open(opts.File)
	if err != nil {
		return nil, fmt.Errorf("open hex file: %w", err)
	}
	defer f.Close()

	var inputs []hexInput
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		data, err := ParseHex(text)
		if err != nil {
			return nil, errors.WrapHexInputError(fmt.Errorf("line %d: %w", line, err), text)
		}
		key := reassembly.SessionKey(fmt.Sprintf("%s:%d", opts.Session, line))
		inputs = append(inputs, hexInput{key: key, data: data})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read hex file: %w", err)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("no hex payloads in %s", opts.File)
	}
	return inputs, nil
}

func chunks(data []byte, size int) [][]byte {
	if size <= 0 || size >= len(data) {
		return [][]byte{data}
	}
	var out [][]byte
	for len(data) > size {
		out = append(out, data[:size])
		data = data[size:]
	}
	return append(out, data)
}

func decodeSerial(opts HexOptions, cfg *config.Config, logger *logging.Logger, inputs []hexInput) ([]engine.DecodedResult, error) {
	eng, err := engine.NewFromConfig(opts.Protocol, cfg.Decoder, logger)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	var results []engine.DecodedResult
	for _, in := range inputs {
		for _, chunk := range chunks(in.data, opts.Chunk) {
			results = append(results, eng.FeedAt(in.key, chunk, now)...)
		}
		results = append(results, eng.Close(in.key)...)
	}
	return results, nil
}

// decodePooled spreads inputs over worker shards and restores input order
// in the results.
func decodePooled(opts HexOptions, cfg *config.Config, logger *logging.Logger, inputs []hexInput) ([]engine.DecodedResult, error) {
	if _, err := engine.NewProtocol(opts.Protocol, nil); err != nil {
		return nil, err
	}
	pool := engine.NewPool(context.Background(), opts.Workers, func() *engine.Engine {
		eng, _ := engine.NewFromConfig(opts.Protocol, cfg.Decoder, logger)
		return eng
	})

	collected := make(chan []engine.DecodedResult, 1)
	go func() {
		var all []engine.DecodedResult
		for r := range pool.Results() {
			all = append(all, r)
		}
		collected <- all
	}()

	now := time.Now()
	order := make(map[reassembly.SessionKey]int, len(inputs))
	var submitErr error
	for i, in := range inputs {
		order[in.key] = i
		for _, chunk := range chunks(in.data, opts.Chunk) {
			if submitErr = pool.Submit(in.key, chunk, now); submitErr != nil {
				break
			}
		}
		if submitErr == nil {
			submitErr = pool.CloseSession(in.key)
		}
		if submitErr != nil {
			break
		}
	}
	waitErr := pool.Wait()
	results := <-collected
	if submitErr != nil {
		return nil, submitErr
	}
	if waitErr != nil {
		return nil, waitErr
	}

	sort.SliceStable(results, func(i, j int) bool {
		return order[results[i].Message.Session] < order[results[j].Message.Session]
	})
	return results, nil
}
