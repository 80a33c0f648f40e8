package errors

import (
	"fmt"
	"strings"
)

// UserFriendlyError provides user-friendly error messages with context and hints
type UserFriendlyError struct {
	Message string
	Reason  string
	Hint    string
	Try     string
	Err     error
}

func (e UserFriendlyError) Error() string {
	var buf strings.Builder
	buf.WriteString(e.Message)
	if e.Reason != "" {
		buf.WriteString("\n  Reason: " + e.Reason)
	}
	if e.Hint != "" {
		buf.WriteString("\n  Hint: " + e.Hint)
	}
	if e.Try != "" {
		buf.WriteString("\n  Try: " + e.Try)
	}
	if e.Err != nil {
		buf.WriteString("\n  Details: " + e.Err.Error())
	}
	return buf.String()
}

func (e UserFriendlyError) Unwrap() error {
	return e.Err
}

// WrapCaptureError wraps capture file errors with user-friendly context
func WrapCaptureError(err error, path string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Failed to read capture %s", path),
		Reason:  extractCaptureReason(err),
		Hint:    "Captures must be classic pcap or pcapng files with Ethernet, raw IP, or Linux SLL link types",
		Try:     fmt.Sprintf("wiredecode decode --pcap %s --log-level debug", path),
		Err:     err,
	}
}

// WrapHexInputError wraps errors parsing hex input
func WrapHexInputError(err error, input string) error {
	if err == nil {
		return nil
	}

	shown := input
	if len(shown) > 32 {
		shown = shown[:32] + "..."
	}
	return UserFriendlyError{
		Message: fmt.Sprintf("Invalid hex input %q", shown),
		Reason:  err.Error(),
		Hint:    "Hex input may contain spaces, colons, and a 0x prefix, but needs an even number of digits",
		Try:     "wiredecode hex --protocol kvp 01 00 00 00 0b 66 75 6e 63 00 00 00 00 01 73 00",
		Err:     err,
	}
}

// WrapConfigError wraps configuration errors with user-friendly context
func WrapConfigError(err error, configPath string) error {
	if err == nil {
		return nil
	}

	return UserFriendlyError{
		Message: fmt.Sprintf("Configuration error in %s", configPath),
		Reason:  err.Error(),
		Hint:    "Config files are YAML (.yaml, .yml) or TOML (.toml); see config.example.yaml",
		Try:     fmt.Sprintf("Validate your config: wiredecode validate-config --config %s", configPath),
		Err:     err,
	}
}

func extractCaptureReason(err error) string {
	errStr := err.Error()

	if strings.Contains(errStr, "no such file") {
		return "Capture file does not exist"
	}
	if strings.Contains(errStr, "permission denied") {
		return "Capture file is not readable"
	}
	if strings.Contains(errStr, "Unknown magic") || strings.Contains(errStr, "unknown magic") || strings.Contains(errStr, "Wrong magic") {
		return "File is not a pcap or pcapng capture"
	}
	if strings.Contains(errStr, "link type") {
		return "Capture uses an unsupported link type"
	}
	if strings.Contains(errStr, "EOF") {
		return "Capture file is truncated"
	}

	return "Capture could not be parsed"
}
