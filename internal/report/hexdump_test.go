package report

import (
	"strings"
	"testing"
)

func TestHexDump(t *testing.T) {
	data := []byte{0x00, 0x01, 0x02, 0x03, 'w', 'i', 'r', 'e', 0x08, 0x09, 0x0A, 0x0B, 0x0C, 0x0D, 0x0E, 0x0F, 0x10}

	dump := HexDump(data, 0, 16)
	lines := strings.Split(strings.TrimSuffix(dump, "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2:\n%s", len(lines), dump)
	}
	if !strings.HasPrefix(lines[0], "0000: 00 01 02 03 77 69 72 65") {
		t.Errorf("first line = %q", lines[0])
	}
	if !strings.HasSuffix(lines[0], "|....wire........|") {
		t.Errorf("ascii column = %q", lines[0])
	}
	if !strings.HasPrefix(lines[1], "0010: 10 ") || !strings.HasSuffix(lines[1], "|.|") {
		t.Errorf("second line = %q", lines[1])
	}
}

func TestHexDumpBase(t *testing.T) {
	dump := HexDump([]byte("ab"), 0x20, 0)
	if !strings.HasPrefix(dump, "0020: 61 62") {
		t.Errorf("dump = %q", dump)
	}
	if HexDump(nil, 0, 16) != "" {
		t.Error("empty input should produce no output")
	}
}

func TestFormatFrameHex(t *testing.T) {
	data := []byte{0x07, 0x00, 0x00, 0x00, 0x02, 'h', 'i'}

	annotated := FormatFrameHex(data, 5)
	if !strings.Contains(annotated, "Header (5 bytes):") || !strings.Contains(annotated, "Body (2 bytes):") {
		t.Errorf("annotated = %q", annotated)
	}
	if !strings.Contains(annotated, "0005: 68 69") {
		t.Errorf("body offsets should continue from the header: %q", annotated)
	}

	if plain := FormatFrameHex(data[:4], 5); strings.Contains(plain, "Header") {
		t.Errorf("short frame should not be split: %q", plain)
	}
}
