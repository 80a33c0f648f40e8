package report

// Hex dumps of raw message bytes

import (
	"fmt"
	"strings"
)

// HexDump formats data as offset, hex and ASCII columns. Offsets start at
// base so a slice of a message shows its position in the message.
func HexDump(data []byte, base, width int) string {
	if width <= 0 {
		width = 16
	}

	var sb strings.Builder
	for i := 0; i < len(data); i += width {
		fmt.Fprintf(&sb, "%04x: ", base+i)

		for j := 0; j < width; j++ {
			if i+j < len(data) {
				fmt.Fprintf(&sb, "%02x ", data[i+j])
			} else {
				sb.WriteString("   ")
			}
		}

		sb.WriteString(" |")
		for j := 0; j < width && i+j < len(data); j++ {
			b := data[i+j]
			if b >= 32 && b < 127 {
				sb.WriteByte(b)
			} else {
				sb.WriteByte('.')
			}
		}
		sb.WriteString("|\n")
	}

	return sb.String()
}

// FormatFrameHex dumps a frame with its header and body labelled apart.
// A frame no longer than headerSize is dumped whole.
func FormatFrameHex(data []byte, headerSize int) string {
	if headerSize <= 0 || len(data) <= headerSize {
		return HexDump(data, 0, 16)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Header (%d bytes):\n", headerSize)
	sb.WriteString(HexDump(data[:headerSize], 0, 16))
	fmt.Fprintf(&sb, "Body (%d bytes):\n", len(data)-headerSize)
	sb.WriteString(HexDump(data[headerSize:], headerSize, 16))
	return sb.String()
}
