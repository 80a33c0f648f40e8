// Package progress draws a single-line progress bar on a terminal writer.
package progress

import (
	"fmt"
	"io"
	"strings"
	"time"
)

const barWidth = 40

// Bar tracks progress through a known number of units (captures, bytes).
type Bar struct {
	total       int64
	current     int64
	startTime   time.Time
	lastUpdate  time.Time
	interval    time.Duration
	output      io.Writer
	description string
	now         func() time.Time
}

// NewBar creates a bar that writes to w. A nil writer disables output.
func NewBar(w io.Writer, total int64, description string) *Bar {
	now := time.Now()
	return &Bar{
		total:       total,
		startTime:   now,
		interval:    100 * time.Millisecond,
		output:      w,
		description: description,
		now:         time.Now,
	}
}

// Add advances the bar by n units.
func (b *Bar) Add(n int64) {
	b.current += n
	if b.current > b.total {
		b.current = b.total
	}
	b.render(false)
}

// Current returns the units done so far.
func (b *Bar) Current() int64 { return b.current }

// Finish fills the bar and ends the line.
func (b *Bar) Finish() {
	if b.output == nil {
		return
	}
	b.current = b.total
	b.render(true)
	fmt.Fprint(b.output, "\n")
}

func (b *Bar) render(force bool) {
	if b.output == nil {
		return
	}
	now := b.now()
	if !force && now.Sub(b.lastUpdate) < b.interval && b.current < b.total {
		return
	}
	b.lastUpdate = now
	fmt.Fprint(b.output, "\r"+b.line(now.Sub(b.startTime)))
}

func (b *Bar) line(elapsed time.Duration) string {
	var percent float64
	if b.total > 0 {
		percent = float64(b.current) / float64(b.total) * 100
	}
	filled := int(float64(barWidth) * percent / 100)
	bar := strings.Repeat("=", filled)
	if filled < barWidth {
		bar += ">" + strings.Repeat("-", barWidth-filled-1)
	}

	var sb strings.Builder
	if b.description != "" {
		sb.WriteString(b.description + " ")
	}
	fmt.Fprintf(&sb, "[%s] %d/%d (%.1f%%) | Elapsed: %s", bar, b.current, b.total, percent, formatDuration(elapsed))
	if b.current > 0 && b.current < b.total && elapsed > 0 {
		rate := float64(b.current) / elapsed.Seconds()
		eta := time.Duration(float64(b.total-b.current) / rate * float64(time.Second))
		fmt.Fprintf(&sb, " | ETA: %s", formatDuration(eta))
	}
	return sb.String()
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	minutes := int(d.Minutes())
	seconds := int(d.Seconds()) % 60
	return fmt.Sprintf("%dm%ds", minutes, seconds)
}
