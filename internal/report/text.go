package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/tturner/wiredecode/internal/engine"
	"github.com/tturner/wiredecode/internal/protocol"
	"github.com/tturner/wiredecode/internal/term"
)

type styles struct {
	title   lipgloss.Style
	kind    lipgloss.Style
	meta    lipgloss.Style
	field   lipgloss.Style
	value   lipgloss.Style
	dim     lipgloss.Style
	warning lipgloss.Style
	err     lipgloss.Style
	ok      lipgloss.Style
	frame   lipgloss.Style
}

func newStyles(r *lipgloss.Renderer, color bool) styles {
	if !color {
		plain := r.NewStyle()
		return styles{
			title: plain, kind: plain, meta: plain, field: plain, value: plain,
			dim: plain, warning: plain, err: plain, ok: plain,
			frame: r.NewStyle().Border(lipgloss.NormalBorder()).Padding(0, 1),
		}
	}
	return styles{
		title:   r.NewStyle().Foreground(lipgloss.Color("12")).Bold(true),
		kind:    r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		meta:    r.NewStyle().Foreground(lipgloss.Color("8")),
		field:   r.NewStyle().Foreground(lipgloss.Color("15")),
		value:   r.NewStyle().Foreground(lipgloss.Color("10")),
		dim:     r.NewStyle().Foreground(lipgloss.Color("8")),
		warning: r.NewStyle().Foreground(lipgloss.Color("11")),
		err:     r.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
		ok:      r.NewStyle().Foreground(lipgloss.Color("10")),
		frame: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("12")).
			Padding(0, 1),
	}
}

type textSink struct {
	w       io.Writer
	hexdump bool
	st      styles
	summary Summary
}

func newTextSink(w io.Writer, opts Options) *textSink {
	return &textSink{
		w:       w,
		hexdump: opts.Hexdump,
		st:      newStyles(lipgloss.NewRenderer(w), opts.Color),
	}
}

func (s *textSink) Write(r engine.DecodedResult) error {
	rec := NewRecord(r, false)
	s.summary.Add(rec)
	_, err := io.WriteString(s.w, s.render(r, rec))
	return err
}

func (s *textSink) Close() error {
	_, err := io.WriteString(s.w, s.renderSummary(s.summary)+"\n")
	return err
}

func (s *textSink) render(r engine.DecodedResult, rec Record) string {
	var sb strings.Builder
	st := s.st

	head := st.title.Render("["+rec.Protocol+"]") + " " + st.kind.Render(rec.Kind)
	meta := []string{rec.Session}
	if !rec.IsStream() {
		meta = append(meta, fmt.Sprintf("@%d", rec.StreamOffset), fmt.Sprintf("%d bytes", rec.Length))
		if rec.Sequence != nil {
			meta = append(meta, fmt.Sprintf("seq %d/%d frags", *rec.Sequence, rec.Fragments))
		}
		if !rec.Valid {
			meta = append(meta, st.err.Render("truncated"))
		}
		if !rec.ChecksumValid {
			meta = append(meta, st.warning.Render("bad checksum"))
		}
		if rec.Aborted {
			meta = append(meta, st.err.Render("aborted"))
		}
	}
	sb.WriteString(head + "  " + st.meta.Render(strings.Join(meta, "  ")) + "\n")

	for _, f := range rec.Fields {
		sb.WriteString(s.renderField(f))
	}
	if r.Result.Tree != nil {
		sb.WriteString("  " + st.dim.Render("tree:") + "\n")
		s.renderTree(&sb, *r.Result.Tree, 2)
	}
	for _, d := range rec.Diagnostics {
		style := st.warning
		if d.Kind.Fatal() {
			style = st.err
		}
		sb.WriteString("  " + style.Render("! "+d.String()) + "\n")
	}
	if s.hexdump {
		for _, f := range rec.Fields {
			if f.Undecoded && len(f.Raw) > 0 {
				sb.WriteString("  " + st.dim.Render(f.Name+":") + "\n")
				sb.WriteString(indent(HexDump(f.Raw, f.Offset, 16), "    "))
			}
		}
		if !rec.Valid && len(r.Message.Bytes) > 0 {
			sb.WriteString("  " + st.dim.Render("unframed bytes:") + "\n")
			sb.WriteString(indent(HexDump(r.Message.Bytes, 0, 16), "    "))
		}
	}
	return sb.String()
}

func (s *textSink) renderField(f protocol.Field) string {
	st := s.st
	display := f.Display
	switch {
	case f.Undecoded:
		display = st.dim.Render(display)
	case f.Fallback:
		display = st.warning.Render(display + " (raw)")
	default:
		display = st.value.Render(display)
	}
	return fmt.Sprintf("  %s = %s  %s\n", st.field.Render(f.Name), display,
		st.meta.Render(fmt.Sprintf("[%d+%d]", f.Offset, f.Length)))
}

func (s *textSink) renderTree(sb *strings.Builder, v term.Value, depth int) {
	pad := strings.Repeat("  ", depth)
	label := v.Name
	if label == "" {
		label = v.Kind.String()
	}
	switch {
	case v.IsCompound():
		fmt.Fprintf(sb, "%s%s %s\n", pad, s.st.field.Render(label),
			s.st.meta.Render(fmt.Sprintf("(%d) [%d+%d]", len(v.Children), v.Offset, v.Length)))
		for _, c := range v.Children {
			s.renderTree(sb, c, depth+1)
		}
	case v.Kind == term.KindUndecoded:
		fmt.Fprintf(sb, "%s%s\n", pad, s.st.err.Render(fmt.Sprintf("undecoded tag 0x%02X at %d", v.Tag, v.Offset)))
	default:
		fmt.Fprintf(sb, "%s%s %s %s\n", pad, s.st.field.Render(label), s.st.value.Render(v.String()),
			s.st.meta.Render(fmt.Sprintf("[%d+%d]", v.Offset, v.Length)))
	}
}

func (s *textSink) renderSummary(sum Summary) string {
	st := s.st
	var lines []string
	lines = append(lines, st.title.Render("Summary"))
	lines = append(lines, fmt.Sprintf("messages: %d  valid: %s  invalid: %s  bad checksum: %d  aborted: %d  stream notes: %d",
		sum.Messages, st.ok.Render(fmt.Sprint(sum.Valid)), st.err.Render(fmt.Sprint(sum.Invalid)),
		sum.BadChecksum, sum.Aborted, sum.StreamNotes))
	for _, k := range sum.SortedKinds() {
		lines = append(lines, fmt.Sprintf("  %-24s %d", k, sum.Kinds[k]))
	}
	if len(sum.Diagnostics) > 0 {
		lines = append(lines, st.dim.Render("diagnostics:"))
		for _, kc := range sum.Diagnostics {
			lines = append(lines, fmt.Sprintf("  %-24s %d", kc.Kind, kc.Count))
		}
	}
	return st.frame.Render(strings.Join(lines, "\n"))
}

func indent(text, prefix string) string {
	if text == "" {
		return ""
	}
	lines := strings.SplitAfter(text, "\n")
	var sb strings.Builder
	for _, line := range lines {
		if line == "" {
			continue
		}
		sb.WriteString(prefix + line)
	}
	return sb.String()
}
