// Package render writes chat results to a terminal or a pipe.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/papercomputeco/glimpse/pkg/llm"
)

const defaultWidth = 80

var metaStyle = lipgloss.NewStyle().Faint(true)

// Printer writes responses and elapsed times to out.
type Printer struct {
	out      io.Writer
	markdown bool
	style    string
	width    int
}

// Option customises a Printer.
type Option func(*Printer)

// WithMarkdown renders message content as markdown instead of printing the
// response as JSON.
func WithMarkdown(enabled bool) Option {
	return func(p *Printer) { p.markdown = enabled }
}

// WithStyle selects a glamour style ("dark", "light", "notty", ...). The
// default picks one from the terminal background.
func WithStyle(style string) Option {
	return func(p *Printer) { p.style = style }
}

// WithWidth sets the markdown word-wrap width.
func WithWidth(width int) Option {
	return func(p *Printer) {
		if width > 0 {
			p.width = width
		}
	}
}

// NewPrinter returns a Printer writing to out. When out is a terminal the
// wrap width follows its size.
func NewPrinter(out io.Writer, opts ...Option) *Printer {
	p := &Printer{
		out:   out,
		width: terminalWidth(out),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Response writes the full response.
func (p *Printer) Response(resp *llm.ChatResponse) error {
	if p.markdown {
		return p.markdownResponse(resp)
	}

	data, err := json.MarshalIndent(resp, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	_, err = fmt.Fprintln(p.out, string(data))
	return err
}

// Elapsed writes the elapsed time in minutes on its own line.
func (p *Printer) Elapsed(minutes float64) error {
	_, err := fmt.Fprintln(p.out, strconv.FormatFloat(minutes, 'f', -1, 64))
	return err
}

// Text writes plain text followed by a newline.
func (p *Printer) Text(s string) error {
	_, err := fmt.Fprintln(p.out, s)
	return err
}

func (p *Printer) markdownResponse(resp *llm.ChatResponse) error {
	styleOpt := glamour.WithAutoStyle()
	if p.style != "" {
		styleOpt = glamour.WithStandardStyle(p.style)
	}

	r, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(p.width))
	if err != nil {
		return fmt.Errorf("create markdown renderer: %w", err)
	}

	rendered, err := r.Render(resp.Message.Content)
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}

	meta := fmt.Sprintf("%s · %s · %d tokens · %s",
		resp.Model,
		resp.DoneReason,
		resp.EvalCount,
		time.Duration(resp.TotalDuration).Round(time.Millisecond),
	)

	_, err = fmt.Fprint(p.out, rendered, metaStyle.Render(meta), "\n")
	return err
}

func terminalWidth(w io.Writer) int {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return defaultWidth
	}

	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}
