// Package reporting renders diagnostics and runtime traps for people and
// for tools.
package reporting

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/mattn/go-isatty"

	"github.com/Cryptex-github/Terbium/internal/diag"
	"github.com/Cryptex-github/Terbium/internal/vm"
)

// DefaultMaxFrames is how many stack frames a traceback shows before
// eliding the rest.
const DefaultMaxFrames = 16

const (
	ansiReset  = "\x1b[0m"
	ansiBold   = "\x1b[1m"
	ansiRed    = "\x1b[31m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
	ansiDim    = "\x1b[2m"
)

// Printer writes human-readable reports. Color is enabled when the writer
// is a terminal and NO_COLOR is unset.
type Printer struct {
	w         io.Writer
	Color     bool
	MaxFrames int
}

func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, Color: IsTerminal(w), MaxFrames: DefaultMaxFrames}
}

// IsTerminal reports whether w is a terminal that should get color.
func IsTerminal(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func (p *Printer) paint(code, s string) string {
	if !p.Color {
		return s
	}
	return code + s + ansiReset
}

// Diagnostics prints every diagnostic followed by a summary line.
func (p *Printer) Diagnostics(file, source string, diags []diag.Diagnostic) {
	for _, d := range diags {
		p.Diagnostic(file, source, d)
	}
	if len(diags) > 0 {
		fmt.Fprintf(p.w, "%s: %s\n", file, diag.Summary(diags))
	}
}

// Diagnostic prints one diagnostic with its source excerpt:
//
//	error: unresolved identifier "b"
//	  at main.tb:2:1
//
//	  2 | b + a
//	      ^
func (p *Printer) Diagnostic(file, source string, d diag.Diagnostic) {
	color := ansiRed
	if d.Severity == diag.Warning {
		color = ansiYellow
	}
	fmt.Fprintf(p.w, "%s: %s\n", p.paint(ansiBold+color, d.Severity.String()), p.paint(ansiBold, d.Message))
	fmt.Fprintf(p.w, "  at %s\n", p.paint(ansiCyan, fmt.Sprintf("%s:%d:%d", file, d.Span.Line, d.Span.Column)))
	p.excerpt(source, d.Span.Line, d.Span.Column, width(source, d.Span), color)
	fmt.Fprintln(p.w)
}

// Trap prints a runtime error with its call stack, innermost call first.
func (p *Printer) Trap(file, source string, e *vm.RuntimeError) {
	fmt.Fprintf(p.w, "%s: %s\n", p.paint(ansiBold+ansiRed, "RuntimeError"), p.paint(ansiBold, e.Kind.String()+": "+e.Message))
	if e.Line > 0 {
		fmt.Fprintf(p.w, "  at %s\n", p.paint(ansiCyan, fmt.Sprintf("%s:%d:%d", file, e.Line, e.Column)))
		p.excerpt(source, e.Line, e.Column, 1, ansiRed)
	}
	if len(e.Stack) == 0 {
		return
	}

	fmt.Fprintf(p.w, "\nCall Stack:\n")
	limit := p.MaxFrames
	if limit <= 0 || limit > len(e.Stack) {
		limit = len(e.Stack)
	}
	for _, frame := range e.Stack[:limit] {
		if frame.Line > 0 {
			fmt.Fprintf(p.w, "  at %s (%s:%d:%d)\n", frame.Function, file, frame.Line, frame.Column)
		} else {
			fmt.Fprintf(p.w, "  at %s (instruction %d)\n", frame.Function, frame.IP)
		}
	}
	if rest := len(e.Stack) - limit; rest > 0 {
		fmt.Fprintf(p.w, "  %s\n", p.paint(ansiDim, fmt.Sprintf("... %d more frames", rest)))
	}
}

func (p *Printer) excerpt(source string, line, column, n int, color string) {
	text, ok := sourceLine(source, line)
	if !ok {
		return
	}
	gutter := fmt.Sprintf("%d | ", line)
	fmt.Fprintf(p.w, "\n  %s%s\n", p.paint(ansiDim, gutter), text)

	// Keep tabs so the caret lines up under the same columns.
	var pad strings.Builder
	i := 1
	for _, r := range text {
		if i >= column {
			break
		}
		if r == '\t' {
			pad.WriteByte('\t')
		} else {
			pad.WriteByte(' ')
		}
		i++
	}
	fmt.Fprintf(p.w, "  %s%s%s\n", strings.Repeat(" ", len(gutter)), pad.String(), p.paint(color, strings.Repeat("^", n)))
}

func sourceLine(source string, line int) (string, bool) {
	if line < 1 {
		return "", false
	}
	lines := strings.Split(source, "\n")
	if line > len(lines) {
		return "", false
	}
	return strings.TrimRight(lines[line-1], "\r"), true
}

// width is the number of runes the span covers on its first line.
func width(source string, span diag.Span) int {
	if span.Start < 0 || span.End > len(source) || span.End <= span.Start {
		return 1
	}
	text := source[span.Start:span.End]
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if n := utf8.RuneCountInString(text); n > 0 {
		return n
	}
	return 1
}

// Report is the machine-readable form used by `terbium check -format json`.
type Report struct {
	File        string            `json:"file"`
	Errors      int               `json:"errors"`
	Warnings    int               `json:"warnings"`
	Diagnostics []diag.Diagnostic `json:"diagnostics"`
	Trap        *TrapReport       `json:"trap,omitempty"`
}

type TrapReport struct {
	Kind    string          `json:"kind"`
	Message string          `json:"message"`
	Line    int             `json:"line"`
	Column  int             `json:"column"`
	Stack   []vm.StackFrame `json:"stack"`
}

// NewReport counts diags by severity.
func NewReport(file string, diags []diag.Diagnostic) *Report {
	r := &Report{File: file, Diagnostics: diags}
	if r.Diagnostics == nil {
		r.Diagnostics = []diag.Diagnostic{}
	}
	for _, d := range diags {
		if d.IsError() {
			r.Errors++
		} else {
			r.Warnings++
		}
	}
	return r
}

// WithTrap attaches a runtime error.
func (r *Report) WithTrap(e *vm.RuntimeError) *Report {
	r.Trap = &TrapReport{Kind: e.Kind.String(), Message: e.Message, Line: e.Line, Column: e.Column, Stack: e.Stack}
	return r
}

// WriteJSON writes reports as one indented JSON array.
func WriteJSON(w io.Writer, reports []*Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(reports)
}
