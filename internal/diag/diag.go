// Package diag collects the diagnostics produced while compiling a source
// file. Every stage writes into the same Collector, in emission order.
package diag

import (
	"fmt"
	"strings"
)

// Severity of a diagnostic
type Severity int

const (
	Warning Severity = iota
	Error
)

func (s Severity) String() string {
	switch s {
	case Warning:
		return "warning"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// MarshalText encodes the severity by name.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Stage identifies the pipeline stage that reported a diagnostic
type Stage string

const (
	StageLex     Stage = "lex"
	StageParse   Stage = "parse"
	StageAnalyze Stage = "analyze"
	StageCompile Stage = "compile"
)

// Span is a half-open byte range [Start, End) into the source, plus the
// 1-based line and column (in runes) of Start.
type Span struct {
	Start  int `json:"start"`
	End    int `json:"end"`
	Line   int `json:"line"`
	Column int `json:"column"`
}

// Through returns a span that starts at s and ends where end ends.
func (s Span) Through(end Span) Span {
	if end.End < s.End {
		return s
	}
	return Span{Start: s.Start, End: end.End, Line: s.Line, Column: s.Column}
}

// Len returns the length of the span in bytes.
func (s Span) Len() int {
	return s.End - s.Start
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d", s.Line, s.Column)
}

// Diagnostic is a single message attached to a source span
type Diagnostic struct {
	Severity Severity `json:"severity"`
	Stage    Stage    `json:"stage"`
	Span     Span     `json:"span"`
	Message  string   `json:"message"`
}

// Error implements the error interface
func (d Diagnostic) Error() string {
	return fmt.Sprintf("%s: %s: %s", d.Span, d.Severity, d.Message)
}

// IsError reports whether the diagnostic blocks compilation.
func (d Diagnostic) IsError() bool {
	return d.Severity == Error
}

// Collector accumulates diagnostics. The zero value is ready to use.
type Collector struct {
	items  []Diagnostic
	errors int
}

// NewCollector creates an empty collector
func NewCollector() *Collector {
	return &Collector{}
}

// Add appends d in emission order.
func (c *Collector) Add(d Diagnostic) {
	if d.Severity == Error {
		c.errors++
	}
	c.items = append(c.items, d)
}

// Errorf records an error at span.
func (c *Collector) Errorf(stage Stage, span Span, format string, args ...interface{}) {
	c.Add(Diagnostic{Severity: Error, Stage: stage, Span: span, Message: fmt.Sprintf(format, args...)})
}

// Warnf records a warning at span.
func (c *Collector) Warnf(stage Stage, span Span, format string, args ...interface{}) {
	c.Add(Diagnostic{Severity: Warning, Stage: stage, Span: span, Message: fmt.Sprintf(format, args...)})
}

// All returns a copy of the collected diagnostics.
func (c *Collector) All() []Diagnostic {
	out := make([]Diagnostic, len(c.items))
	copy(out, c.items)
	return out
}

// Len returns the number of collected diagnostics.
func (c *Collector) Len() int {
	return len(c.items)
}

// HasErrors reports whether any error-severity diagnostic was recorded.
func (c *Collector) HasErrors() bool {
	return c.errors > 0
}

// ErrorCount returns the number of errors.
func (c *Collector) ErrorCount() int {
	return c.errors
}

// Summary formats counts the way the CLI prints them, e.g. "2 errors, 1 warning".
func Summary(diags []Diagnostic) string {
	var errs, warns int
	for _, d := range diags {
		if d.Severity == Error {
			errs++
		} else {
			warns++
		}
	}
	var parts []string
	if errs > 0 {
		parts = append(parts, plural(errs, "error"))
	}
	if warns > 0 {
		parts = append(parts, plural(warns, "warning"))
	}
	if len(parts) == 0 {
		return "no diagnostics"
	}
	return strings.Join(parts, ", ")
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s", word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}
