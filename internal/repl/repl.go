// internal/repl/repl.go
package repl

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"

	terbium "github.com/Cryptex-github/Terbium"
	"github.com/Cryptex-github/Terbium/internal/diag"
	"github.com/Cryptex-github/Terbium/internal/lexer"
	"github.com/Cryptex-github/Terbium/internal/parser"
	"github.com/Cryptex-github/Terbium/internal/reporting"
	"github.com/Cryptex-github/Terbium/internal/vm"
)

const name = "<repl>"

// REPL evaluates one input at a time. Programs have no input and no
// clock, so state is kept by replaying every accepted input before the
// new one and discarding the output the replay has already shown.
type REPL struct {
	out     io.Writer
	errOut  io.Writer
	opts    []terbium.Option
	printer *reporting.Printer

	history []string
	seen    int // bytes of output the history produces
}

func New(out, errOut io.Writer, opts ...terbium.Option) *REPL {
	return &REPL{
		out:     out,
		errOut:  errOut,
		opts:    opts,
		printer: reporting.NewPrinter(errOut),
	}
}

// Start reads inputs from in until EOF or :quit. An input continues over
// several lines while brackets are open.
func (r *REPL) Start(in io.Reader) error {
	fmt.Fprintf(r.out, "Terbium %s REPL | :quit to exit, :reset to clear\n", terbium.Version)
	scanner := bufio.NewScanner(in)
	var pending []string

	for {
		if len(pending) == 0 {
			fmt.Fprint(r.out, ">>> ")
		} else {
			fmt.Fprint(r.out, "... ")
		}
		if !scanner.Scan() {
			fmt.Fprintln(r.out)
			return scanner.Err()
		}
		line := scanner.Text()

		if len(pending) == 0 {
			switch strings.TrimSpace(line) {
			case "":
				continue
			case ":quit", ":exit":
				return nil
			case ":reset":
				r.Reset()
				continue
			case ":history":
				fmt.Fprintln(r.out, strings.Join(r.history, "\n"))
				continue
			}
		}

		pending = append(pending, line)
		input := strings.Join(pending, "\n")
		if open(input) > 0 {
			continue
		}
		pending = nil

		v, err := r.Eval(input)
		if err == nil && !v.IsNull() {
			fmt.Fprintln(r.out, v.String())
		}
	}
}

// open counts unclosed brackets in input.
func open(input string) int {
	depth := 0
	for _, tok := range lexer.Tokenize(input, diag.NewCollector()) {
		switch tok.Type {
		case lexer.TokenLParen, lexer.TokenLBrace, lexer.TokenLBracket:
			depth++
		case lexer.TokenRParen, lexer.TokenRBrace, lexer.TokenRBracket:
			depth--
		}
	}
	return depth
}

// Reset forgets every accepted input.
func (r *REPL) Reset() {
	r.history = nil
	r.seen = 0
}

// Eval runs input after the history. Diagnostics and traps are printed
// with positions relative to input. The input joins the history only if
// it compiles and runs cleanly.
func (r *REPL) Eval(input string) (terbium.Value, error) {
	prefix := ""
	if len(r.history) > 0 {
		prefix = strings.Join(r.history, "\n") + "\n"
	}
	offset := strings.Count(prefix, "\n")

	w := &skipWriter{w: r.out, skip: r.seen}
	opts := append(append([]terbium.Option{}, r.opts...), terbium.WithStdout(w))
	v, diags, err := terbium.Eval(name, prefix+input, opts...)

	var shown []diag.Diagnostic
	for _, d := range diags {
		if d.Span.Line > offset {
			d.Span.Line -= offset
			shown = append(shown, d)
		}
	}
	if len(shown) > 0 {
		r.printer.Diagnostics(name, input, shown)
	}

	var rerr *vm.RuntimeError
	if errors.As(err, &rerr) {
		r.printer.Trap(name, input, shift(rerr, offset))
	} else if err != nil && len(shown) == 0 {
		fmt.Fprintf(r.errOut, "error: %v\n", err)
	}
	if err != nil {
		return vm.Null(), err
	}

	r.history = append(r.history, terminate(input))
	r.seen = w.total
	return v, nil
}

// terminate turns a trailing expression into a statement so later inputs
// can follow it.
func terminate(input string) string {
	if program := parser.Parse(input, nil); program.Tail != nil {
		return input + ";"
	}
	return input
}

func shift(e *vm.RuntimeError, offset int) *vm.RuntimeError {
	c := *e
	if c.Line > offset {
		c.Line -= offset
	} else {
		c.Line = 0
	}
	c.Stack = make([]vm.StackFrame, len(e.Stack))
	for i, f := range e.Stack {
		if f.Line > offset {
			f.Line -= offset
		} else {
			f.Line = 0
		}
		c.Stack[i] = f
	}
	return &c
}

// skipWriter drops the first skip bytes written to it.
type skipWriter struct {
	w     io.Writer
	skip  int
	total int
}

func (s *skipWriter) Write(p []byte) (int, error) {
	n := len(p)
	s.total += n
	if s.skip >= n {
		s.skip -= n
		return n, nil
	}
	p = p[s.skip:]
	s.skip = 0
	if _, err := s.w.Write(p); err != nil {
		return 0, err
	}
	return n, nil
}
