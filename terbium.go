// Package terbium compiles and runs Terbium programs.
//
// Compile turns source text into a verified bytecode module or a list of
// diagnostics; Run executes a module. Neither touches the terminal or the
// filesystem: program output goes to the writer given with WithStdout.
package terbium

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/Cryptex-github/Terbium/internal/analyzer"
	"github.com/Cryptex-github/Terbium/internal/bytecode"
	"github.com/Cryptex-github/Terbium/internal/compiler"
	"github.com/Cryptex-github/Terbium/internal/diag"
	"github.com/Cryptex-github/Terbium/internal/lexer"
	"github.com/Cryptex-github/Terbium/internal/parser"
	"github.com/Cryptex-github/Terbium/internal/vm"
)

// Version is reported by the CLI and the server.
const Version = "0.3.0"

type (
	Module       = bytecode.Module
	Value        = vm.Value
	Diagnostic   = diag.Diagnostic
	RuntimeError = vm.RuntimeError
	Program      = parser.Program
)

// ErrInvalidModule is the cause of errors for modules that fail bytecode
// verification before they are run.
var ErrInvalidModule = errors.New("invalid module")

// Diagnostics is the ordered output of the front end.
type Diagnostics []Diagnostic

// HasErrors reports whether any diagnostic has error severity.
func (d Diagnostics) HasErrors() bool {
	for _, x := range d {
		if x.IsError() {
			return true
		}
	}
	return false
}

// Errors returns only the error-severity diagnostics.
func (d Diagnostics) Errors() Diagnostics {
	var out Diagnostics
	for _, x := range d {
		if x.IsError() {
			out = append(out, x)
		}
	}
	return out
}

func (d Diagnostics) String() string {
	return diag.Summary(d)
}

// CompileError is returned when the front end reported errors. No module
// is produced in that case.
type CompileError struct {
	Name        string
	Diagnostics Diagnostics
}

func (e *CompileError) Error() string {
	errs := e.Diagnostics.Errors()
	if len(errs) == 0 {
		return fmt.Sprintf("%s: compilation failed", e.Name)
	}
	msg := fmt.Sprintf("%s:%s", e.Name, errs[0].Error())
	if len(errs) > 1 {
		msg += fmt.Sprintf(" (and %d more)", len(errs)-1)
	}
	return msg
}

type config struct {
	logger    *slog.Logger
	maxDepth  int
	maxFrames int
	maxSteps  int64
	stdout    io.Writer
	trace     vm.TraceHook
}

// Option configures Compile, Run and Eval.
type Option func(*config)

// WithLogger sets the logger pipeline stages report to at debug level.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithMaxDepth bounds expression and block nesting in the parser.
func WithMaxDepth(n int) Option {
	return func(c *config) { c.maxDepth = n }
}

// WithMaxFrames bounds the VM call depth.
func WithMaxFrames(n int) Option {
	return func(c *config) { c.maxFrames = n }
}

// WithMaxSteps bounds how many instructions a run may execute. A run that
// exceeds it stops with a step limit trap.
func WithMaxSteps(n int64) Option {
	return func(c *config) { c.maxSteps = n }
}

// WithStdout sets where print writes.
func WithStdout(w io.Writer) Option {
	return func(c *config) { c.stdout = w }
}

// WithTrace installs a per-instruction hook.
func WithTrace(h vm.TraceHook) Option {
	return func(c *config) { c.trace = h }
}

func newConfig(opts []Option) *config {
	c := &config{
		logger:   slog.New(slog.DiscardHandler),
		maxDepth: parser.DefaultMaxDepth,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Parse runs the lexer, parser and analyzer and returns the annotated
// program even when diagnostics were reported.
func Parse(name, source string, opts ...Option) (*Program, Diagnostics) {
	program, diags := parse(name, source, newConfig(opts))
	return program, Diagnostics(diags.All())
}

func parse(name, source string, cfg *config) (*Program, *diag.Collector) {
	diags := diag.NewCollector()
	tokens := lexer.Tokenize(source, diags)
	p := parser.NewParser(tokens, diags)
	p.MaxDepth = cfg.maxDepth
	program := p.Parse()
	analyzer.Analyze(program, diags)
	cfg.logger.Debug("front end done",
		"name", name,
		"source", humanize.Bytes(uint64(len(source))),
		"tokens", len(tokens),
		"diagnostics", diag.Summary(diags.All()))
	return program, diags
}

// Compile compiles source. The error is a *CompileError when diagnostics
// include errors; the diagnostics are returned in either case.
func Compile(name, source string, opts ...Option) (*Module, Diagnostics, error) {
	cfg := newConfig(opts)
	program, diags := parse(name, source, cfg)
	all := Diagnostics(diags.All())
	if diags.HasErrors() {
		return nil, all, &CompileError{Name: name, Diagnostics: all}
	}
	m, err := compiler.Compile(program)
	if err != nil {
		return nil, all, errors.Wrapf(err, "compile %s", name)
	}
	cfg.logger.Debug("compiled",
		"name", name,
		"functions", len(m.Functions),
		"constants", len(m.Constants),
		"instructions", humanize.Comma(int64(len(m.Code))))
	return m, all, nil
}

// Run executes m and returns the value of its body. Traps are returned as
// *RuntimeError.
func Run(m *Module, opts ...Option) (result Value, err error) {
	cfg := newConfig(opts)
	if err := bytecode.Verify(m); err != nil {
		return vm.Null(), errors.Wrapf(ErrInvalidModule, "%v", err)
	}
	defer func() {
		if r := recover(); r != nil {
			ie, ok := r.(*vm.InternalError)
			if !ok {
				panic(r)
			}
			result, err = vm.Null(), errors.WithStack(ie)
		}
	}()

	machine := vm.New(m, vm.Options{
		Stdout:    cfg.stdout,
		MaxFrames: cfg.maxFrames,
		MaxSteps:  cfg.maxSteps,
		Trace:     cfg.trace,
	})
	result, err = machine.Run()
	if rerr, ok := err.(*vm.RuntimeError); ok {
		cfg.logger.Debug("trap", "kind", rerr.Kind.String(), "function", rerr.Function, "ip", rerr.IP)
	}
	return result, err
}

// Eval compiles and runs source.
func Eval(name, source string, opts ...Option) (Value, Diagnostics, error) {
	m, diags, err := Compile(name, source, opts...)
	if err != nil {
		return vm.Null(), diags, err
	}
	v, err := Run(m, opts...)
	return v, diags, err
}

// Encode serializes m.
func Encode(m *Module) ([]byte, error) {
	return bytecode.Encode(m)
}

// Decode parses and validates a serialized module.
func Decode(data []byte) (*Module, error) {
	return bytecode.Decode(data)
}

// Disassemble writes a readable listing of m.
func Disassemble(w io.Writer, m *Module) error {
	return bytecode.Disassemble(w, m)
}

// Exit codes.
const (
	ExitOK       = 0
	ExitCompile  = 1
	ExitRuntime  = 2
	ExitIO       = 3
	ExitInternal = 70
)

// ExitCode maps an error from this package to a process exit status.
func ExitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var cerr *CompileError
	var rerr *vm.RuntimeError
	var ierr *vm.InternalError
	switch {
	case errors.As(err, &cerr):
		return ExitCompile
	case errors.As(err, &rerr):
		return ExitRuntime
	case errors.As(err, &ierr), errors.Is(err, compiler.ErrInternal), errors.Is(err, ErrInvalidModule):
		return ExitInternal
	}
	return ExitIO
}
