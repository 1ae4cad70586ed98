// cmd/terbium/commands/compile.go
package commands

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	terbium "github.com/Cryptex-github/Terbium"
	"github.com/Cryptex-github/Terbium/internal/parser"
)

// CompileCommand writes the encoded module for a source file.
func CompileCommand(args []string, stdout, stderr io.Writer) error {
	fs, configPath := flagSet("compile", stderr)
	out := fs.String("o", "", "output `file` (default: source name with .tbc)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: terbium compile [-o out.tbc] <file>")
		return reportedError{ErrUsage}
	}
	env, err := newEnv(*configPath, stdout, stderr)
	if err != nil {
		return err
	}

	path := fs.Arg(0)
	m, _, err := env.compileFile(path)
	if err != nil {
		return err
	}
	data, err := terbium.Encode(m)
	if err != nil {
		return err
	}
	target := *out
	if target == "" {
		target = strings.TrimSuffix(path, ".tb") + ".tbc"
	}
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return errors.Wrap(err, "could not write module")
	}
	fmt.Fprintf(stdout, "wrote %s (%s)\n", target, humanize.Bytes(uint64(len(data))))
	return nil
}

// DisasmCommand prints the bytecode of a source file or a .tbc module.
func DisasmCommand(args []string, stdout, stderr io.Writer) error {
	fs, configPath := flagSet("disasm", stderr)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: terbium disasm <file|file.tbc>")
		return reportedError{ErrUsage}
	}
	env, err := newEnv(*configPath, stdout, stderr)
	if err != nil {
		return err
	}

	var m *terbium.Module
	if isBytecode(fs.Arg(0)) {
		m, err = readModule(fs.Arg(0))
	} else {
		m, _, err = env.compileFile(fs.Arg(0))
	}
	if err != nil {
		return err
	}
	return terbium.Disassemble(stdout, m)
}

// ASTCommand prints the parsed program as an S-expression.
func ASTCommand(args []string, stdout, stderr io.Writer) error {
	fs, configPath := flagSet("ast", stderr)
	resolved := fs.Bool("resolved", false, "annotate identifiers with their bindings")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: terbium ast [-resolved] <file>")
		return reportedError{ErrUsage}
	}
	env, err := newEnv(*configPath, stdout, stderr)
	if err != nil {
		return err
	}

	path := fs.Arg(0)
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "could not read file")
	}
	program, diags := terbium.Parse(path, string(data), env.options()...)
	if len(diags) > 0 {
		env.printer().Diagnostics(path, string(data), diags)
	}
	if *resolved {
		fmt.Fprintln(stdout, parser.PrintResolved(program))
	} else {
		fmt.Fprintln(stdout, parser.Print(program))
	}
	if diags.HasErrors() {
		return reportedError{&terbium.CompileError{Name: path, Diagnostics: diags}}
	}
	return nil
}
