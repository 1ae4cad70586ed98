// cmd/terbium/main.go
package main

import (
	"fmt"
	"io"
	"os"
	"runtime"

	terbium "github.com/Cryptex-github/Terbium"
	"github.com/Cryptex-github/Terbium/cmd/terbium/commands"
)

// Build variables - can be set during build with ldflags
var (
	BuildDate = "unknown"
	GitCommit = "unknown"
)

type command func(args []string, stdout, stderr io.Writer) error

var commandTable = map[string]command{
	"run":     commands.RunCommand,
	"exec":    commands.ExecCommand,
	"compile": commands.CompileCommand,
	"check":   commands.CheckCommand,
	"disasm":  commands.DisasmCommand,
	"ast":     commands.ASTCommand,
	"serve":   commands.ServeCommand,
	"fmt":     commands.FmtCommand,
	"repl":    commands.ReplCommand,
	"lsp":     commands.LSPCommand,
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		showUsage(stderr)
		return terbium.ExitIO
	}

	switch args[0] {
	case "help", "-h", "--help", "-help":
		showUsage(stdout)
		return terbium.ExitOK
	case "version", "-v", "--version", "-version":
		showVersion(stdout)
		return terbium.ExitOK
	}

	cmd, ok := commandTable[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "terbium: unknown command %q\n\n", args[0])
		showUsage(stderr)
		return terbium.ExitIO
	}
	err := cmd(args[1:], stdout, stderr)
	if err != nil && !commands.Reported(err) {
		fmt.Fprintf(stderr, "terbium: %v\n", err)
	}
	return terbium.ExitCode(err)
}

func showVersion(w io.Writer) {
	fmt.Fprintf(w, "terbium %s (%s, built %s, %s/%s)\n", terbium.Version, GitCommit, BuildDate, runtime.GOOS, runtime.GOARCH)
}

func showUsage(w io.Writer) {
	fmt.Fprintln(w, "Terbium - a small expression language")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  terbium run <file.tb>          Compile and run a program")
	fmt.Fprintln(w, "  terbium compile <file.tb>      Write a bytecode module (-o out.tbc)")
	fmt.Fprintln(w, "  terbium exec <file.tbc>        Run a bytecode module")
	fmt.Fprintln(w, "  terbium check <files...>       Report diagnostics without running")
	fmt.Fprintln(w, "  terbium disasm <file>          Disassemble a program or module")
	fmt.Fprintln(w, "  terbium ast <file.tb>          Print the syntax tree")
	fmt.Fprintln(w, "  terbium fmt <files...>         Print canonical layout (-w rewrites, -l lists)")
	fmt.Fprintln(w, "  terbium repl                   Start an interactive session")
	fmt.Fprintln(w, "  terbium lsp                    Run the language server on stdio")
	fmt.Fprintln(w, "  terbium serve                  Serve compile/run requests over WebSocket")
	fmt.Fprintln(w, "  terbium version                Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Every command accepts -config <terbium.yaml>.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Exit codes: 0 ok, 1 compile errors, 2 runtime error, 3 I/O or usage, 70 internal error.")
}
