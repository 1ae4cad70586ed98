// cmd/terbium/commands/fmt.go
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	terbium "github.com/Cryptex-github/Terbium"
	"github.com/Cryptex-github/Terbium/internal/formatter"
)

// FmtCommand prints the canonical layout of a source file, or rewrites
// files in place with -w.
func FmtCommand(args []string, stdout, stderr io.Writer) error {
	fs, configPath := flagSet("fmt", stderr)
	write := fs.Bool("w", false, "write the result back to the file")
	list := fs.Bool("l", false, "list files whose layout differs")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		fmt.Fprintln(stderr, "usage: terbium fmt [-w] [-l] <file.tb>...")
		return reportedError{ErrUsage}
	}
	env, err := newEnv(*configPath, stdout, stderr)
	if err != nil {
		return err
	}

	for _, path := range fs.Args() {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "could not read file")
		}
		source := string(data)

		// Syntax errors get the full report.
		if _, diags := terbium.Parse(path, source, env.options()...); diags.HasErrors() {
			env.printer().Diagnostics(path, source, diags.Errors())
			return reportedError{&terbium.CompileError{Name: path, Diagnostics: diags.Errors()}}
		}
		out, err := formatter.Format(source)
		if err != nil {
			return errors.Wrapf(err, "%s", path)
		}

		changed := out != source
		switch {
		case *list:
			if changed {
				fmt.Fprintln(stdout, path)
			}
		case *write:
			if changed {
				if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
					return errors.Wrap(err, "could not write file")
				}
				env.Logger.Debug("formatted", "file", path)
			}
		default:
			fmt.Fprint(stdout, out)
		}
	}
	return nil
}
