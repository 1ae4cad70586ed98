// cmd/terbium/commands/check.go
package commands

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	terbium "github.com/Cryptex-github/Terbium"
	"github.com/Cryptex-github/Terbium/internal/reporting"
)

// CheckCommand runs the front end over every file concurrently and reports
// diagnostics in argument order.
func CheckCommand(args []string, stdout, stderr io.Writer) error {
	fs, configPath := flagSet("check", stderr)
	format := fs.String("format", "text", "output format: text or json")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() == 0 || (*format != "text" && *format != "json") {
		fmt.Fprintln(stderr, "usage: terbium check [-format text|json] <files...>")
		return reportedError{ErrUsage}
	}
	env, err := newEnv(*configPath, stdout, stderr)
	if err != nil {
		return err
	}

	files := fs.Args()
	sources := make([]string, len(files))
	results := make([]terbium.Diagnostics, len(files))

	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, path := range files {
		g.Go(func() error {
			data, err := os.ReadFile(path)
			if err != nil {
				return errors.Wrapf(err, "could not read %s", path)
			}
			sources[i] = string(data)
			_, results[i] = terbium.Parse(path, sources[i], env.options()...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	failed, first := 0, -1
	reports := make([]*reporting.Report, len(files))
	for i, path := range files {
		if results[i].HasErrors() {
			if first < 0 {
				first = i
			}
			failed++
		}
		reports[i] = reporting.NewReport(path, results[i])
	}

	if *format == "json" {
		if err := reporting.WriteJSON(stdout, reports); err != nil {
			return err
		}
	} else {
		var buf bytes.Buffer
		p := reporting.NewPrinter(&buf)
		p.Color = reporting.IsTerminal(stderr)
		for i, path := range files {
			p.Diagnostics(path, sources[i], results[i])
		}
		stderr.Write(buf.Bytes())
		fmt.Fprintf(stdout, "checked %d files, %d failed\n", len(files), failed)
	}

	if failed > 0 {
		return reportedError{&terbium.CompileError{Name: files[first], Diagnostics: results[first]}}
	}
	return nil
}
