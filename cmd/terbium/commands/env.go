// cmd/terbium/commands/env.go
package commands

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	terbium "github.com/Cryptex-github/Terbium"
	"github.com/Cryptex-github/Terbium/internal/config"
	"github.com/Cryptex-github/Terbium/internal/reporting"
	"github.com/Cryptex-github/Terbium/internal/vm"
)

// ErrUsage is returned for bad command lines. The usage text has already
// been printed.
var ErrUsage = errors.New("usage error")

// Env is what every command runs against.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer
	Config *config.Config
	Logger *slog.Logger
}

// reportedError marks an error whose details were already written to
// stderr.
type reportedError struct {
	err error
}

func (e reportedError) Error() string { return e.err.Error() }
func (e reportedError) Unwrap() error { return e.err }

// Reported reports whether err was already shown to the user.
func Reported(err error) bool {
	var r reportedError
	return errors.As(err, &r)
}

// flagSet registers the flags shared by every command.
func flagSet(name string, stderr io.Writer) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	cfg := fs.String("config", "", "path to `terbium.yaml`")
	return fs, cfg
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return reportedError{ErrUsage}
		}
		return reportedError{errors.Wrap(ErrUsage, err.Error())}
	}
	return nil
}

// newEnv loads configuration. An explicit -config must exist; the default
// file is optional.
func newEnv(configPath string, stdout, stderr io.Writer) (*Env, error) {
	path, required := configPath, true
	if path == "" {
		path, required = config.DefaultFile, false
	}
	cfg, err := config.Load(path, required)
	if err != nil {
		return nil, err
	}
	return &Env{
		Stdout: stdout,
		Stderr: stderr,
		Config: cfg,
		Logger: cfg.Logger(stderr),
	}, nil
}

func (e *Env) options() []terbium.Option {
	return []terbium.Option{
		terbium.WithLogger(e.Logger),
		terbium.WithMaxDepth(e.Config.Parser.MaxDepth),
		terbium.WithMaxFrames(e.Config.VM.MaxFrames),
		terbium.WithStdout(e.Stdout),
	}
}

func (e *Env) printer() *reporting.Printer {
	return reporting.NewPrinter(e.Stderr)
}

// compileFile reads and compiles path, printing any diagnostics.
func (e *Env) compileFile(path string) (*terbium.Module, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", errors.Wrap(err, "could not read file")
	}
	source := string(data)
	m, diags, err := terbium.Compile(path, source, e.options()...)
	if len(diags) > 0 {
		e.printer().Diagnostics(path, source, diags)
	}
	var cerr *terbium.CompileError
	if errors.As(err, &cerr) {
		return nil, source, reportedError{err}
	}
	if err != nil {
		return nil, source, err
	}
	return m, source, nil
}

// runModule executes m and renders a trap against source when there is one.
func (e *Env) runModule(path, source string, m *terbium.Module, opts ...terbium.Option) error {
	v, err := terbium.Run(m, append(e.options(), opts...)...)
	var rerr *vm.RuntimeError
	if errors.As(err, &rerr) {
		e.printer().Trap(path, source, rerr)
		return reportedError{err}
	}
	if err != nil {
		return err
	}
	if !v.IsNull() {
		fmt.Fprintln(e.Stdout, v.String())
	}
	return nil
}

func isBytecode(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".tbc")
}

func readModule(path string) (*terbium.Module, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "could not read file")
	}
	m, err := terbium.Decode(data)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", path)
	}
	return m, nil
}
