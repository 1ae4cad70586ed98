// cmd/terbium/commands/run.go
package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/pkg/errors"

	terbium "github.com/Cryptex-github/Terbium"
	"github.com/Cryptex-github/Terbium/internal/cache"
	"github.com/Cryptex-github/Terbium/internal/vm"
)

// RunCommand compiles and runs a source file. When cache.dsn is set the
// compiled module is looked up and stored there.
func RunCommand(args []string, stdout, stderr io.Writer) error {
	fs, configPath := flagSet("run", stderr)
	trace := fs.Bool("trace", false, "print every instruction to stderr")
	noCache := fs.Bool("no-cache", false, "ignore the module cache")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: terbium run [-trace] [-no-cache] <file>")
		return reportedError{ErrUsage}
	}
	env, err := newEnv(*configPath, stdout, stderr)
	if err != nil {
		return err
	}
	path := fs.Arg(0)

	var opts []terbium.Option
	if *trace {
		opts = append(opts, terbium.WithTrace(func(info vm.TraceInfo) {
			fmt.Fprintf(stderr, "%-12s %04d %-14s %6d  depth=%d\n", info.Function, info.IP, info.Op, info.Operand, info.Depth)
		}))
	}

	ctx := context.Background()
	var store *cache.Cache
	if env.Config.Cache.DSN != "" && !*noCache {
		store, err = cache.Open(ctx, env.Config.Cache.Driver, env.Config.Cache.DSN)
		if err != nil {
			env.Logger.Warn("module cache unavailable", "err", err)
		} else {
			defer store.Close()
		}
	}

	if store != nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, "could not read file")
		}
		source := string(data)
		m, ok, err := store.Get(ctx, source)
		if err != nil {
			env.Logger.Warn("cache lookup failed", "err", err)
		}
		if ok {
			env.Logger.Debug("cache hit", "file", path, "module", m.ID)
			return env.runModule(path, source, m, opts...)
		}
	}

	m, source, err := env.compileFile(path)
	if err != nil {
		return err
	}
	if store != nil {
		if err := store.Put(ctx, path, source, m); err != nil {
			env.Logger.Warn("cache store failed", "err", err)
		}
	}
	return env.runModule(path, source, m, opts...)
}

// ExecCommand runs a compiled .tbc module.
func ExecCommand(args []string, stdout, stderr io.Writer) error {
	fs, configPath := flagSet("exec", stderr)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "usage: terbium exec <file.tbc>")
		return reportedError{ErrUsage}
	}
	env, err := newEnv(*configPath, stdout, stderr)
	if err != nil {
		return err
	}
	m, err := readModule(fs.Arg(0))
	if err != nil {
		return err
	}
	// No source is available, so traps are shown without an excerpt.
	return env.runModule(fs.Arg(0), "", m)
}
