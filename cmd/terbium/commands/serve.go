// cmd/terbium/commands/serve.go
package commands

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Cryptex-github/Terbium/internal/server"
)

// ServeCommand starts the WebSocket server and blocks until interrupted.
func ServeCommand(args []string, stdout, stderr io.Writer) error {
	fs, configPath := flagSet("serve", stderr)
	addr := fs.String("addr", "", "listen address (default from config)")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(stderr, "usage: terbium serve [-addr host:port]")
		return reportedError{ErrUsage}
	}
	env, err := newEnv(*configPath, stdout, stderr)
	if err != nil {
		return err
	}
	if *addr == "" {
		*addr = env.Config.Server.Addr
	}

	srv := server.New(server.Options{
		MaxFrames: env.Config.VM.MaxFrames,
		MaxDepth:  env.Config.Parser.MaxDepth,
		MaxSteps:  env.Config.Server.MaxSteps,
		Logger:    env.Logger,
	})
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	fmt.Fprintf(stdout, "terbium server listening on ws://%s/ws\n", *addr)
	return srv.ListenAndServe(ctx, *addr)
}
