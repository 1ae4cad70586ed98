// cmd/terbium/commands/lsp.go
package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/Cryptex-github/Terbium/internal/lsp"
)

// LSPCommand serves the language server protocol on stdin and stdout.
func LSPCommand(args []string, stdout, stderr io.Writer) error {
	fs, configPath := flagSet("lsp", stderr)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(stderr, "usage: terbium lsp")
		return reportedError{ErrUsage}
	}
	env, err := newEnv(*configPath, stdout, stderr)
	if err != nil {
		return err
	}
	env.Logger.Info("language server started")
	return lsp.NewServer(Stdin, stdout, env.Logger, env.options()...).Start(context.Background())
}
