// cmd/terbium/commands/repl.go
package commands

import (
	"fmt"
	"io"
	"os"

	"github.com/Cryptex-github/Terbium/internal/repl"
)

// Stdin is where the REPL reads from.
var Stdin io.Reader = os.Stdin

// ReplCommand starts an interactive session.
func ReplCommand(args []string, stdout, stderr io.Writer) error {
	fs, configPath := flagSet("repl", stderr)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 0 {
		fmt.Fprintln(stderr, "usage: terbium repl")
		return reportedError{ErrUsage}
	}
	env, err := newEnv(*configPath, stdout, stderr)
	if err != nil {
		return err
	}
	// The REPL installs its own stdout writer per input.
	return repl.New(stdout, stderr, env.options()...).Start(Stdin)
}
