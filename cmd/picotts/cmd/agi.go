package cmd

import (
	"context"
	"io"
	"os"

	"github.com/book-expert/picotts/internal/agi"
	"github.com/spf13/cobra"
)

var agiCmd = &cobra.Command{
	Use:   agi.StdioCommand + " [text] [language] [interrupt]",
	Short: "Serve one request over stdin/stdout as an AGI script",
	Long: `Serve a single request when started by the dialplan AGI() application,
as in AGI(picotts,agi,Bienvenido,es-ES,any). Arguments are taken from the AGI
environment; a leading "agi" argument is skipped and the positional arguments
Asterisk also passes on the command line are ignored.

Standard output belongs to Asterisk in this mode, so log lines go to
standard error and the log file.

The exit status is 0 on success or no-op, the character value of the digit
that interrupted playback, or 1 on failure.`,
	Args: cobra.ArbitraryArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signalContext(cmd.Context())
		defer stop()

		code, err := serveAGI(ctx, os.Stdin)
		if err != nil {
			return err
		}

		if code != 0 {
			return &ExitError{Code: code}
		}

		return nil
	},
}

// detachStdout points os.Stdout at stderr and returns the original stream.
// Loggers created afterwards cannot write into the AGI command channel.
func detachStdout() (*os.File, func()) {
	agiOut := os.Stdout
	os.Stdout = os.Stderr

	return agiOut, func() { os.Stdout = agiOut }
}

// serveAGI answers one AGI request read from in. Commands go to the process
// stdout as it was before any logger was built.
func serveAGI(ctx context.Context, in io.Reader) (int, error) {
	agiOut, restore := detachStdout()
	defer restore()

	// No NATS here: a connection per call costs more than a local miss.
	rt, err := newRuntime("picotts-agi.log", false)
	if err != nil {
		return 1, err
	}
	defer rt.close()

	code, err := agi.ServeStdio(ctx, in, agiOut, agi.NewHandler(rt.controller, rt.log))
	if err != nil {
		rt.log.Error("AGI session failed: %v", err)
	}

	return code, nil
}
