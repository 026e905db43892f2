// Package cmd holds the picotts command line.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// DefaultConfigPath is read when --config is not given.
const DefaultConfigPath = "/etc/picotts/picotts.toml"

var (
	cfgFile    string
	useCentral bool
)

// ExitError carries a process exit code that is not a failure of picotts
// itself, such as the digit that interrupted a playback.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit status %d", e.Code)
}

var rootCmd = &cobra.Command{
	Use:   "picotts",
	Short: "Cached text-to-speech playback for Asterisk dialplans",
	Long: `picotts speaks text to a caller through pico2wave and sox and keeps
every rendered phrase in a cache for the next call.

Dialplan usage:
  same => n,AGI(agi://127.0.0.1/picotts,Bienvenido,es-ES,any)
  same => n,AGI(picotts,agi,Bienvenido,es-ES,any)

After each request the channel variables PICOTTS_STATUS
(SUCCESS, NOOP, INTERRUPTED, FAILED) and PICOTTS_DIGIT are set.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: "+DefaultConfigPath+")")
	rootCmd.PersistentFlags().BoolVar(&useCentral, "central", false, "load configuration through the project configurator")

	rootCmd.AddCommand(serveCmd, agiCmd, sayCmd, prewarmCmd, workerCmd)
}
