package cmd

import (
	"errors"
	"fmt"

	"github.com/book-expert/picotts/internal/prewarm"
	"github.com/spf13/cobra"
)

var errCacheDisabled = errors.New("cache is disabled in the configuration (usecache)")

var (
	prewarmPhrases string
	prewarmWorkers int
)

var prewarmCmd = &cobra.Command{
	Use:   "prewarm",
	Short: "Render a phrase list into the cache",
	Long: `Render every entry of a YAML phrase list into the cache so that the
first caller does not wait for synthesis:

  - text: "Bienvenido a la central"
    language: es-ES
  - text: "Press one for sales"
    language: en-US`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		phrases, err := prewarm.Load(prewarmPhrases)
		if err != nil {
			return err
		}

		rt, err := newRuntime("picotts-cli.log", true)
		if err != nil {
			return err
		}
		defer rt.close()

		if !rt.store.Current().General.CacheEnabled {
			return errCacheDisabled
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		summary, err := prewarm.Run(ctx, rt.controller, phrases, prewarmWorkers, rt.log)

		fmt.Fprintf(cmd.OutOrStdout(), "rendered %d, already cached %d, failed %d\n",
			summary.Rendered, summary.Cached, summary.Failed)

		return err
	},
}

func init() {
	prewarmCmd.Flags().StringVar(&prewarmPhrases, "phrases", "phrases.yaml", "YAML phrase list")
	prewarmCmd.Flags().IntVar(&prewarmWorkers, "workers", prewarm.DefaultWorkers, "concurrent syntheses")
}
