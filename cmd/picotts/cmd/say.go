package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/book-expert/picotts/internal/fsutil"
	"github.com/book-expert/picotts/internal/playback"
	"github.com/spf13/cobra"
)

var errOutRequired = errors.New("--out is required")

var (
	sayLanguage string
	sayOut      string
)

var sayCmd = &cobra.Command{
	Use:   "say <text[,language]>",
	Short: "Render one phrase to a file",
	Long: `Render one phrase through the cache and copy the audio to --out.
The argument accepts the dialplan form "text,language" with quoting, so
commas inside quotes stay part of the text. --lang overrides the language.`,
	Example: `  picotts say --out /tmp/hola.wav 'Hola,es-ES'
  picotts say --lang en-GB --out /tmp/welcome.wav '"Welcome, caller"'`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if sayOut == "" {
			return errOutRequired
		}

		request := playback.ParseArgs(strings.Join(args, " "))
		if sayLanguage != "" {
			request.Language = sayLanguage
		}

		rt, err := newRuntime("picotts-cli.log", true)
		if err != nil {
			return err
		}
		defer rt.close()

		rendition, err := rt.controller.Render(cmd.Context(), request.Text, request.Language)
		if err != nil {
			return fmt.Errorf("say: %w", err)
		}
		defer rendition.Release()

		err = fsutil.CopyFile(rendition.Path, sayOut)
		if err != nil {
			return fmt.Errorf("say: %w", err)
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, %s, cached=%t)\n",
			sayOut, rendition.Voice.Locale, fsutil.FormatFileSize(fsutil.SizeOf(sayOut)), rendition.Cached)

		return nil
	},
}

func init() {
	sayCmd.Flags().StringVar(&sayLanguage, "lang", "", "voice locale, e.g. es-ES")
	sayCmd.Flags().StringVarP(&sayOut, "out", "o", "", "destination file")
}
