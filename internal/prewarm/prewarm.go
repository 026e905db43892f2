// Package prewarm fills the cache ahead of traffic from a list of phrases.
package prewarm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/book-expert/logger"
	"github.com/book-expert/picotts/internal/playback"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"
)

// DefaultWorkers bounds concurrent synthesis when no limit is given.
const DefaultWorkers = 4

// ErrNoPhrases is returned for a phrase file without entries.
var ErrNoPhrases = errors.New("phrase list is empty")

// Phrase is one entry of the phrase file.
type Phrase struct {
	Text     string `yaml:"text"`
	Language string `yaml:"language"`
}

// Renderer produces a playable file for text in a language.
type Renderer interface {
	Render(ctx context.Context, text, language string) (*playback.Rendition, error)
}

// Summary counts the outcome of a run.
type Summary struct {
	Rendered int
	Cached   int
	Failed   int
}

// Load reads a YAML phrase list of the form
//
//	- text: "Welcome"
//	  language: en-US
func Load(path string) ([]Phrase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read phrase file %s: %w", path, err)
	}

	var phrases []Phrase

	err = yaml.Unmarshal(data, &phrases)
	if err != nil {
		return nil, fmt.Errorf("failed to parse phrase file %s: %w", path, err)
	}

	kept := phrases[:0]

	for _, phrase := range phrases {
		phrase.Text = strings.TrimSpace(phrase.Text)
		if phrase.Text != "" {
			kept = append(kept, phrase)
		}
	}

	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoPhrases, path)
	}

	return kept, nil
}

// Run renders every phrase with at most workers concurrent syntheses.
// Individual failures are counted and logged; only cancellation stops the run.
func Run(ctx context.Context, renderer Renderer, phrases []Phrase, workers int, log *logger.Logger) (Summary, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}

	var rendered, cached, failed atomic.Int64

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(workers)

	for _, phrase := range phrases {
		if groupCtx.Err() != nil {
			break
		}

		group.Go(func() error {
			rendition, err := renderer.Render(groupCtx, phrase.Text, phrase.Language)
			if err != nil {
				if groupCtx.Err() != nil {
					return groupCtx.Err()
				}

				failed.Add(1)
				log.Warn("Prewarm of '%s' (%s) failed: %v", phrase.Text, phrase.Language, err)

				return nil
			}

			defer rendition.Release()

			if rendition.Cached {
				cached.Add(1)
			} else {
				rendered.Add(1)
			}

			return nil
		})
	}

	err := group.Wait()

	summary := Summary{
		Rendered: int(rendered.Load()),
		Cached:   int(cached.Load()),
		Failed:   int(failed.Load()),
	}

	log.Info("Prewarm finished: %d rendered, %d already cached, %d failed", summary.Rendered, summary.Cached, summary.Failed)

	if err != nil {
		return summary, fmt.Errorf("prewarm interrupted: %w", err)
	}

	if ctx.Err() != nil {
		return summary, fmt.Errorf("prewarm interrupted: %w", ctx.Err())
	}

	return summary, nil
}
