// Package playback drives one request from dialplan arguments to audio on
// the channel: validate, consult the cache, synthesize on a miss, promote,
// stream, wait for barge-in and clean up.
package playback

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/book-expert/logger"
	"github.com/book-expert/picotts/internal/cache"
	"github.com/book-expert/picotts/internal/config"
	"github.com/book-expert/picotts/internal/core"
	"github.com/book-expert/picotts/internal/tts"
	"github.com/book-expert/picotts/internal/voice"
)

var (
	// ErrNoText is returned by Render when there is nothing to say.
	ErrNoText = errors.New("no text to speak")
	// ErrNoLanguage is returned by Render when the language is empty and the
	// policy is to abort.
	ErrNoLanguage = errors.New("no language given")
	// ErrStream is returned when the channel cannot play an artifact.
	ErrStream = errors.New("stream failed")
)

// Status is the outcome reported back to the dialplan.
type Status string

// Playback outcomes.
const (
	StatusSuccess     Status = "SUCCESS"
	StatusNoop        Status = "NOOP"
	StatusInterrupted Status = "INTERRUPTED"
	StatusFailed      Status = "FAILED"
)

// Result describes how a playback ended.
type Result struct {
	Status Status
	// Digit is the DTMF digit that interrupted playback, or 0.
	Digit rune
}

// Code maps the result to the dialplan return convention: 0 on success or
// no-op, the digit's character value on barge-in, 1 on failure.
func (r Result) Code() int {
	switch r.Status {
	case StatusInterrupted:
		return int(r.Digit)
	case StatusFailed:
		return 1
	case StatusSuccess, StatusNoop:
		return 0
	}

	return 0
}

// Rendition is a playable audio file. Cached renditions point into the cache
// directory; the others own a temporary artifact that Release deletes.
type Rendition struct {
	Path   string
	Cached bool
	Voice  voice.Voice

	artifact *tts.Artifact
	log      *logger.Logger
}

// Release removes the temporary artifact, if any. Cache files are never touched.
func (r *Rendition) Release() {
	if r == nil || r.artifact == nil {
		return
	}

	err := r.artifact.Remove()
	if err != nil {
		r.log.Warn("Failed to remove temp artifact '%s': %v", r.artifact.Base, err)
	}

	r.artifact = nil
}

// Controller runs playback requests against the active configuration.
type Controller struct {
	store   *config.Store
	invoker core.ProcessInvoker
	remote  core.ObjectStore
	log     *logger.Logger
}

// NewController creates a controller. remote may be nil.
func NewController(
	store *config.Store,
	invoker core.ProcessInvoker,
	remote core.ObjectStore,
	log *logger.Logger,
) *Controller {
	return &Controller{
		store:   store,
		invoker: invoker,
		remote:  remote,
		log:     log,
	}
}

// Render produces a playable file for text in language, synthesizing only
// when the cache cannot serve it. The caller must Release the rendition.
func (c *Controller) Render(ctx context.Context, text, language string) (*Rendition, error) {
	if text == "" {
		return nil, ErrNoText
	}

	cfg := c.store.Current()

	if strings.TrimSpace(language) == "" && cfg.Policy.EmptyLanguage == config.EmptyLanguageAbort {
		return nil, ErrNoLanguage
	}

	resolver := voice.NewResolver(cfg.General.DefaultVoice, c.log)
	selected, _ := resolver.Resolve(language)
	rate := cfg.General.SampleRate
	ext := tts.Extension(rate)

	var (
		index     *cache.Index
		key       cache.Key
		cachePath string
		cacheable bool
	)

	if cfg.General.CacheEnabled {
		index = cache.New(cfg.General.CacheDir, ext, c.remote, c.log)
		key = fingerprint(cfg.Policy.CacheKey, text, selected)
		cachePath, cacheable = index.PathFor(key)

		if !cacheable {
			c.log.Warn("Cache path for %s exceeds %d bytes. Skipping cache", key, cache.MaxPathLen)
		}

		if cacheable && (index.Exists(cachePath) || index.Restore(ctx, key, cachePath)) {
			return &Rendition{Path: cachePath, Cached: true, Voice: selected, artifact: nil, log: c.log}, nil
		}
	}

	synth := tts.New(c.invoker, tts.OptionsFrom(cfg), c.log)

	artifact, err := synth.Synthesize(ctx, text, selected, rate)
	if err != nil {
		return nil, fmt.Errorf("failed to render %q in %s: %w", text, selected.Locale, err)
	}

	if cacheable {
		promoteErr := index.Promote(ctx, key, artifact.Path, cachePath)
		if promoteErr != nil {
			c.log.Warn("Failed to cache %s: %v", cachePath, promoteErr)
		}
	}

	return &Rendition{Path: artifact.Path, Cached: false, Voice: selected, artifact: artifact, log: c.log}, nil
}

// Play renders the request and streams it to ch. The returned error is set
// only together with StatusFailed.
func (c *Controller) Play(ctx context.Context, ch core.Channel, req Request) (Result, error) {
	text := StripQuotes(req.Text)
	language := StripQuotes(req.Language)

	rendition, err := c.Render(ctx, text, language)

	switch {
	case errors.Is(err, ErrNoText):
		c.log.Warn("PicoTTS requires an argument (text)")

		return Result{Status: StatusNoop, Digit: 0}, nil
	case errors.Is(err, ErrNoLanguage):
		c.log.Info("No language given on %s. Nothing played", ch.Name())

		return Result{Status: StatusNoop, Digit: 0}, nil
	case err != nil:
		c.log.Error("Playback on %s failed: %v", ch.Name(), err)

		return Result{Status: StatusFailed, Digit: 0}, err
	}

	defer rendition.Release()

	c.log.Info(
		"Playing '%s' on %s (voice=%s cached=%t interrupt=%q)",
		text, ch.Name(), rendition.Voice.Locale, rendition.Cached, req.Interrupt,
	)

	digit, err := c.stream(ctx, ch, rendition.Path, InterruptDigits(req.Interrupt))
	if err != nil {
		c.log.Error("Playback on %s failed: %v", ch.Name(), err)

		return Result{Status: StatusFailed, Digit: 0}, err
	}

	if digit != 0 {
		return Result{Status: StatusInterrupted, Digit: digit}, nil
	}

	return Result{Status: StatusSuccess, Digit: 0}, nil
}

func (c *Controller) stream(ctx context.Context, ch core.Channel, path, digits string) (rune, error) {
	answered, err := ch.Answered(ctx)
	if err != nil {
		return 0, fmt.Errorf("%w: channel state: %w", ErrStream, err)
	}

	if !answered {
		err = ch.Answer(ctx)
		if err != nil {
			return 0, fmt.Errorf("%w: answer: %w", ErrStream, err)
		}
	}

	err = ch.Stream(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrStream, path, err)
	}

	digit, waitErr := ch.WaitForInterrupt(ctx, digits)

	stopErr := ch.Stop(ctx)
	if stopErr != nil {
		c.log.Warn("Failed to stop playback on %s: %v", ch.Name(), stopErr)
	}

	if waitErr != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrStream, path, waitErr)
	}

	return digit, nil
}

func fingerprint(policy, text string, selected voice.Voice) cache.Key {
	if policy == config.CacheKeyTextVoice {
		return cache.FingerprintWithVoice(text, selected.Code)
	}

	return cache.Fingerprint(text)
}
