// Package tts turns text into a telephony-ready audio file by driving the
// external synthesis engine and resampler.
package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/picotts/internal/config"
	"github.com/book-expert/picotts/internal/core"
	"github.com/book-expert/picotts/internal/fsutil"
	"github.com/book-expert/picotts/internal/voice"
	"github.com/google/uuid"
)

// Artifact extensions by target sample rate.
const (
	ExtNarrowband = ".wav"
	ExtWideband   = ".wav16"
)

const (
	tempPrefix  = "picotts_"
	rawSuffix   = "-raw.wav"
	monoChannel = "1"
)

var (
	// ErrSynthesis is returned when the engine fails or produces no audio.
	ErrSynthesis = errors.New("speech synthesis failed")
	// ErrResampling is returned when the resampler fails under the strict policy.
	ErrResampling = errors.New("audio resampling failed")
	// ErrEmptyText is returned when asked to synthesize nothing.
	ErrEmptyText = errors.New("text is empty")
)

// Extension returns the artifact file extension for a sample rate.
func Extension(sampleRate int) string {
	if sampleRate == config.SampleRateWideband {
		return ExtWideband
	}

	return ExtNarrowband
}

// ExecInvoker runs programs with os/exec. Arguments are passed as a vector,
// never through a shell.
type ExecInvoker struct{}

// Run executes name with args and returns its combined output.
func (ExecInvoker) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	// #nosec G204 -- binaries come from configuration and text travels as a single argv element
	cmd := exec.CommandContext(ctx, name, args...)

	output, err := cmd.CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s execution failed: %w", filepath.Base(name), err)
	}

	return output, nil
}

// Artifact is the set of temporary files produced by one synthesis.
type Artifact struct {
	// Base is the temp path without extension, e.g. /tmp/picotts_<uuid>.
	Base string
	// RawPath is the engine output before resampling.
	RawPath string
	// Path is the final resampled file handed to playback.
	Path string
}

// Remove deletes every file belonging to the artifact. Missing files are
// not an error.
func (a *Artifact) Remove() error {
	var errs []error

	for _, path := range []string{a.RawPath, a.Path} {
		err := os.Remove(path)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// Options configures a Synthesizer.
type Options struct {
	SynthBinary    string
	ResampleBinary string
	TempDir        string
	Timeout        time.Duration
	StrictResample bool
}

// OptionsFrom extracts synthesizer options from a configuration snapshot.
func OptionsFrom(cfg *config.Config) Options {
	return Options{
		SynthBinary:    cfg.Engine.SynthBinary,
		ResampleBinary: cfg.Engine.ResampleBinary,
		TempDir:        cfg.Engine.TempDir,
		Timeout:        cfg.Engine.Timeout(),
		StrictResample: cfg.Policy.StrictResample,
	}
}

// Synthesizer renders text with pico2wave and converts it with sox.
type Synthesizer struct {
	invoker core.ProcessInvoker
	opts    Options
	log     *logger.Logger
}

// New creates a Synthesizer.
func New(invoker core.ProcessInvoker, opts Options, log *logger.Logger) *Synthesizer {
	if opts.Timeout <= 0 {
		opts.Timeout = time.Duration(config.DefaultTimeoutSeconds) * time.Second
	}

	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}

	return &Synthesizer{
		invoker: invoker,
		opts:    opts,
		log:     log,
	}
}

// Synthesize renders text in v at sampleRate. The caller owns the returned
// artifact and must Remove it. On error nothing is left on disk.
func (s *Synthesizer) Synthesize(ctx context.Context, text string, v voice.Voice, sampleRate int) (*Artifact, error) {
	if text == "" {
		return nil, ErrEmptyText
	}

	base := filepath.Join(s.opts.TempDir, tempPrefix+uuid.NewString())
	artifact := &Artifact{
		Base:    base,
		RawPath: base + rawSuffix,
		Path:    base + Extension(sampleRate),
	}

	err := s.render(ctx, artifact.RawPath, v.Code, text)
	if err != nil {
		s.discard(artifact)

		return nil, err
	}

	err = s.resample(ctx, artifact, sampleRate)
	if err != nil {
		s.discard(artifact)

		return nil, err
	}

	removeErr := os.Remove(artifact.RawPath)
	if removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
		s.log.Warn("Failed to remove raw audio '%s': %v", artifact.RawPath, removeErr)
	}

	return artifact, nil
}

func (s *Synthesizer) render(ctx context.Context, rawPath, code, text string) error {
	runCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	args := []string{"-w", rawPath, "-l", code, "--", text}

	output, err := s.invoker.Run(runCtx, s.opts.SynthBinary, args...)
	if err != nil {
		return fmt.Errorf("%w: %w - output: %s", ErrSynthesis, err, string(output))
	}

	if !fsutil.FileExists(rawPath) {
		return fmt.Errorf("%w: engine produced no audio at %s", ErrSynthesis, rawPath)
	}

	return nil
}

func (s *Synthesizer) resample(ctx context.Context, artifact *Artifact, sampleRate int) error {
	runCtx, cancel := context.WithTimeout(ctx, s.opts.Timeout)
	defer cancel()

	args := []string{
		"-q", artifact.RawPath,
		"-t", "wav",
		"-r", strconv.Itoa(sampleRate),
		"-c", monoChannel,
		artifact.Path,
	}

	output, err := s.invoker.Run(runCtx, s.opts.ResampleBinary, args...)
	if err == nil {
		return nil
	}

	if s.opts.StrictResample {
		return fmt.Errorf("%w: %w - output: %s", ErrResampling, err, string(output))
	}

	s.log.Warn("Resampling failed, continuing with whatever %s holds: %v", artifact.Path, err)

	return nil
}

func (s *Synthesizer) discard(artifact *Artifact) {
	err := artifact.Remove()
	if err != nil {
		s.log.Warn("Failed to remove temp artifact '%s': %v", artifact.Base, err)
	}
}
