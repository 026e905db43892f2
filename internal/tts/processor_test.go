// Package tts_test tests the synthesis pipeline.
package tts_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/picotts/internal/config"
	"github.com/book-expert/picotts/internal/tts"
	"github.com/book-expert/picotts/internal/voice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMockExit = errors.New("exit status 1")

type call struct {
	name string
	args []string
}

// mockInvoker emulates pico2wave and sox by writing their output files.
type mockInvoker struct {
	mu                 sync.Mutex
	calls              []call
	synthShouldFail    bool
	resampleShouldFail bool
	synthWritesNothing bool
}

func (m *mockInvoker) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	m.mu.Lock()
	m.calls = append(m.calls, call{name: name, args: args})
	m.mu.Unlock()

	switch name {
	case "pico2wave":
		if m.synthShouldFail {
			return []byte("Cannot open output wave file"), errMockExit
		}

		if m.synthWritesNothing {
			return nil, nil
		}

		return nil, os.WriteFile(args[1], []byte("RIFF-raw"), 0o600)
	case "sox":
		if m.resampleShouldFail {
			return []byte("sox FAIL formats"), errMockExit
		}

		return nil, os.WriteFile(args[len(args)-1], []byte("RIFF-final"), 0o600)
	}

	return nil, errMockExit
}

func (m *mockInvoker) callsTo(name string) []call {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []call

	for _, c := range m.calls {
		if c.name == name {
			out = append(out, c)
		}
	}

	return out
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "tts-test.log")
	require.NoError(t, err)

	t.Cleanup(func() { _ = log.Close() })

	return log
}

func newSynthesizer(t *testing.T, invoker *mockInvoker, strict bool) (*tts.Synthesizer, string) {
	t.Helper()

	tempDir := t.TempDir()
	opts := tts.Options{
		SynthBinary:    "pico2wave",
		ResampleBinary: "sox",
		TempDir:        tempDir,
		Timeout:        time.Second,
		StrictResample: strict,
	}

	return tts.New(invoker, opts, newTestLogger(t)), tempDir
}

func spanish(t *testing.T) voice.Voice {
	t.Helper()

	v, ok := voice.Lookup("es-ES")
	require.True(t, ok)

	return v
}

func TestExtension(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ".wav", tts.Extension(8000))
	assert.Equal(t, ".wav16", tts.Extension(16000))
	assert.Equal(t, ".wav", tts.Extension(44100))
}

func TestSynthesize_ArgumentVectors(t *testing.T) {
	t.Parallel()

	invoker := &mockInvoker{}
	synth, tempDir := newSynthesizer(t, invoker, true)

	text := `hola "mundo"; rm -rf / $(reboot)`

	artifact, err := synth.Synthesize(context.Background(), text, spanish(t), 16000)
	require.NoError(t, err)

	t.Cleanup(func() { _ = artifact.Remove() })

	assert.True(t, strings.HasPrefix(filepath.Base(artifact.Base), "picotts_"))
	assert.Equal(t, tempDir, filepath.Dir(artifact.Base))
	assert.Equal(t, artifact.Base+".wav16", artifact.Path)

	synthCalls := invoker.callsTo("pico2wave")
	require.Len(t, synthCalls, 1)
	assert.Equal(t, []string{"-w", artifact.RawPath, "-l", "es-ES", "--", text}, synthCalls[0].args)

	resampleCalls := invoker.callsTo("sox")
	require.Len(t, resampleCalls, 1)
	assert.Equal(t,
		[]string{"-q", artifact.RawPath, "-t", "wav", "-r", "16000", "-c", "1", artifact.Path},
		resampleCalls[0].args,
	)

	assert.FileExists(t, artifact.Path)
	assert.NoFileExists(t, artifact.RawPath, "raw engine output is removed after resampling")
}

func TestSynthesize_UniqueBasesPerCall(t *testing.T) {
	t.Parallel()

	synth, _ := newSynthesizer(t, &mockInvoker{}, true)

	first, err := synth.Synthesize(context.Background(), "uno", spanish(t), 8000)
	require.NoError(t, err)

	second, err := synth.Synthesize(context.Background(), "uno", spanish(t), 8000)
	require.NoError(t, err)

	assert.NotEqual(t, first.Base, second.Base)
	require.NoError(t, first.Remove())
	require.NoError(t, second.Remove())
}

func TestSynthesize_EngineFailureSkipsResampling(t *testing.T) {
	t.Parallel()

	invoker := &mockInvoker{synthShouldFail: true}
	synth, tempDir := newSynthesizer(t, invoker, true)

	artifact, err := synth.Synthesize(context.Background(), "hola", spanish(t), 8000)

	require.ErrorIs(t, err, tts.ErrSynthesis)
	assert.Nil(t, artifact)
	assert.Empty(t, invoker.callsTo("sox"))

	entries, readErr := os.ReadDir(tempDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestSynthesize_EngineWithoutOutput(t *testing.T) {
	t.Parallel()

	synth, _ := newSynthesizer(t, &mockInvoker{synthWritesNothing: true}, true)

	_, err := synth.Synthesize(context.Background(), "hola", spanish(t), 8000)

	require.ErrorIs(t, err, tts.ErrSynthesis)
}

func TestSynthesize_StrictResampleFailure(t *testing.T) {
	t.Parallel()

	synth, tempDir := newSynthesizer(t, &mockInvoker{resampleShouldFail: true}, true)

	artifact, err := synth.Synthesize(context.Background(), "hola", spanish(t), 8000)

	require.ErrorIs(t, err, tts.ErrResampling)
	assert.Nil(t, artifact)

	entries, readErr := os.ReadDir(tempDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "raw file is removed on failure")
}

func TestSynthesize_LenientResampleFailure(t *testing.T) {
	t.Parallel()

	synth, _ := newSynthesizer(t, &mockInvoker{resampleShouldFail: true}, false)

	artifact, err := synth.Synthesize(context.Background(), "hola", spanish(t), 8000)

	require.NoError(t, err)
	require.NotNil(t, artifact)
	require.NoError(t, artifact.Remove())
}

func TestSynthesize_EmptyText(t *testing.T) {
	t.Parallel()

	invoker := &mockInvoker{}
	synth, _ := newSynthesizer(t, invoker, true)

	_, err := synth.Synthesize(context.Background(), "", spanish(t), 8000)

	require.ErrorIs(t, err, tts.ErrEmptyText)
	assert.Empty(t, invoker.callsTo("pico2wave"))
}

func TestArtifact_RemoveIgnoresMissingFiles(t *testing.T) {
	t.Parallel()

	base := filepath.Join(t.TempDir(), "picotts_gone")
	artifact := &tts.Artifact{Base: base, RawPath: base + "-raw.wav", Path: base + ".wav"}

	require.NoError(t, artifact.Remove())
}

func TestOptionsFrom(t *testing.T) {
	t.Parallel()

	cfg := config.Default()
	cfg.Engine.SynthBinary = "/opt/pico/bin/pico2wave"
	cfg.Engine.TimeoutSeconds = 5
	cfg.Policy.StrictResample = false

	opts := tts.OptionsFrom(&cfg)

	assert.Equal(t, "/opt/pico/bin/pico2wave", opts.SynthBinary)
	assert.Equal(t, "sox", opts.ResampleBinary)
	assert.Equal(t, 5*time.Second, opts.Timeout)
	assert.False(t, opts.StrictResample)
}

func TestExecInvoker_MissingBinary(t *testing.T) {
	t.Parallel()

	_, err := tts.ExecInvoker{}.Run(context.Background(), filepath.Join(t.TempDir(), "no-such-binary"))

	require.Error(t, err)
}

func TestExecInvoker_PassesArgumentsVerbatim(t *testing.T) {
	t.Parallel()

	echo, err := exec.LookPath("echo")
	if err != nil {
		t.Skip("echo not available")
	}

	output, err := tts.ExecInvoker{}.Run(context.Background(), echo, "a;b", "$(c)")

	require.NoError(t, err)
	assert.Equal(t, "a;b $(c)\n", string(output))
}
