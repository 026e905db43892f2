// Package config provides the configuration structure for picotts.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/book-expert/picotts/internal/fsutil"
)

// Supported target sample rates.
const (
	SampleRateNarrowband = 8000
	SampleRateWideband   = 16000
)

// Defaults applied when a value is missing or invalid.
const (
	DefaultSampleRate     = SampleRateNarrowband
	DefaultCacheDir       = "/tmp"
	DefaultVoice          = "es-ES"
	DefaultSynthBinary    = "pico2wave"
	DefaultResampleBinary = "sox"
	DefaultTimeoutSeconds = 30
	DefaultListen         = ":4573"
	DefaultHealthPort     = 8081
	DefaultBucket         = "PICOTTS_ARTIFACTS"
	DefaultRenderSubject  = "picotts.render"
)

// Empty-language policies.
const (
	EmptyLanguageAbort   = "abort"
	EmptyLanguageDefault = "default"
)

// Cache key policies.
const (
	CacheKeyText      = "text"
	CacheKeyTextVoice = "text+voice"
)

// GeneralConfig holds the dialplan-facing settings of the [general] section.
type GeneralConfig struct {
	SampleRate   int
	CacheEnabled bool
	CacheDir     string
	DefaultVoice string
}

// EngineConfig locates the external synthesis and resampling programs.
type EngineConfig struct {
	SynthBinary    string `toml:"synth_binary"`
	ResampleBinary string `toml:"resample_binary"`
	TempDir        string `toml:"temp_dir"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Timeout returns the per-process time limit.
func (e EngineConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// PolicyConfig selects between the documented behaviors for ambiguous inputs.
type PolicyConfig struct {
	EmptyLanguage  string `toml:"empty_language"`
	CacheKey       string `toml:"cache_key"`
	StrictResample bool   `toml:"strict_resample"`
}

// ServerConfig holds the FastAGI listener and health settings.
type ServerConfig struct {
	Listen     string `toml:"listen"`
	HealthPort int    `toml:"health_port"`
}

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL            string `toml:"url"`
	ArtifactBucket string `toml:"artifact_bucket"`
	RenderSubject  string `toml:"render_subject"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	LogDir string `toml:"log_dir"`
}

// Config is one immutable configuration snapshot.
type Config struct {
	General GeneralConfig
	Engine  EngineConfig
	Policy  PolicyConfig
	Server  ServerConfig
	NATS    NATSConfig
	Paths   PathsConfig
}

// Default returns the full default configuration.
func Default() Config {
	return Config{
		General: GeneralConfig{
			SampleRate:   DefaultSampleRate,
			CacheEnabled: false,
			CacheDir:     DefaultCacheDir,
			DefaultVoice: DefaultVoice,
		},
		Engine: EngineConfig{
			SynthBinary:    DefaultSynthBinary,
			ResampleBinary: DefaultResampleBinary,
			TempDir:        os.TempDir(),
			TimeoutSeconds: DefaultTimeoutSeconds,
		},
		Policy: PolicyConfig{
			EmptyLanguage:  EmptyLanguageAbort,
			CacheKey:       CacheKeyText,
			StrictResample: true,
		},
		Server: ServerConfig{
			Listen:     DefaultListen,
			HealthPort: DefaultHealthPort,
		},
		NATS: NATSConfig{
			URL:            "",
			ArtifactBucket: DefaultBucket,
			RenderSubject:  DefaultRenderSubject,
		},
		Paths: PathsConfig{
			LogDir: os.TempDir(),
		},
	}
}

// EnsureDirectories creates the directories the configuration points at.
func (c *Config) EnsureDirectories() error {
	dirs := []string{c.Engine.TempDir, c.Paths.LogDir}
	if c.General.CacheEnabled {
		dirs = append(dirs, c.General.CacheDir)
	}

	for _, dir := range dirs {
		err := fsutil.EnsureDir(dir)
		if err != nil {
			return fmt.Errorf("failed to prepare %s: %w", dir, err)
		}
	}

	return nil
}
