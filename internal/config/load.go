package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/pelletier/go-toml/v2"
)

// Keys recognized in the [general] section.
const (
	keyUseCache   = "usecache"
	keyCacheDir   = "cachedir"
	keyVoice      = "voice"
	keySampleRate = "samplerate"
)

var (
	// ErrNoSource indicates that a store was built without a configuration source.
	ErrNoSource = errors.New("no configuration source")
	// ErrInvalidTOML is returned for config files that do not parse as TOML,
	// such as an INI-style picotts.conf with unquoted "usecache=yes" lines.
	ErrInvalidTOML = errors.New("config file is not valid TOML (strings must be quoted, keys belong under [general])")
)

// Document is the on-disk shape of the configuration. The [general] section
// is loosely typed: usecache may be a TOML bool or a truthy string and
// samplerate may be an integer or a numeric string.
type Document struct {
	General map[string]any `toml:"general"`
	Engine  EngineConfig   `toml:"engine"`
	Policy  PolicyConfig   `toml:"policy"`
	Server  ServerConfig   `toml:"server"`
	NATS    NATSConfig     `toml:"nats"`
	Paths   PathsConfig    `toml:"paths"`
}

// Source decodes a configuration document.
type Source interface {
	Name() string
	Decode(doc *Document) error
}

// FileSource reads a TOML file from disk.
type FileSource struct {
	Path string
}

// Name returns the file path.
func (f FileSource) Name() string {
	return f.Path
}

// Decode reads and parses the file.
func (f FileSource) Decode(doc *Document) error {
	data, err := os.ReadFile(f.Path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", f.Path, err)
	}

	err = toml.Unmarshal(data, doc)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidTOML, f.Path, err)
	}

	return nil
}

// CentralSource loads the shared project configuration through the configurator.
type CentralSource struct {
	Log *logger.Logger
}

// Name identifies the central source in logs.
func (c CentralSource) Name() string {
	return "configurator"
}

// Decode delegates to the configurator.
func (c CentralSource) Decode(doc *Document) error {
	err := configurator.Load(doc, c.Log)
	if err != nil {
		return fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return nil
}

// Build decodes source into a validated snapshot. Any decoding problem is
// logged and yields the full defaults; it is never returned to the caller.
func Build(source Source, log *logger.Logger) *Config {
	cfg := Default()

	if source == nil {
		log.Warn("%v. Using default settings", ErrNoSource)

		return &cfg
	}

	doc := Document{
		General: nil,
		Engine:  cfg.Engine,
		Policy:  cfg.Policy,
		Server:  cfg.Server,
		NATS:    cfg.NATS,
		Paths:   cfg.Paths,
	}

	err := source.Decode(&doc)
	if err != nil {
		log.Warn("Unable to read config %s: %v. Using default settings", source.Name(), err)
		defaults := Default()

		return &defaults
	}

	cfg.Engine = doc.Engine
	cfg.Policy = doc.Policy
	cfg.Server = doc.Server
	cfg.NATS = doc.NATS
	cfg.Paths = doc.Paths
	applyGeneral(&cfg.General, doc.General)
	normalize(&cfg, log)

	return &cfg
}

func applyGeneral(general *GeneralConfig, raw map[string]any) {
	if value, ok := raw[keyUseCache]; ok {
		general.CacheEnabled = truthy(value)
	}

	if value, ok := raw[keyCacheDir].(string); ok {
		general.CacheDir = value
	}

	if value, ok := raw[keyVoice].(string); ok {
		general.DefaultVoice = value
	}

	if value, ok := raw[keySampleRate]; ok {
		general.SampleRate = integer(value)
	}
}

// normalize coerces out-of-range values back to their defaults.
func normalize(cfg *Config, log *logger.Logger) {
	rate := cfg.General.SampleRate
	if rate != SampleRateNarrowband && rate != SampleRateWideband {
		log.Warn("Unsupported sample rate: %d. Falling back to %d", rate, DefaultSampleRate)
		cfg.General.SampleRate = DefaultSampleRate
	}

	if strings.TrimSpace(cfg.General.CacheDir) == "" {
		cfg.General.CacheDir = DefaultCacheDir
	}

	if strings.TrimSpace(cfg.General.DefaultVoice) == "" {
		cfg.General.DefaultVoice = DefaultVoice
	}

	if cfg.Engine.SynthBinary == "" {
		cfg.Engine.SynthBinary = DefaultSynthBinary
	}

	if cfg.Engine.ResampleBinary == "" {
		cfg.Engine.ResampleBinary = DefaultResampleBinary
	}

	if cfg.Engine.TempDir == "" {
		cfg.Engine.TempDir = os.TempDir()
	}

	if cfg.Engine.TimeoutSeconds <= 0 {
		log.Warn("Invalid engine timeout %ds. Falling back to %ds", cfg.Engine.TimeoutSeconds, DefaultTimeoutSeconds)
		cfg.Engine.TimeoutSeconds = DefaultTimeoutSeconds
	}

	switch cfg.Policy.EmptyLanguage {
	case EmptyLanguageAbort, EmptyLanguageDefault:
	default:
		log.Warn("Unknown empty_language policy %q. Falling back to %q", cfg.Policy.EmptyLanguage, EmptyLanguageAbort)
		cfg.Policy.EmptyLanguage = EmptyLanguageAbort
	}

	switch cfg.Policy.CacheKey {
	case CacheKeyText, CacheKeyTextVoice:
	default:
		log.Warn("Unknown cache_key policy %q. Falling back to %q", cfg.Policy.CacheKey, CacheKeyText)
		cfg.Policy.CacheKey = CacheKeyText
	}
}

// truthy follows the dialplan convention for boolean options.
func truthy(value any) bool {
	switch typed := value.(type) {
	case bool:
		return typed
	case int64:
		return typed != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(typed)) {
		case "yes", "true", "y", "t", "1", "on":
			return true
		}
	}

	return false
}

// integer converts a TOML integer or numeric string. Anything else is 0.
func integer(value any) int {
	switch typed := value.(type) {
	case int64:
		return int(typed)
	case float64:
		return int(typed)
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return 0
		}

		return parsed
	}

	return 0
}
