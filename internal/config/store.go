package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"

	"github.com/book-expert/logger"
	"github.com/fsnotify/fsnotify"
)

// Store holds the active configuration snapshot. Readers take the pointer
// returned by Current and keep it for the whole request; Reload swaps in a
// new snapshot without touching the old one.
type Store struct {
	source  Source
	log     *logger.Logger
	current atomic.Pointer[Config]
}

// NewStore creates a store bound to source. Nothing is read until Load.
func NewStore(source Source, log *logger.Logger) *Store {
	return &Store{
		source: source,
		log:    log,
	}
}

// Load builds a snapshot from the source and makes it current.
func (s *Store) Load() *Config {
	cfg := Build(s.source, s.log)
	s.current.Store(cfg)

	return cfg
}

// Reload discards the current snapshot and rebuilds it from the source.
func (s *Store) Reload() *Config {
	cfg := s.Load()
	s.log.Info(
		"Configuration reloaded (cache=%t dir=%s voice=%s rate=%d)",
		cfg.General.CacheEnabled, cfg.General.CacheDir, cfg.General.DefaultVoice, cfg.General.SampleRate,
	)

	return cfg
}

// Current returns the active snapshot, loading it on first use.
func (s *Store) Current() *Config {
	cfg := s.current.Load()
	if cfg != nil {
		return cfg
	}

	return s.Load()
}

// Watch reloads the store whenever the file at path is written or replaced.
// It blocks until ctx is cancelled.
func (s *Store) Watch(ctx context.Context, path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}

	defer func() {
		closeErr := watcher.Close()
		if closeErr != nil {
			s.log.Warn("Failed to close config watcher: %v", closeErr)
		}
	}()

	target := filepath.Clean(path)

	// Editors replace files on save, so the directory is watched instead of the file.
	err = watcher.Add(filepath.Dir(target))
	if err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(target), err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(event.Name) != target {
				continue
			}

			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
				s.Reload()
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			s.log.Warn("Config watcher error: %v", watchErr)
		}
	}
}
