package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/book-expert/logger"
	"github.com/book-expert/picotts/internal/config"
	"github.com/book-expert/picotts/internal/core"
	"github.com/book-expert/picotts/internal/objectstore"
	"github.com/book-expert/picotts/internal/playback"
	"github.com/book-expert/picotts/internal/tts"
	"github.com/nats-io/nats.go"
)

const natsClientName = "picotts"

// runtime is everything a subcommand needs once configuration is loaded.
type runtime struct {
	log        *logger.Logger
	store      *config.Store
	controller *playback.Controller
	natsConn   *nats.Conn
	remote     core.ObjectStore
}

func setupLogger(logPath, file string) (*logger.Logger, error) {
	log, err := logger.New(logPath, file)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in %s: %w", logPath, err)
	}

	return log, nil
}

func configSource(log *logger.Logger) config.Source {
	switch {
	case cfgFile != "":
		return config.FileSource{Path: cfgFile}
	case useCentral:
		return config.CentralSource{Log: log}
	default:
		return config.FileSource{Path: DefaultConfigPath}
	}
}

// watchedPath is the file that SIGHUP and the watcher reload from, if any.
func watchedPath() string {
	if useCentral && cfgFile == "" {
		return ""
	}

	if cfgFile != "" {
		return cfgFile
	}

	return DefaultConfigPath
}

// newRuntime loads configuration with a bootstrap logger, then switches to
// the configured log directory. withNATS connects the shared object store
// when a NATS URL is configured.
func newRuntime(logFile string, withNATS bool) (*runtime, error) {
	bootstrapLog, err := setupLogger(os.TempDir(), "picotts-bootstrap.log")
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return nil, err
	}

	defer func() {
		_ = bootstrapLog.Close()
	}()

	cfg := config.Build(configSource(bootstrapLog), bootstrapLog)

	err = cfg.EnsureDirectories()
	if err != nil {
		bootstrapLog.Warn("Failed to prepare directories: %v", err)
	}

	finalLog, err := setupLogger(cfg.Paths.LogDir, logFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return nil, fmt.Errorf("failed to create final logger: %w", err)
	}

	store := config.NewStore(configSource(finalLog), finalLog)
	cfg = store.Load()

	rt := &runtime{
		log:        finalLog,
		store:      store,
		controller: nil,
		natsConn:   nil,
		remote:     nil,
	}

	if withNATS && cfg.NATS.URL != "" {
		err = rt.connectNATS(cfg)
		if err != nil {
			finalLog.Warn("Shared cache disabled: %v", err)
		}
	}

	rt.controller = playback.NewController(store, tts.ExecInvoker{}, rt.remote, finalLog)

	return rt, nil
}

func (r *runtime) connectNATS(cfg *config.Config) error {
	conn, err := objectstore.Connect(cfg.NATS.URL, natsClientName)
	if err != nil {
		return err
	}

	jetstreamContext, err := conn.JetStream()
	if err != nil {
		conn.Close()

		return fmt.Errorf("failed to get JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, cfg.NATS.ArtifactBucket)
	if err != nil {
		conn.Close()

		return err
	}

	r.natsConn = conn
	r.remote = store

	r.log.Info("Shared cache bucket %s on %s", cfg.NATS.ArtifactBucket, cfg.NATS.URL)

	return nil
}

func (r *runtime) close() {
	if r.natsConn != nil {
		r.natsConn.Close()
	}

	closeErr := r.log.Close()
	if closeErr != nil {
		fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
	}
}

// reloadOnHangup reloads configuration on every SIGHUP until ctx ends.
func (r *runtime) reloadOnHangup(ctx context.Context) {
	hangups := make(chan os.Signal, 1)
	signal.Notify(hangups, syscall.SIGHUP)

	defer signal.Stop(hangups)

	for {
		select {
		case <-ctx.Done():
			return
		case <-hangups:
			r.store.Reload()
		}
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
