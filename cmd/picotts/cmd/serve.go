package cmd

import (
	"context"
	"fmt"

	"github.com/book-expert/picotts/internal/agi"
	"github.com/book-expert/picotts/internal/health"
	"github.com/book-expert/picotts/internal/worker"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the FastAGI server",
	Long: `Run the FastAGI server on [server] listen and the health endpoint on
[server] health_port. When [nats] url is set, rendered phrases are shared
through the object store and render requests on [nats] render_subject are
answered as well.

SIGHUP and edits to the config file reload the configuration.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	rt, err := newRuntime("picotts.log", true)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	cfg := rt.store.Current()
	healthServer := health.New(cfg.Server.HealthPort, rt.log)
	agiServer := agi.NewServer(cfg.Server.Listen, agi.NewHandler(rt.controller, rt.log), rt.log)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return healthServer.ListenAndServe(groupCtx)
	})

	group.Go(func() error {
		return agiServer.ListenAndServe(groupCtx)
	})

	if rt.natsConn != nil {
		renderWorker := worker.NewNatsWorker(rt.natsConn, cfg.NATS.RenderSubject, rt.remote, rt.controller, rt.log)

		group.Go(func() error {
			return renderWorker.Run(groupCtx)
		})
	}

	startReloaders(groupCtx, group, rt)

	healthServer.SetReady(true)
	rt.log.System("picotts serving FastAGI on %s", cfg.Server.Listen)

	err = group.Wait()
	if err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	rt.log.System("picotts stopped")

	return nil
}

func startReloaders(ctx context.Context, group *errgroup.Group, rt *runtime) {
	go rt.reloadOnHangup(ctx)

	path := watchedPath()
	if path == "" {
		return
	}

	group.Go(func() error {
		err := rt.store.Watch(ctx, path)
		if err != nil {
			rt.log.Warn("Config file watching disabled: %v", err)
		}

		return nil
	})
}
