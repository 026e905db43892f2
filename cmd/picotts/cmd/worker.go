package cmd

import (
	"errors"
	"fmt"

	"github.com/book-expert/picotts/internal/health"
	"github.com/book-expert/picotts/internal/worker"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var errNATSRequired = errors.New("the render worker needs [nats] url and a reachable server")

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Answer render requests over NATS",
	Long: `Subscribe to [nats] render_subject. Each request names a text object in
the shared bucket; the rendered audio is uploaded next to it and its key is
sent back.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := newRuntime("picotts-worker.log", true)
		if err != nil {
			return err
		}
		defer rt.close()

		if rt.natsConn == nil {
			return errNATSRequired
		}

		ctx, stop := signalContext(cmd.Context())
		defer stop()

		cfg := rt.store.Current()
		healthServer := health.New(cfg.Server.HealthPort, rt.log)
		renderWorker := worker.NewNatsWorker(rt.natsConn, cfg.NATS.RenderSubject, rt.remote, rt.controller, rt.log)

		group, groupCtx := errgroup.WithContext(ctx)

		group.Go(func() error {
			return healthServer.ListenAndServe(groupCtx)
		})

		group.Go(func() error {
			return renderWorker.Run(groupCtx)
		})

		startReloaders(groupCtx, group, rt)

		healthServer.SetReady(true)
		rt.log.System("picotts render worker listening on %s", cfg.NATS.RenderSubject)

		err = group.Wait()
		if err != nil {
			return fmt.Errorf("worker: %w", err)
		}

		return nil
	},
}
