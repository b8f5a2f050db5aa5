package relayer

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/orris-inc/quickpay/internal/interfaces/cli/bootstrap"
	httpRouter "github.com/orris-inc/quickpay/internal/interfaces/http"
	"github.com/orris-inc/quickpay/internal/shared/version"
)

var configPath string

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "relayer",
		Short: "Run the batch relayer without the HTTP API",
		Long:  `Run the batch relayer as a standalone worker. Several workers may run; the Redis lock elects one active relayer and the others stand by.`,
		RunE:  run,
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Load(ctx, bootstrap.Options{ConfigPath: configPath, WithRedis: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	log := rt.Log
	log.Infow("starting relayer worker",
		"version", version.Version,
		"gateway", rt.Config.Chain.Gateway,
		"interval", rt.Config.Relayer.Interval,
	)

	container, err := httpRouter.NewContainer(ctx, rt.DB, rt.Redis, rt.Config, log, httpRouter.ContainerOptions{
		RunRelayer: true,
	})
	if err != nil {
		return err
	}
	container.StartRelayer()

	<-ctx.Done()
	log.Infow("received signal, shutting down relayer")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	container.Shutdown(shutdownCtx)

	log.Infow("relayer stopped")
	return nil
}
