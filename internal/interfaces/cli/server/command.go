package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/orris-inc/quickpay/internal/infrastructure/migration"
	"github.com/orris-inc/quickpay/internal/interfaces/cli/bootstrap"
	httpRouter "github.com/orris-inc/quickpay/internal/interfaces/http"
	"github.com/orris-inc/quickpay/internal/shared/version"
)

var (
	env         string
	configPath  string
	autoMigrate bool
	noRelayer   bool
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "server",
		Short: "Start the HTTP API server",
		Long:  `Start the QuickPay HTTP API. Unless disabled, the batch relayer runs in the same process and competes for the relayer lock.`,
		RunE:  run,
	}

	cmd.Flags().StringVarP(&env, "env", "e", "", "Server mode override (debug, release, test)")
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")
	cmd.Flags().BoolVar(&autoMigrate, "auto-migrate", false, "Apply pending database migrations on startup")
	cmd.Flags().BoolVar(&noRelayer, "no-relayer", false, "Do not run the embedded relayer, regardless of relayer.embedded")

	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	if envVar := os.Getenv("ENV"); envVar != "" && env == "" {
		env = mapEnvToGinMode(envVar)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.Load(ctx, bootstrap.Options{Env: env, ConfigPath: configPath, WithRedis: true})
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := rt.Config
	log := rt.Log
	runRelayer := cfg.Relayer.Embedded && !noRelayer

	log.Infow("starting server",
		"version", version.Version,
		"commit", version.Commit,
		"mode", cfg.Server.Mode,
		"gateway", cfg.Chain.Gateway,
		"embedded_relayer", runRelayer,
	)

	if autoMigrate {
		if err := migration.NewManager(rt.DB, log).Migrate(ctx, rt.DB); err != nil {
			return fmt.Errorf("auto-migration failed: %w", err)
		}
	}

	gin.SetMode(cfg.Server.Mode)
	gin.DefaultWriter = io.Discard
	gin.DebugPrintRouteFunc = func(httpMethod, absolutePath, handlerName string, nuHandlers int) {}

	container, err := httpRouter.NewContainer(ctx, rt.DB, rt.Redis, cfg, log, httpRouter.ContainerOptions{
		RunRelayer: runRelayer,
	})
	if err != nil {
		return err
	}
	container.SetupRoutes()
	container.Start(ctx)

	srv := &http.Server{
		Addr:        cfg.Server.GetAddr(),
		Handler:     container.Engine(),
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: event streams stay open indefinitely.
		IdleTimeout: 60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Infow("server starting", "address", srv.Addr, "mode", cfg.Server.Mode)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		log.Infow("shutting down server...")
	case err := <-serveErr:
		if err != nil {
			container.Shutdown(context.Background())
			return fmt.Errorf("failed to start server: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Close event streams and stop the relayer first so in-flight requests can drain.
	container.Shutdown(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
		return err
	}

	log.Infow("server exited gracefully")
	return nil
}

func mapEnvToGinMode(environment string) string {
	switch environment {
	case "production", "prod", "release":
		return gin.ReleaseMode
	case "test", "testing":
		return gin.TestMode
	default:
		return gin.DebugMode
	}
}
