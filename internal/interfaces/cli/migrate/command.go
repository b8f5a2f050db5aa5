package migrate

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/orris-inc/quickpay/internal/infrastructure/migration"
	"github.com/orris-inc/quickpay/internal/interfaces/cli/bootstrap"
)

var (
	configPath string
	steps      int
)

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migration tools",
		Long:  `Manage the session and payment ledger schema: apply pending migrations, roll back, or show status.`,
	}

	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file (default: ./configs/config.yaml)")

	cmd.AddCommand(
		newUpCommand(),
		newDownCommand(),
		newStatusCommand(),
	)

	return cmd
}

func newUpCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "up",
		Short: "Run all pending migrations",
		RunE: withManager(func(ctx context.Context, rt *bootstrap.Runtime, m *migration.Manager) error {
			return m.Migrate(ctx, rt.DB)
		}),
	}
}

func newDownCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "down",
		Short: "Rollback migrations",
		RunE: withManager(func(ctx context.Context, rt *bootstrap.Runtime, m *migration.Manager) error {
			rt.Log.Infow("running down migrations", "steps", steps)
			return m.Down(ctx, rt.DB, steps)
		}),
	}

	cmd.Flags().IntVarP(&steps, "steps", "n", 1, "Number of migrations to rollback")

	return cmd
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: withManager(func(ctx context.Context, rt *bootstrap.Runtime, m *migration.Manager) error {
			return m.Status(ctx, rt.DB)
		}),
	}
}

func withManager(fn func(ctx context.Context, rt *bootstrap.Runtime, m *migration.Manager) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		rt, err := bootstrap.Load(ctx, bootstrap.Options{ConfigPath: configPath})
		if err != nil {
			return err
		}
		defer rt.Close()

		if err := fn(ctx, rt, migration.NewManager(rt.DB, rt.Log)); err != nil {
			return fmt.Errorf("%s failed: %w", cmd.CommandPath(), err)
		}
		return nil
	}
}
