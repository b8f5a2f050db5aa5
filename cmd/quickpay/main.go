// @title QuickPay API
// @version 1.0
// @description Session-key quick-pay authorization and relayer.
// @BasePath /api/v1
// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/orris-inc/quickpay/internal/interfaces/cli/migrate"
	"github.com/orris-inc/quickpay/internal/interfaces/cli/relayer"
	"github.com/orris-inc/quickpay/internal/interfaces/cli/server"
	"github.com/orris-inc/quickpay/internal/shared/version"
)

func main() {
	rootCmd := &cobra.Command{
		Use:     "quickpay",
		Short:   "QuickPay - session-key payment authorization and relayer",
		Long:    `QuickPay verifies session-key signed payments against owner-approved limits and settles them on chain in batches.`,
		Version: fmt.Sprintf("%s (commit %s, built %s)", version.Version, version.Commit, version.BuildTime),
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		relayer.NewCommand(),
		migrate.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
