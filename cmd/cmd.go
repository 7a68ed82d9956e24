package cmd

import (
	"context"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/stela-network/stela-indexer/internal/config"
	"github.com/stela-network/stela-indexer/pkg/logger"
	"github.com/stela-network/stela-indexer/pkg/logger/slogx"
)

var cmd = &cobra.Command{
	Use:  "stela",
	Long: `Stela Indexer: indexes Stela lending protocol activity on StarkNet and serves it over an HTTP API`,
}

func init() {
	var configFile string

	// Add global flags
	flags := cmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file, E.g. `./config.yaml`")
	flags.String("network", "mainnet", "network to connect to, E.g. `mainnet` or `sepolia`")

	// Bind flags to configuration
	config.BindPFlag("network", flags.Lookup("network"))

	// Initialize configuration and logger on start command
	cobra.OnInitialize(func() {
		conf := config.Parse(configFile)

		if err := logger.Init(conf.Logger); err != nil {
			logger.Panic("Failed to initialize logger", slogx.Error(err), slog.Any("config", conf.Logger))
		}
	})
}

func Execute(ctx context.Context) {
	// Register sub-commands
	cmd.AddCommand(
		NewRunCommand(),
		NewVersionCommand(),
		NewMigrateCommand(),
	)

	// Execute command
	if err := cmd.ExecuteContext(ctx); err != nil {
		logger.Panic("Failed to execute root command", slogx.Error(err))
	}
}
