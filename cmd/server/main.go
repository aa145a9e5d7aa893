// Command server 运行工作区助手后端
//
//	server serve --config config.yaml
//	server migrate
//	server secret
//	server token --user u1 --workspace w1
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("Command execution failed", "err", err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:          "server",
		Short:        "Workspace assistant backend",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "",
		"Path to YAML configuration file (default: $CONFIG_PATH or config.yaml)")

	rootCmd.AddCommand(
		buildServeCmd(&configPath),
		buildMigrateCmd(&configPath),
		buildSecretCmd(),
		buildTokenCmd(&configPath),
	)
	return rootCmd
}
