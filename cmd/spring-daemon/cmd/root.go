package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lucasschonrock/spring-input-boolean/internal/config"
	"github.com/lucasschonrock/spring-input-boolean/internal/service/daemon"
	"github.com/lucasschonrock/spring-input-boolean/internal/version"
)

var (
	// configPath to the configuration YAML file.
	configPath string
	// registryFile path where the entity registry is persisted.
	registryFile string

	// rootCmd represents the base command for running the daemon.
	rootCmd = &cobra.Command{
		Use:   "spring-daemon [http-address]",
		Short: "Run the reversal daemon for boolean helper entities.",
		Long: `Starts the daemon that watches boolean helper entities and reverses
state changes after a configurable delay.

The daemon subscribes to state change events over MQTT, schedules one pending
reversal per entity, and publishes compensating commands when the delay
expires. Notifications with override actions are sent before each reversal.
The admin HTTP address can be provided as argument to override config
(e.g., :9090, 0.0.0.0:8099). Discovered entities are persisted to a JSON
registry for recovery across restarts.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			// Use HTTP address argument if provided, otherwise rely on config.
			var httpAddress string
			if len(args) > 0 {
				httpAddress = args[0]
			}

			options := &daemon.Options{
				ConfigPath:   configPath,
				HTTPAddress:  httpAddress,
				RegistryFile: registryFile,
			}

			return daemon.Run(ctx, options)
		},
	}
)

// Execute runs the spring-daemon CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&configPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().
		StringVarP(&registryFile, "registry-file", "r", config.DefaultRegistryFilename, "path to persist the entity registry")
}
