package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lucasschonrock/spring-input-boolean/internal/config"
	"github.com/lucasschonrock/spring-input-boolean/internal/service/action"
	"github.com/lucasschonrock/spring-input-boolean/internal/version"
)

var (
	// cfgPath stores the configuration file path.
	cfgPath string
	// kind stores the override kind to publish.
	kind string
	// brokerURL overrides the broker address from configuration.
	brokerURL string

	// rootCmd represents the base command for publishing an override.
	rootCmd = &cobra.Command{
		Use:   "spring-override <entity-id>",
		Short: "Publish an override for a pending reversal.",
		Long: `Publishes an override action for one entity to the daemon's action topic.

Kinds: off10 keeps the entity in its current state for 10 seconds before the
reversal fires, off20 for 20 seconds, and reactivate reverses it immediately.
The override applies to the entity's next scheduled reversal; publishing a
second override for the same entity replaces the first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			// Setup graceful shutdown handling.
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
			defer stop()

			options := &action.Options{
				ConfigPath: cfgPath,
				BrokerURL:  brokerURL,
				EntityID:   args[0],
				Kind:       kind,
			}

			return action.Run(ctx, options)
		},
	}
)

// Execute runs the spring-override CLI and exits with non-zero status on error.
func Execute() {
	version.AttachCobraVersionCommand(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

//nolint:gochecknoinits // Required by Cobra CLI framework architecture.
func init() {
	// Setup command flags with consistent naming and descriptions.
	rootCmd.Flags().StringVarP(&cfgPath, "config", "c", config.DefaultConfigFilename, "path to configuration file")
	rootCmd.Flags().StringVarP(&kind, "kind", "k", "reactivate", "override kind: off10, off20 or reactivate")
	rootCmd.Flags().StringVarP(&brokerURL, "broker", "b", "", "broker URL override")
}
