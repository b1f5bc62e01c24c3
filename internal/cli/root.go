// Package cli implements the indexer batch commands: catalog import, embedding build,
// index load and self-retrieval evaluation.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"productsearch/internal/app"
	"productsearch/internal/config"
)

var (
	cfgFile  string
	logLevel string
	cfg      *config.Config
)

// NewRootCommand creates the indexer root command with all subcommands attached.
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "indexer",
		Short: "Build and load the multimodal product index",
		Long: `indexer prepares the product search index offline.

Example usage:
  indexer import --csv products.csv   # Load catalog rows into sqlite
  indexer build                       # Embed product text and images
  indexer load                        # Load embeddings into the vector index
  indexer evaluate --sample 100       # Self-retrieval recall check`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error

			cfg, err = config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if cfgFile != "" {
				if err := config.ApplyFile(cfg, cfgFile); err != nil {
					return err
				}
			}
			if logLevel != "" {
				if cfg.LogLevel, err = config.ParseLogLevel(logLevel); err != nil {
					return err
				}
			}

			slog.SetDefault(app.NewLogger(cfg, cmd.ErrOrStderr()))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML file overriding batch settings")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newImportCommand())
	rootCmd.AddCommand(newBuildCommand())
	rootCmd.AddCommand(newLoadCommand())
	rootCmd.AddCommand(newEvaluateCommand())

	return rootCmd
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

// GetConfig returns the configuration loaded by the last command run.
func GetConfig() *config.Config {
	return cfg
}
