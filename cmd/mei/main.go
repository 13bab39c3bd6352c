package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/maithemewp/mai-engine-installer/internal/config"
	"github.com/maithemewp/mai-engine-installer/internal/logging"
	"github.com/maithemewp/mai-engine-installer/internal/ui"
)

var (
	configFile string
	verbose    bool

	cfg    *config.Config
	logger *logging.Logger
)

var rootCmd = &cobra.Command{
	Use:   "mei",
	Short: "Mai Theme Engine installer",
	Long: `Swap Mai Pro Engine for Mai Theme Engine on a WordPress site.

mei rewrites legacy engine records in includes/dependencies/wp-dependencies.json,
checks that the rewrite landed, and then turns off the legacy engine and the
installer itself in the local component registry.

Settings come from mei.yaml (or --config), MEI_* environment variables and
built-in defaults.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		ui.ConfigureColor(os.Stdout)

		var err error
		cfg, err = config.Load(configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
			os.Exit(1)
		}
		if verbose {
			cfg.Log.Verbose = true
		}

		logger, err = logging.New(logging.Config{
			File:       cfg.LogPath(),
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAgeDays: cfg.Log.MaxAgeDays,
			Verbose:    cfg.Log.Verbose,
			Prefix:     "[mei] ",
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening log: %v\n", err)
			os.Exit(1)
		}
		if cfg.ConfigFile != "" {
			logger.Printf("Using config %s", cfg.ConfigFile)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default ./mei.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "also log to stderr")
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
