package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/maithemewp/mai-engine-installer/internal/migrate"
	"github.com/maithemewp/mai-engine-installer/internal/ui"
)

var (
	migrateDryRun bool
	migrateBackup bool
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Replace legacy engine records in the dependency descriptor",
	Long: `Rewrite wp-dependencies.json so every Mai Pro Engine record points at
Mai Theme Engine.

Records are matched by their exact uri. All other records, and their order,
are kept. An empty descriptor receives the Mai Theme Engine record; a missing
descriptor is left alone. Running migrate again is a no-op.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		opts := migrationOptions()
		opts.DryRun = migrateDryRun
		if migrateBackup {
			opts.Backup = true
		}

		db := openRegistry(ctx)
		defer db.Close()
		opts.Journal = db

		m, err := migrate.NewMigrator(opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		res, err := m.Migrate(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s Migration failed: %v\n", ui.RenderFail("✗"), err)
			if migrate.IsRecoverable(err) {
				fmt.Fprintf(os.Stderr, "   The descriptor was not modified; it is safe to retry.\n")
			}
			os.Exit(1)
		}

		switch res.Outcome {
		case migrate.OutcomeSkipped:
			fmt.Printf("%s Descriptor not found: %s\n", ui.RenderWarn("⚠"), res.Path)
		case migrate.OutcomeUnchanged:
			fmt.Printf("%s Nothing to migrate in %s\n", ui.RenderPass("✓"), res.Path)
		case migrate.OutcomeDryRun:
			fmt.Printf("%s Dry run: would rewrite %s\n", ui.RenderAccent("→"), res.Path)
		case migrate.OutcomeWritten:
			fmt.Printf("%s Rewrote %s\n", ui.RenderPass("✓"), res.Path)
		}
		if res.Replaced > 0 {
			fmt.Printf("   Legacy records replaced: %d\n", res.Replaced)
		}
		if res.Initialized {
			fmt.Printf("   Empty descriptor initialized with %s\n", ui.RenderAccent(opts.Replacement.URI))
		}
		if res.BackupPath != "" {
			fmt.Printf("   Backup: %s\n", res.BackupPath)
		}
	},
}

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check whether the descriptor references Mai Theme Engine",
	Long: `Report whether any record in wp-dependencies.json has the Mai Theme Engine
uri. Exits with status 1 when it does not, so scripts can gate on it.`,
	Run: func(cmd *cobra.Command, args []string) {
		opts := cfg.MigrationOptions()
		v := migrate.NewVerifier(opts.Path, opts.Replacement.URI)

		ok, err := v.Check(cmd.Context())
		if ok {
			fmt.Printf("%s %s references %s\n", ui.RenderPass("✓"), opts.Path, ui.RenderAccent(v.Target()))
			return
		}

		fmt.Printf("%s %s does not reference %s\n", ui.RenderWarn("⚠"), opts.Path, ui.RenderAccent(v.Target()))
		if err != nil {
			fmt.Printf("   %s\n", ui.RenderMuted(err.Error()))
		}
		os.Exit(1)
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDryRun, "dry-run", false, "compute the rewrite without writing it")
	migrateCmd.Flags().BoolVar(&migrateBackup, "backup", false, "copy the original descriptor before rewriting")
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(verifyCmd)
}
