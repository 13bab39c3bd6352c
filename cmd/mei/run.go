package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/maithemewp/mai-engine-installer/internal/installer"
	"github.com/maithemewp/mai-engine-installer/internal/migrate"
	"github.com/maithemewp/mai-engine-installer/internal/ui"
	"github.com/maithemewp/mai-engine-installer/internal/watch"
)

var (
	runNoAdmin     bool
	runAssumeYes   bool
	runSkipMigrate bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full install pipeline once",
	Long: `Run the installer pipeline as an admin page load would:

  1. Register Mai Theme Engine in the component registry
  2. Rewrite legacy records in the descriptor
  3. Verify the rewrite, then deactivate Mai Pro Engine and the installer

Each step is idempotent. Run again (or use 'mei watch') until the notice
disappears.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		db := openRegistry(ctx)
		defer db.Close()

		inst := newInstaller(db, ui.DeactivationPrompt(runAssumeYes))

		res, err := inst.Run(ctx, installer.Request{Admin: !runNoAdmin, SkipMigrate: runSkipMigrate})
		printResult(res)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("✗"), err)
			os.Exit(1)
		}
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run the pipeline until the swap is complete",
	Long: `Watch wp-dependencies.json and re-run the installer pipeline whenever it
changes and on a fixed interval. Stops once Mai Pro Engine is deactivated.

Press Ctrl+C to stop early.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		db := openRegistry(ctx)
		defer db.Close()

		inst := newInstaller(db, ui.DeactivationPrompt(true))

		w, err := watch.New(cfg.DescriptorPath(), &watch.Config{
			Debounce: cfg.Watch.Debounce,
			Interval: cfg.Watch.Interval,
			Logger:   logger.Logger,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Watching %s\n", ui.RenderAccent("→"), w.Path())
		fmt.Printf("\nPress Ctrl+C to stop\n\n")

		var fatal error
		err = w.Run(ctx, func(ctx context.Context, reason watch.Reason) (bool, error) {
			res, err := inst.Run(ctx, installer.Request{Admin: true})
			if err != nil {
				if migrate.IsFatal(err) {
					fatal = err
					return true, err
				}
				return false, err
			}

			snap, err := inst.Inspect(ctx)
			if err != nil {
				return false, err
			}
			fmt.Printf("%s [%s] state: %s\n", ui.RenderMuted("·"), reason, snap.State)
			if len(res.Deactivated) > 0 {
				printResult(res)
			}
			return snap.State == migrate.Deactivated, res.Err()
		})

		switch {
		case fatal != nil:
			fmt.Fprintf(os.Stderr, "%s %v\n", ui.RenderFail("✗"), fatal)
			os.Exit(1)
		case errors.Is(err, context.Canceled):
			fmt.Printf("\nStopped\n")
		case err != nil:
			fmt.Fprintf(os.Stderr, "Watcher stopped with error: %v\n", err)
			os.Exit(1)
		default:
			fmt.Printf("%s Mai Theme Engine installation complete\n", ui.RenderPass("✓"))
		}
	},
}

func printResult(res *installer.Result) {
	if res == nil {
		return
	}
	for _, sr := range res.Stages {
		switch {
		case sr.Err != nil:
			fmt.Printf("%s %-18s %v\n", ui.RenderFail("✗"), sr.Stage, sr.Err)
		case sr.Skipped != "":
			fmt.Printf("%s %-18s %s\n", ui.RenderWarn("–"), sr.Stage, ui.RenderMuted(sr.Skipped))
		default:
			fmt.Printf("%s %-18s done\n", ui.RenderPass("✓"), sr.Stage)
		}
	}
	if res.Migration != nil {
		fmt.Printf("   Descriptor: %s (%s)\n", res.Migration.Path, res.Migration.Outcome)
	}
	for _, id := range res.Deactivated {
		fmt.Printf("   Deactivated: %s\n", ui.RenderAccent(id))
	}
	if res.Notice != "" {
		fmt.Printf("\n%s %s\n", ui.RenderWarn("⚠"), res.Notice)
	}
}

func init() {
	runCmd.Flags().BoolVar(&runNoAdmin, "no-admin", false, "simulate a front-end request (does nothing)")
	runCmd.Flags().BoolVarP(&runAssumeYes, "yes", "y", false, "deactivate components without asking")
	runCmd.Flags().BoolVar(&runSkipMigrate, "skip-migrate", false, "verify and deactivate without rewriting the descriptor")
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(watchCmd)
}
