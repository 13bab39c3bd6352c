package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/maithemewp/mai-engine-installer/internal/migrate"
	"github.com/maithemewp/mai-engine-installer/internal/registry"
	"github.com/maithemewp/mai-engine-installer/internal/report"
	"github.com/maithemewp/mai-engine-installer/internal/ui"
)

var (
	statusFormat  string
	statusHistory int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the migration state",
	Long: `Display the migration state of the site:

  - which engine the descriptor references
  - whether legacy records remain
  - registered components and whether they are active
  - recent state transitions

Use --format json|yaml|toml for machine-readable output.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()

		format, err := report.ParseFormat(statusFormat)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		opts := cfg.MigrationOptions()

		var (
			components migrate.ComponentStatus
			list       []*registry.Component
			history    []registry.Transition
		)
		if db := openRegistryIfExists(ctx); db != nil {
			defer db.Close()
			components = db
			if list, err = db.List(ctx); err != nil {
				fmt.Fprintf(os.Stderr, "Error listing components: %v\n", err)
				os.Exit(1)
			}
			if history, err = db.History(ctx, statusHistory); err != nil {
				fmt.Fprintf(os.Stderr, "Error reading journal: %v\n", err)
				os.Exit(1)
			}
		}

		snap, err := migrate.Inspect(ctx, opts.Path, opts.LegacyURIs, opts.Replacement.URI, components, cfg.Components.Legacy)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		st := report.NewStatus(opts.Path, snap, list, history)
		if format != report.FormatText {
			if err := report.Encode(os.Stdout, format, st); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		}

		printStatus(st, snap.State)
	},
}

func printStatus(st report.Status, state migrate.State) {
	var marker string
	switch state {
	case migrate.Deactivated:
		marker = ui.RenderPass("✓")
	case migrate.Migrated:
		marker = ui.RenderAccent("→")
	case migrate.Unknown:
		marker = ui.RenderFail("✗")
	default:
		marker = ui.RenderWarn("⚠")
	}

	fmt.Printf("\n%s Mai Theme Engine migration: %s\n\n", marker, st.State)
	fmt.Printf("Descriptor: %s\n", st.Descriptor)
	if st.Error != "" {
		fmt.Printf("Error: %s\n", ui.RenderMuted(st.Error))
	}
	fmt.Printf("Legacy records: %v\n", st.HasLegacy)
	fmt.Printf("Mai Theme Engine: %v\n", st.Migrated)
	for _, uri := range st.URIs {
		fmt.Printf("   %s\n", uri)
	}

	if len(st.Components) > 0 {
		fmt.Printf("\nComponents:\n")
		for _, c := range st.Components {
			active := ui.RenderMuted("inactive")
			if c.Active {
				active = ui.RenderPass("active")
			}
			fmt.Printf("   %-50s %s\n", c.ID, active)
		}
	}

	if len(st.Journal) > 0 {
		fmt.Printf("\nRecent transitions:\n")
		for _, tr := range st.Journal {
			fmt.Printf("   %s  %s -> %s\n", tr.At.Local().Format("2006-01-02 15:04:05"), tr.From, tr.To)
		}
	}
	fmt.Println()
}

func init() {
	statusCmd.Flags().StringVar(&statusFormat, "format", "text", "output format: text, json, yaml or toml")
	statusCmd.Flags().IntVar(&statusHistory, "history", 5, "number of journal entries to show (0 for all)")
	rootCmd.AddCommand(statusCmd)
}
