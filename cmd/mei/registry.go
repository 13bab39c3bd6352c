package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/maithemewp/mai-engine-installer/internal/registry"
	"github.com/maithemewp/mai-engine-installer/internal/ui"
)

var (
	registerName    string
	registerVersion string
	registerActive  bool
	historyLimit    int
)

var registryCmd = &cobra.Command{
	Use:   "registry",
	Short: "Inspect and edit the local component registry",
	Long: `Manage the component registry (.mei/registry.db).

The registry records which plugins are installed and active. The installer
consults it before deactivating Mai Pro Engine and itself.`,
}

var registryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered components",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		db := openRegistry(ctx)
		defer db.Close()

		list, err := db.List(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(list) == 0 {
			fmt.Printf("%s No components registered\n", ui.RenderWarn("⚠"))
			return
		}
		for _, c := range list {
			active := ui.RenderMuted("inactive")
			if c.Active {
				active = ui.RenderPass("active")
			}
			version := c.Version
			if version == "" {
				version = "-"
			}
			fmt.Printf("%-50s %-10s %s\n", ui.RenderAccent(c.ID), version, active)
		}
	},
}

var registryRegisterCmd = &cobra.Command{
	Use:   "register <plugin-slug>",
	Short: "Register a component",
	Long: `Register a component by its plugin slug, e.g.
mai-pro-engine/mai-pro-engine.php. Re-registering refreshes its metadata but
keeps its active state.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		db := openRegistry(ctx)
		defer db.Close()

		c := registry.Component{ID: args[0], Name: registerName, Version: registerVersion, Active: registerActive}
		if err := db.Register(ctx, c); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Registered %s\n", ui.RenderPass("✓"), ui.RenderAccent(args[0]))
	},
}

var registryActivateCmd = &cobra.Command{
	Use:   "activate <plugin-slug>",
	Short: "Mark a component active",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setActive(cmd, args[0], true)
	},
}

var registryDeactivateCmd = &cobra.Command{
	Use:   "deactivate <plugin-slug>",
	Short: "Mark a component inactive",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		setActive(cmd, args[0], false)
	},
}

var registryHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "Show migration state transitions",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		db := openRegistry(ctx)
		defer db.Close()

		history, err := db.History(ctx, historyLimit)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(history) == 0 {
			fmt.Printf("%s No transitions recorded\n", ui.RenderWarn("⚠"))
			return
		}
		for _, tr := range history {
			fmt.Printf("%s  %-11s -> %-11s %s\n", tr.At.Local().Format("2006-01-02 15:04:05"),
				tr.From, tr.To, ui.RenderMuted(tr.Detail))
		}
	},
}

func setActive(cmd *cobra.Command, id string, active bool) {
	ctx := cmd.Context()
	db := openRegistry(ctx)
	defer db.Close()

	var err error
	verb := "Activated"
	if active {
		err = db.Activate(ctx, id)
	} else {
		verb = "Deactivated"
		err = db.Deactivate(ctx, id)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("%s %s %s\n", ui.RenderPass("✓"), verb, ui.RenderAccent(id))
}

func init() {
	registryRegisterCmd.Flags().StringVar(&registerName, "name", "", "display name")
	registryRegisterCmd.Flags().StringVar(&registerVersion, "version", "", "semantic version")
	registryRegisterCmd.Flags().BoolVar(&registerActive, "active", false, "mark a new component active")
	registryHistoryCmd.Flags().IntVar(&historyLimit, "limit", 20, "number of entries (0 for all)")

	registryCmd.AddCommand(registryListCmd)
	registryCmd.AddCommand(registryRegisterCmd)
	registryCmd.AddCommand(registryActivateCmd)
	registryCmd.AddCommand(registryDeactivateCmd)
	registryCmd.AddCommand(registryHistoryCmd)
	rootCmd.AddCommand(registryCmd)
}
