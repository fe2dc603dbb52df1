package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"tourcharge/cmd/tourcharge/ui"
	"tourcharge/internal/driver"
	"tourcharge/internal/packages"

	"github.com/spf13/cobra"
)

// packagesCmd is the parent command for package catalogue operations.
var packagesCmd = &cobra.Command{
	Use:   "packages",
	Short: "Browse the portal's travel package catalogue",
}

// packagesListCmd walks the listing pages.
var packagesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List travel packages",
	Long: `Walks the package listing and prints one row per package.

Examples:
  tourcharge packages list
  tourcharge packages list --keyword KRABI
  tourcharge packages list --pages 2 --json`,
	RunE: runPackagesList,
}

// packagesShowCmd reads one package's manage page.
var packagesShowCmd = &cobra.Command{
	Use:   "show [id]",
	Short: "Show one package's detail fields",
	Args:  cobra.ExactArgs(1),
	RunE:  runPackagesShow,
}

var (
	packagesKeyword string
	packagesPages   int
	packagesJSON    bool
)

func init() {
	packagesListCmd.Flags().StringVar(&packagesKeyword, "keyword", "", "Filter through the portal search box")
	packagesListCmd.Flags().IntVar(&packagesPages, "pages", 0, "Maximum listing pages to walk, 0 means the default cap")
	packagesListCmd.Flags().BoolVar(&packagesJSON, "json", false, "Print JSON instead of a table")
	packagesShowCmd.Flags().BoolVar(&packagesJSON, "json", false, "Print JSON instead of text")
	packagesCmd.AddCommand(packagesListCmd, packagesShowCmd)
	rootCmd.AddCommand(packagesCmd)
}

func runPackagesList(cmd *cobra.Command, args []string) error {
	return withPortal(func(ctx context.Context, drv driver.Driver) error {
		list, err := packages.New(*cfg, drv).List(ctx, packages.ListOptions{
			Keyword:  packagesKeyword,
			MaxPages: packagesPages,
		})
		if err != nil {
			return err
		}
		if packagesJSON {
			return printJSON(list)
		}

		table := ui.NewTable(fmt.Sprintf("%d packages", len(list)),
			"ID", "Status", "Name", "Format", "Category", "Expiry")
		for _, p := range list {
			table.AddRow(p.ID, p.Status, p.Name, p.Format, p.Category, p.Expiry)
		}
		fmt.Print(table.View(styles))
		return nil
	})
}

func runPackagesShow(cmd *cobra.Command, args []string) error {
	return withPortal(func(ctx context.Context, drv driver.Driver) error {
		d, err := packages.New(*cfg, drv).Detail(ctx, args[0])
		if err != nil {
			return err
		}
		if packagesJSON {
			return printJSON(d)
		}

		table := ui.NewTable("Package "+d.ID, "Field", "Value")
		table.AddRow("Program Code", d.ProgramCode)
		table.AddRow("Program Name", d.ProgramName)
		table.AddRow("Short Detail", d.ShortDetail)
		table.AddRow("Schedules", d.NumSchedules)
		table.AddRow("Tour Type", d.TourType)
		table.AddRow("Web Display", d.WebDisplay)
		table.AddRow("Country", d.Country)
		table.AddRow("Province", d.Province)
		table.AddRow("Main City", d.MainCity)
		fmt.Print(table.View(styles))
		return nil
	})
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
