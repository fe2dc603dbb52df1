package main

import (
	"context"
	"fmt"

	"tourcharge/internal/driver"
	"tourcharge/internal/resolver"

	"github.com/spf13/cobra"
)

// resolveCmd looks up the program code behind a single tour code.
var resolveCmd = &cobra.Command{
	Use:   "resolve [tour-code]",
	Short: "Resolve a tour code to its program code",
	Long: `Logs in, reads the package listing, and prints the program code the
charge pipeline would use for the given tour code.

Examples:
  tourcharge resolve 2UCKG4NCKGFD251206`,
	Args: cobra.ExactArgs(1),
	RunE: runResolve,
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

func runResolve(cmd *cobra.Command, args []string) error {
	return withPortal(func(ctx context.Context, drv driver.Driver) error {
		code, err := resolver.New(*cfg, drv).Resolve(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Println(code)
		return nil
	})
}
