package main

import (
	"fmt"
	"os"

	"tourcharge/internal/config"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// configCmd is the parent command for configuration helpers.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and bootstrap the configuration file",
}

// configShowCmd prints the effective configuration.
var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration, credentials redacted",
	RunE:  runConfigShow,
}

// configInitCmd writes a starter configuration file.
var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Long: `Writes the default configuration to the --config path. Credentials are
never stored in the file; set TOURCHARGE_USERNAME and TOURCHARGE_PASSWORD
in the environment instead.`,
	RunE: runConfigInit,
}

var configForce bool

func init() {
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "Overwrite an existing file")
	configCmd.AddCommand(configShowCmd, configInitCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	out, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return err
	}
	fmt.Print(string(out))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if _, err := os.Stat(cfgPath); err == nil && !configForce {
		return fmt.Errorf("%s already exists (use --force to overwrite)", cfgPath)
	}
	if err := config.DefaultConfig().Save(cfgPath); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", cfgPath)
	fmt.Println("set TOURCHARGE_USERNAME and TOURCHARGE_PASSWORD before running")
	return nil
}
