package commands

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/briefing/am"
	"github.com/teranos/briefing/errors"
	"github.com/teranos/briefing/sym"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: sym.AM + " Show and validate configuration",
	Long: sym.AM + ` am — Show and validate configuration

Configuration sources (in order of precedence):
1. Environment variables (BRIEFING_* prefix)
2. Project config (./am.toml, searched up from the working directory)
3. User config (~/.briefing/am.toml)
4. System config (/etc/briefing/am.toml)
5. Default values

Examples:
  briefing am show                    # Show current configuration
  briefing am show --format json      # Show configuration in JSON format
  briefing am get mail.max_per_minute # Get specific config value
  briefing am validate                # Validate current configuration`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the merged configuration from all sources. Secrets are redacted.",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., database.path, pulse.workers)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	Long:  "Validate the merged configuration and report unknown keys in the active config file",
	RunE:  runAmValidate,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	data, err := am.Marshal(cfg.Redacted(), configFormat)
	if err != nil {
		return err
	}
	if configFormat != "json" {
		fmt.Println("# briefing configuration")
	}
	fmt.Println(string(data))
	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	if !am.GetViper().IsSet(key) {
		return fmt.Errorf("configuration key %q not found", key)
	}

	fmt.Println(am.Get(key))
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	if path := am.ActiveConfigPath(); path != "" {
		unknown, err := am.UnknownKeys(path)
		if err != nil {
			return errors.Wrap(err, "failed to check config keys")
		}
		for _, k := range unknown {
			pterm.Warning.Printf("%s: unknown key %q\n", path, k)
		}
	}

	fmt.Println("✓ Configuration is valid")
	return nil
}
