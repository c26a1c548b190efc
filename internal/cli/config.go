package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/foldersmith/foldersmith/pkg/color"
	"github.com/foldersmith/foldersmith/pkg/config"
)

var configInitForce bool

var configCmd = &cobra.Command{
	Use:   "config <command>",
	Short: "Manage foldersmith configuration",
	Long: `Manage foldersmith configuration.

The configuration is read from --config, else ./foldersmith.yaml, else
foldersmith/config.yaml in the user config directory. Every key can be
overridden with a FOLDERSMITH_ environment variable, e.g.
FOLDERSMITH_QUIP_ACCESS_TOKEN. SLACK_BOT_TOKEN, SLACK_SIGNING_SECRET,
QUIP_ACCESS_TOKEN, GOOGLE_SERVICE_ACCOUNT_KEY_PATH and PORT are honored too.

Available commands:
  show              - Show the effective configuration, credentials masked
  init              - Write a default configuration file`,
	DisableFlagsInUseLine: true,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		redacted := cfg.Redacted()

		if jsonOutput {
			return outputJSON(out, redacted)
		}
		data, err := yaml.Marshal(redacted)
		if err != nil {
			return fmt.Errorf("marshal config: %w", err)
		}
		_, err = out.Write(data)
		return err
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write a default configuration file",
	Long: `Write the default configuration to path, or to --config, or to the
per-user location. An existing file is only replaced with --force.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configPath
		if len(args) == 1 {
			path = args[0]
		}
		if path == "" {
			path = config.DefaultPath()
		}

		if _, err := os.Stat(path); err == nil && !configInitForce {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.Save(path, config.Default()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), color.Successf("Wrote %s", path))
		return nil
	},
}

func init() {
	configInitCmd.Flags().BoolVar(&configInitForce, "force", false, "overwrite an existing file")
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
