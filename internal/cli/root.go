package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/foldersmith/foldersmith/pkg/color"
	"github.com/foldersmith/foldersmith/pkg/logging"
)

var (
	jsonOutput bool
	noColor    bool
	configPath string
	logLevel   string

	rootCmd = &cobra.Command{
		Use:   "foldersmith",
		Short: "foldersmith - clone folder templates across document stores",
		Long: `foldersmith clones a template folder tree into a new folder under a
chosen root, in Google Drive, Quip, or a local directory. It runs from the
command line or as a Slack bot answering "@foldersmith <root> <template>
<destination>" mentions.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ./foldersmith.yaml, then the user config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() {
	err := rootCmd.Execute()
	_ = logging.Global().Sync()
	if err != nil {
		fmtErr("%v", err)
		os.Exit(1)
	}
}

// setup applies the global flags and the logging section of the config
// before any command runs.
func setup(cmd *cobra.Command, args []string) error {
	color.Init(noColor)

	cfg, err := loadConfig()
	if err != nil {
		// Commands that need the config report the error themselves.
		return nil
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	lvl, err := logging.ParseLevel(level)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{
		Level:      lvl,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		return fmt.Errorf("configure logging: %w", err)
	}
	logging.SetGlobal(logger)
	return nil
}

// outputJSON prints v as indented JSON.
func outputJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
