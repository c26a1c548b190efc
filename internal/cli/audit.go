package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foldersmith/foldersmith/internal/audit"
	"github.com/foldersmith/foldersmith/pkg/color"
)

var auditCmd = &cobra.Command{
	Use:   "audit <command>",
	Short: "Inspect the clone audit log",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify [path]",
	Short: "Verify the audit log hash chain",
	Long: `Verify that no record of the audit log (audit.path, or path) has been
edited or removed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := ""
		if len(args) == 1 {
			path = args[0]
		} else {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			path = cfg.Audit.Path
		}
		if path == "" {
			return errors.New("no audit log configured (set audit.path)")
		}

		n, err := audit.Verify(path)
		out := cmd.OutOrStdout()
		if jsonOutput {
			res := map[string]any{"path": path, "records": n, "valid": err == nil}
			if err != nil {
				res["error"] = err.Error()
			}
			if jerr := outputJSON(out, res); jerr != nil {
				return jerr
			}
			return err
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(out, color.Successf("%s: %d records verified", path, n))
		return nil
	},
}

func init() {
	auditCmd.AddCommand(auditVerifyCmd)
	rootCmd.AddCommand(auditCmd)
}
