package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foldersmith/foldersmith/internal/doctor"
	"github.com/foldersmith/foldersmith/pkg/color"
)

var doctorProbe bool

// errUnhealthy signals that doctor printed findings that need attention.
var errUnhealthy = errors.New("installation is unhealthy")

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check installation health",
	Long: `Check installation health.

Validates the configuration, builds every enabled backend and verifies the
audit log chain. Use --probe to also contact each backend once.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		result, err := doctor.NewDoctor(cfg, newStore).Check(cmd.Context(), doctorProbe)
		if err != nil {
			return fmt.Errorf("doctor: %w", err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := outputJSON(out, result); err != nil {
				return err
			}
		} else if len(result.Findings) == 0 {
			fmt.Fprintln(out, color.Success("Installation is healthy."))
		} else {
			fmt.Fprintf(out, "Findings (%d):\n", len(result.Findings))
			for _, f := range result.Findings {
				severity := color.Warning(f.Severity)
				if f.Severity != "warning" {
					severity = color.Error(f.Severity)
				}
				fmt.Fprintf(out, "  [%s] %s: %s\n", severity, f.Category, f.Description)
			}
		}

		if !result.Healthy {
			return errUnhealthy
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorProbe, "probe", false, "contact every backend once")
	rootCmd.AddCommand(doctorCmd)
}
