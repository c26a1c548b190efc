package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foldersmith/foldersmith/internal/orchestrator"
	"github.com/foldersmith/foldersmith/pkg/color"
	"github.com/foldersmith/foldersmith/pkg/model"
)

var (
	cloneBackends   []string
	cloneSequential bool
)

// errIncomplete signals that the report was printed but not every backend
// cloned the template.
var errIncomplete = errors.New("clone did not complete in every backend")

var cloneCmd = &cobra.Command{
	Use:   "clone <root> <template> <destination>",
	Short: "Clone a template folder into a new folder under root",
	Long: `Clone the folder tree of <template> into a new folder named
<destination> directly under <root>, in every enabled backend.

The destination must not exist yet; nothing is created when it does.

Examples:
  foldersmith clone ClientA Template NewProject
  foldersmith clone ClientA Template NewProject --backend quip
  foldersmith clone ClientA Template NewProject --json`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}

		var opts []orchestrator.Option
		if cloneSequential {
			opts = append(opts, orchestrator.Sequential())
		}
		svc, err := newService(cmd.Context(), cfg, cloneBackends, opts...)
		if err != nil {
			return err
		}
		defer svc.Close()

		report, err := svc.orch.CloneAll(cmd.Context(), model.CloneRequest{
			RootName:        args[0],
			TemplateName:    args[1],
			DestinationName: args[2],
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			if err := outputJSON(out, report); err != nil {
				return err
			}
		} else {
			for _, res := range report.Results {
				line := orchestrator.Message(res)
				switch {
				case res.OK():
					line = color.Success(line)
				case res.Status == model.StatusBackendError:
					line = color.Error(line)
				default:
					line = color.Warning(line)
				}
				fmt.Fprintln(out, line)
			}
		}

		if !report.OK() {
			return errIncomplete
		}
		return nil
	},
}

func init() {
	cloneCmd.Flags().StringSliceVarP(&cloneBackends, "backend", "b", nil, "only clone in these backends (google-drive, quip, local)")
	cloneCmd.Flags().BoolVar(&cloneSequential, "sequential", false, "run backends one at a time")
	rootCmd.AddCommand(cloneCmd)
}
