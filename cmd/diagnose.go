package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pearsedarcy/cam-tests/internal/diagnose"
	"github.com/pearsedarcy/cam-tests/internal/logging"
)

// CreateDiagnoseCmd creates the diagnose command.
func CreateDiagnoseCmd() *cobra.Command {
	var probe bool
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "diagnose",
		Short: "Check the environment is ready for capture runs",
		Long: `Verifies required binaries, capture device visibility and permissions. ` +
			`With --probe it also grabs one frame from every device, which takes a few ` +
			`seconds per device. Exits non-zero when a required check fails.`,
		Run: func(cmd *cobra.Command, _ []string) {
			initCommandLogging(logJSON)

			report := diagnose.New().Run(cmd.Context(), probe)
			if err := diagnose.RenderText(os.Stdout, report); err != nil {
				logging.GetLogger("diagnose").Error("Failed to render report", "error", err)
				os.Exit(1)
			}
			if !report.Healthy() {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().BoolVar(&probe, "probe", false, "Capture one frame from each device")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")
	return cmd
}
