package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/pearsedarcy/cam-tests/internal/config"
	"github.com/pearsedarcy/cam-tests/internal/devices"
	"github.com/pearsedarcy/cam-tests/internal/logging"
)

// CreateDevicesCmd creates the devices command.
func CreateDevicesCmd() *cobra.Command {
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "devices",
		Short: "List usable capture devices",
		Long: `Probes every /dev/video* node with v4l2-ctl and lists the USB/HDMI ` +
			`capture devices that advertise at least one pixel format. These are the ` +
			`devices a run would test.`,
		Run: func(cmd *cobra.Command, _ []string) {
			initCommandLogging(logJSON)
			logger := logging.GetLogger("devices")

			devs, err := devices.NewEnumerator(nil).Enumerate(cmd.Context())
			if err != nil {
				logger.Error("Failed to enumerate devices", "error", err)
				os.Exit(1)
			}
			if len(devs) == 0 {
				logger.Error("No capture devices found")
				os.Exit(1)
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
			fmt.Fprintln(tw, "DEVICE\tNAME\tFORMATS")
			for _, dev := range devs {
				fmt.Fprintf(tw, "%s\t%s\t%s\n", dev.Path, dev.Name, strings.Join(dev.Formats, " "))
			}
			_ = tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")
	return cmd
}

// initCommandLogging sets up logging for standalone subcommands, honoring
// the [logging] section of the default config file when present.
func initCommandLogging(logJSON bool) {
	cfg := config.LoadLoggingConfig("cam-tests.toml")
	if logJSON {
		cfg.Format = "json"
	}
	logging.Initialize(cfg)
}
