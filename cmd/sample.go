package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pearsedarcy/cam-tests/internal/logging"
	"github.com/pearsedarcy/cam-tests/internal/sampler"
)

// CreateSampleCmd creates the sample command.
func CreateSampleCmd() *cobra.Command {
	var duration time.Duration
	var interval time.Duration
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "sample [output-file]",
		Short: "Record resource usage to a CSV log",
		Long: `Samples CPU, memory and disk write throughput at a fixed interval and ` +
			`writes the same CSV format the capture runner produces. Useful for ` +
			`baselining a machine before a run.`,
		Args: cobra.ExactArgs(1),
		Run: func(_ *cobra.Command, args []string) {
			initCommandLogging(logJSON)
			logger := logging.GetLogger("sampler")

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			s := sampler.New(sampler.NewReader(logger), nil, logger)
			s.SetInterval(interval)

			logger.Info("Sampling", "output", args[0], "duration", duration, "interval", interval)
			if err := s.Run(ctx, duration, args[0]); err != nil {
				logger.Error("Sampling failed", "error", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "How long to sample")
	cmd.Flags().DurationVar(&interval, "interval", sampler.DefaultInterval, "Sampling interval")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")
	return cmd
}
