package cmd

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pearsedarcy/cam-tests/internal/logging"
	"github.com/pearsedarcy/cam-tests/internal/summary"
)

// CreateSummarizeCmd creates the summarize command.
func CreateSummarizeCmd() *cobra.Command {
	var resultsDir string
	var htmlPath string
	var watch bool
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Aggregate sampler logs into a per-test report",
		Long: `Reads every sampler log in the results directory and prints one line per ` +
			`test with average CPU, peak memory, average disk write rate and recording ` +
			`size, sorted by average CPU. --html additionally writes a standalone HTML ` +
			`report; --watch keeps re-rendering as new results arrive.`,
		Run: func(_ *cobra.Command, _ []string) {
			initCommandLogging(logJSON)
			logger := logging.GetLogger("summary")

			render := func(entries []summary.Entry) error {
				if err := summary.RenderText(os.Stdout, entries); err != nil {
					return err
				}
				if htmlPath != "" {
					f, err := os.Create(htmlPath)
					if err != nil {
						return err
					}
					defer f.Close()
					if err := summary.RenderHTML(f, entries); err != nil {
						return err
					}
					logger.Info("Wrote HTML report", "path", htmlPath)
				}
				return nil
			}

			if watch {
				ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				if err := summary.Watch(ctx, resultsDir, render); err != nil {
					logger.Error("Watch failed", "error", err)
					os.Exit(1)
				}
				return
			}

			entries, err := summary.Summarize(resultsDir)
			if err != nil {
				if errors.Is(err, summary.ErrNoLogs) {
					logger.Error("No log files found", "dir", resultsDir)
				} else {
					logger.Error("Failed to summarize results", "error", err)
				}
				os.Exit(1)
			}
			if err := render(entries); err != nil {
				logger.Error("Failed to render summary", "error", err)
				os.Exit(1)
			}
		},
	}

	cmd.Flags().StringVar(&resultsDir, "results", "./results", "Results directory to summarize")
	cmd.Flags().StringVar(&htmlPath, "html", "", "Also write an HTML report to this path")
	cmd.Flags().BoolVar(&watch, "watch", false, "Re-render whenever new results appear")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")
	return cmd
}
