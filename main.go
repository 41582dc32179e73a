package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/pearsedarcy/cam-tests/cmd"
	"github.com/pearsedarcy/cam-tests/internal/config"
	"github.com/pearsedarcy/cam-tests/internal/devices"
	"github.com/pearsedarcy/cam-tests/internal/diagnose"
	"github.com/pearsedarcy/cam-tests/internal/events"
	"github.com/pearsedarcy/cam-tests/internal/logging"
	"github.com/pearsedarcy/cam-tests/internal/matrix"
	"github.com/pearsedarcy/cam-tests/internal/metrics"
	"github.com/pearsedarcy/cam-tests/internal/metrics/exporters"
	"github.com/pearsedarcy/cam-tests/internal/summary"
	"github.com/pearsedarcy/cam-tests/internal/version"
)

// Options for the CLI - flat structure with toml mapping.
type Options struct {
	Config string `help:"Path to configuration file" short:"c" default:"cam-tests.toml"`

	// Capture settings
	ResultsDir string `help:"Directory for recordings and logs" short:"o" default:"./results" toml:"capture.results_dir" env:"RESULTS_DIR"`
	Duration   int    `help:"Capture length per job in seconds" short:"d" default:"10" toml:"capture.duration_seconds" env:"DURATION"`
	Grace      int    `help:"Extra seconds before a stuck capture is terminated" default:"10" toml:"capture.grace_seconds" env:"GRACE"`
	Resolution string `help:"Capture resolution" default:"1920x1080" toml:"capture.resolution" env:"RESOLUTION"`
	FPS        int    `help:"Capture frame rate" default:"30" toml:"capture.fps" env:"FPS"`

	// Scheduling settings
	Parallel        bool `help:"Launch jobs concurrently instead of one at a time" default:"false" toml:"run.parallel" env:"PARALLEL"`
	MaxConcurrent   int  `help:"Concurrent job limit when parallel, 0 = unlimited" default:"0" toml:"run.max_concurrent" env:"MAX_CONCURRENT"`
	DeviceExclusive bool `help:"Serialize concurrent jobs that share a device" default:"true" toml:"run.device_exclusive" env:"DEVICE_EXCLUSIVE"`

	// Metrics settings
	MetricsAddr string `help:"Prometheus listen address, empty disables" default:"" toml:"metrics.addr" env:"METRICS_ADDR"`

	// Logging settings
	LoggingLevel    string `help:"Global logging level (debug, info, warn, error)" default:"info" toml:"logging.level" env:"LOGGING_LEVEL"`
	LoggingFormat   string `help:"Logging format (text, json)" default:"text" toml:"logging.format" env:"LOGGING_FORMAT"`
	LoggingDevices  string `help:"Devices logging level" default:"info" toml:"logging.devices" env:"LOGGING_DEVICES"`
	LoggingMatrix   string `help:"Matrix runner logging level" default:"info" toml:"logging.matrix" env:"LOGGING_MATRIX"`
	LoggingSampler  string `help:"Sampler logging level" default:"info" toml:"logging.sampler" env:"LOGGING_SAMPLER"`
	LoggingProcess  string `help:"Subprocess logging level" default:"info" toml:"logging.process" env:"LOGGING_PROCESS"`
	LoggingSummary  string `help:"Summary logging level" default:"info" toml:"logging.summary" env:"LOGGING_SUMMARY"`
	LoggingMetrics  string `help:"Metrics logging level" default:"info" toml:"logging.metrics" env:"LOGGING_METRICS"`
	LoggingDiagnose string `help:"Diagnostics logging level" default:"info" toml:"logging.diagnose" env:"LOGGING_DIAGNOSE"`
}

func main() {
	// Create Huma CLI; the root command runs the full test matrix.
	// Declared ahead of New so the callback can see which flags were
	// explicitly set: those beat env vars and the config file.
	var cli humacli.CLI
	cli = humacli.New(func(hooks humacli.Hooks, opts *Options) {
		// .env is optional, environment still wins over the config file
		_ = godotenv.Load()

		if loadErr := config.LoadConfig(opts, cli.Root()); loadErr != nil {
			slog.Warn("Failed to load config", "error", loadErr)
		}

		logging.Initialize(logging.Config{
			Level:  opts.LoggingLevel,
			Format: opts.LoggingFormat,
			Modules: map[string]string{
				"devices":  opts.LoggingDevices,
				"matrix":   opts.LoggingMatrix,
				"sampler":  opts.LoggingSampler,
				"process":  opts.LoggingProcess,
				"summary":  opts.LoggingSummary,
				"metrics":  opts.LoggingMetrics,
				"diagnose": opts.LoggingDiagnose,
			},
		})

		runID := uuid.NewString()[:8]
		logger := logging.GetLogger("main").With("run_id", runID)

		runCtx, cancelRun := context.WithCancel(context.Background())
		bus := events.New()
		unbind := metrics.Bind(bus)

		hooks.OnStart(func() {
			logger.Info("Starting capture test run", "version", version.Version, "results_dir", opts.ResultsDir)

			if missing := diagnose.MissingBinaries(); len(missing) > 0 {
				logger.Error("Required binaries missing", "binaries", strings.Join(missing, ", "))
				os.Exit(1)
			}

			if opts.MetricsAddr != "" {
				go func() {
					if err := exporters.Serve(runCtx, opts.MetricsAddr); err != nil {
						logger.Warn("Metrics server failed", "error", err)
					}
				}()
			}

			devs, err := devices.NewEnumerator(bus).Enumerate(runCtx)
			if err != nil {
				logger.Error("Failed to enumerate devices", "error", err)
				os.Exit(1)
			}
			if len(devs) == 0 {
				logger.Error("No capture devices found")
				os.Exit(1)
			}

			policy := matrix.Sequential()
			if opts.Parallel {
				policy = matrix.Parallel()
				policy.MaxConcurrent = opts.MaxConcurrent
				policy.DeviceExclusive = opts.DeviceExclusive
			}

			runner := matrix.NewRunner(matrix.Config{
				ResultsDir: opts.ResultsDir,
				Duration:   time.Duration(opts.Duration) * time.Second,
				Grace:      time.Duration(opts.Grace) * time.Second,
				Resolution: opts.Resolution,
				FPS:        opts.FPS,
			}, policy, bus)

			tally, results, err := runner.Run(runCtx, devs)
			if err != nil {
				logger.Error("Run failed", "error", err)
				os.Exit(1)
			}

			for _, res := range results {
				switch res.State {
				case matrix.StateFailed:
					logger.Warn("Test failed", "job", res.Job.Name(), "reason", res.Reason)
				case matrix.StateSkipped:
					logger.Info("Test skipped", "job", res.Job.Name(), "reason", res.Reason)
				}
			}
			fmt.Printf("\n%d attempted, %d succeeded, %d failed, %d skipped (%.0f%% success rate)\n\n",
				tally.Attempted, tally.Succeeded, tally.Failed, tally.Skipped, tally.SuccessRate())

			if entries, sumErr := summary.Summarize(opts.ResultsDir); sumErr != nil {
				logger.Warn("Could not summarize results", "dir", opts.ResultsDir, "error", sumErr)
			} else if renderErr := summary.RenderText(os.Stdout, entries); renderErr != nil {
				logger.Warn("Could not render summary", "error", renderErr)
			}
		})

		hooks.OnStop(func() {
			logger.Info("Shutting down")
			cancelRun()
			unbind()
		})
	})

	cli.Root().Use = "cam-tests"
	cli.Root().Version = version.Version
	cli.Root().AddCommand(
		cmd.CreateDevicesCmd(),
		cmd.CreateSampleCmd(),
		cmd.CreateSummarizeCmd(),
		cmd.CreateDiagnoseCmd(),
		cmd.CreateSelfupdateCmd(),
	)

	// Run the CLI
	cli.Run()
}
