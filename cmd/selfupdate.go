package cmd

import (
	"os"

	"github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"

	"github.com/pearsedarcy/cam-tests/internal/logging"
	"github.com/pearsedarcy/cam-tests/internal/version"
)

// repositorySlug is the GitHub repository releases are fetched from.
const repositorySlug = "pearsedarcy/cam-tests"

// CreateSelfupdateCmd creates the selfupdate command.
func CreateSelfupdateCmd() *cobra.Command {
	var checkOnly bool
	var prerelease bool
	var logJSON bool

	cmd := &cobra.Command{
		Use:   "selfupdate",
		Short: "Update the binary to the latest release",
		Run: func(cmd *cobra.Command, _ []string) {
			initCommandLogging(logJSON)
			logger := logging.GetLogger("updater")
			ctx := cmd.Context()

			source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{})
			if err != nil {
				logger.Error("Failed to create GitHub source", "error", err)
				os.Exit(1)
			}
			updater, err := selfupdate.NewUpdater(selfupdate.Config{
				Source:     source,
				Prerelease: prerelease,
			})
			if err != nil {
				logger.Error("Failed to create updater", "error", err)
				os.Exit(1)
			}

			latest, found, err := updater.DetectLatest(ctx, selfupdate.ParseSlug(repositorySlug))
			if err != nil {
				logger.Error("Failed to check for updates", "error", err)
				os.Exit(1)
			}
			if !found {
				logger.Error("No release found", "repository", repositorySlug)
				os.Exit(1)
			}

			current := version.Version
			if latest.LessOrEqual(current) {
				logger.Info("Already up to date", "version", current)
				return
			}
			if checkOnly {
				logger.Info("Update available", "current", current, "latest", latest.Version())
				return
			}

			exe, err := os.Executable()
			if err != nil {
				logger.Error("Cannot locate own executable", "error", err)
				os.Exit(1)
			}
			logger.Info("Updating", "current", current, "latest", latest.Version())
			if err := updater.UpdateTo(ctx, latest, exe); err != nil {
				logger.Error("Update failed", "error", err)
				os.Exit(1)
			}
			logger.Info("Updated successfully", "version", latest.Version())
		},
	}

	cmd.Flags().BoolVar(&checkOnly, "check", false, "Only check whether an update is available")
	cmd.Flags().BoolVar(&prerelease, "prerelease", false, "Allow prerelease versions")
	cmd.Flags().BoolVar(&logJSON, "log-json", false, "Use JSON log format")
	return cmd
}
