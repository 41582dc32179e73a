package config

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/spf13/cobra"
)

type testOptions struct {
	Config string `help:"Config file path"`

	ResultsDir string   `toml:"capture.results_dir" env:"RESULTS_DIR"`
	Duration   int      `toml:"capture.duration" env:"DURATION"`
	Parallel   bool     `toml:"matrix.parallel" env:"PARALLEL"`
	Encoders   []string `toml:"matrix.encoders" env:"ENCODERS"`
}

func writeTOML(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cam-tests.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigFromTOML(t *testing.T) {
	path := writeTOML(t, `
[capture]
results_dir = "/tmp/results"
duration = 15

[matrix]
parallel = true
encoders = ["copy", "libx264"]
`)

	opts := &testOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.ResultsDir != "/tmp/results" {
		t.Errorf("ResultsDir = %q, want /tmp/results", opts.ResultsDir)
	}
	if opts.Duration != 15 {
		t.Errorf("Duration = %d, want 15", opts.Duration)
	}
	if !opts.Parallel {
		t.Error("Parallel = false, want true")
	}
	if want := []string{"copy", "libx264"}; !reflect.DeepEqual(opts.Encoders, want) {
		t.Errorf("Encoders = %v, want %v", opts.Encoders, want)
	}
}

func TestLoadConfigFromEnvVars(t *testing.T) {
	t.Setenv("CAMTEST_RESULTS_DIR", "/env/results")
	t.Setenv("CAMTEST_DURATION", "30")
	t.Setenv("CAMTEST_PARALLEL", "true")
	t.Setenv("CAMTEST_ENCODERS", "copy, v4l2m2m")

	opts := &testOptions{}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.ResultsDir != "/env/results" {
		t.Errorf("ResultsDir = %q, want /env/results", opts.ResultsDir)
	}
	if opts.Duration != 30 {
		t.Errorf("Duration = %d, want 30", opts.Duration)
	}
	if !opts.Parallel {
		t.Error("Parallel = false, want true")
	}
	if want := []string{"copy", "v4l2m2m"}; !reflect.DeepEqual(opts.Encoders, want) {
		t.Errorf("Encoders = %v, want %v", opts.Encoders, want)
	}
}

func TestLoadConfigEnvOverridesTOML(t *testing.T) {
	path := writeTOML(t, `
[capture]
results_dir = "/toml/results"
duration = 15
`)
	t.Setenv("CAMTEST_RESULTS_DIR", "/env/results")

	opts := &testOptions{Config: path}
	if err := LoadConfig(opts, nil); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.ResultsDir != "/env/results" {
		t.Errorf("ResultsDir = %q, want env override", opts.ResultsDir)
	}
	if opts.Duration != 15 {
		t.Errorf("Duration = %d, want TOML value 15", opts.Duration)
	}
}

func TestLoadConfigChangedFlagBeatsEnvAndTOML(t *testing.T) {
	path := writeTOML(t, `
[capture]
duration = 15
results_dir = "/toml/results"
`)
	t.Setenv("CAMTEST_DURATION", "25")

	// the flag binding has already written 42 into the options struct;
	// LoadConfig must leave Changed flags alone
	cmd := &cobra.Command{Use: "cam-tests"}
	cmd.Flags().Int("duration", 10, "")
	if err := cmd.Flags().Set("duration", "42"); err != nil {
		t.Fatalf("set flag: %v", err)
	}

	opts := &testOptions{Config: path, Duration: 42}
	if err := LoadConfig(opts, cmd); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if opts.Duration != 42 {
		t.Errorf("Duration = %d, want CLI value 42 to beat env 25 and TOML 15", opts.Duration)
	}
	// untouched fields still follow env/TOML precedence
	if opts.ResultsDir != "/toml/results" {
		t.Errorf("ResultsDir = %q, want TOML value", opts.ResultsDir)
	}
}

func TestLoadLoggingConfig(t *testing.T) {
	path := writeTOML(t, `
[logging]
level = "warn"
format = "json"
matrix = "debug"
`)

	cfg := LoadLoggingConfig(path)
	if cfg.Level != "warn" {
		t.Errorf("Level = %q, want warn", cfg.Level)
	}
	if cfg.Format != "json" {
		t.Errorf("Format = %q, want json", cfg.Format)
	}
	if cfg.Modules["matrix"] != "debug" {
		t.Errorf("Modules[matrix] = %q, want debug", cfg.Modules["matrix"])
	}
}

func TestLoadLoggingConfigMissingFile(t *testing.T) {
	cfg := LoadLoggingConfig("/nonexistent/cam-tests.toml")
	if cfg.Level != "info" || cfg.Format != "text" {
		t.Errorf("want defaults, got %+v", cfg)
	}
}
