package matrix

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/pearsedarcy/cam-tests/internal/devices"
	"github.com/pearsedarcy/cam-tests/internal/events"
)

func newTestRunner(t *testing.T, policy Policy, bus *events.Bus) (*Runner, string) {
	t.Helper()
	dir := t.TempDir()
	r := NewRunner(Config{
		ResultsDir: dir,
		Duration:   50 * time.Millisecond,
		Grace:      time.Second,
		Resolution: "1920x1080",
		FPS:        30,
	}, policy, bus)
	r.SetSamplerInterval(10 * time.Millisecond)
	return r, dir
}

func mjpgDevice() devices.Device {
	return devices.Device{Path: "/dev/video0", Name: "HDMI Capture", Formats: []string{"MJPG"}}
}

func listDir(t *testing.T, dir, suffix string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read results dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), suffix) {
			names = append(names, e.Name())
		}
	}
	return names
}

func TestRunnerSuccessfulJobs(t *testing.T) {
	r, dir := newTestRunner(t, Sequential(), nil)
	r.policy.Pause = time.Millisecond
	r.SetCommandBuilder(func(j Job) string {
		return fmt.Sprintf(`sh -c "echo frame > %s"`, j.OutputPath(dir))
	})

	tally, results, err := r.Run(context.Background(), []devices.Device{mjpgDevice()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if tally.Attempted != 3 || tally.Succeeded != 3 || tally.Failed != 0 || tally.Skipped != 0 {
		t.Fatalf("tally = %+v", tally)
	}
	if rate := tally.SuccessRate(); rate != 100 {
		t.Errorf("success rate = %v, want 100", rate)
	}

	for _, res := range results {
		if res.State != StateSucceeded {
			t.Errorf("job %s state = %s (%s)", res.Job.Name(), res.State, res.Reason)
		}
		if res.SizeBytes == 0 {
			t.Errorf("job %s: media size is zero", res.Job.Name())
		}
		if _, err := os.Stat(res.Job.LogPath(dir)); err != nil {
			t.Errorf("job %s: missing sampler log: %v", res.Job.Name(), err)
		}
	}

	// error logs are removed on success
	if logs := listDir(t, dir, ".error.log"); len(logs) != 0 {
		t.Errorf("error logs present after successful run: %v", logs)
	}
	if media := listDir(t, dir, ".avi"); len(media) != 3 {
		t.Errorf("got %d media files, want 3", len(media))
	}
}

func TestRunnerFailurePreservesErrorLog(t *testing.T) {
	r, dir := newTestRunner(t, Sequential(), nil)
	r.policy.Pause = 0
	r.SetCommandBuilder(func(j Job) string {
		return `sh -c "echo boom >&2; exit 3"`
	})

	tally, results, err := r.Run(context.Background(), []devices.Device{mjpgDevice()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tally.Failed != 3 || tally.Succeeded != 0 {
		t.Fatalf("tally = %+v", tally)
	}

	for _, res := range results {
		if res.State != StateFailed {
			t.Fatalf("job %s state = %s, want failed", res.Job.Name(), res.State)
		}
		if !strings.Contains(res.Reason, "exit code 3") {
			t.Errorf("job %s reason = %q", res.Job.Name(), res.Reason)
		}
		data, err := os.ReadFile(res.Job.ErrorLogPath(dir))
		if err != nil {
			t.Fatalf("job %s: error log missing: %v", res.Job.Name(), err)
		}
		if !strings.Contains(string(data), "boom") {
			t.Errorf("job %s: error log %q does not contain stderr", res.Job.Name(), data)
		}
		if _, err := os.Stat(res.Job.OutputPath(dir)); !os.IsNotExist(err) {
			t.Errorf("job %s: unexpected media file", res.Job.Name())
		}
	}
}

func TestRunnerFailureErrorLogNeverEmpty(t *testing.T) {
	r, dir := newTestRunner(t, Sequential(), nil)
	r.policy.Pause = 0
	// fails without writing anything to stderr
	r.SetCommandBuilder(func(j Job) string { return `sh -c "exit 1"` })

	_, results, err := r.Run(context.Background(), []devices.Device{mjpgDevice()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, res := range results {
		fi, err := os.Stat(res.Job.ErrorLogPath(dir))
		if err != nil {
			t.Fatalf("error log missing: %v", err)
		}
		if fi.Size() == 0 {
			t.Errorf("job %s: error log is empty", res.Job.Name())
		}
	}
}

func TestRunnerSkipsRawCopy(t *testing.T) {
	r, dir := newTestRunner(t, Sequential(), nil)
	r.policy.Pause = 0
	r.SetCommandBuilder(func(j Job) string {
		return fmt.Sprintf(`sh -c "echo frame > %s"`, j.OutputPath(dir))
	})

	dev := devices.Device{Path: "/dev/video1", Formats: []string{"YUYV"}}
	tally, results, err := r.Run(context.Background(), []devices.Device{dev})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if tally.Skipped != 1 || tally.Attempted != 2 || tally.Succeeded != 2 {
		t.Fatalf("tally = %+v", tally)
	}
	skipped := results[0]
	if skipped.State != StateSkipped || skipped.Job.Encoder.Name != "copy" {
		t.Fatalf("first result = %s/%s", skipped.Job.Encoder.Name, skipped.State)
	}

	// a skipped job leaves no artifacts at all
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if strings.Contains(e.Name(), "_yuyv_copy_") {
			t.Errorf("skipped job left artifact %s", e.Name())
		}
	}
}

func TestRunnerTimeoutFailsJob(t *testing.T) {
	r, dir := newTestRunner(t, Sequential(), nil)
	r.policy.Pause = 0
	r.cfg.Duration = 20 * time.Millisecond
	r.cfg.Grace = 30 * time.Millisecond
	r.SetCommandBuilder(func(j Job) string { return "sleep 5" })

	dev := devices.Device{Path: "/dev/video0", Formats: []string{"MJPG"}}
	start := time.Now()
	tally, results, err := r.Run(context.Background(), []devices.Device{dev})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("run took %v, captures were not bounded", elapsed)
	}

	if tally.Failed != 3 {
		t.Fatalf("tally = %+v, want 3 failures", tally)
	}
	for _, res := range results {
		fi, err := os.Stat(res.Job.ErrorLogPath(dir))
		if err != nil || fi.Size() == 0 {
			t.Errorf("job %s: missing or empty error log after timeout", res.Job.Name())
		}
	}
}

func TestRunnerSamplerLogMatchesDuration(t *testing.T) {
	r, dir := newTestRunner(t, Sequential(), nil)
	r.policy.Pause = 0
	r.SetCommandBuilder(func(j Job) string { return "sleep 0.1" })

	_, results, err := r.Run(context.Background(), []devices.Device{mjpgDevice()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	// 50 ms duration at 10 ms interval: header plus 5 samples
	data, err := os.ReadFile(results[0].Job.LogPath(dir))
	if err != nil {
		t.Fatalf("read sampler log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "timestamp,cpu_percent,mem_used_mb,disk_write_kbps" {
		t.Errorf("header = %q", lines[0])
	}
	if len(lines) < 2 || len(lines) > 7 {
		t.Errorf("got %d log lines, want header plus roughly 5 samples", len(lines))
	}
}

func TestRunnerDeviceExclusiveSerializesCaptures(t *testing.T) {
	policy := Parallel()
	policy.Stagger = time.Millisecond
	r, dir := newTestRunner(t, policy, nil)

	// each capture takes the device lock file; a concurrent second capture
	// on the same device would find it and fail
	lock := filepath.Join(dir, "device.lock")
	r.SetCommandBuilder(func(j Job) string {
		script := fmt.Sprintf(
			"test ! -e %[1]s && touch %[1]s && sleep 0.05 && rm %[1]s && echo frame > %[2]s",
			lock, j.OutputPath(dir))
		return fmt.Sprintf(`sh -c "%s"`, script)
	})

	tally, _, err := r.Run(context.Background(), []devices.Device{mjpgDevice()})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if tally.Succeeded != 3 {
		t.Fatalf("tally = %+v, want 3 successes with an exclusive device", tally)
	}
}

func TestRunnerPublishesLifecycleEvents(t *testing.T) {
	bus := events.New()
	started := make(chan events.JobStartedEvent, 8)
	finished := make(chan events.JobFinishedEvent, 8)
	defer bus.Subscribe(func(e events.JobStartedEvent) { started <- e })()
	defer bus.Subscribe(func(e events.JobFinishedEvent) { finished <- e })()

	r, dir := newTestRunner(t, Sequential(), bus)
	r.policy.Pause = 0
	r.SetCommandBuilder(func(j Job) string {
		return fmt.Sprintf(`sh -c "echo frame > %s"`, j.OutputPath(dir))
	})

	if _, _, err := r.Run(context.Background(), []devices.Device{mjpgDevice()}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for i := 0; i < 3; i++ {
		select {
		case ev := <-started:
			if ev.Total != 3 {
				t.Errorf("started event total = %d, want 3", ev.Total)
			}
		case <-deadline:
			t.Fatal("missing JobStartedEvent")
		}
		select {
		case ev := <-finished:
			if ev.State != string(StateSucceeded) {
				t.Errorf("finished event state = %q", ev.State)
			}
		case <-deadline:
			t.Fatal("missing JobFinishedEvent")
		}
	}
}
