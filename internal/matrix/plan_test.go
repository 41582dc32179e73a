package matrix

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/pearsedarcy/cam-tests/internal/devices"
)

func TestBuildPlanOrder(t *testing.T) {
	devs := []devices.Device{
		{Path: "/dev/video0", Name: "HDMI Capture", Formats: []string{"MJPG", "YUYV"}},
	}

	jobs := BuildPlan(devs, DefaultFormats, DefaultEncoders, 10*time.Second)

	// 2 advertised formats x 3 encoders, format-major order
	if len(jobs) != 6 {
		t.Fatalf("got %d jobs, want 6", len(jobs))
	}
	wantOrder := []struct{ format, encoder string }{
		{"mjpeg", "copy"}, {"mjpeg", "v4l2m2m"}, {"mjpeg", "libx264"},
		{"yuyv", "copy"}, {"yuyv", "v4l2m2m"}, {"yuyv", "libx264"},
	}
	for i, want := range wantOrder {
		if jobs[i].Format.Name != want.format || jobs[i].Encoder.Name != want.encoder {
			t.Errorf("job %d = %s/%s, want %s/%s",
				i, jobs[i].Format.Name, jobs[i].Encoder.Name, want.format, want.encoder)
		}
	}
}

func TestBuildPlanSkipsUnadvertisedFormats(t *testing.T) {
	devs := []devices.Device{
		{Path: "/dev/video2", Formats: []string{"MJPG"}},
	}

	jobs := BuildPlan(devs, DefaultFormats, DefaultEncoders, time.Second)

	if len(jobs) != 3 {
		t.Fatalf("got %d jobs, want 3", len(jobs))
	}
	for _, j := range jobs {
		if j.Format.Name != "mjpeg" {
			t.Errorf("unexpected format %q for device without it", j.Format.Name)
		}
	}
}

func TestBuildPlanNoDevices(t *testing.T) {
	if jobs := BuildPlan(nil, DefaultFormats, DefaultEncoders, time.Second); len(jobs) != 0 {
		t.Errorf("got %d jobs for zero devices, want 0", len(jobs))
	}
}

func TestIncompatibleReason(t *testing.T) {
	find := func(name string) Format {
		for _, f := range DefaultFormats {
			if f.Name == name {
				return f
			}
		}
		t.Fatalf("unknown format %q", name)
		return Format{}
	}
	copyEnc := DefaultEncoders[0]
	x264 := DefaultEncoders[2]

	if reason := incompatibleReason(find("yuyv"), copyEnc); reason == "" {
		t.Error("yuyv+copy should be incompatible")
	}
	if reason := incompatibleReason(find("nv12"), copyEnc); reason == "" {
		t.Error("nv12+copy should be incompatible")
	}
	if reason := incompatibleReason(find("mjpeg"), copyEnc); reason != "" {
		t.Errorf("mjpeg+copy should be viable, got %q", reason)
	}
	if reason := incompatibleReason(find("yuyv"), x264); reason != "" {
		t.Errorf("yuyv+libx264 should be viable, got %q", reason)
	}
}

func TestJobNaming(t *testing.T) {
	job := Job{
		Device:    devices.Device{Path: "/dev/video0"},
		Format:    DefaultFormats[0], // mjpeg -> avi
		Encoder:   DefaultEncoders[0],
		Timestamp: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
	}

	if got, want := job.Name(), "video0_mjpeg_copy_20250601_120000"; got != want {
		t.Errorf("Name() = %q, want %q", got, want)
	}
	if got, want := job.OutputPath("results"), filepath.Join("results", "video0_mjpeg_copy_20250601_120000.avi"); got != want {
		t.Errorf("OutputPath() = %q, want %q", got, want)
	}
	if got, want := job.LogPath("results"), filepath.Join("results", "video0_mjpeg_copy_20250601_120000.log"); got != want {
		t.Errorf("LogPath() = %q, want %q", got, want)
	}
	if got := job.ErrorLogPath("results"); got != job.OutputPath("results")+".error.log" {
		t.Errorf("ErrorLogPath() = %q", got)
	}

	job.Format = DefaultFormats[1] // yuyv -> mp4
	if got := job.OutputPath("results"); filepath.Ext(got) != ".mp4" {
		t.Errorf("yuyv output should be mp4, got %q", got)
	}
}

func TestTallySuccessRate(t *testing.T) {
	cases := []struct {
		tally Tally
		want  float64
	}{
		{Tally{Attempted: 4, Succeeded: 4}, 100},
		{Tally{Attempted: 4, Succeeded: 3, Failed: 1}, 75},
		{Tally{Attempted: 0, Skipped: 2}, 0},
	}
	for _, c := range cases {
		if got := c.tally.SuccessRate(); got != c.want {
			t.Errorf("SuccessRate(%+v) = %v, want %v", c.tally, got, c.want)
		}
	}
}
