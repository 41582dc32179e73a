// Package matrix plans and runs the device x format x encoder test matrix.
package matrix

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/pearsedarcy/cam-tests/internal/devices"
)

// State is the lifecycle state of a Job.
type State string

// Job states. Pending and Running are transient; the rest are terminal.
const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateSkipped   State = "skipped"
)

// Format describes a recognized pixel format and its container mapping.
type Format struct {
	Name      string // short test name, e.g. "mjpeg"
	FourCC    string // V4L2 fourcc as advertised by the device, e.g. "MJPG"
	FFmpeg    string // ffmpeg -input_format value, e.g. "mjpeg"
	Container string // output container extension, e.g. "avi"
	Raw       bool   // uncompressed; cannot be stream-copied into its container
}

// Encoder describes a recognized encoder configuration.
type Encoder struct {
	Name string // short test name, e.g. "libx264"
	Args string // ffmpeg encoder flags
}

// DefaultFormats lists the pixel formats the bench knows how to test.
// MJPEG stream-copies cleanly into AVI; the raw formats need an encoder
// before they fit in MP4.
var DefaultFormats = []Format{
	{Name: "mjpeg", FourCC: "MJPG", FFmpeg: "mjpeg", Container: "avi"},
	{Name: "yuyv", FourCC: "YUYV", FFmpeg: "yuyv422", Container: "mp4", Raw: true},
	{Name: "nv12", FourCC: "NV12", FFmpeg: "nv12", Container: "mp4", Raw: true},
}

// DefaultEncoders lists the encoder configurations the bench exercises.
var DefaultEncoders = []Encoder{
	{Name: "copy", Args: "-c:v copy"},
	{Name: "v4l2m2m", Args: "-c:v h264_v4l2m2m -b:v 5M"},
	{Name: "libx264", Args: "-c:v libx264 -preset ultrafast -crf 23"},
}

// timestampLayout matches the original results naming scheme.
const timestampLayout = "20060102_150405"

// Job is one device x format x encoder combination. It is immutable once
// launched; outcome lives in Result.
type Job struct {
	Device    devices.Device
	Format    Format
	Encoder   Encoder
	Timestamp time.Time
	Duration  time.Duration
}

// Name returns the deterministic job name used as the stem of every
// artifact: <videoN>_<format>_<encoder>_<timestamp>.
func (j Job) Name() string {
	return fmt.Sprintf("%s_%s_%s_%s",
		j.Device.Base(), j.Format.Name, j.Encoder.Name, j.Timestamp.Format(timestampLayout))
}

// OutputPath returns the media file path for this job.
func (j Job) OutputPath(dir string) string {
	return filepath.Join(dir, j.Name()+"."+j.Format.Container)
}

// LogPath returns the sampler CSV log path for this job.
func (j Job) LogPath(dir string) string {
	return filepath.Join(dir, j.Name()+".log")
}

// ErrorLogPath returns the capture stderr log path for this job.
// Removed when the job succeeds, preserved when it fails.
func (j Job) ErrorLogPath(dir string) string {
	return j.OutputPath(dir) + ".error.log"
}

// Result is the terminal record of a Job. Read-only once created.
type Result struct {
	Job       Job
	State     State
	Reason    string // skip reason or failure description
	SizeBytes int64  // output media size, successes only
}

// Tally is the running count of job outcomes for one run.
type Tally struct {
	Attempted int // jobs that actually ran (succeeded + failed)
	Succeeded int
	Failed    int
	Skipped   int
}

// SuccessRate returns the percentage of attempted jobs that succeeded.
func (t Tally) SuccessRate() float64 {
	if t.Attempted == 0 {
		return 0
	}
	return float64(t.Succeeded) * 100 / float64(t.Attempted)
}
