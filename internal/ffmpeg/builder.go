// Package ffmpeg builds FFmpeg command strings for V4L2 capture jobs.
package ffmpeg

import (
	"fmt"
	"strings"
	"time"
)

// Base returns the ffmpeg command with standard flags.
func Base() string {
	return "ffmpeg -hide_banner"
}

// CaptureParams holds everything needed to build one capture invocation.
type CaptureParams struct {
	DevicePath  string
	InputFormat string // ffmpeg -input_format value, e.g. "mjpeg", "yuyv422"
	Resolution  string // e.g. "1920x1080"
	FPS         int
	EncoderArgs string // encoder flags, e.g. "-c:v libx264 -preset ultrafast -crf 23"
	Duration    time.Duration
	OutputPath  string
}

// BuildCaptureCommand builds the FFmpeg command for one timed capture job.
// Output is overwritten unconditionally; stdin is never read.
func BuildCaptureCommand(p CaptureParams) string {
	var cmd strings.Builder

	cmd.WriteString(Base())
	cmd.WriteString(" -y -f v4l2")

	if p.FPS > 0 {
		cmd.WriteString(fmt.Sprintf(" -framerate %d", p.FPS))
	}
	if p.Resolution != "" {
		cmd.WriteString(" -video_size " + p.Resolution)
	}
	if p.InputFormat != "" {
		cmd.WriteString(" -input_format " + p.InputFormat)
	}
	cmd.WriteString(" -i " + p.DevicePath)

	if p.EncoderArgs != "" {
		cmd.WriteString(" " + p.EncoderArgs)
	}
	if p.Duration > 0 {
		cmd.WriteString(fmt.Sprintf(" -t %d", int(p.Duration.Seconds())))
	}
	cmd.WriteString(" " + p.OutputPath)

	return cmd.String()
}

// BuildProbeCommand builds a one-frame connectivity probe for a device.
// Used by diagnostics to check that a device actually delivers video data.
func BuildProbeCommand(devicePath string) string {
	return Base() + " -f v4l2 -i " + devicePath + " -frames:v 1 -f null -"
}
