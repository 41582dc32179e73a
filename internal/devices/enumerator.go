// Package devices enumerates V4L2 capture devices through the v4l2-ctl
// utility. Devices that fail the info query or advertise no pixel formats
// are excluded with a logged reason; there are no retries, a transiently
// busy device is simply skipped for the run.
package devices

import (
	"context"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/pearsedarcy/cam-tests/internal/events"
	"github.com/pearsedarcy/cam-tests/internal/logging"
)

// Device describes a usable capture device.
type Device struct {
	Path    string   // device node, e.g. /dev/video0
	Name    string   // card name reported by the driver
	Formats []string // advertised pixel format fourccs, e.g. MJPG, YUYV
}

// Base returns the device node base name, e.g. "video0".
func (d Device) Base() string {
	return filepath.Base(d.Path)
}

// HasFormat reports whether the device advertises the given fourcc.
func (d Device) HasFormat(fourcc string) bool {
	for _, f := range d.Formats {
		if f == fourcc {
			return true
		}
	}
	return false
}

// CommandRunner abstracts external command invocation so tests can fake
// v4l2-ctl output.
type CommandRunner interface {
	Output(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Output(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// ExecRunner returns a CommandRunner backed by os/exec.
func ExecRunner() CommandRunner {
	return execRunner{}
}

// captureCardPattern matches card descriptions of USB and HDMI capture
// hardware; anything else (ISP nodes, codec nodes) is excluded.
var captureCardPattern = regexp.MustCompile(`(?i)usb|hdmi`)

// fourccPattern extracts quoted pixel format codes from
// `v4l2-ctl --list-formats-ext` output.
var fourccPattern = regexp.MustCompile(`'([A-Z0-9]{3,4})'`)

// cardTypePattern extracts the card name from `v4l2-ctl --all` output.
var cardTypePattern = regexp.MustCompile(`Card type\s*:\s*(.+)`)

// Enumerator discovers capture devices.
type Enumerator struct {
	runner CommandRunner
	glob   string
	bus    *events.Bus
	logger logging.Logger
}

// NewEnumerator creates an enumerator scanning /dev/video*.
// bus may be nil; exclusions are then only logged.
func NewEnumerator(bus *events.Bus) *Enumerator {
	return &Enumerator{
		runner: ExecRunner(),
		glob:   "/dev/video*",
		bus:    bus,
		logger: logging.GetLogger("devices"),
	}
}

// SetRunner replaces the command runner. Used by tests.
func (e *Enumerator) SetRunner(r CommandRunner) { e.runner = r }

// SetGlob replaces the device node glob. Used by tests.
func (e *Enumerator) SetGlob(glob string) { e.glob = glob }

// Enumerate returns all capture devices that answer the device-info query
// and advertise at least one pixel format.
func (e *Enumerator) Enumerate(ctx context.Context) ([]Device, error) {
	paths, err := filepath.Glob(e.glob)
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	var found []Device
	for _, path := range paths {
		dev, reason := e.probe(ctx, path)
		if reason != "" {
			e.exclude(path, reason)
			continue
		}
		e.logger.Info("Found capture device",
			"path", dev.Path, "name", dev.Name, "formats", strings.Join(dev.Formats, " "))
		found = append(found, dev)
	}
	return found, nil
}

// probe checks a single device node. An empty reason means usable.
func (e *Enumerator) probe(ctx context.Context, path string) (Device, string) {
	info, err := e.runner.Output(ctx, "v4l2-ctl", "--device="+path, "--all")
	if err != nil {
		return Device{}, "device info query failed: " + err.Error()
	}
	if !captureCardPattern.Match(info) {
		return Device{}, "not a USB/HDMI capture device"
	}

	name := "Unknown Device"
	if m := cardTypePattern.FindSubmatch(info); m != nil {
		name = strings.TrimSpace(string(m[1]))
	}

	formatsOut, err := e.runner.Output(ctx, "v4l2-ctl", "-d", path, "--list-formats-ext")
	if err != nil {
		return Device{}, "format listing failed: " + err.Error()
	}
	formats := parseFourccs(formatsOut)
	if len(formats) == 0 {
		return Device{}, "no supported pixel formats"
	}

	return Device{Path: path, Name: name, Formats: formats}, ""
}

func (e *Enumerator) exclude(path, reason string) {
	e.logger.Warn("Skipping device", "path", path, "reason", reason)
	if e.bus != nil {
		e.bus.Publish(events.DeviceExcludedEvent{Device: path, Reason: reason})
	}
}

// parseFourccs extracts the unique pixel format codes in first-seen order.
func parseFourccs(out []byte) []string {
	seen := make(map[string]bool)
	var formats []string
	for _, m := range fourccPattern.FindAllSubmatch(out, -1) {
		code := string(m[1])
		if !seen[code] {
			seen[code] = true
			formats = append(formats, code)
		}
	}
	return formats
}
