// Package diagnose runs environment readiness checks for capture runs:
// required binaries, device visibility, permissions and an optional
// one-frame probe per device.
package diagnose

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/user"
	"runtime"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/pearsedarcy/cam-tests/internal/devices"
	"github.com/pearsedarcy/cam-tests/internal/ffmpeg"
	"github.com/pearsedarcy/cam-tests/internal/logging"
	"github.com/pearsedarcy/cam-tests/internal/process"
)

// RequiredBinaries must be on PATH for a run to start.
var RequiredBinaries = []string{"ffmpeg", "v4l2-ctl"}

// probeTimeout bounds the one-frame capture probe per device.
const probeTimeout = 10 * time.Second

// Check is one readiness check result.
type Check struct {
	Name     string
	OK       bool
	Detail   string
	Required bool
}

// Report is the full set of checks from one diagnose pass.
type Report struct {
	Checks []Check
}

// Healthy reports whether every required check passed.
func (r Report) Healthy() bool {
	for _, c := range r.Checks {
		if c.Required && !c.OK {
			return false
		}
	}
	return true
}

// MissingBinaries returns the required binaries not found on PATH.
// The run command refuses to start while this is non-empty.
func MissingBinaries() []string {
	var missing []string
	for _, bin := range RequiredBinaries {
		if _, err := exec.LookPath(bin); err != nil {
			missing = append(missing, bin)
		}
	}
	return missing
}

// Diagnostics gathers readiness checks. The lookups are swappable so tests
// can fake the host environment.
type Diagnostics struct {
	logger logging.Logger

	lookPath      func(string) (string, error)
	osReleasePath string
	kernelPath    string
	currentUser   func() (*user.User, error)
	enumerate     func(context.Context) ([]devices.Device, error)
	probe         func(context.Context, devices.Device) error
}

// New creates diagnostics against the real host.
func New() *Diagnostics {
	d := &Diagnostics{
		logger:        logging.GetLogger("diagnose"),
		lookPath:      exec.LookPath,
		osReleasePath: "/etc/os-release",
		kernelPath:    "/proc/sys/kernel/osrelease",
		currentUser:   user.Current,
	}
	d.enumerate = func(ctx context.Context) ([]devices.Device, error) {
		return devices.NewEnumerator(nil).Enumerate(ctx)
	}
	d.probe = d.probeDevice
	return d
}

// Run executes all checks. withProbe additionally captures one frame from
// every eligible device, which takes a few seconds each.
func (d *Diagnostics) Run(ctx context.Context, withProbe bool) Report {
	var report Report
	add := func(c Check) {
		report.Checks = append(report.Checks, c)
		d.logger.Debug("Check complete", "name", c.Name, "ok", c.OK, "detail", c.Detail)
	}

	add(d.checkSystem())
	for _, bin := range RequiredBinaries {
		add(d.checkBinary(bin))
	}
	add(d.checkVideoGroup())

	devs := d.checkDevices(ctx, add)
	if withProbe {
		for _, dev := range devs {
			add(d.checkProbe(ctx, dev))
		}
	}
	return report
}

func (d *Diagnostics) checkSystem() Check {
	detail := runtime.GOARCH
	if kernel, err := os.ReadFile(d.kernelPath); err == nil {
		detail = strings.TrimSpace(string(kernel)) + " " + detail
	}
	if name := d.osPrettyName(); name != "" {
		detail = name + ", " + detail
	}
	return Check{Name: "system", OK: true, Detail: detail}
}

// osPrettyName pulls PRETTY_NAME out of os-release.
func (d *Diagnostics) osPrettyName() string {
	data, err := os.ReadFile(d.osReleasePath)
	if err != nil {
		return ""
	}
	for _, line := range strings.Split(string(data), "\n") {
		if value, ok := strings.CutPrefix(line, "PRETTY_NAME="); ok {
			return strings.Trim(value, `"`)
		}
	}
	return ""
}

func (d *Diagnostics) checkBinary(bin string) Check {
	path, err := d.lookPath(bin)
	if err != nil {
		return Check{Name: bin, Required: true, Detail: "not found on PATH"}
	}
	return Check{Name: bin, OK: true, Required: true, Detail: path}
}

// checkVideoGroup verifies the current user can open V4L2 nodes. Root
// passes without group membership.
func (d *Diagnostics) checkVideoGroup() Check {
	u, err := d.currentUser()
	if err != nil {
		return Check{Name: "video group", Detail: fmt.Sprintf("cannot determine current user: %v", err)}
	}
	if u.Uid == "0" {
		return Check{Name: "video group", OK: true, Detail: "running as root"}
	}

	gids, err := u.GroupIds()
	if err != nil {
		return Check{Name: "video group", Detail: fmt.Sprintf("cannot read groups: %v", err)}
	}
	for _, gid := range gids {
		g, err := user.LookupGroupId(gid)
		if err == nil && g.Name == "video" {
			return Check{Name: "video group", OK: true, Detail: u.Username + " is in video"}
		}
	}
	return Check{Name: "video group", Detail: u.Username + " is not in the video group"}
}

func (d *Diagnostics) checkDevices(ctx context.Context, add func(Check)) []devices.Device {
	devs, err := d.enumerate(ctx)
	if err != nil {
		add(Check{Name: "devices", Required: true, Detail: err.Error()})
		return nil
	}
	if len(devs) == 0 {
		add(Check{Name: "devices", Required: true, Detail: "no capture devices found"})
		return nil
	}

	var names []string
	for _, dev := range devs {
		names = append(names, fmt.Sprintf("%s (%s: %s)", dev.Path, dev.Name, strings.Join(dev.Formats, " ")))
	}
	add(Check{Name: "devices", OK: true, Required: true, Detail: strings.Join(names, "; ")})
	return devs
}

func (d *Diagnostics) checkProbe(ctx context.Context, dev devices.Device) Check {
	name := "probe " + dev.Base()
	if err := d.probe(ctx, dev); err != nil {
		return Check{Name: name, Detail: err.Error()}
	}
	return Check{Name: name, OK: true, Detail: "captured one frame"}
}

// probeDevice grabs a single frame and discards it.
func (d *Diagnostics) probeDevice(ctx context.Context, dev devices.Device) error {
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	proc := process.New("probe-"+dev.Base(), ffmpeg.BuildProbeCommand(dev.Path), d.logger)
	code, err := proc.Run(probeCtx)
	if err != nil {
		return fmt.Errorf("probe failed: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("probe exited with code %d", code)
	}
	return nil
}

// RenderText writes the report as an aligned OK/FAIL table.
func RenderText(w io.Writer, report Report) error {
	tw := tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)
	for _, c := range report.Checks {
		status := "FAIL"
		if c.OK {
			status = "OK"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\n", status, c.Name, c.Detail)
	}
	return tw.Flush()
}
