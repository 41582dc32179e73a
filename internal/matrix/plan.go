package matrix

import (
	"fmt"
	"time"

	"github.com/pearsedarcy/cam-tests/internal/devices"
)

// incompatibleReason reports why a format/encoder pair can never produce a
// valid recording, or "" when the pair is viable. Raw pixel data cannot be
// stream-copied into a compressed container.
func incompatibleReason(f Format, e Encoder) string {
	if f.Raw && e.Name == "copy" {
		return fmt.Sprintf("raw %s cannot be stream-copied into %s", f.FourCC, f.Container)
	}
	return ""
}

// BuildPlan expands devices into the ordered job list: for each device, every
// recognized format the device advertises, crossed with every encoder.
// Formats a device does not advertise produce no job at all; statically
// incompatible pairs are still planned so the run records them as skipped.
// Device order, then format order, then encoder order is preserved.
func BuildPlan(devs []devices.Device, formats []Format, encoders []Encoder, duration time.Duration) []Job {
	var jobs []Job
	for _, dev := range devs {
		for _, f := range formats {
			if !dev.HasFormat(f.FourCC) {
				continue
			}
			for _, e := range encoders {
				jobs = append(jobs, Job{
					Device:   dev,
					Format:   f,
					Encoder:  e,
					Duration: duration,
				})
			}
		}
	}
	return jobs
}
