// Package sampler records periodic resource-usage telemetry for capture
// jobs. Each job gets its own CSV log: a header row followed by one sample
// per interval for the job's duration. Readings are best effort; a value
// that cannot be obtained is written as zero rather than aborting the loop.
package sampler

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/pearsedarcy/cam-tests/internal/events"
	"github.com/pearsedarcy/cam-tests/internal/logging"
)

// DefaultInterval is one sample per second.
const DefaultInterval = time.Second

// Header is the CSV header row of every sampler log.
var Header = []string{"timestamp", "cpu_percent", "mem_used_mb", "disk_write_kbps"}

// Sampler writes resource-usage CSV rows at a fixed interval.
type Sampler struct {
	reader   *Reader
	interval time.Duration
	bus      *events.Bus
	job      string
	logger   logging.Logger
}

// New creates a sampler with the default 1 s interval.
// bus may be nil; samples are then only written to the log file.
func New(reader *Reader, bus *events.Bus, logger logging.Logger) *Sampler {
	return &Sampler{
		reader:   reader,
		interval: DefaultInterval,
		bus:      bus,
		logger:   logger,
	}
}

// SetInterval overrides the sampling interval. Used by tests.
func (s *Sampler) SetInterval(d time.Duration) { s.interval = d }

// SetJob tags published SampleEvents with a job name.
func (s *Sampler) SetJob(job string) { s.job = job }

// Run writes the header then one row per elapsed interval until the duration
// is spent or ctx is cancelled, whichever comes first. A duration of N
// intervals produces exactly N+1 lines. Early cancellation is not an error;
// the file keeps the rows written so far.
func (s *Sampler) Run(ctx context.Context, duration time.Duration, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create sampler log: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	w.Flush()

	count := int(duration / s.interval)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for i := 0; i < count; i++ {
		select {
		case <-ctx.Done():
			s.logger.Debug("sampler cancelled", "job", s.job, "rows", i)
			return w.Error()
		case <-ticker.C:
			reading := s.reader.Read()
			ts := time.Now().Unix()
			row := []string{
				strconv.FormatInt(ts, 10),
				strconv.FormatFloat(reading.CPUPercent, 'f', 1, 64),
				strconv.FormatFloat(reading.MemUsedMB, 'f', 0, 64),
				strconv.FormatFloat(reading.DiskWriteKBps, 'f', 1, 64),
			}
			if err := w.Write(row); err != nil {
				return fmt.Errorf("write sample: %w", err)
			}
			w.Flush()

			if s.bus != nil {
				s.bus.Publish(events.SampleEvent{
					Job:           s.job,
					Timestamp:     ts,
					CPUPercent:    reading.CPUPercent,
					MemUsedMB:     reading.MemUsedMB,
					DiskWriteKBps: reading.DiskWriteKBps,
				})
			}
		}
	}

	return w.Error()
}
