// Package summary aggregates the sampler logs of a results directory into
// per-test resource statistics, with text and HTML renderers.
package summary

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/pearsedarcy/cam-tests/internal/logging"
)

// ErrNoLogs is returned when the results directory holds no sampler logs.
var ErrNoLogs = errors.New("no log files found")

// Entry is the aggregated record for one capture job.
type Entry struct {
	Test    string  // job name, the log file stem
	AvgCPU  float64 // mean cpu_percent over the job
	MaxMem  float64 // peak mem_used_mb
	AvgDisk float64 // mean disk_write_kbps
	SizeMB  float64 // media file size, 0 when the recording is missing
	Samples int
}

// mediaExtensions are checked in order when pairing a log with its recording.
var mediaExtensions = []string{".mp4", ".avi"}

// Summarize reads every sampler log under dir and returns one entry per job,
// sorted by average CPU ascending. Unreadable or malformed logs are skipped
// with a warning rather than failing the whole summary.
func Summarize(dir string) ([]Entry, error) {
	logger := logging.GetLogger("summary")

	paths, err := filepath.Glob(filepath.Join(dir, "*.log"))
	if err != nil {
		return nil, fmt.Errorf("scan results dir: %w", err)
	}

	var entries []Entry
	for _, path := range paths {
		if strings.HasSuffix(path, ".error.log") {
			continue
		}
		entry, err := summarizeLog(path)
		if err != nil {
			logger.Warn("Skipping unreadable log", "path", path, "error", err)
			continue
		}
		entry.SizeMB = mediaSizeMB(path)
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, ErrNoLogs
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].AvgCPU != entries[j].AvgCPU {
			return entries[i].AvgCPU < entries[j].AvgCPU
		}
		return entries[i].Test < entries[j].Test
	})
	return entries, nil
}

// summarizeLog aggregates one sampler CSV. Columns are addressed by header
// name so column order never matters. A header-only log yields zero stats.
func summarizeLog(path string) (Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return Entry{}, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if err != nil {
		return Entry{}, fmt.Errorf("read header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"cpu_percent", "mem_used_mb", "disk_write_kbps"} {
		if _, ok := col[required]; !ok {
			return Entry{}, fmt.Errorf("missing column %q", required)
		}
	}

	entry := Entry{Test: strings.TrimSuffix(filepath.Base(path), ".log")}
	var cpuSum, diskSum float64
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Entry{}, fmt.Errorf("read row: %w", err)
		}
		cpuSum += parseField(row, col["cpu_percent"])
		diskSum += parseField(row, col["disk_write_kbps"])
		if mem := parseField(row, col["mem_used_mb"]); mem > entry.MaxMem {
			entry.MaxMem = mem
		}
		entry.Samples++
	}

	if entry.Samples > 0 {
		entry.AvgCPU = cpuSum / float64(entry.Samples)
		entry.AvgDisk = diskSum / float64(entry.Samples)
	}
	return entry, nil
}

func parseField(row []string, idx int) float64 {
	if idx >= len(row) {
		return 0
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(row[idx]), 64)
	if err != nil {
		return 0
	}
	return v
}

// mediaSizeMB finds the recording that matches a log file and returns its
// size in megabytes, or 0 when no recording exists.
func mediaSizeMB(logPath string) float64 {
	stem := strings.TrimSuffix(logPath, ".log")
	for _, ext := range mediaExtensions {
		if fi, err := os.Stat(stem + ext); err == nil {
			return float64(fi.Size()) / 1024 / 1024
		}
	}
	return 0
}
