package sampler

import (
	"regexp"
	"time"

	"github.com/prometheus/procfs"
	"github.com/prometheus/procfs/blockdevice"

	"github.com/pearsedarcy/cam-tests/internal/logging"
)

// Reading is one best-effort snapshot of system resource usage.
// A value that could not be obtained is zero.
type Reading struct {
	CPUPercent    float64
	MemUsedMB     float64
	DiskWriteKBps float64
}

// Names of devices that never count toward disk throughput.
var skipDevicePattern = regexp.MustCompile(`^(loop|ram|zram|sr|fd|dm-|md)`)

// Partition entries are skipped so writes are not counted twice.
var partitionPattern = regexp.MustCompile(`(^(sd|hd|vd|xvd)[a-z]+\d+$)|(^(nvme|mmcblk)\w*p\d+$)`)

const sectorSizeBytes = 512

// Reader polls /proc for CPU, memory and disk figures. CPU percent and disk
// write rate are deltas between consecutive reads, so the first Read of a
// Reader reports zero for both.
type Reader struct {
	fs     procfs.FS
	bfs    blockdevice.FS
	fsOK   bool
	bfsOK  bool
	logger logging.Logger
	now    func() time.Time

	prevBusy    float64
	prevTotal   float64
	prevSectors uint64
	prevTime    time.Time
	primed      bool
}

// NewReader creates a reader against the standard /proc and /sys mounts.
func NewReader(logger logging.Logger) *Reader {
	return NewReaderWithMounts(procfs.DefaultMountPoint, "/sys", logger)
}

// NewReaderWithMounts creates a reader against alternate mount points.
// Used by tests with fixture directories.
func NewReaderWithMounts(procMount, sysMount string, logger logging.Logger) *Reader {
	r := &Reader{logger: logger, now: time.Now}

	fs, err := procfs.NewFS(procMount)
	if err != nil {
		logger.Warn("procfs unavailable, CPU and memory readings will be zero", "error", err)
	} else {
		r.fs = fs
		r.fsOK = true
	}

	bfs, err := blockdevice.NewFS(procMount, sysMount)
	if err != nil {
		logger.Warn("diskstats unavailable, disk readings will be zero", "error", err)
	} else {
		r.bfs = bfs
		r.bfsOK = true
	}

	return r
}

// Read returns the current reading. Never fails; unobtainable values are zero.
func (r *Reader) Read() Reading {
	now := r.now()
	reading := Reading{
		MemUsedMB: r.readMemUsedMB(),
	}

	busy, total, cpuOK := r.readCPU()
	sectors, diskOK := r.readWriteSectors()

	if r.primed {
		elapsed := now.Sub(r.prevTime).Seconds()
		if cpuOK && total > r.prevTotal {
			reading.CPUPercent = 100 * (busy - r.prevBusy) / (total - r.prevTotal)
			if reading.CPUPercent < 0 {
				reading.CPUPercent = 0
			}
		}
		if diskOK && elapsed > 0 && sectors >= r.prevSectors {
			bytes := float64(sectors-r.prevSectors) * sectorSizeBytes
			reading.DiskWriteKBps = bytes / 1024 / elapsed
		}
	}

	if cpuOK {
		r.prevBusy, r.prevTotal = busy, total
	}
	if diskOK {
		r.prevSectors = sectors
	}
	r.prevTime = now
	r.primed = true

	return reading
}

// readCPU returns cumulative busy and total CPU seconds.
func (r *Reader) readCPU() (busy, total float64, ok bool) {
	if !r.fsOK {
		return 0, 0, false
	}
	stat, err := r.fs.Stat()
	if err != nil {
		r.logger.Debug("failed to read /proc/stat", "error", err)
		return 0, 0, false
	}
	c := stat.CPUTotal
	busy = c.User + c.Nice + c.System + c.IRQ + c.SoftIRQ + c.Steal
	total = busy + c.Idle + c.Iowait
	return busy, total, true
}

// readMemUsedMB mirrors the "used" column of free(1):
// total - free - buffers - cache.
func (r *Reader) readMemUsedMB() float64 {
	if !r.fsOK {
		return 0
	}
	mi, err := r.fs.Meminfo()
	if err != nil {
		r.logger.Debug("failed to read /proc/meminfo", "error", err)
		return 0
	}
	if mi.MemTotal == nil || mi.MemFree == nil {
		return 0
	}
	usedKB := *mi.MemTotal - *mi.MemFree
	if mi.Buffers != nil {
		usedKB -= *mi.Buffers
	}
	if mi.Cached != nil {
		usedKB -= *mi.Cached
	}
	return float64(usedKB) / 1024
}

// readWriteSectors returns cumulative sectors written across whole disks.
func (r *Reader) readWriteSectors() (uint64, bool) {
	if !r.bfsOK {
		return 0, false
	}
	stats, err := r.bfs.ProcDiskstats()
	if err != nil {
		r.logger.Debug("failed to read /proc/diskstats", "error", err)
		return 0, false
	}
	var sectors uint64
	for _, s := range stats {
		name := s.Info.DeviceName
		if skipDevicePattern.MatchString(name) || partitionPattern.MatchString(name) {
			continue
		}
		sectors += s.IOStats.WriteSectors
	}
	return sectors, true
}
