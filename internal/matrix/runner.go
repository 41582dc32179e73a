package matrix

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pearsedarcy/cam-tests/internal/devices"
	"github.com/pearsedarcy/cam-tests/internal/events"
	"github.com/pearsedarcy/cam-tests/internal/ffmpeg"
	"github.com/pearsedarcy/cam-tests/internal/logging"
	"github.com/pearsedarcy/cam-tests/internal/process"
	"github.com/pearsedarcy/cam-tests/internal/sampler"
)

// Config holds the capture parameters shared by every job in a run.
type Config struct {
	ResultsDir string
	Duration   time.Duration // capture length per job
	Grace      time.Duration // extra time beyond Duration before the capture is terminated
	Resolution string        // e.g. "1920x1080"
	FPS        int
}

// Policy controls job scheduling for a run.
type Policy struct {
	MaxConcurrent   int           // 1 runs jobs in order; 0 means unbounded
	Stagger         time.Duration // delay between concurrent launches
	Pause           time.Duration // delay between jobs when running in order
	DeviceExclusive bool          // serialize jobs that share a device node
}

// Sequential is the default policy: one job at a time, a short pause between.
func Sequential() Policy {
	return Policy{MaxConcurrent: 1, Pause: time.Second}
}

// Parallel launches all jobs with a stagger. Jobs sharing a device node are
// still serialized so two captures never contend for the same hardware.
func Parallel() Policy {
	return Policy{Stagger: time.Second, DeviceExclusive: true}
}

// Runner executes a planned job list under a scheduling policy. Each job
// gets a supervised ffmpeg capture and a concurrent resource sampler; the
// sampler is always stopped when its capture ends, however the capture ends.
type Runner struct {
	cfg    Config
	policy Policy
	bus    *events.Bus
	logger logging.Logger

	buildCommand    func(Job) string
	newSampler      func(jobName string) *sampler.Sampler
	samplerInterval time.Duration
}

// NewRunner creates a runner. bus may be nil.
func NewRunner(cfg Config, policy Policy, bus *events.Bus) *Runner {
	r := &Runner{
		cfg:             cfg,
		policy:          policy,
		bus:             bus,
		logger:          logging.GetLogger("matrix"),
		samplerInterval: sampler.DefaultInterval,
	}
	r.buildCommand = r.defaultCommand
	r.newSampler = r.defaultSampler
	return r
}

// SetCommandBuilder overrides capture command construction. Used by tests.
func (r *Runner) SetCommandBuilder(fn func(Job) string) { r.buildCommand = fn }

// SetSamplerInterval overrides the per-job sampling interval. Used by tests.
func (r *Runner) SetSamplerInterval(d time.Duration) { r.samplerInterval = d }

func (r *Runner) defaultCommand(j Job) string {
	return ffmpeg.BuildCaptureCommand(ffmpeg.CaptureParams{
		DevicePath:  j.Device.Path,
		InputFormat: j.Format.FFmpeg,
		Resolution:  r.cfg.Resolution,
		FPS:         r.cfg.FPS,
		EncoderArgs: j.Encoder.Args,
		Duration:    j.Duration,
		OutputPath:  j.OutputPath(r.cfg.ResultsDir),
	})
}

func (r *Runner) defaultSampler(jobName string) *sampler.Sampler {
	s := sampler.New(sampler.NewReader(logging.GetLogger("sampler")), r.bus, logging.GetLogger("sampler"))
	s.SetInterval(r.samplerInterval)
	s.SetJob(jobName)
	return s
}

// Run executes every job in the plan and returns the tally and per-job
// results in plan order. Job failures are recorded, not returned; the error
// covers run-level problems only.
func (r *Runner) Run(ctx context.Context, devs []devices.Device) (Tally, []Result, error) {
	jobs := BuildPlan(devs, DefaultFormats, DefaultEncoders, r.cfg.Duration)

	if err := os.MkdirAll(r.cfg.ResultsDir, 0o755); err != nil {
		return Tally{}, nil, fmt.Errorf("create results dir: %w", err)
	}

	limit := r.policy.MaxConcurrent
	if limit <= 0 {
		limit = len(jobs)
	}
	if limit < 1 {
		limit = 1
	}
	sequential := limit == 1
	sem := make(chan struct{}, limit)

	var deviceLocks map[string]*sync.Mutex
	if r.policy.DeviceExclusive {
		deviceLocks = make(map[string]*sync.Mutex)
		for _, j := range jobs {
			if _, ok := deviceLocks[j.Device.Path]; !ok {
				deviceLocks[j.Device.Path] = &sync.Mutex{}
			}
		}
	}

	results := make([]Result, len(jobs))
	var wg sync.WaitGroup

	for i := range jobs {
		jobs[i].Timestamp = time.Now()
		idx, job := i, jobs[i]

		if reason := incompatibleReason(job.Format, job.Encoder); reason != "" {
			r.logger.Info("Skipping incompatible combination",
				"job", job.Name(), "format", job.Format.Name, "encoder", job.Encoder.Name, "reason", reason)
			results[idx] = Result{Job: job, State: StateSkipped, Reason: reason}
			if r.bus != nil {
				r.bus.Publish(events.JobSkippedEvent{Job: job.Name(), Device: job.Device.Path, Reason: reason})
			}
			continue
		}

		if ctx.Err() != nil {
			results[idx] = Result{Job: job, State: StateFailed, Reason: "run cancelled: " + ctx.Err().Error()}
			continue
		}

		if sequential {
			results[idx] = r.execute(ctx, idx, len(jobs), job)
			if idx < len(jobs)-1 && r.policy.Pause > 0 {
				sleepCtx(ctx, r.policy.Pause)
			}
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[idx] = Result{Job: job, State: StateFailed, Reason: "run cancelled: " + ctx.Err().Error()}
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			if deviceLocks != nil {
				lock := deviceLocks[job.Device.Path]
				lock.Lock()
				defer lock.Unlock()
			}
			results[idx] = r.execute(ctx, idx, len(jobs), job)
		}()
		if r.policy.Stagger > 0 {
			sleepCtx(ctx, r.policy.Stagger)
		}
	}
	wg.Wait()

	var tally Tally
	for _, res := range results {
		switch res.State {
		case StateSucceeded:
			tally.Attempted++
			tally.Succeeded++
		case StateFailed:
			tally.Attempted++
			tally.Failed++
		case StateSkipped:
			tally.Skipped++
		}
	}

	r.logger.Info("Run complete",
		"attempted", tally.Attempted,
		"succeeded", tally.Succeeded,
		"failed", tally.Failed,
		"skipped", tally.Skipped,
		"success_rate", fmt.Sprintf("%.0f%%", tally.SuccessRate()))

	return tally, results, nil
}

// execute runs one job: sampler goroutine plus supervised capture. The
// sampler covers the nominal duration; the capture gets duration plus grace
// before it is terminated.
func (r *Runner) execute(ctx context.Context, idx, total int, job Job) Result {
	name := job.Name()
	logPath := job.LogPath(r.cfg.ResultsDir)
	deadline := job.Duration + r.cfg.Grace

	r.logger.Info("Starting capture job",
		"job", name, "index", idx+1, "total", total,
		"device", job.Device.Path, "format", job.Format.Name, "encoder", job.Encoder.Name)
	if r.bus != nil {
		r.bus.Publish(events.JobStartedEvent{
			Job:      name,
			Device:   job.Device.Path,
			Format:   job.Format.Name,
			Encoder:  job.Encoder.Name,
			Index:    idx + 1,
			Total:    total,
			Deadline: time.Now().Add(deadline).Format(time.RFC3339),
		})
	}

	samplerCtx, stopSampler := context.WithCancel(ctx)
	samplerDone := make(chan struct{})
	go func() {
		defer close(samplerDone)
		if err := r.newSampler(name).Run(samplerCtx, job.Duration, logPath); err != nil {
			r.logger.Warn("Sampler failed", "job", name, "error", err)
		}
	}()

	result := r.capture(ctx, job, deadline)

	stopSampler()
	<-samplerDone

	if r.bus != nil {
		ev := events.JobFinishedEvent{
			Job:       name,
			Device:    job.Device.Path,
			State:     string(result.State),
			SizeBytes: result.SizeBytes,
			Error:     result.Reason,
		}
		if result.State == StateFailed {
			ev.ErrorLog = job.ErrorLogPath(r.cfg.ResultsDir)
		}
		r.bus.Publish(ev)
	}
	return result
}

// capture runs the ffmpeg subprocess with stderr routed to the job's error
// log. On success the error log is removed; on failure it is preserved and
// guaranteed non-empty.
func (r *Runner) capture(ctx context.Context, job Job, deadline time.Duration) Result {
	name := job.Name()
	outputPath := job.OutputPath(r.cfg.ResultsDir)
	errorLogPath := job.ErrorLogPath(r.cfg.ResultsDir)

	errFile, err := os.Create(errorLogPath)
	if err != nil {
		return Result{Job: job, State: StateFailed, Reason: fmt.Sprintf("create error log: %v", err)}
	}

	proc := process.New(name, r.buildCommand(job), r.logger)
	proc.SetStderr(errFile)

	captureCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	code, runErr := proc.Run(captureCtx)
	errFile.Close()

	if runErr == nil && code == 0 {
		os.Remove(errorLogPath)
		var size int64
		if fi, statErr := os.Stat(outputPath); statErr == nil {
			size = fi.Size()
		}
		r.logger.Info("Capture succeeded", "job", name, "output", outputPath, "size_bytes", size)
		return Result{Job: job, State: StateSucceeded, SizeBytes: size}
	}

	reason := fmt.Sprintf("exit code %d", code)
	if runErr != nil {
		reason = fmt.Sprintf("exit code %d: %v", code, runErr)
	}
	ensureErrorLog(errorLogPath, reason)
	r.logger.Warn("Capture failed",
		"job", name, "exit_code", code, "error", runErr, "error_log", errorLogPath)
	return Result{Job: job, State: StateFailed, Reason: reason}
}

// ensureErrorLog makes sure a failed job leaves a non-empty error log even
// when the subprocess wrote nothing to stderr.
func ensureErrorLog(path, reason string) {
	fi, err := os.Stat(path)
	if err == nil && fi.Size() > 0 {
		return
	}
	_ = os.WriteFile(path, []byte(reason+"\n"), 0o644)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
