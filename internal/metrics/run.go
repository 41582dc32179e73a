// Package metrics provides Prometheus metrics for capture runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pearsedarcy/cam-tests/internal/events"
)

var (
	jobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "camtest",
		Subsystem: "run",
		Name:      "jobs_total",
		Help:      "Capture jobs by terminal state",
	}, []string{"state"})

	jobsRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "camtest",
		Subsystem: "run",
		Name:      "jobs_running",
		Help:      "Capture jobs currently in flight",
	})

	jobCPUPercent = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camtest",
		Subsystem: "job",
		Name:      "cpu_percent",
		Help:      "Latest sampled CPU utilisation during a capture job",
	}, []string{"job"})

	jobMemUsedMB = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camtest",
		Subsystem: "job",
		Name:      "mem_used_mb",
		Help:      "Latest sampled memory usage during a capture job",
	}, []string{"job"})

	jobDiskWriteKBps = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "camtest",
		Subsystem: "job",
		Name:      "disk_write_kbps",
		Help:      "Latest sampled disk write rate during a capture job",
	}, []string{"job"})
)

// Bind wires the run metrics to the event bus. Returns an unsubscribe
// function that detaches all handlers.
func Bind(bus *events.Bus) func() {
	unsubs := []func(){
		bus.Subscribe(func(e events.JobStartedEvent) {
			jobsRunning.Inc()
		}),
		bus.Subscribe(func(e events.JobFinishedEvent) {
			jobsRunning.Dec()
			jobsTotal.WithLabelValues(e.State).Inc()
			// the job is over, its sample gauges are stale
			jobCPUPercent.DeleteLabelValues(e.Job)
			jobMemUsedMB.DeleteLabelValues(e.Job)
			jobDiskWriteKBps.DeleteLabelValues(e.Job)
		}),
		bus.Subscribe(func(e events.JobSkippedEvent) {
			jobsTotal.WithLabelValues("skipped").Inc()
		}),
		bus.Subscribe(func(e events.SampleEvent) {
			jobCPUPercent.WithLabelValues(e.Job).Set(e.CPUPercent)
			jobMemUsedMB.WithLabelValues(e.Job).Set(e.MemUsedMB)
			jobDiskWriteKBps.WithLabelValues(e.Job).Set(e.DiskWriteKBps)
		}),
	}
	return func() {
		for _, u := range unsubs {
			u()
		}
	}
}
