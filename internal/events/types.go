package events

// Event type constants for kelindar/event.
const (
	TypeJobStarted uint32 = iota + 1
	TypeJobFinished
	TypeJobSkipped
	TypeDeviceExcluded
	TypeSample
)

// Event interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// JobStartedEvent is published when a capture job begins running.
type JobStartedEvent struct {
	Job      string `json:"job"`
	Device   string `json:"device"`
	Format   string `json:"format"`
	Encoder  string `json:"encoder"`
	Index    int    `json:"index"`
	Total    int    `json:"total"`
	Deadline string `json:"deadline"`
}

// Type returns the event type identifier for JobStartedEvent.
func (e JobStartedEvent) Type() uint32 { return TypeJobStarted }

// JobFinishedEvent is published when a capture job reaches a terminal state.
type JobFinishedEvent struct {
	Job       string `json:"job"`
	Device    string `json:"device"`
	State     string `json:"state"`
	SizeBytes int64  `json:"size_bytes"`
	Error     string `json:"error,omitempty"`
	ErrorLog  string `json:"error_log,omitempty"`
}

// Type returns the event type identifier for JobFinishedEvent.
func (e JobFinishedEvent) Type() uint32 { return TypeJobFinished }

// JobSkippedEvent is published for statically incompatible combinations.
type JobSkippedEvent struct {
	Job    string `json:"job"`
	Device string `json:"device"`
	Reason string `json:"reason"`
}

// Type returns the event type identifier for JobSkippedEvent.
func (e JobSkippedEvent) Type() uint32 { return TypeJobSkipped }

// DeviceExcludedEvent is published when a device fails the enumeration checks.
type DeviceExcludedEvent struct {
	Device string `json:"device"`
	Reason string `json:"reason"`
}

// Type returns the event type identifier for DeviceExcludedEvent.
func (e DeviceExcludedEvent) Type() uint32 { return TypeDeviceExcluded }

// SampleEvent carries one resource-usage reading from a job's sampler.
type SampleEvent struct {
	Job           string  `json:"job"`
	Timestamp     int64   `json:"timestamp"`
	CPUPercent    float64 `json:"cpu_percent"`
	MemUsedMB     float64 `json:"mem_used_mb"`
	DiskWriteKBps float64 `json:"disk_write_kbps"`
}

// Type returns the event type identifier for SampleEvent.
func (e SampleEvent) Type() uint32 { return TypeSample }
