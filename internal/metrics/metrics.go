// Package metrics collects engine-wide counters and produces a final
// Report, adapted from metrics.Metrics/Report in the teacher repo: plain
// atomic counters plus a JSON-marshalable snapshot for console/API
// reporting.
package metrics

import (
	"fmt"
	"sync/atomic"
	"time"

	json "github.com/goccy/go-json"
	"github.com/teamcache/tcmanager/internal/events"
)

// Metrics collects engine-wide counters across the lifetime of a process.
type Metrics struct {
	filesWarmed    int64
	filesFailed    int64
	bytesWarmed    int64
	jobsCreated    int64
	jobsCompleted  int64
	jobsFailed     int64
	jobsCancelled  int64
	entriesIndexed int64

	startTime time.Time
}

// New creates a Metrics instance with its clock started.
func New() *Metrics {
	return &Metrics{startTime: time.Now()}
}

// RecordFileWarmed records a successfully warmed file and its byte count.
func (m *Metrics) RecordFileWarmed(size int64) {
	atomic.AddInt64(&m.filesWarmed, 1)
	atomic.AddInt64(&m.bytesWarmed, size)
}

// RecordFileFailed records a failed warm attempt.
func (m *Metrics) RecordFileFailed() {
	atomic.AddInt64(&m.filesFailed, 1)
}

// RecordJobCreated records a new Job.
func (m *Metrics) RecordJobCreated() {
	atomic.AddInt64(&m.jobsCreated, 1)
}

// RecordJobTerminal records a Job's terminal status.
func (m *Metrics) RecordJobTerminal(status string) {
	switch status {
	case "completed":
		atomic.AddInt64(&m.jobsCompleted, 1)
	case "failed":
		atomic.AddInt64(&m.jobsFailed, 1)
	case "cancelled":
		atomic.AddInt64(&m.jobsCancelled, 1)
	}
}

// RecordEntriesIndexed adds n to the running total of entries the Indexer
// has processed, whether or not they were rewritten in the catalog.
func (m *Metrics) RecordEntriesIndexed(n int64) {
	atomic.AddInt64(&m.entriesIndexed, n)
}

// Subscribe registers m on bus so file-completed, file-failed, job-created,
// job-completed, job-failed and index-complete events update its counters
// (no event is published on cancellation, so JobsCancelled changes only
// through RecordJobTerminal), keeping metrics collection decoupled from the components that
// publish events (section 4.G: the bus fans out to any number of
// observers; Metrics is simply one more subscriber).
func (m *Metrics) Subscribe(bus *events.Bus) {
	bus.Subscribe(func(ev events.Event) {
		switch ev.Kind {
		case events.KindFileCompleted:
			m.RecordFileWarmed(ev.SizeBytes)
		case events.KindFileFailed:
			m.RecordFileFailed()
		case events.KindJobCreated:
			m.RecordJobCreated()
		case events.KindJobCompleted:
			m.RecordJobTerminal("completed")
		case events.KindJobFailed:
			m.RecordJobTerminal("failed")
		case events.KindIndexComplete:
			m.RecordEntriesIndexed(ev.TotalFiles)
		}
	})
}

// Report is a point-in-time snapshot of engine metrics.
type Report struct {
	StartTime      time.Time     `json:"startTime"`
	GeneratedAt    time.Time     `json:"generatedAt"`
	Uptime         time.Duration `json:"uptime"`
	FilesWarmed    int64         `json:"filesWarmed"`
	FilesFailed    int64         `json:"filesFailed"`
	BytesWarmed    int64         `json:"bytesWarmed"`
	JobsCreated    int64         `json:"jobsCreated"`
	JobsCompleted  int64         `json:"jobsCompleted"`
	JobsFailed     int64         `json:"jobsFailed"`
	JobsCancelled  int64         `json:"jobsCancelled"`
	EntriesIndexed int64         `json:"entriesIndexed"`
}

// GenerateReport snapshots the current counters into a Report.
func (m *Metrics) GenerateReport() Report {
	now := time.Now()
	return Report{
		StartTime:      m.startTime,
		GeneratedAt:     now,
		Uptime:          now.Sub(m.startTime),
		FilesWarmed:     atomic.LoadInt64(&m.filesWarmed),
		FilesFailed:     atomic.LoadInt64(&m.filesFailed),
		BytesWarmed:     atomic.LoadInt64(&m.bytesWarmed),
		JobsCreated:     atomic.LoadInt64(&m.jobsCreated),
		JobsCompleted:   atomic.LoadInt64(&m.jobsCompleted),
		JobsFailed:      atomic.LoadInt64(&m.jobsFailed),
		JobsCancelled:   atomic.LoadInt64(&m.jobsCancelled),
		EntriesIndexed:  atomic.LoadInt64(&m.entriesIndexed),
	}
}

// MarshalJSON formats the report with a human-readable uptime string, the
// way metrics.Report does for its duration field.
func (r Report) MarshalJSON() ([]byte, error) {
	type Alias Report
	return json.Marshal(&struct {
		Alias
		Uptime string `json:"uptime"`
	}{
		Alias:  Alias(r),
		Uptime: r.Uptime.String(),
	})
}

// String renders the report for console output.
func (r Report) String() string {
	return fmt.Sprintf(
		"Engine uptime: %s\n"+
			"Files warmed: %d (%d bytes)\n"+
			"Files failed: %d\n"+
			"Jobs: %d created, %d completed, %d failed, %d cancelled\n"+
			"Entries indexed: %d",
		r.Uptime.Round(time.Second), r.FilesWarmed, r.BytesWarmed, r.FilesFailed,
		r.JobsCreated, r.JobsCompleted, r.JobsFailed, r.JobsCancelled, r.EntriesIndexed,
	)
}
