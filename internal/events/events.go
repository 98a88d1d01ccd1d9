// Package events implements the Event Bus (component G of the design
// specification): an in-process, best-effort publish/subscribe mechanism
// that surfaces job and index lifecycle activity to external observers
// such as a WebSocket façade.
package events

import "time"

// Kind is a tagged identifier for one of the event variants this bus
// carries (design note, section 9: "represent events as a tagged sum type,
// not an open map").
type Kind string

const (
	KindIndexProgress Kind = "index-progress"
	KindIndexComplete Kind = "index-complete"
	KindIndexError    Kind = "index-error"
	KindJobCreated    Kind = "job-created"
	KindJobStarted    Kind = "job-started"
	KindJobCompleted  Kind = "job-completed"
	KindJobFailed     Kind = "job-failed"
	KindFileStarted   Kind = "file-started"
	KindFileCompleted Kind = "file-completed"
	KindFileFailed    Kind = "file-failed"
	KindFileProgress  Kind = "file-progress"
)

// Event is the single concrete payload type published on the bus. Only the
// fields relevant to Kind are populated; this keeps the bus a closed set of
// variants instead of an open map while avoiding eleven distinct Go types
// for eleven close cousins of "identifier + counters + optional path".
type Event struct {
	Kind Kind
	At   time.Time

	SessionID string
	JobID     string
	ItemPath  string

	TotalFiles     int64
	ProcessedFiles int64
	CompletedFiles int64
	FailedFiles    int64
	SizeBytes      int64

	ErrorMessage string
}

// IndexProgress builds a KindIndexProgress event.
func IndexProgress(sessionID string, processed, total int64, currentPath string) Event {
	return Event{Kind: KindIndexProgress, At: time.Now(), SessionID: sessionID, ProcessedFiles: processed, TotalFiles: total, ItemPath: currentPath}
}

// IndexComplete builds a KindIndexComplete event.
func IndexComplete(sessionID string, total int64) Event {
	return Event{Kind: KindIndexComplete, At: time.Now(), SessionID: sessionID, TotalFiles: total}
}

// IndexError builds a KindIndexError event.
func IndexError(sessionID string, errMsg string) Event {
	return Event{Kind: KindIndexError, At: time.Now(), SessionID: sessionID, ErrorMessage: errMsg}
}

// JobCreated builds a KindJobCreated event.
func JobCreated(jobID string, totalFiles int64) Event {
	return Event{Kind: KindJobCreated, At: time.Now(), JobID: jobID, TotalFiles: totalFiles}
}

// JobStarted builds a KindJobStarted event.
func JobStarted(jobID string) Event {
	return Event{Kind: KindJobStarted, At: time.Now(), JobID: jobID}
}

// JobCompleted builds a KindJobCompleted event.
func JobCompleted(jobID string, completed, failed int64) Event {
	return Event{Kind: KindJobCompleted, At: time.Now(), JobID: jobID, CompletedFiles: completed, FailedFiles: failed}
}

// JobFailed builds a KindJobFailed event.
func JobFailed(jobID string, completed, failed int64) Event {
	return Event{Kind: KindJobFailed, At: time.Now(), JobID: jobID, CompletedFiles: completed, FailedFiles: failed}
}

// FileStarted builds a KindFileStarted event.
func FileStarted(jobID, path string) Event {
	return Event{Kind: KindFileStarted, At: time.Now(), JobID: jobID, ItemPath: path}
}

// FileCompleted builds a KindFileCompleted event.
func FileCompleted(jobID, path string, sizeBytes int64) Event {
	return Event{Kind: KindFileCompleted, At: time.Now(), JobID: jobID, ItemPath: path, SizeBytes: sizeBytes}
}

// FileFailed builds a KindFileFailed event.
func FileFailed(jobID, path, errMsg string) Event {
	return Event{Kind: KindFileFailed, At: time.Now(), JobID: jobID, ItemPath: path, ErrorMessage: errMsg}
}

// FileProgress builds a throttled KindFileProgress event (section 4.E step 7).
func FileProgress(jobID string, completed, failed, total int64) Event {
	return Event{Kind: KindFileProgress, At: time.Now(), JobID: jobID, CompletedFiles: completed, FailedFiles: failed, TotalFiles: total}
}

