// Package catalog implements the Catalog Store (component A of the design
// specification): the durable record of every known filesystem entry, cache
// state, and job state. It is the primary source of truth and the sole
// synchronization point for the engine (section 5).
package catalog

import "time"

// EntryStatus-adjacent booleans live directly on Entry, matching section 3.

// Entry is one row per filesystem path ever observed by an Indexer run.
type Entry struct {
	Path               string
	ParentPath         string // empty for roots
	Name               string
	IsDirectory        bool
	Size               int64
	ModifiedAt         time.Time
	Permissions        uint32
	Cached             bool
	CachedAt           *time.Time
	CacheJobID         *string
	LastSeenSessionID  string
	Metadata           EntryMetadata
}

// IndexSessionStatus enumerates the lifecycle of one Indexer run.
type IndexSessionStatus string

const (
	SessionPending   IndexSessionStatus = "pending"
	SessionRunning   IndexSessionStatus = "running"
	SessionCompleted IndexSessionStatus = "completed"
	SessionFailed    IndexSessionStatus = "failed"
	SessionStopped   IndexSessionStatus = "stopped"
)

// IndexSession is one row per Indexer run (section 3).
type IndexSession struct {
	ID             string
	RootPath       string
	Status         IndexSessionStatus
	TotalFiles     int64
	ProcessedFiles int64
	CurrentPath    string
	StartedAt      time.Time
	CompletedAt    *time.Time
	ErrorMessage   string
}

// JobStatus enumerates the lifecycle of a cache-warm Job.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobPaused    JobStatus = "paused"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
	JobCancelled JobStatus = "cancelled"
)

// Terminal reports whether a JobStatus cannot transition further on its own.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobCompleted, JobFailed, JobCancelled:
		return true
	default:
		return false
	}
}

// Job is one cache-warm request (section 3). FilePaths is an immutable
// snapshot of the selection taken at creation time.
type Job struct {
	ID                 string
	FilePaths          []string
	DirectoryPaths     []string
	ProfileID          string
	TotalFiles         int64
	CompletedFiles     int64
	FailedFiles        int64
	CompletedSizeBytes int64
	Status             JobStatus
	WorkerID           string
	CreatedAt          time.Time
	StartedAt          *time.Time
	CompletedAt        *time.Time
}

// JobItemStatus enumerates the lifecycle of a single file within a Job.
type JobItemStatus string

const (
	ItemPending   JobItemStatus = "pending"
	ItemRunning   JobItemStatus = "running"
	ItemCompleted JobItemStatus = "completed"
	ItemFailed    JobItemStatus = "failed"
)

// JobItem is one row per file within a Job (section 3).
type JobItem struct {
	ID              int64
	JobID           string
	FilePath        string
	Status          JobItemStatus
	WorkerID        string
	FileSizeBytes   int64
	ErrorMessage    string
	StartedAt       *time.Time
	CompletedAt     *time.Time
	LeaseExpiresAt  *time.Time
}

// Profile is a named execution template (section 3). Representative
// profiles that must exist in any deployment are listed in NamedProfiles.
type Profile struct {
	ID                 string
	Name               string
	Priority           int
	IsDefault          bool
	WorkerCount        int
	MaxConcurrentFiles int
	WorkerPollInterval time.Duration
}

// NamedProfiles enumerates the profile names the Profile Selector (section
// 4.C) classifies input into. Every deployment must seed these.
const (
	ProfileGeneral        = "general"
	ProfileImageSequences = "image-sequences"
	ProfileLargeVideos    = "large-videos"
	ProfileProxyMedia     = "proxy-media"
	ProfileSmallFiles     = "small-files"
)

// DirectoryValidation is the result of ValidateDirectoryCacheStatus
// (section 4.A).
type DirectoryValidation struct {
	TotalFiles       int64
	CachedFiles      int64
	Subdirs          int64
	CachedSubdirs    int64
	ShouldBeCached   bool
}

// FSObservation is a filesystem-observed (path, modified_at, size) triple,
// the input to BatchNeedsIndexing (section 4.A).
type FSObservation struct {
	Path       string
	ModifiedAt time.Time
	Size       int64
}
