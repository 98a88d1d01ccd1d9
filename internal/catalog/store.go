package catalog

import (
	"context"
	"time"
)

// Store defines the contract for the Catalog Store (section 4.A). Every
// method is a transactional unit. Implementations: PostgresStore (production,
// backed by github.com/lib/pq) and MemoryStore (tests).
type Store interface {
	// UpsertEntries bulk inserts-or-updates by path, chunked to at most
	// 1000 rows per statement, inside one transaction per batch.
	UpsertEntries(ctx context.Context, batch []Entry, sessionID string) ([]Entry, error)

	// FindChildren returns the direct children of parentPath, directories
	// first, then by name.
	FindChildren(ctx context.Context, parentPath string) ([]Entry, error)

	// FindFilesRecursively returns every non-directory descendant of
	// dirPath.
	FindFilesRecursively(ctx context.Context, dirPath string) ([]Entry, error)

	// BatchNeedsIndexing filters fsObserved down to the entries whose
	// catalog row is absent, or whose mtime drifts by more than 1s, or
	// whose size differs.
	BatchNeedsIndexing(ctx context.Context, fsObserved []FSObservation) ([]FSObservation, error)

	// Index sessions.
	CreateIndexSession(ctx context.Context, rootPath string) (IndexSession, error)
	UpdateIndexSession(ctx context.Context, session IndexSession) error
	GetRunningIndexSession(ctx context.Context) (*IndexSession, error)
	GetIndexSession(ctx context.Context, id string) (*IndexSession, error)

	// Jobs and job items.
	CreateJob(ctx context.Context, job Job, items []JobItem) error
	GetJob(ctx context.Context, id string) (*Job, []JobItem, error)
	ListJobs(ctx context.Context, limit int) ([]Job, error)
	UpdateJobStatus(ctx context.Context, id string, status JobStatus, now time.Time) error
	PendingOrRunningJobs(ctx context.Context) ([]Job, error)
	ClearCompleted(ctx context.Context) (int64, error)

	// ClaimPendingItems atomically claims up to limit pending items for
	// jobID, ordered by id ascending, using row-level locking that skips
	// rows already locked by other workers (section 4.A/4.E).
	ClaimPendingItems(ctx context.Context, jobID, workerID string, limit int, leaseDuration time.Duration) ([]JobItem, error)

	// RenewLease extends the lease on items a worker still owns.
	RenewLease(ctx context.Context, itemIDs []int64, workerID string, leaseDuration time.Duration) error

	// ReapExpiredLeases releases items whose lease expired (the worker
	// presumably crashed) back to pending. Supplemental feature resolving
	// open question 1 in section 9.
	ReapExpiredLeases(ctx context.Context) (int64, error)

	// CompleteItem marks an item completed/failed and incrementally
	// updates the owning job's aggregate counters (section 4.A).
	CompleteItem(ctx context.Context, jobID string, path string, success bool, sizeBytes int64, errMsg string) error

	// RemainingItems reports how many items for jobID are still pending or running.
	RemainingItems(ctx context.Context, jobID string) (pending int64, running int64, err error)

	// ReleaseRunningItems demotes a job's running items back to pending
	// (supplemental feature for the pause/release-claims config point).
	ReleaseRunningItems(ctx context.Context, jobID string) error

	// Directory roll-up (section 4.A/4.F).
	ValidateDirectoryCacheStatus(ctx context.Context, dirPath string, maxDepth int) (DirectoryValidation, error)
	UpdateDirectoryCacheIfValid(ctx context.Context, dirPath string, maxDepth int) (DirectoryValidation, bool, error)
	DirectorySize(ctx context.Context, dirPath string, ttl time.Duration) (ComputedSize, error)

	// SetEntryCached is the warm-read write path: mark an Entry cached
	// after a successful warm read.
	SetEntryCached(ctx context.Context, path string, jobID string, cachedAt time.Time) error

	// GetEntry returns a single entry by path, or nil if unknown.
	GetEntry(ctx context.Context, path string) (*Entry, error)

	// Profiles.
	GetProfile(ctx context.Context, id string) (*Profile, error)
	GetProfileByName(ctx context.Context, name string) (*Profile, error)
	GetDefaultProfile(ctx context.Context) (*Profile, error)
	ListProfiles(ctx context.Context) ([]Profile, error)
}
