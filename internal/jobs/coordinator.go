// Package jobs implements the Job Coordinator (component D of the design
// specification): creates cache-warm Jobs, resolves their execution
// Profile, explodes directory selections into file items, and drives the
// Worker Pool's cardinality to match.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/teamcache/tcmanager/internal/catalog"
	"github.com/teamcache/tcmanager/internal/events"
	"github.com/teamcache/tcmanager/internal/profile"
	"github.com/teamcache/tcmanager/internal/tcerr"
)

// Reconfigurer is the subset of workerpool.Pool the Coordinator depends on;
// an interface here keeps this package independent of workerpool's
// concrete goroutine machinery (grounded on the teacher's ReportUploader
// dependency-interface pattern in coordinator.Coordinator).
type Reconfigurer interface {
	Reconfigure(workerCount, maxConcurrentFiles int, pollInterval time.Duration)
}

// Coordinator implements CreateJob/StartJob/PauseJob/CancelJob/ClearCompleted.
type Coordinator struct {
	store                catalog.Store
	bus                  *events.Bus
	pool                 Reconfigurer
	releaseClaimsOnPause bool
}

// New constructs a Coordinator.
func New(store catalog.Store, bus *events.Bus, pool Reconfigurer, releaseClaimsOnPause bool) *Coordinator {
	return &Coordinator{store: store, bus: bus, pool: pool, releaseClaimsOnPause: releaseClaimsOnPause}
}

// CreateJob implements section 4.D's CreateJob operation.
func (c *Coordinator) CreateJob(ctx context.Context, filePaths, directoryPaths []string, profileRef string) (catalog.Job, error) {
	finalPaths := filePaths
	if len(finalPaths) == 0 && len(directoryPaths) > 0 {
		var expanded []string
		for _, dir := range directoryPaths {
			files, err := c.store.FindFilesRecursively(ctx, dir)
			if err != nil {
				return catalog.Job{}, fmt.Errorf("failed to expand directory %s: %w", dir, err)
			}
			for _, f := range files {
				expanded = append(expanded, f.Path)
			}
		}
		finalPaths = expanded
	}
	if len(finalPaths) == 0 {
		return catalog.Job{}, tcerr.ErrNoWork
	}

	resolved, err := c.resolveProfile(ctx, profileRef, finalPaths)
	if err != nil {
		return catalog.Job{}, err
	}

	job := catalog.Job{
		ID:             uuid.NewString(),
		FilePaths:      finalPaths,
		DirectoryPaths: directoryPaths,
		ProfileID:      resolved.ID,
		TotalFiles:     int64(len(finalPaths)),
		Status:         catalog.JobPending,
		CreatedAt:      time.Now(),
	}
	items := make([]catalog.JobItem, len(finalPaths))
	for i, p := range finalPaths {
		items[i] = catalog.JobItem{FilePath: p}
	}

	if err := c.store.CreateJob(ctx, job, items); err != nil {
		return catalog.Job{}, fmt.Errorf("failed to create job: %w", err)
	}

	c.pool.Reconfigure(resolved.WorkerCount, resolved.MaxConcurrentFiles, resolved.WorkerPollInterval)
	c.bus.Publish(events.JobCreated(job.ID, job.TotalFiles))

	return job, nil
}

// resolveProfile implements section 4.D step 2's precedence: by id, by
// name, by Selector on the final path set, then the default.
func (c *Coordinator) resolveProfile(ctx context.Context, ref string, paths []string) (*catalog.Profile, error) {
	if ref != "" {
		if p, err := c.store.GetProfile(ctx, ref); err != nil {
			return nil, fmt.Errorf("failed to resolve profile %q: %w", ref, err)
		} else if p != nil {
			return p, nil
		}
		if p, err := c.store.GetProfileByName(ctx, ref); err != nil {
			return nil, fmt.Errorf("failed to resolve profile %q: %w", ref, err)
		} else if p != nil {
			return p, nil
		}
		return nil, tcerr.ErrProfileNotFound
	}

	name := profile.Classify(paths)
	if p, err := c.store.GetProfileByName(ctx, name); err != nil {
		return nil, fmt.Errorf("failed to resolve selected profile %q: %w", name, err)
	} else if p != nil {
		return p, nil
	}

	return c.store.GetDefaultProfile(ctx)
}

// StartJob implements section 4.D: valid only from pending; workers pick it
// up on their next poll, so this is an observability no-op beyond
// validating the transition.
func (c *Coordinator) StartJob(ctx context.Context, id string) (catalog.Job, error) {
	job, _, err := c.store.GetJob(ctx, id)
	if err != nil {
		return catalog.Job{}, err
	}
	if job == nil {
		return catalog.Job{}, tcerr.ErrJobNotFound
	}
	if job.Status != catalog.JobPending {
		return catalog.Job{}, tcerr.ErrInvalidTransition
	}
	return *job, nil
}

// PauseJob implements section 4.D: valid only from running.
func (c *Coordinator) PauseJob(ctx context.Context, id string) (catalog.Job, error) {
	job, _, err := c.store.GetJob(ctx, id)
	if err != nil {
		return catalog.Job{}, err
	}
	if job == nil {
		return catalog.Job{}, tcerr.ErrJobNotFound
	}
	if job.Status != catalog.JobRunning {
		return catalog.Job{}, tcerr.ErrInvalidTransition
	}
	if err := c.store.UpdateJobStatus(ctx, id, catalog.JobPaused, time.Now()); err != nil {
		return catalog.Job{}, err
	}
	if c.releaseClaimsOnPause {
		if err := c.store.ReleaseRunningItems(ctx, id); err != nil {
			return catalog.Job{}, fmt.Errorf("failed to release running items for paused job %s: %w", id, err)
		}
	}
	job.Status = catalog.JobPaused
	return *job, nil
}

// CancelJob implements section 4.D: valid from pending, running, or paused.
// In-flight items are allowed to finish; no new items are claimed.
func (c *Coordinator) CancelJob(ctx context.Context, id string) (catalog.Job, error) {
	job, _, err := c.store.GetJob(ctx, id)
	if err != nil {
		return catalog.Job{}, err
	}
	if job == nil {
		return catalog.Job{}, tcerr.ErrJobNotFound
	}
	switch job.Status {
	case catalog.JobPending, catalog.JobRunning, catalog.JobPaused:
	default:
		return catalog.Job{}, tcerr.ErrInvalidTransition
	}
	if err := c.store.UpdateJobStatus(ctx, id, catalog.JobCancelled, time.Now()); err != nil {
		return catalog.Job{}, err
	}
	job.Status = catalog.JobCancelled
	return *job, nil
}

// ClearCompleted implements section 4.D: delete jobs in completed, failed,
// or cancelled status; cascades to their items.
func (c *Coordinator) ClearCompleted(ctx context.Context) (int64, error) {
	return c.store.ClearCompleted(ctx)
}

// ListJobs and GetJob are thin, path-policy-free pass-throughs; GetJob
// reports an unknown id as ErrJobNotFound. The engine root applies path
// policy for the external contract.
func (c *Coordinator) ListJobs(ctx context.Context, limit int) ([]catalog.Job, error) {
	return c.store.ListJobs(ctx, limit)
}

func (c *Coordinator) GetJob(ctx context.Context, id string) (*catalog.Job, []catalog.JobItem, error) {
	job, items, err := c.store.GetJob(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if job == nil {
		return nil, nil, tcerr.ErrJobNotFound
	}
	return job, items, nil
}
