// Package engine assembles every component of the design specification into
// one long-lived object and exposes the external contract from section 6:
// path-policy enforcement on every path-taking operation, with the tcerr
// sentinel errors of its collaborators passed through unchanged. It owns no
// business logic of its own beyond that wiring and enforcement, the way
// coordinator.Coordinator in the teacher repo owns the pipeline but
// delegates every concern to an injected collaborator.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/teamcache/tcmanager/internal/catalog"
	"github.com/teamcache/tcmanager/internal/config"
	"github.com/teamcache/tcmanager/internal/events"
	"github.com/teamcache/tcmanager/internal/indexer"
	"github.com/teamcache/tcmanager/internal/jobs"
	"github.com/teamcache/tcmanager/internal/metrics"
	"github.com/teamcache/tcmanager/internal/rollup"
	"github.com/teamcache/tcmanager/internal/tcerr"
	"github.com/teamcache/tcmanager/internal/workerpool"
)

// Pool is the subset of workerpool.Pool the engine depends on for shutdown.
type Pool interface {
	Shutdown(timeout time.Duration)
}

// Engine is the process-wide root: one Catalog Store, one Event Bus, one
// Indexer, one Worker Pool, one Job Coordinator, one Roller, one Metrics
// collector. Every exported method is safe for concurrent use.
type Engine struct {
	cfg *config.Config

	store   catalog.Store
	bus     *events.Bus
	indexer *indexer.Indexer
	pool    Pool
	coord   *jobs.Coordinator
	roller  *rollup.Roller
	metrics *metrics.Metrics
}

// New assembles an Engine from its already-constructed collaborators. Wiring
// them (constructing the Store, Bus, Pool, Indexer, Coordinator, Roller, and
// Metrics, then calling Metrics.Subscribe and Pool.Start) is the caller's
// job, mirroring how the teacher's run() builds every collaborator before
// handing them to coordinator.NewCoordinator.
func New(cfg *config.Config, store catalog.Store, bus *events.Bus, ix *indexer.Indexer, pool Pool, coord *jobs.Coordinator, roller *rollup.Roller, m *metrics.Metrics) *Engine {
	return &Engine{cfg: cfg, store: store, bus: bus, indexer: ix, pool: pool, coord: coord, roller: roller, metrics: m}
}

// Bus exposes the engine's event bus so external façades (HTTP, WebSocket)
// can subscribe without reaching into engine internals.
func (e *Engine) Bus() *events.Bus {
	return e.bus
}

// Metrics returns a point-in-time snapshot of engine-wide counters.
func (e *Engine) Metrics() metrics.Report {
	return e.metrics.GenerateReport()
}

// StartIndex implements section 6's StartIndex operation.
func (e *Engine) StartIndex(ctx context.Context, rootPath string) (catalog.IndexSession, error) {
	if !e.cfg.IsPathAllowed(rootPath) {
		return catalog.IndexSession{}, tcerr.ErrPathDenied
	}
	return e.indexer.Start(ctx, rootPath)
}

// StopIndex implements section 6's StopIndex operation.
func (e *Engine) StopIndex() error {
	return e.indexer.Stop()
}

// IndexStatus implements section 6's IndexStatus operation.
func (e *Engine) IndexStatus(ctx context.Context) (*catalog.IndexSession, error) {
	return e.store.GetRunningIndexSession(ctx)
}

// GetIndexSession looks up a specific index session by id, for clients
// polling the result of a completed or failed run.
func (e *Engine) GetIndexSession(ctx context.Context, id string) (*catalog.IndexSession, error) {
	return e.store.GetIndexSession(ctx, id)
}

// CreateCacheJob implements section 6's CreateCacheJob operation. Every path
// in both selections must lie within the allow-list.
func (e *Engine) CreateCacheJob(ctx context.Context, filePaths, directoryPaths []string, profileRef string) (catalog.Job, error) {
	for _, p := range filePaths {
		if !e.cfg.IsPathAllowed(p) {
			return catalog.Job{}, tcerr.ErrPathDenied
		}
	}
	for _, p := range directoryPaths {
		if !e.cfg.IsPathAllowed(p) {
			return catalog.Job{}, tcerr.ErrPathDenied
		}
	}
	return e.coord.CreateJob(ctx, filePaths, directoryPaths, profileRef)
}

// StartJob implements section 6's StartJob operation.
func (e *Engine) StartJob(ctx context.Context, id string) (catalog.Job, error) {
	return e.coord.StartJob(ctx, id)
}

// PauseJob implements section 6's PauseJob operation.
func (e *Engine) PauseJob(ctx context.Context, id string) (catalog.Job, error) {
	return e.coord.PauseJob(ctx, id)
}

// CancelJob implements section 6's CancelJob operation.
func (e *Engine) CancelJob(ctx context.Context, id string) (catalog.Job, error) {
	return e.coord.CancelJob(ctx, id)
}

// ClearCompleted implements section 6's ClearCompleted operation.
func (e *Engine) ClearCompleted(ctx context.Context) (int64, error) {
	return e.coord.ClearCompleted(ctx)
}

// ListJobs implements section 6's ListJobs operation.
func (e *Engine) ListJobs(ctx context.Context, limit int) ([]catalog.Job, error) {
	return e.coord.ListJobs(ctx, limit)
}

// GetJob implements section 6's GetJob operation.
func (e *Engine) GetJob(ctx context.Context, id string) (*catalog.Job, []catalog.JobItem, error) {
	return e.coord.GetJob(ctx, id)
}

// ListDirectory implements section 6's ListDirectory operation, triggering
// the Roller's opportunistic roll-up revalidation.
func (e *Engine) ListDirectory(ctx context.Context, dirPath string) ([]catalog.Entry, error) {
	if !e.cfg.IsPathAllowed(dirPath) {
		return nil, tcerr.ErrPathDenied
	}
	return e.roller.ListChildren(ctx, dirPath)
}

// ValidateDirectoryCache implements section 6's ValidateDirectoryCache
// operation.
func (e *Engine) ValidateDirectoryCache(ctx context.Context, dirPath string) (catalog.DirectoryValidation, error) {
	if !e.cfg.IsPathAllowed(dirPath) {
		return catalog.DirectoryValidation{}, tcerr.ErrPathDenied
	}
	v, _, err := e.roller.Validate(ctx, dirPath)
	return v, err
}

// DirectorySize implements section 6's DirectorySize operation.
func (e *Engine) DirectorySize(ctx context.Context, dirPath string) (catalog.ComputedSize, error) {
	if !e.cfg.IsPathAllowed(dirPath) {
		return catalog.ComputedSize{}, tcerr.ErrPathDenied
	}
	entry, err := e.store.GetEntry(ctx, dirPath)
	if err != nil {
		return catalog.ComputedSize{}, fmt.Errorf("failed to look up %s: %w", dirPath, err)
	}
	if entry == nil || !entry.IsDirectory {
		return catalog.ComputedSize{}, tcerr.ErrNotADirectory
	}
	return e.roller.Size(ctx, dirPath, e.cfg.DirectorySizeCacheTTL())
}

// WorkerStatuses exposes the Worker Pool's current activity for operator
// observability, if the configured Pool implementation supports it.
type statusReporter interface {
	Statuses() []workerpool.Status
}

func (e *Engine) WorkerStatuses() []workerpool.Status {
	if sr, ok := e.pool.(statusReporter); ok {
		return sr.Statuses()
	}
	return nil
}

// Shutdown implements section 5's graceful shutdown: stop accepting new
// claims and wait up to the configured timeout for in-flight work, then
// return. The Catalog Store's connection is the caller's to close.
func (e *Engine) Shutdown(timeout time.Duration) {
	e.pool.Shutdown(timeout)
}
