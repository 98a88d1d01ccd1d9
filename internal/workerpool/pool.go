// Package workerpool implements the Worker Pool (component E of the design
// specification): a reconfigurable set of long-lived workers that claim and
// process pending cache-warm items. It is grounded on
// coordinator.Coordinator's worker-pool shape (per-worker status tracking
// under a mutex, a progress ticker, graceful shutdown) generalized from a
// fixed-size, one-shot pool into a pool that can grow, shrink, and outlive
// any single job.
package workerpool

import (
	"context"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/teamcache/tcmanager/internal/catalog"
	"github.com/teamcache/tcmanager/internal/events"
)

// progressItemInterval and progressTimeInterval bound how often a
// KindFileProgress event is published for a job: at most every
// progressItemInterval completed items, or every progressTimeInterval,
// whichever comes first (section 4.E step 7).
const (
	progressItemInterval = 100
	progressTimeInterval = 2 * time.Second
)

// Status is a worker's current activity, exposed for observability the way
// coordinator.WorkerStatus does.
type Status struct {
	ID          int
	StartTime   time.Time
	LastActive  time.Time
	CurrentJob  string
	ItemsDone   int64
	LastError   error
}

// Pool manages the cache-warm worker fleet. There is exactly one Pool per
// engine instance; its cardinality and per-worker concurrency are set by
// whichever Profile the most recently created Job resolved to (section
// 4.D step 5).
type Pool struct {
	store         catalog.Store
	bus           *events.Bus
	readTimeout   time.Duration
	leaseDuration time.Duration

	mu                 sync.Mutex
	ctx                context.Context
	maxConcurrentFiles int
	pollInterval       time.Duration
	workers            map[int]*worker
	nextWorkerID       int
	wg                 sync.WaitGroup

	statusMu sync.RWMutex
	status   map[int]*Status

	progressMu sync.Mutex
	progress   map[string]*jobProgress
}

type jobProgress struct {
	sinceLastItem int64
	lastPublished time.Time
}

type worker struct {
	id   int
	stop chan struct{}
}

// New constructs an idle Pool. Call Start to launch the initial worker set.
func New(store catalog.Store, bus *events.Bus, readTimeout, leaseDuration time.Duration) *Pool {
	return &Pool{
		store:         store,
		bus:           bus,
		readTimeout:   readTimeout,
		leaseDuration: leaseDuration,
		workers:       make(map[int]*worker),
		status:        make(map[int]*Status),
		progress:      make(map[string]*jobProgress),
	}
}

// Start launches workerCount workers under ctx, with the given per-worker
// concurrency and poll interval. ctx governs the workers' entire lifetime;
// cancelling it is the non-graceful stop (see Shutdown for the graceful
// path).
func (p *Pool) Start(ctx context.Context, workerCount, maxConcurrentFiles int, pollInterval time.Duration) {
	p.mu.Lock()
	p.ctx = ctx
	p.maxConcurrentFiles = maxConcurrentFiles
	p.pollInterval = pollInterval
	p.mu.Unlock()

	p.scaleTo(workerCount)
}

// Reconfigure implements section 4.E's reconfiguration rule: growing spawns
// additional workers immediately; shrinking signals surplus workers to
// exit after their current batch, never abandoning in-flight items.
// max_concurrent_files and poll_interval take effect on each worker's next
// poll cycle.
func (p *Pool) Reconfigure(workerCount, maxConcurrentFiles int, pollInterval time.Duration) {
	p.mu.Lock()
	p.maxConcurrentFiles = maxConcurrentFiles
	p.pollInterval = pollInterval
	p.mu.Unlock()

	p.scaleTo(workerCount)
}

func (p *Pool) scaleTo(workerCount int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	current := len(p.workers)
	if workerCount > current {
		for i := 0; i < workerCount-current; i++ {
			p.spawnLocked()
		}
		return
	}
	if workerCount < current {
		surplus := current - workerCount
		for id, w := range p.workers {
			if surplus == 0 {
				break
			}
			close(w.stop)
			delete(p.workers, id)
			surplus--
		}
	}
}

func (p *Pool) spawnLocked() {
	id := p.nextWorkerID
	p.nextWorkerID++
	w := &worker{id: id, stop: make(chan struct{})}
	p.workers[id] = w

	p.statusMu.Lock()
	p.status[id] = &Status{ID: id, StartTime: time.Now()}
	p.statusMu.Unlock()

	p.wg.Add(1)
	ctx := p.ctx
	go func() {
		defer p.wg.Done()
		p.runWorker(ctx, w)
	}()
}

func (p *Pool) getTunables() (int, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxConcurrentFiles, p.pollInterval
}

func (p *Pool) runWorker(ctx context.Context, w *worker) {
	defer func() {
		p.statusMu.Lock()
		delete(p.status, w.id)
		p.statusMu.Unlock()
	}()

	for {
		_, poll := p.getTunables()
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(poll):
		}

		select {
		case <-w.stop:
			return
		default:
		}

		if err := p.pollOnce(ctx, w); err != nil {
			log.Printf("workerpool: worker %d poll error: %v", w.id, err)
		}
	}
}

func (p *Pool) pollOnce(ctx context.Context, w *worker) error {
	jobs, err := p.store.PendingOrRunningJobs(ctx)
	if err != nil {
		return err
	}

	workerID := workerName(w.id)
	maxConcurrent, _ := p.getTunables()

	for _, job := range jobs {
		select {
		case <-w.stop:
			return nil
		default:
		}

		items, err := p.store.ClaimPendingItems(ctx, job.ID, workerID, maxConcurrent, p.leaseDuration)
		if err != nil {
			log.Printf("workerpool: worker %d claim error for job %s: %v", w.id, job.ID, err)
			continue
		}
		if len(items) == 0 {
			continue
		}

		p.setCurrentJob(w.id, job.ID)

		if job.Status == catalog.JobPending {
			if err := p.store.UpdateJobStatus(ctx, job.ID, catalog.JobRunning, time.Now()); err != nil {
				log.Printf("workerpool: worker %d failed to start job %s: %v", w.id, job.ID, err)
			} else {
				p.bus.Publish(events.JobStarted(job.ID))
			}
		}

		p.processBatch(ctx, w.id, job.ID, items)
		p.finalizeIfDone(ctx, job.ID)
	}

	p.setCurrentJob(w.id, "")
	return nil
}

func (p *Pool) processBatch(ctx context.Context, workerID int, jobID string, items []catalog.JobItem) {
	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func(item catalog.JobItem) {
			defer wg.Done()
			p.processItem(ctx, workerID, jobID, item)
		}(item)
	}
	wg.Wait()
}

func (p *Pool) processItem(ctx context.Context, workerID int, jobID string, item catalog.JobItem) {
	p.bus.Publish(events.FileStarted(jobID, item.FilePath))

	size, err := warmRead(ctx, item.FilePath, p.readTimeout)
	if err != nil {
		if cerr := p.store.CompleteItem(ctx, jobID, item.FilePath, false, 0, err.Error()); cerr != nil {
			log.Printf("workerpool: worker %d failed to record failure for %s: %v", workerID, item.FilePath, cerr)
		}
		p.bus.Publish(events.FileFailed(jobID, item.FilePath, err.Error()))
		p.bumpDone(workerID)
		return
	}

	now := time.Now()
	if err := p.store.SetEntryCached(ctx, item.FilePath, jobID, now); err != nil {
		log.Printf("workerpool: worker %d failed to mark %s cached: %v", workerID, item.FilePath, err)
	}
	if err := p.store.CompleteItem(ctx, jobID, item.FilePath, true, size, ""); err != nil {
		log.Printf("workerpool: worker %d failed to record completion for %s: %v", workerID, item.FilePath, err)
	}
	p.bus.Publish(events.FileCompleted(jobID, item.FilePath, size))
	p.bumpDone(workerID)
	p.maybePublishProgress(ctx, jobID)
}

// maybePublishProgress implements section 4.E step 7: a KindFileProgress
// event is published for jobID at most once every progressItemInterval
// completed items or progressTimeInterval, whichever comes first, rather
// than after every single completed item.
func (p *Pool) maybePublishProgress(ctx context.Context, jobID string) {
	p.progressMu.Lock()
	jp, ok := p.progress[jobID]
	if !ok {
		jp = &jobProgress{lastPublished: time.Now()}
		p.progress[jobID] = jp
	}
	jp.sinceLastItem++
	due := jp.sinceLastItem >= progressItemInterval || time.Since(jp.lastPublished) >= progressTimeInterval
	if due {
		jp.sinceLastItem = 0
		jp.lastPublished = time.Now()
	}
	p.progressMu.Unlock()

	if !due {
		return
	}
	job, _, err := p.store.GetJob(ctx, jobID)
	if err != nil || job == nil {
		return
	}
	p.bus.Publish(events.FileProgress(jobID, job.CompletedFiles, job.FailedFiles, job.TotalFiles))
}

// finalizeIfDone implements section 4.E step 8: once no items remain
// pending or running for a job, transition it to its terminal status.
// Re-checking the job's status first narrows, but does not close, the
// window in which two concurrent workers can both finalize the same job.
func (p *Pool) finalizeIfDone(ctx context.Context, jobID string) {
	pending, running, err := p.store.RemainingItems(ctx, jobID)
	if err != nil || pending > 0 || running > 0 {
		return
	}

	job, _, err := p.store.GetJob(ctx, jobID)
	if err != nil || job == nil || job.Status.Terminal() {
		return
	}

	status := catalog.JobCompleted
	if job.FailedFiles > 0 {
		status = catalog.JobFailed
	}
	if err := p.store.UpdateJobStatus(ctx, jobID, status, time.Now()); err != nil {
		log.Printf("workerpool: failed to finalize job %s: %v", jobID, err)
		return
	}
	if status == catalog.JobCompleted {
		p.bus.Publish(events.JobCompleted(jobID, job.CompletedFiles, job.FailedFiles))
	} else {
		p.bus.Publish(events.JobFailed(jobID, job.CompletedFiles, job.FailedFiles))
	}

	p.progressMu.Lock()
	delete(p.progress, jobID)
	p.progressMu.Unlock()
}

func (p *Pool) setCurrentJob(workerID int, jobID string) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	if s, ok := p.status[workerID]; ok {
		s.CurrentJob = jobID
		s.LastActive = time.Now()
	}
}

func (p *Pool) bumpDone(workerID int) {
	p.statusMu.Lock()
	defer p.statusMu.Unlock()
	if s, ok := p.status[workerID]; ok {
		s.ItemsDone++
		s.LastActive = time.Now()
	}
}

// Statuses returns a snapshot of every active worker's status.
func (p *Pool) Statuses() []Status {
	p.statusMu.RLock()
	defer p.statusMu.RUnlock()
	out := make([]Status, 0, len(p.status))
	for _, s := range p.status {
		out = append(out, *s)
	}
	return out
}

// Shutdown implements section 5's graceful-shutdown rule: stop accepting
// new claims and wait up to timeout for in-flight items to finish, then
// return regardless, leaving any still-running items as running for
// subsequent operator recovery.
func (p *Pool) Shutdown(timeout time.Duration) {
	p.mu.Lock()
	for id, w := range p.workers {
		close(w.stop)
		delete(p.workers, id)
	}
	p.mu.Unlock()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(timeout):
		log.Printf("workerpool: shutdown timed out after %s, leaving in-flight items running", timeout)
	}
}

func workerName(id int) string {
	return "worker-" + strconv.Itoa(id)
}
