// Package indexer implements the Indexer (component B of the design
// specification): a single, process-wide traversal that walks a mounted
// filespace and keeps the Catalog Store's Entry rows in sync with it. It is
// grounded on the discover-then-batch-process shape of
// other_examples/.../iasik-project-indexer/internal/indexer/indexer.go,
// narrowed to the spec's single-tasked, cooperatively cancellable walk.
package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/teamcache/tcmanager/internal/catalog"
	"github.com/teamcache/tcmanager/internal/events"
	"github.com/teamcache/tcmanager/internal/tcerr"
)

// progressInterval is the minimum number of processed entries between two
// progress events during a run (section 4.B step 4). Progress is checked
// only after a batch is flushed, so with batches of at least this size one
// event follows each flush.
const progressInterval = 100

// Indexer is the single process-wide traversal engine. Only one run may be
// active at a time (AlreadyRunning).
type Indexer struct {
	store     catalog.Store
	bus       *events.Bus
	batchSize int

	mu      sync.Mutex
	running bool
	stop    bool
}

// New constructs an Indexer. batchSize should be within the recommended
// 500-1000 range (section 4.B step 3).
func New(store catalog.Store, bus *events.Bus, batchSize int) *Indexer {
	return &Indexer{store: store, bus: bus, batchSize: batchSize}
}

// Start begins a traversal of rootPath in the background. It fails with
// AlreadyRunning if a session is already pending or running.
func (ix *Indexer) Start(ctx context.Context, rootPath string) (catalog.IndexSession, error) {
	ix.mu.Lock()
	if ix.running {
		ix.mu.Unlock()
		return catalog.IndexSession{}, tcerr.ErrAlreadyRunning
	}
	running, err := ix.store.GetRunningIndexSession(ctx)
	if err != nil {
		ix.mu.Unlock()
		return catalog.IndexSession{}, err
	}
	if running != nil {
		ix.mu.Unlock()
		return catalog.IndexSession{}, tcerr.ErrAlreadyRunning
	}
	ix.running = true
	ix.stop = false
	ix.mu.Unlock()

	session, err := ix.store.CreateIndexSession(ctx, rootPath)
	if err != nil {
		ix.mu.Lock()
		ix.running = false
		ix.mu.Unlock()
		return catalog.IndexSession{}, err
	}

	go ix.run(ctx, session, rootPath)
	return session, nil
}

// Stop requests cooperative cancellation of the active run. It is a no-op
// error (NotRunning) if no session is active.
func (ix *Indexer) Stop() error {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if !ix.running {
		return tcerr.ErrNotRunning
	}
	ix.stop = true
	return nil
}

func (ix *Indexer) shouldStop() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.stop
}

type batchEntry struct {
	entry catalog.Entry
	obs   catalog.FSObservation
}

// run performs the depth-first traversal and batched upsert. Per-entry walk
// or stat errors are logged and skipped; they never fail the session. Only
// a database error from flush (BatchNeedsIndexing/UpsertEntries) can fail
// it. run always leaves the session in a terminal status: completed,
// failed, or stopped.
func (ix *Indexer) run(ctx context.Context, session catalog.IndexSession, rootPath string) {
	defer func() {
		ix.mu.Lock()
		ix.running = false
		ix.mu.Unlock()
	}()

	var processed int64
	var lastPublished int64
	batch := make([]batchEntry, 0, ix.batchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		observed := make([]catalog.FSObservation, len(batch))
		for i, be := range batch {
			observed[i] = be.obs
		}
		needsIndexing, err := ix.store.BatchNeedsIndexing(ctx, observed)
		if err != nil {
			return fmt.Errorf("failed to check batch for indexing: %w", err)
		}
		if len(needsIndexing) > 0 {
			dirty := make(map[string]bool, len(needsIndexing))
			for _, o := range needsIndexing {
				dirty[o.Path] = true
			}
			toUpsert := make([]catalog.Entry, 0, len(needsIndexing))
			for _, be := range batch {
				if dirty[be.entry.Path] {
					toUpsert = append(toUpsert, be.entry)
				}
			}
			if _, err := ix.store.UpsertEntries(ctx, toUpsert, session.ID); err != nil {
				return fmt.Errorf("failed to upsert batch: %w", err)
			}
		}

		processed += int64(len(batch))
		batch = batch[:0]

		if processed-lastPublished >= progressInterval {
			lastPublished = processed
			session.ProcessedFiles = processed
			session.CurrentPath = rootPath
			_ = ix.store.UpdateIndexSession(ctx, session)
			ix.bus.Publish(events.IndexProgress(session.ID, processed, 0, rootPath))
		}
		return nil
	}

	walkErr := filepath.WalkDir(rootPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			log.Printf("indexer: skipping %s: %v", path, err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if ix.shouldStop() {
			return fs.SkipAll
		}
		if isHidden(path, rootPath, d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		info, err := d.Info()
		if err != nil {
			log.Printf("indexer: skipping %s: failed to stat: %v", path, err)
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		parentPath := ""
		if path != rootPath {
			parentPath = filepath.Dir(path)
		}

		entry := catalog.Entry{
			Path:        path,
			ParentPath:  parentPath,
			Name:        d.Name(),
			IsDirectory: d.IsDir(),
			Size:        info.Size(),
			ModifiedAt:  info.ModTime(),
			Permissions: uint32(info.Mode().Perm()),
		}
		batch = append(batch, batchEntry{
			entry: entry,
			obs:   catalog.FSObservation{Path: path, ModifiedAt: info.ModTime(), Size: info.Size()},
		})

		if len(batch) >= ix.batchSize {
			if ix.shouldStop() {
				return fs.SkipAll
			}
			return flush()
		}
		return nil
	})

	if flushErr := flush(); flushErr != nil && walkErr == nil {
		walkErr = flushErr
	}

	now := time.Now()
	session.CompletedAt = &now
	switch {
	case ix.shouldStop():
		session.Status = catalog.SessionStopped
		session.ProcessedFiles = processed
		_ = ix.store.UpdateIndexSession(ctx, session)
	case walkErr != nil:
		session.Status = catalog.SessionFailed
		session.ErrorMessage = walkErr.Error()
		session.ProcessedFiles = processed
		_ = ix.store.UpdateIndexSession(ctx, session)
		ix.bus.Publish(events.IndexError(session.ID, walkErr.Error()))
	default:
		session.Status = catalog.SessionCompleted
		session.TotalFiles = processed
		session.ProcessedFiles = processed
		_ = ix.store.UpdateIndexSession(ctx, session)
		ix.bus.Publish(events.IndexComplete(session.ID, processed))
	}
}

// isHidden reports whether name (a leading-dot entry, except "..") should
// be skipped, per section 4.B step 2. The root itself is never hidden even
// if its basename starts with a dot.
func isHidden(path, rootPath, name string) bool {
	if path == rootPath {
		return false
	}
	return strings.HasPrefix(name, ".") && name != ".."
}
