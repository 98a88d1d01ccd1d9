package workerpool

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/teamcache/tcmanager/internal/catalog"
	"github.com/teamcache/tcmanager/internal/events"
)

func writeTempFile(t *testing.T, dir, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	return path
}

func waitForJobTerminal(t *testing.T, store catalog.Store, jobID string, timeout time.Duration) *catalog.Job {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		job, _, err := store.GetJob(context.Background(), jobID)
		if err != nil {
			t.Fatalf("GetJob: %v", err)
		}
		if job != nil && job.Status.Terminal() {
			return job
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("job %s did not reach a terminal status within %s", jobID, timeout)
	return nil
}

func TestPoolWarmsFilesSuccessfully(t *testing.T) {
	dir := t.TempDir()
	a := writeTempFile(t, dir, "a.bin", make([]byte, 10))
	b := writeTempFile(t, dir, "b.bin", make([]byte, 20))

	store := catalog.NewMemoryStore()
	ctx := context.Background()
	store.UpsertEntries(ctx, []catalog.Entry{
		{Path: a, Name: "a.bin", Size: 10, ModifiedAt: time.Now()},
		{Path: b, Name: "b.bin", Size: 20, ModifiedAt: time.Now()},
	}, "session-1")

	job := catalog.Job{ID: "job-1", FilePaths: []string{a, b}, ProfileID: "general", TotalFiles: 2, Status: catalog.JobPending, CreatedAt: time.Now()}
	items := []catalog.JobItem{{FilePath: a}, {FilePath: b}}
	if err := store.CreateJob(ctx, job, items); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	bus := events.NewBus()
	pool := New(store, bus, 2*time.Second, 30*time.Second)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	pool.Start(runCtx, 2, 4, 20*time.Millisecond)

	final := waitForJobTerminal(t, store, "job-1", 2*time.Second)
	if final.Status != catalog.JobCompleted {
		t.Fatalf("expected job completed, got %s", final.Status)
	}
	if final.CompletedFiles != 2 || final.FailedFiles != 0 {
		t.Fatalf("expected 2 completed/0 failed, got %d/%d", final.CompletedFiles, final.FailedFiles)
	}
	if final.CompletedSizeBytes != 30 {
		t.Fatalf("expected 30 completed bytes, got %d", final.CompletedSizeBytes)
	}

	entryA, _ := store.GetEntry(ctx, a)
	entryB, _ := store.GetEntry(ctx, b)
	if !entryA.Cached || !entryB.Cached {
		t.Fatalf("expected both entries cached")
	}

	pool.Shutdown(time.Second)
}

func TestPoolPartialFailure(t *testing.T) {
	dir := t.TempDir()
	ok := writeTempFile(t, dir, "ok.bin", []byte("hello"))
	missing := filepath.Join(dir, "missing.bin")

	store := catalog.NewMemoryStore()
	ctx := context.Background()
	store.UpsertEntries(ctx, []catalog.Entry{
		{Path: ok, Name: "ok.bin", Size: 5, ModifiedAt: time.Now()},
		{Path: missing, Name: "missing.bin", Size: 0, ModifiedAt: time.Now()},
	}, "session-1")

	job := catalog.Job{ID: "job-2", FilePaths: []string{ok, missing}, ProfileID: "general", TotalFiles: 2, Status: catalog.JobPending, CreatedAt: time.Now()}
	items := []catalog.JobItem{{FilePath: ok}, {FilePath: missing}}
	if err := store.CreateJob(ctx, job, items); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	bus := events.NewBus()
	pool := New(store, bus, 2*time.Second, 30*time.Second)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	pool.Start(runCtx, 1, 2, 20*time.Millisecond)

	final := waitForJobTerminal(t, store, "job-2", 2*time.Second)
	if final.Status != catalog.JobFailed {
		t.Fatalf("expected job failed, got %s", final.Status)
	}
	if final.CompletedFiles != 1 || final.FailedFiles != 1 {
		t.Fatalf("expected 1 completed/1 failed, got %d/%d", final.CompletedFiles, final.FailedFiles)
	}

	entryOK, _ := store.GetEntry(ctx, ok)
	entryMissing, _ := store.GetEntry(ctx, missing)
	if !entryOK.Cached {
		t.Fatalf("expected ok.bin cached")
	}
	if entryMissing.Cached {
		t.Fatalf("expected missing.bin not cached")
	}

	pool.Shutdown(time.Second)
}

func TestPoolPublishesThrottledFileProgress(t *testing.T) {
	dir := t.TempDir()
	files := make([]string, 0, progressItemInterval+5)
	entries := make([]catalog.Entry, 0, cap(files))
	items := make([]catalog.JobItem, 0, cap(files))
	for i := 0; i < progressItemInterval+5; i++ {
		path := writeTempFile(t, dir, "f"+string(rune('a'+i%26))+string(rune('0'+i/26))+".bin", []byte("x"))
		files = append(files, path)
		entries = append(entries, catalog.Entry{Path: path, Name: filepath.Base(path), Size: 1, ModifiedAt: time.Now()})
		items = append(items, catalog.JobItem{FilePath: path})
	}

	store := catalog.NewMemoryStore()
	ctx := context.Background()
	store.UpsertEntries(ctx, entries, "session-1")

	job := catalog.Job{ID: "job-progress", FilePaths: files, ProfileID: "general", TotalFiles: int64(len(files)), Status: catalog.JobPending, CreatedAt: time.Now()}
	if err := store.CreateJob(ctx, job, items); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	bus := events.NewBus()
	var progressEvents int
	var mu sync.Mutex
	bus.Subscribe(func(ev events.Event) {
		if ev.Kind == events.KindFileProgress {
			mu.Lock()
			progressEvents++
			mu.Unlock()
		}
	})

	pool := New(store, bus, 2*time.Second, 30*time.Second)
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	pool.Start(runCtx, 4, progressItemInterval+5, 10*time.Millisecond)

	waitForJobTerminal(t, store, "job-progress", 5*time.Second)
	pool.Shutdown(time.Second)

	mu.Lock()
	got := progressEvents
	mu.Unlock()
	if got == 0 {
		t.Fatalf("expected at least one throttled progress event, got none")
	}
	if got >= len(files) {
		t.Fatalf("expected progress events to be throttled well below one per file, got %d for %d files", got, len(files))
	}
}

func TestPoolReconfigureGrowsAndShrinks(t *testing.T) {
	store := catalog.NewMemoryStore()
	bus := events.NewBus()
	pool := New(store, bus, time.Second, 30*time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx, 2, 4, 50*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if n := len(pool.Statuses()); n != 2 {
		t.Fatalf("expected 2 workers, got %d", n)
	}

	pool.Reconfigure(5, 4, 50*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if n := len(pool.Statuses()); n != 5 {
		t.Fatalf("expected 5 workers after grow, got %d", n)
	}

	pool.Reconfigure(1, 4, 50*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	if n := len(pool.Statuses()); n != 1 {
		t.Fatalf("expected 1 worker after shrink, got %d", n)
	}

	pool.Shutdown(time.Second)
}
