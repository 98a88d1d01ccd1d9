package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
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

func buildEngine(t *testing.T, root string) (*Engine, catalog.Store) {
	t.Helper()
	store := catalog.NewMemoryStore()
	bus := events.NewBus()
	m := metrics.New()
	m.Subscribe(bus)

	pool := workerpool.New(store, bus, 5*time.Second, time.Minute)
	pool.Start(context.Background(), 2, 4, 20*time.Millisecond)

	coord := jobs.New(store, bus, pool, false)
	ix := indexer.New(store, bus, 500)
	roller := rollup.New(store, 20)

	cfg := config.DefaultConfig()
	cfg.AllowedRoots = []string{root}

	return New(cfg, store, bus, ix, pool, coord, roller, m), store
}

func waitForSessionTerminal(t *testing.T, store catalog.Store, id string) catalog.IndexSession {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s, err := store.GetIndexSession(context.Background(), id)
		if err != nil {
			t.Fatalf("GetIndexSession: %v", err)
		}
		if s != nil && s.CompletedAt != nil {
			return *s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("index session %s did not terminate in time", id)
	return catalog.IndexSession{}
}

func waitForJobTerminal(t *testing.T, eng *Engine, id string) catalog.Job {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, _, err := eng.GetJob(context.Background(), id)
		if err == nil && job != nil && job.Status.Terminal() {
			return *job
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not terminate in time", id)
	return catalog.Job{}
}

func TestEnginePathPolicyDeniesOutsideRoots(t *testing.T) {
	dir := t.TempDir()
	eng, _ := buildEngine(t, dir)

	if _, err := eng.StartIndex(context.Background(), "/etc"); err != tcerr.ErrPathDenied {
		t.Fatalf("expected ErrPathDenied, got %v", err)
	}
	if _, err := eng.CreateCacheJob(context.Background(), []string{"/etc/passwd"}, nil, ""); err != tcerr.ErrPathDenied {
		t.Fatalf("expected ErrPathDenied, got %v", err)
	}
}

func TestEngineIndexAndWarmEndToEnd(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.txt"), []byte("world!!"), 0o644); err != nil {
		t.Fatal(err)
	}

	eng, store := buildEngine(t, dir)

	session, err := eng.StartIndex(context.Background(), dir)
	if err != nil {
		t.Fatalf("StartIndex: %v", err)
	}
	final := waitForSessionTerminal(t, store, session.ID)
	if final.Status != catalog.SessionCompleted {
		t.Fatalf("expected completed session, got %s: %s", final.Status, final.ErrorMessage)
	}

	job, err := eng.CreateCacheJob(context.Background(), nil, []string{dir}, "")
	if err != nil {
		t.Fatalf("CreateCacheJob: %v", err)
	}
	if job.TotalFiles != 2 {
		t.Fatalf("expected 2 files, got %d", job.TotalFiles)
	}

	finalJob := waitForJobTerminal(t, eng, job.ID)
	if finalJob.Status != catalog.JobCompleted {
		t.Fatalf("expected job completed, got %s", finalJob.Status)
	}
	if finalJob.CompletedFiles != 2 {
		t.Fatalf("expected 2 completed files, got %d", finalJob.CompletedFiles)
	}

	children, err := eng.ListDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("ListDirectory: %v", err)
	}
	for _, c := range children {
		if !c.Cached {
			t.Fatalf("expected %s to be cached", c.Path)
		}
	}
}

func TestEngineCreateCacheJobNoWork(t *testing.T) {
	dir := t.TempDir()
	eng, _ := buildEngine(t, dir)

	if _, err := eng.CreateCacheJob(context.Background(), nil, []string{dir}, ""); err != tcerr.ErrNoWork {
		t.Fatalf("expected ErrNoWork, got %v", err)
	}
}

func TestEngineGetJobNotFound(t *testing.T) {
	dir := t.TempDir()
	eng, _ := buildEngine(t, dir)

	if _, _, err := eng.GetJob(context.Background(), "missing"); err != tcerr.ErrJobNotFound {
		t.Fatalf("expected ErrJobNotFound, got %v", err)
	}
}

func TestEngineDirectorySizeRejectsFile(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(filePath, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	eng, store := buildEngine(t, dir)

	session, err := eng.StartIndex(context.Background(), dir)
	if err != nil {
		t.Fatalf("StartIndex: %v", err)
	}
	waitForSessionTerminal(t, store, session.ID)

	if _, err := eng.DirectorySize(context.Background(), filePath); err != tcerr.ErrNotADirectory {
		t.Fatalf("expected ErrNotADirectory, got %v", err)
	}
}

func TestEngineShutdown(t *testing.T) {
	dir := t.TempDir()
	eng, _ := buildEngine(t, dir)
	eng.Shutdown(time.Second)
}
