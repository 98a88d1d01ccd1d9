package indexer

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/teamcache/tcmanager/internal/catalog"
	"github.com/teamcache/tcmanager/internal/events"
)

func waitForSessionTerminal(t *testing.T, store catalog.Store, id string, timeout time.Duration) *catalog.IndexSession {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		s, err := store.GetIndexSession(context.Background(), id)
		if err != nil {
			t.Fatalf("GetIndexSession: %v", err)
		}
		if s != nil && s.Status != catalog.SessionPending && s.Status != catalog.SessionRunning {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("session %s did not reach terminal status within %s", id, timeout)
	return nil
}

func buildTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	os.MkdirAll(filepath.Join(root, "sub"), 0o755)
	os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644)
	os.WriteFile(filepath.Join(root, "sub", "b.txt"), []byte("bb"), 0o644)
	os.MkdirAll(filepath.Join(root, ".hidden"), 0o755)
	os.WriteFile(filepath.Join(root, ".hidden", "c.txt"), []byte("ccc"), 0o644)
	os.WriteFile(filepath.Join(root, ".dotfile"), []byte("d"), 0o644)
	return root
}

func TestIndexerWalksAndSkipsHidden(t *testing.T) {
	root := buildTree(t)
	store := catalog.NewMemoryStore()
	bus := events.NewBus()
	ix := New(store, bus, 10)

	session, err := ix.Start(context.Background(), root)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	final := waitForSessionTerminal(t, store, session.ID, 2*time.Second)
	if final.Status != catalog.SessionCompleted {
		t.Fatalf("expected completed, got %s (%s)", final.Status, final.ErrorMessage)
	}

	if _, err := store.GetEntry(context.Background(), filepath.Join(root, ".hidden")); err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	hidden, _ := store.GetEntry(context.Background(), filepath.Join(root, ".hidden"))
	if hidden != nil {
		t.Fatalf("expected hidden directory not indexed")
	}
	dotfile, _ := store.GetEntry(context.Background(), filepath.Join(root, ".dotfile"))
	if dotfile != nil {
		t.Fatalf("expected dotfile not indexed")
	}

	a, _ := store.GetEntry(context.Background(), filepath.Join(root, "a.txt"))
	if a == nil {
		t.Fatalf("expected a.txt indexed")
	}
	b, _ := store.GetEntry(context.Background(), filepath.Join(root, "sub", "b.txt"))
	if b == nil {
		t.Fatalf("expected sub/b.txt indexed")
	}
}

func TestIndexerSkipsUnreadableEntryWithoutFailingSession(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	root := t.TempDir()
	os.WriteFile(filepath.Join(root, "a.txt"), []byte("a"), 0o644)
	blocked := filepath.Join(root, "blocked")
	os.MkdirAll(blocked, 0o755)
	os.WriteFile(filepath.Join(blocked, "secret.txt"), []byte("s"), 0o644)
	if err := os.Chmod(blocked, 0o000); err != nil {
		t.Fatalf("Chmod: %v", err)
	}
	defer os.Chmod(blocked, 0o755)

	store := catalog.NewMemoryStore()
	bus := events.NewBus()
	ix := New(store, bus, 10)

	session, err := ix.Start(context.Background(), root)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	final := waitForSessionTerminal(t, store, session.ID, 2*time.Second)
	if final.Status != catalog.SessionCompleted {
		t.Fatalf("expected session to complete despite an unreadable directory, got %s (%s)", final.Status, final.ErrorMessage)
	}

	a, _ := store.GetEntry(context.Background(), filepath.Join(root, "a.txt"))
	if a == nil {
		t.Fatalf("expected a.txt still indexed")
	}
}

func TestIndexerAlreadyRunning(t *testing.T) {
	root := buildTree(t)
	store := catalog.NewMemoryStore()
	bus := events.NewBus()
	ix := New(store, bus, 1)

	if _, err := ix.Start(context.Background(), root); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := ix.Start(context.Background(), root); err == nil {
		t.Fatalf("expected AlreadyRunning error on concurrent Start")
	}
}

func TestIndexerStopWithoutSessionReturnsNotRunning(t *testing.T) {
	store := catalog.NewMemoryStore()
	bus := events.NewBus()
	ix := New(store, bus, 1)

	if err := ix.Stop(); err == nil {
		t.Fatalf("expected NotRunning error when no session is active")
	}
}

func TestIndexerReindexStability(t *testing.T) {
	root := buildTree(t)
	store := catalog.NewMemoryStore()
	bus := events.NewBus()

	ix1 := New(store, bus, 10)
	session1, err := ix1.Start(context.Background(), root)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForSessionTerminal(t, store, session1.ID, 2*time.Second)

	ix2 := New(store, bus, 10)
	session2, err := ix2.Start(context.Background(), root)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	final2 := waitForSessionTerminal(t, store, session2.ID, 2*time.Second)
	if final2.Status != catalog.SessionCompleted {
		t.Fatalf("expected second run completed, got %s", final2.Status)
	}
	if final2.ProcessedFiles != final2.TotalFiles {
		t.Fatalf("expected processed_files == total_files on stable re-index")
	}
}
