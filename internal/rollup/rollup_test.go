package rollup

import (
	"context"
	"testing"
	"time"

	"github.com/teamcache/tcmanager/internal/catalog"
)

func seed(t *testing.T, store catalog.Store) {
	t.Helper()
	entries := []catalog.Entry{
		{Path: "/mnt/proj", Name: "proj", IsDirectory: true},
		{Path: "/mnt/proj/a.txt", ParentPath: "/mnt/proj", Name: "a.txt", Size: 10},
		{Path: "/mnt/proj/b.txt", ParentPath: "/mnt/proj", Name: "b.txt", Size: 20},
		{Path: "/mnt/proj/sub", ParentPath: "/mnt/proj", Name: "sub", IsDirectory: true},
		{Path: "/mnt/proj/sub/c.txt", ParentPath: "/mnt/proj/sub", Name: "c.txt", Size: 30},
	}
	if _, err := store.UpsertEntries(context.Background(), entries, "seed"); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func cacheAll(t *testing.T, store catalog.Store, paths ...string) {
	t.Helper()
	for _, p := range paths {
		if err := store.SetEntryCached(context.Background(), p, "job-1", time.Now()); err != nil {
			t.Fatalf("SetEntryCached(%s): %v", p, err)
		}
	}
}

func TestValidateFullyCached(t *testing.T) {
	store := catalog.NewMemoryStore()
	seed(t, store)
	cacheAll(t, store, "/mnt/proj/a.txt", "/mnt/proj/b.txt", "/mnt/proj/sub/c.txt", "/mnt/proj/sub")

	r := New(store, 20)
	v, updated, err := r.Validate(context.Background(), "/mnt/proj")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if !v.ShouldBeCached {
		t.Fatalf("expected directory to be fully cached, got %+v", v)
	}
	if !updated {
		t.Fatalf("expected entry to be updated to cached")
	}

	entry, err := store.GetEntry(context.Background(), "/mnt/proj")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if !entry.Cached {
		t.Fatalf("expected /mnt/proj marked cached")
	}
}

func TestValidatePartiallyCachedDemotes(t *testing.T) {
	store := catalog.NewMemoryStore()
	seed(t, store)
	cacheAll(t, store, "/mnt/proj/a.txt")

	r := New(store, 20)
	v, updated, err := r.Validate(context.Background(), "/mnt/proj")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if v.ShouldBeCached {
		t.Fatalf("expected directory not fully cached, got %+v", v)
	}
	if updated {
		t.Fatalf("expected directory not marked cached")
	}
}

func TestListChildrenReturnsDirectoriesFirst(t *testing.T) {
	store := catalog.NewMemoryStore()
	seed(t, store)

	r := New(store, 20)
	children, err := r.ListChildren(context.Background(), "/mnt/proj")
	if err != nil {
		t.Fatalf("ListChildren: %v", err)
	}
	if len(children) != 3 {
		t.Fatalf("expected 3 children, got %d", len(children))
	}
	if !children[0].IsDirectory {
		t.Fatalf("expected first child to be a directory, got %+v", children[0])
	}
}

func TestSizeComputesRecursiveTotal(t *testing.T) {
	store := catalog.NewMemoryStore()
	seed(t, store)

	r := New(store, 20)
	cs, err := r.Size(context.Background(), "/mnt/proj", time.Hour)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if cs.TotalBytes != 60 {
		t.Fatalf("expected 60 total bytes, got %d", cs.TotalBytes)
	}
	if cs.FileCount != 3 {
		t.Fatalf("expected 3 files, got %d", cs.FileCount)
	}
	if cs.DirCount != 1 {
		t.Fatalf("expected 1 subdirectory, got %d", cs.DirCount)
	}
}

func TestSizeUsesCacheWithinTTL(t *testing.T) {
	store := catalog.NewMemoryStore()
	seed(t, store)

	r := New(store, 20)
	first, err := r.Size(context.Background(), "/mnt/proj", time.Hour)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}

	// Add another file after the first computation; within the TTL the
	// cached ComputedSize should be returned unchanged.
	if _, err := store.UpsertEntries(context.Background(), []catalog.Entry{
		{Path: "/mnt/proj/d.txt", ParentPath: "/mnt/proj", Name: "d.txt", Size: 1000},
	}, "seed-2"); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	second, err := r.Size(context.Background(), "/mnt/proj", time.Hour)
	if err != nil {
		t.Fatalf("Size: %v", err)
	}
	if second.TotalBytes != first.TotalBytes {
		t.Fatalf("expected cached size to be reused, got %d vs %d", second.TotalBytes, first.TotalBytes)
	}
}
