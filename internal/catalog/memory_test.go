package catalog

import (
	"context"
	"testing"
	"time"
)

func TestUpsertEntriesPreservesCacheStateAcrossReindex(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if _, err := store.UpsertEntries(ctx, []Entry{{Path: "/mnt/a.txt", Name: "a.txt", Size: 10}}, "s1"); err != nil {
		t.Fatalf("UpsertEntries: %v", err)
	}
	if err := store.SetEntryCached(ctx, "/mnt/a.txt", "job-1", time.Now()); err != nil {
		t.Fatalf("SetEntryCached: %v", err)
	}

	if _, err := store.UpsertEntries(ctx, []Entry{{Path: "/mnt/a.txt", Name: "a.txt", Size: 10}}, "s2"); err != nil {
		t.Fatalf("UpsertEntries (reindex): %v", err)
	}

	entry, err := store.GetEntry(ctx, "/mnt/a.txt")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if !entry.Cached {
		t.Fatalf("expected cached flag to survive re-indexing")
	}
	if entry.LastSeenSessionID != "s2" {
		t.Fatalf("expected last_seen_session_id updated to s2, got %s", entry.LastSeenSessionID)
	}
}

func TestBatchNeedsIndexingDetectsDrift(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	if _, err := store.UpsertEntries(ctx, []Entry{{Path: "/mnt/a.txt", Name: "a.txt", Size: 10, ModifiedAt: now}}, "s1"); err != nil {
		t.Fatalf("UpsertEntries: %v", err)
	}

	unchanged := FSObservation{Path: "/mnt/a.txt", Size: 10, ModifiedAt: now}
	changed := FSObservation{Path: "/mnt/a.txt", Size: 20, ModifiedAt: now}
	unseen := FSObservation{Path: "/mnt/b.txt", Size: 5, ModifiedAt: now}

	needsIndexing, err := store.BatchNeedsIndexing(ctx, []FSObservation{unchanged, changed, unseen})
	if err != nil {
		t.Fatalf("BatchNeedsIndexing: %v", err)
	}
	if len(needsIndexing) != 2 {
		t.Fatalf("expected 2 entries needing indexing, got %d: %+v", len(needsIndexing), needsIndexing)
	}
}

func TestClaimPendingItemsRespectsLimitAndOrder(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := Job{ID: "job-1", TotalFiles: 3, Status: JobPending, CreatedAt: time.Now()}
	items := []JobItem{{FilePath: "/mnt/a.txt"}, {FilePath: "/mnt/b.txt"}, {FilePath: "/mnt/c.txt"}}
	if err := store.CreateJob(ctx, job, items); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	claimed, err := store.ClaimPendingItems(ctx, "job-1", "worker-0", 2, time.Minute)
	if err != nil {
		t.Fatalf("ClaimPendingItems: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected 2 claimed items, got %d", len(claimed))
	}
	if claimed[0].FilePath != "/mnt/a.txt" || claimed[1].FilePath != "/mnt/b.txt" {
		t.Fatalf("expected items claimed in insertion order, got %+v", claimed)
	}

	pending, running, err := store.RemainingItems(ctx, "job-1")
	if err != nil {
		t.Fatalf("RemainingItems: %v", err)
	}
	if pending != 1 || running != 2 {
		t.Fatalf("expected 1 pending, 2 running, got pending=%d running=%d", pending, running)
	}
}

func TestClaimPendingItemsSkipsAlreadyRunning(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := Job{ID: "job-1", TotalFiles: 2, Status: JobPending, CreatedAt: time.Now()}
	items := []JobItem{{FilePath: "/mnt/a.txt"}, {FilePath: "/mnt/b.txt"}}
	if err := store.CreateJob(ctx, job, items); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}

	if _, err := store.ClaimPendingItems(ctx, "job-1", "worker-0", 1, time.Minute); err != nil {
		t.Fatalf("first claim: %v", err)
	}
	second, err := store.ClaimPendingItems(ctx, "job-1", "worker-1", 5, time.Minute)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(second) != 1 || second[0].FilePath != "/mnt/b.txt" {
		t.Fatalf("expected only the unclaimed item, got %+v", second)
	}
}

func TestReapExpiredLeasesReleasesToPending(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := Job{ID: "job-1", TotalFiles: 1, Status: JobPending, CreatedAt: time.Now()}
	if err := store.CreateJob(ctx, job, []JobItem{{FilePath: "/mnt/a.txt"}}); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := store.ClaimPendingItems(ctx, "job-1", "worker-0", 1, -time.Second); err != nil {
		t.Fatalf("ClaimPendingItems: %v", err)
	}

	n, err := store.ReapExpiredLeases(ctx)
	if err != nil {
		t.Fatalf("ReapExpiredLeases: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 reclaimed item, got %d", n)
	}

	pending, running, err := store.RemainingItems(ctx, "job-1")
	if err != nil {
		t.Fatalf("RemainingItems: %v", err)
	}
	if pending != 1 || running != 0 {
		t.Fatalf("expected item released back to pending, got pending=%d running=%d", pending, running)
	}
}

func TestCompleteItemUpdatesJobCounters(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	job := Job{ID: "job-1", TotalFiles: 2, Status: JobPending, CreatedAt: time.Now()}
	items := []JobItem{{FilePath: "/mnt/a.txt"}, {FilePath: "/mnt/b.txt"}}
	if err := store.CreateJob(ctx, job, items); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if _, err := store.ClaimPendingItems(ctx, "job-1", "worker-0", 2, time.Minute); err != nil {
		t.Fatalf("ClaimPendingItems: %v", err)
	}

	if err := store.CompleteItem(ctx, "job-1", "/mnt/a.txt", true, 100, ""); err != nil {
		t.Fatalf("CompleteItem (success): %v", err)
	}
	if err := store.CompleteItem(ctx, "job-1", "/mnt/b.txt", false, 0, "boom"); err != nil {
		t.Fatalf("CompleteItem (failure): %v", err)
	}

	gotJob, _, err := store.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if gotJob.CompletedFiles != 1 || gotJob.FailedFiles != 1 {
		t.Fatalf("expected 1 completed and 1 failed, got completed=%d failed=%d", gotJob.CompletedFiles, gotJob.FailedFiles)
	}
	if gotJob.CompletedSizeBytes != 100 {
		t.Fatalf("expected 100 completed bytes, got %d", gotJob.CompletedSizeBytes)
	}
}

func TestGetDefaultProfileReturnsGeneral(t *testing.T) {
	store := NewMemoryStore()
	p, err := store.GetDefaultProfile(context.Background())
	if err != nil {
		t.Fatalf("GetDefaultProfile: %v", err)
	}
	if p.Name != ProfileGeneral {
		t.Fatalf("expected general profile, got %s", p.Name)
	}
}

func TestListProfilesOrderedByPriority(t *testing.T) {
	store := NewMemoryStore()
	profiles, err := store.ListProfiles(context.Background())
	if err != nil {
		t.Fatalf("ListProfiles: %v", err)
	}
	if len(profiles) != 5 {
		t.Fatalf("expected 5 seeded profiles, got %d", len(profiles))
	}
	for i := 1; i < len(profiles); i++ {
		if profiles[i-1].Priority < profiles[i].Priority {
			t.Fatalf("expected profiles ordered by descending priority, got %+v", profiles)
		}
	}
}
