package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements Store entirely in memory, the way
// checkpoint.MemoryStore backs the teacher's checkpoint tests. It is
// intended for unit tests, not production: no durability, no row-level concurrency control beyond the single mutex.
type MemoryStore struct {
	mu sync.RWMutex

	entries      map[string]Entry
	childrenOf   map[string][]string // parent path -> child paths, insertion order
	sessions     map[string]IndexSession
	jobs         map[string]Job
	items        map[string]*JobItem // keyed by synthetic "jobID\x00path"
	itemOrder    map[string][]string // jobID -> item keys, insertion order
	nextItemID   int64
	profiles     map[string]Profile
	profileNames map[string]string // name -> id
}

// NewMemoryStore constructs an empty MemoryStore, seeded with the same
// default profiles ApplySchema seeds in PostgresStore.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{
		entries:      make(map[string]Entry),
		childrenOf:   make(map[string][]string),
		sessions:     make(map[string]IndexSession),
		jobs:         make(map[string]Job),
		items:        make(map[string]*JobItem),
		itemOrder:    make(map[string][]string),
		profiles:     make(map[string]Profile),
		profileNames: make(map[string]string),
	}
	for _, p := range DefaultProfileSeeds() {
		s.profiles[p.ID] = p
		s.profileNames[p.Name] = p.ID
	}
	return s
}

func itemKey(jobID, path string) string { return jobID + "\x00" + path }

func (s *MemoryStore) UpsertEntries(ctx context.Context, batch []Entry, sessionID string) ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Entry, 0, len(batch))
	for _, e := range batch {
		e.LastSeenSessionID = sessionID
		if existing, ok := s.entries[e.Path]; ok {
			e.Cached = existing.Cached
			e.CachedAt = existing.CachedAt
			e.CacheJobID = existing.CacheJobID
			if e.Metadata.ComputedSize == nil {
				e.Metadata.ComputedSize = existing.Metadata.ComputedSize
			}
		} else if e.ParentPath != "" {
			s.childrenOf[e.ParentPath] = append(s.childrenOf[e.ParentPath], e.Path)
		}
		s.entries[e.Path] = e
		out = append(out, e)
	}
	return out, nil
}

func (s *MemoryStore) FindChildren(ctx context.Context, parentPath string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, p := range s.childrenOf[parentPath] {
		out = append(out, s.entries[p])
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDirectory != out[j].IsDirectory {
			return out[i].IsDirectory
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

func (s *MemoryStore) FindFilesRecursively(ctx context.Context, dirPath string) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	var walk func(path string)
	walk = func(path string) {
		for _, child := range s.childrenOf[path] {
			e := s.entries[child]
			if e.IsDirectory {
				walk(child)
			} else {
				out = append(out, e)
			}
		}
	}
	walk(dirPath)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *MemoryStore) BatchNeedsIndexing(ctx context.Context, fsObserved []FSObservation) ([]FSObservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var needsIndexing []FSObservation
	for _, o := range fsObserved {
		cur, ok := s.entries[o.Path]
		if !ok {
			needsIndexing = append(needsIndexing, o)
			continue
		}
		drift := o.ModifiedAt.Sub(cur.ModifiedAt)
		if drift > mtimeTolerance || o.Size != cur.Size {
			needsIndexing = append(needsIndexing, o)
		}
	}
	return needsIndexing, nil
}

func (s *MemoryStore) GetEntry(ctx context.Context, path string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[path]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *MemoryStore) SetEntryCached(ctx context.Context, path string, jobID string, cachedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[path]
	if !ok {
		return fmt.Errorf("entry %s not found", path)
	}
	e.Cached = true
	t := cachedAt
	e.CachedAt = &t
	id := jobID
	e.CacheJobID = &id
	s.entries[path] = e
	return nil
}

func (s *MemoryStore) CreateIndexSession(ctx context.Context, rootPath string) (IndexSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := IndexSession{
		ID:        fmt.Sprintf("session-%d", len(s.sessions)+1),
		RootPath:  rootPath,
		Status:    SessionRunning,
		StartedAt: time.Now(),
	}
	s.sessions[session.ID] = session
	return session, nil
}

func (s *MemoryStore) UpdateIndexSession(ctx context.Context, session IndexSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	return nil
}

func (s *MemoryStore) GetRunningIndexSession(ctx context.Context) (*IndexSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest *IndexSession
	for _, sess := range s.sessions {
		if sess.Status != SessionPending && sess.Status != SessionRunning {
			continue
		}
		sess := sess
		if latest == nil || sess.StartedAt.After(latest.StartedAt) {
			latest = &sess
		}
	}
	return latest, nil
}

func (s *MemoryStore) GetIndexSession(ctx context.Context, id string) (*IndexSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

func (s *MemoryStore) CreateJob(ctx context.Context, job Job, items []JobItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	for _, it := range items {
		s.nextItemID++
		it.ID = s.nextItemID
		it.JobID = job.ID
		it.Status = ItemPending
		key := itemKey(job.ID, it.FilePath)
		stored := it
		s.items[key] = &stored
		s.itemOrder[job.ID] = append(s.itemOrder[job.ID], key)
	}
	return nil
}

func (s *MemoryStore) GetJob(ctx context.Context, id string) (*Job, []JobItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, nil, nil
	}
	var items []JobItem
	for _, key := range s.itemOrder[id] {
		items = append(items, *s.items[key])
	}
	return &job, items, nil
}

func (s *MemoryStore) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Job
	for _, j := range s.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) PendingOrRunningJobs(ctx context.Context) ([]Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Job
	for _, j := range s.jobs {
		if j.Status == JobPending || j.Status == JobRunning {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) UpdateJobStatus(ctx context.Context, id string, status JobStatus, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return fmt.Errorf("job %s not found", id)
	}
	job.Status = status
	switch status {
	case JobRunning:
		if job.StartedAt == nil {
			t := now
			job.StartedAt = &t
		}
	case JobCompleted, JobFailed, JobCancelled:
		t := now
		job.CompletedAt = &t
	}
	s.jobs[id] = job
	return nil
}

func (s *MemoryStore) ClearCompleted(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, j := range s.jobs {
		if j.Status == JobCompleted || j.Status == JobFailed || j.Status == JobCancelled {
			delete(s.jobs, id)
			for _, key := range s.itemOrder[id] {
				delete(s.items, key)
			}
			delete(s.itemOrder, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ClaimPendingItems(ctx context.Context, jobID, workerID string, limit int, leaseDuration time.Duration) ([]JobItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var claimed []JobItem
	now := time.Now()
	lease := now.Add(leaseDuration)
	for _, key := range s.itemOrder[jobID] {
		if len(claimed) >= limit {
			break
		}
		it := s.items[key]
		if it.Status != ItemPending {
			continue
		}
		it.Status = ItemRunning
		it.WorkerID = workerID
		t := now
		it.StartedAt = &t
		le := lease
		it.LeaseExpiresAt = &le
		claimed = append(claimed, *it)
	}
	return claimed, nil
}

func (s *MemoryStore) RenewLease(ctx context.Context, itemIDs []int64, workerID string, leaseDuration time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[int64]bool, len(itemIDs))
	for _, id := range itemIDs {
		want[id] = true
	}
	lease := time.Now().Add(leaseDuration)
	for _, it := range s.items {
		if want[it.ID] && it.WorkerID == workerID && it.Status == ItemRunning {
			le := lease
			it.LeaseExpiresAt = &le
		}
	}
	return nil
}

func (s *MemoryStore) ReapExpiredLeases(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	now := time.Now()
	for _, it := range s.items {
		if it.Status == ItemRunning && it.LeaseExpiresAt != nil && it.LeaseExpiresAt.Before(now) {
			it.Status = ItemPending
			it.WorkerID = ""
			it.StartedAt = nil
			it.LeaseExpiresAt = nil
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CompleteItem(ctx context.Context, jobID string, path string, success bool, sizeBytes int64, errMsg string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[itemKey(jobID, path)]
	if !ok || it.Status != ItemRunning {
		return nil
	}
	now := time.Now()
	it.CompletedAt = &now
	it.FileSizeBytes = sizeBytes
	it.ErrorMessage = errMsg
	job := s.jobs[jobID]
	if success {
		it.Status = ItemCompleted
		job.CompletedFiles++
		job.CompletedSizeBytes += sizeBytes
	} else {
		it.Status = ItemFailed
		job.FailedFiles++
	}
	s.jobs[jobID] = job
	return nil
}

func (s *MemoryStore) RemainingItems(ctx context.Context, jobID string) (pending int64, running int64, err error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, key := range s.itemOrder[jobID] {
		switch s.items[key].Status {
		case ItemPending:
			pending++
		case ItemRunning:
			running++
		}
	}
	return pending, running, nil
}

func (s *MemoryStore) ReleaseRunningItems(ctx context.Context, jobID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range s.itemOrder[jobID] {
		it := s.items[key]
		if it.Status == ItemRunning {
			it.Status = ItemPending
			it.WorkerID = ""
			it.StartedAt = nil
			it.LeaseExpiresAt = nil
		}
	}
	return nil
}

func (s *MemoryStore) ValidateDirectoryCacheStatus(ctx context.Context, dirPath string, maxDepth int) (DirectoryValidation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.validateLocked(dirPath, maxDepth)
}

func (s *MemoryStore) validateLocked(dirPath string, maxDepth int) (DirectoryValidation, error) {
	var v DirectoryValidation
	var walk func(path string, depth int)
	walk = func(path string, depth int) {
		if depth > maxDepth {
			return
		}
		for _, child := range s.childrenOf[path] {
			e := s.entries[child]
			if e.IsDirectory {
				v.Subdirs++
				if e.Cached {
					v.CachedSubdirs++
				}
				walk(child, depth+1)
			} else {
				v.TotalFiles++
				if e.Cached {
					v.CachedFiles++
				}
			}
		}
	}
	walk(dirPath, 1)
	v.ShouldBeCached = v.TotalFiles > 0 && v.CachedFiles == v.TotalFiles && v.CachedSubdirs == v.Subdirs
	return v, nil
}

func (s *MemoryStore) UpdateDirectoryCacheIfValid(ctx context.Context, dirPath string, maxDepth int) (DirectoryValidation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.validateLocked(dirPath, maxDepth)
	if err != nil {
		return DirectoryValidation{}, false, err
	}
	e, ok := s.entries[dirPath]
	if !ok {
		return DirectoryValidation{}, false, fmt.Errorf("directory %s not found", dirPath)
	}
	e.Cached = v.ShouldBeCached
	if v.ShouldBeCached {
		t := time.Now()
		e.CachedAt = &t
	} else {
		e.CachedAt = nil
		e.CacheJobID = nil
	}
	s.entries[dirPath] = e
	return v, v.ShouldBeCached, nil
}

func (s *MemoryStore) DirectorySize(ctx context.Context, dirPath string, ttl time.Duration) (ComputedSize, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[dirPath]
	if !ok {
		return ComputedSize{}, fmt.Errorf("directory %s not found", dirPath)
	}
	if e.Metadata.ComputedSize != nil && !e.Metadata.ComputedSize.Stale(ttl) {
		return *e.Metadata.ComputedSize, nil
	}

	var cs ComputedSize
	var walk func(path string)
	walk = func(path string) {
		for _, child := range s.childrenOf[path] {
			ce := s.entries[child]
			if ce.IsDirectory {
				cs.DirCount++
				walk(child)
			} else {
				cs.FileCount++
				cs.TotalBytes += ce.Size
			}
		}
	}
	walk(dirPath)
	cs.CalculatedAt = time.Now()
	e.Metadata.ComputedSize = &cs
	s.entries[dirPath] = e
	return cs, nil
}

func (s *MemoryStore) GetProfile(ctx context.Context, id string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *MemoryStore) GetProfileByName(ctx context.Context, name string) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.profileNames[name]
	if !ok {
		return nil, nil
	}
	p := s.profiles[id]
	return &p, nil
}

func (s *MemoryStore) GetDefaultProfile(ctx context.Context) (*Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.IsDefault {
			return &p, nil
		}
	}
	return nil, fmt.Errorf("no default profile seeded")
}

func (s *MemoryStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Profile
	for _, p := range s.profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Name < out[j].Name
	})
	return out, nil
}

var _ Store = (*MemoryStore)(nil)
