package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

const maxBatchRows = 1000

// PostgresStore implements Store against PostgreSQL using database/sql and
// github.com/lib/pq, the way other_examples/.../resumable_processor.go
// tracks a resumable job/worker pipeline in Postgres. It relies on
// PostgreSQL-specific features named in section 6: row-level locking with
// SKIP LOCKED, recursive CTEs, a JSON column type, and ON CONFLICT upserts.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

// Open connects to dsn with the given pool sizing and verifies
// connectivity, retrying with exponential backoff the way
// other_examples/.../resumable_processor.go does on startup.
func Open(ctx context.Context, dsn string, maxOpen, maxIdle int) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog database: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)

	var pingErr error
	for attempt := 0; attempt < 10; attempt++ {
		pingErr = db.PingContext(ctx)
		if pingErr == nil {
			break
		}
		wait := time.Duration(1<<uint(attempt)) * time.Second
		if wait > 30*time.Second {
			wait = 30 * time.Second
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if pingErr != nil {
		return nil, fmt.Errorf("failed to connect to catalog database after retries: %w", pingErr)
	}

	return &PostgresStore{db: db}, nil
}

// ApplySchema provisions the Catalog Store's tables and seed profiles. It is
// idempotent: every statement uses IF NOT EXISTS / ON CONFLICT DO NOTHING.
func (s *PostgresStore) ApplySchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply catalog schema: %w", err)
	}
	for _, p := range DefaultProfileSeeds() {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO profiles (id, name, priority, is_default, worker_count, max_concurrent_files, worker_poll_interval_ms)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING`,
			p.ID, p.Name, p.Priority, p.IsDefault, p.WorkerCount, p.MaxConcurrentFiles, p.WorkerPollInterval.Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to seed profile %s: %w", p.Name, err)
		}
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// UpsertEntries implements section 4.A: chunked, one transaction per batch,
// ON CONFLICT overwrites mutable fields and bumps last_seen_session_id.
func (s *PostgresStore) UpsertEntries(ctx context.Context, batch []Entry, sessionID string) ([]Entry, error) {
	if len(batch) == 0 {
		return nil, nil
	}

	var upserted []Entry
	for _, part := range chunk(batch, maxBatchRows) {
		if err := s.upsertChunk(ctx, part, sessionID); err != nil {
			return nil, err
		}
		upserted = append(upserted, part...)
	}
	return upserted, nil
}

func (s *PostgresStore) upsertChunk(ctx context.Context, part []Entry, sessionID string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upsert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var sb strings.Builder
	sb.WriteString(`INSERT INTO entries (path, parent_path, name, is_directory, size, modified_at, permissions, cached, cached_at, cache_job_id, last_seen_session_id, metadata) VALUES `)
	args := make([]any, 0, len(part)*12)
	for i, e := range part {
		if i > 0 {
			sb.WriteString(", ")
		}
		base := i * 12
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8, base+9, base+10, base+11, base+12)

		blob, err := e.Metadata.MarshalBlob()
		if err != nil {
			return err
		}
		var parentPath any
		if e.ParentPath != "" {
			parentPath = e.ParentPath
		}
		args = append(args, e.Path, parentPath, e.Name, e.IsDirectory, e.Size, e.ModifiedAt,
			e.Permissions, e.Cached, e.CachedAt, e.CacheJobID, sessionID, string(blob))
	}
	sb.WriteString(` ON CONFLICT (path) DO UPDATE SET
		parent_path = EXCLUDED.parent_path,
		name = EXCLUDED.name,
		is_directory = EXCLUDED.is_directory,
		size = EXCLUDED.size,
		modified_at = EXCLUDED.modified_at,
		permissions = EXCLUDED.permissions,
		last_seen_session_id = EXCLUDED.last_seen_session_id`)

	if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to upsert entries: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit upsert: %w", err)
	}
	return nil
}

// FindChildren implements section 4.A: direct children, directories first,
// then by name.
func (s *PostgresStore) FindChildren(ctx context.Context, parentPath string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT path, parent_path, name, is_directory, size, modified_at, permissions,
		       cached, cached_at, cache_job_id, last_seen_session_id, metadata
		FROM entries
		WHERE parent_path = $1
		ORDER BY is_directory DESC, name ASC`, parentPath)
	if err != nil {
		return nil, fmt.Errorf("failed to find children of %s: %w", parentPath, err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// FindFilesRecursively implements section 4.A: all non-directory
// descendants of dirPath via a recursive traversal on parent_path, used to
// expand a directory selection into file items.
func (s *PostgresStore) FindFilesRecursively(ctx context.Context, dirPath string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE descendants AS (
			SELECT path, parent_path, name, is_directory, size, modified_at, permissions,
			       cached, cached_at, cache_job_id, last_seen_session_id, metadata
			FROM entries WHERE parent_path = $1
			UNION ALL
			SELECT e.path, e.parent_path, e.name, e.is_directory, e.size, e.modified_at, e.permissions,
			       e.cached, e.cached_at, e.cache_job_id, e.last_seen_session_id, e.metadata
			FROM entries e
			JOIN descendants d ON e.parent_path = d.path
		)
		SELECT path, parent_path, name, is_directory, size, modified_at, permissions,
		       cached, cached_at, cache_job_id, last_seen_session_id, metadata
		FROM descendants
		WHERE is_directory = FALSE
		ORDER BY path ASC`, dirPath)
	if err != nil {
		return nil, fmt.Errorf("failed to find files under %s: %w", dirPath, err)
	}
	defer rows.Close()
	return scanEntries(rows)
}

// BatchNeedsIndexing implements section 4.A. A row needs (re)indexing if the
// catalog has no record of it, or the filesystem mtime exceeds the catalog
// mtime by more than 1s, or the size differs.
const mtimeTolerance = time.Second

func (s *PostgresStore) BatchNeedsIndexing(ctx context.Context, fsObserved []FSObservation) ([]FSObservation, error) {
	if len(fsObserved) == 0 {
		return nil, nil
	}

	paths := make([]string, len(fsObserved))
	for i, o := range fsObserved {
		paths[i] = o.Path
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT path, modified_at, size FROM entries WHERE path = ANY($1)`, pq.Array(paths))
	if err != nil {
		return nil, fmt.Errorf("failed to query catalog state for BatchNeedsIndexing: %w", err)
	}
	defer rows.Close()

	known := make(map[string]FSObservation, len(fsObserved))
	for rows.Next() {
		var o FSObservation
		if err := rows.Scan(&o.Path, &o.ModifiedAt, &o.Size); err != nil {
			return nil, fmt.Errorf("failed to scan catalog row: %w", err)
		}
		known[o.Path] = o
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var needsIndexing []FSObservation
	for _, o := range fsObserved {
		cur, ok := known[o.Path]
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

// GetEntry returns a single entry by path, or nil if unknown.
func (s *PostgresStore) GetEntry(ctx context.Context, path string) (*Entry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT path, parent_path, name, is_directory, size, modified_at, permissions,
		       cached, cached_at, cache_job_id, last_seen_session_id, metadata
		FROM entries WHERE path = $1`, path)

	e, err := scanEntry(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry %s: %w", path, err)
	}
	return &e, nil
}

// SetEntryCached marks an Entry cached after a successful warm read
// (section 4.E step 6; ordering guarantee (c) in section 5: cached_at is
// set strictly after the warm read succeeds, which callers guarantee by
// only calling this post-read).
func (s *PostgresStore) SetEntryCached(ctx context.Context, path string, jobID string, cachedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE entries SET cached = TRUE, cached_at = $2, cache_job_id = $3 WHERE path = $1`,
		path, cachedAt, jobID)
	if err != nil {
		return fmt.Errorf("failed to mark entry %s cached: %w", path, err)
	}
	return nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	var out []Entry
	for rows.Next() {
		e, err := scanEntryRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry row: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// rowScanner abstracts over *sql.Row and *sql.Rows for scanEntry.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntryRow(r rowScanner) (Entry, error) {
	return scanEntry(r)
}

func scanEntry(r rowScanner) (Entry, error) {
	var e Entry
	var parentPath sql.NullString
	var cacheJobID sql.NullString
	var cachedAt sql.NullTime
	var lastSeen sql.NullString
	var metadataBlob string

	err := r.Scan(&e.Path, &parentPath, &e.Name, &e.IsDirectory, &e.Size, &e.ModifiedAt,
		&e.Permissions, &e.Cached, &cachedAt, &cacheJobID, &lastSeen, &metadataBlob)
	if err != nil {
		return Entry{}, err
	}

	e.ParentPath = parentPath.String
	e.LastSeenSessionID = lastSeen.String
	if cachedAt.Valid {
		t := cachedAt.Time
		e.CachedAt = &t
	}
	if cacheJobID.Valid {
		id := cacheJobID.String
		e.CacheJobID = &id
	}
	meta, err := UnmarshalBlob([]byte(metadataBlob))
	if err != nil {
		return Entry{}, err
	}
	e.Metadata = meta
	return e, nil
}
