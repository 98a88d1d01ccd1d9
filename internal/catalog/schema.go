package catalog

// Schema is the PostgreSQL DDL for the Catalog Store (section 3). It is
// applied once at startup by cmd/tcached; ApplySchema wraps it for callers
// that want to provision a fresh database (or a test container).
const Schema = `
CREATE TABLE IF NOT EXISTS entries (
	path                    TEXT PRIMARY KEY,
	parent_path             TEXT REFERENCES entries(path),
	name                    TEXT NOT NULL,
	is_directory            BOOLEAN NOT NULL DEFAULT FALSE,
	size                    BIGINT NOT NULL DEFAULT 0,
	modified_at             TIMESTAMPTZ NOT NULL,
	permissions             INTEGER NOT NULL DEFAULT 0,
	cached                  BOOLEAN NOT NULL DEFAULT FALSE,
	cached_at               TIMESTAMPTZ,
	cache_job_id            TEXT,
	last_seen_session_id    TEXT,
	metadata                JSONB NOT NULL DEFAULT '{}'::jsonb
);

CREATE INDEX IF NOT EXISTS idx_entries_parent_path ON entries(parent_path);
CREATE INDEX IF NOT EXISTS idx_entries_cached ON entries(cached) WHERE is_directory = FALSE;

CREATE TABLE IF NOT EXISTS index_sessions (
	id                TEXT PRIMARY KEY,
	root_path         TEXT NOT NULL,
	status            TEXT NOT NULL CHECK (status IN ('pending','running','completed','failed','stopped')),
	total_files       BIGINT NOT NULL DEFAULT 0,
	processed_files   BIGINT NOT NULL DEFAULT 0,
	current_path      TEXT NOT NULL DEFAULT '',
	started_at        TIMESTAMPTZ NOT NULL,
	completed_at      TIMESTAMPTZ,
	error_message     TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS profiles (
	id                       TEXT PRIMARY KEY,
	name                     TEXT NOT NULL UNIQUE,
	priority                 INTEGER NOT NULL DEFAULT 0,
	is_default               BOOLEAN NOT NULL DEFAULT FALSE,
	worker_count             INTEGER NOT NULL,
	max_concurrent_files     INTEGER NOT NULL,
	worker_poll_interval_ms  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS jobs (
	id                      TEXT PRIMARY KEY,
	file_paths              TEXT[] NOT NULL,
	directory_paths         TEXT[] NOT NULL DEFAULT '{}',
	profile_id              TEXT NOT NULL REFERENCES profiles(id),
	total_files             BIGINT NOT NULL,
	completed_files         BIGINT NOT NULL DEFAULT 0,
	failed_files            BIGINT NOT NULL DEFAULT 0,
	completed_size_bytes    BIGINT NOT NULL DEFAULT 0,
	status                  TEXT NOT NULL CHECK (status IN ('pending','running','paused','completed','failed','cancelled')),
	worker_id               TEXT NOT NULL DEFAULT '',
	created_at              TIMESTAMPTZ NOT NULL,
	started_at              TIMESTAMPTZ,
	completed_at            TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at);

CREATE TABLE IF NOT EXISTS job_items (
	id                BIGSERIAL PRIMARY KEY,
	job_id            TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	file_path         TEXT NOT NULL,
	status            TEXT NOT NULL CHECK (status IN ('pending','running','completed','failed')),
	worker_id         TEXT NOT NULL DEFAULT '',
	file_size_bytes   BIGINT NOT NULL DEFAULT 0,
	error_message     TEXT NOT NULL DEFAULT '',
	started_at        TIMESTAMPTZ,
	completed_at      TIMESTAMPTZ,
	lease_expires_at  TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS idx_job_items_claim ON job_items(job_id, status, id);
CREATE INDEX IF NOT EXISTS idx_job_items_lease ON job_items(status, lease_expires_at) WHERE status = 'running';
`

// DefaultProfileSeeds returns the representative profiles section 3 requires
// any deployment to have: general (default), image-sequences, large-videos,
// proxy-media, small-files.
func DefaultProfileSeeds() []Profile {
	return []Profile{
		{ID: "general", Name: ProfileGeneral, Priority: 0, IsDefault: true, WorkerCount: 4, MaxConcurrentFiles: 4, WorkerPollInterval: msToDuration(1000)},
		{ID: "image-sequences", Name: ProfileImageSequences, Priority: 10, WorkerCount: 8, MaxConcurrentFiles: 16, WorkerPollInterval: msToDuration(250)},
		{ID: "large-videos", Name: ProfileLargeVideos, Priority: 10, WorkerCount: 6, MaxConcurrentFiles: 2, WorkerPollInterval: msToDuration(500)},
		{ID: "proxy-media", Name: ProfileProxyMedia, Priority: 5, WorkerCount: 6, MaxConcurrentFiles: 8, WorkerPollInterval: msToDuration(500)},
		{ID: "small-files", Name: ProfileSmallFiles, Priority: 5, WorkerCount: 8, MaxConcurrentFiles: 32, WorkerPollInterval: msToDuration(250)},
	}
}
