package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"
)

// CreateJob persists a Job in pending status together with its immutable
// item snapshot, chunked to at most 1000 items per insert statement
// (section 4.D step 4).
func (s *PostgresStore) CreateJob(ctx context.Context, job Job, items []JobItem) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin create-job transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO jobs (id, file_paths, directory_paths, profile_id, total_files, completed_files,
			failed_files, completed_size_bytes, status, worker_id, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, 0, 0, $6, '', $7)`,
		job.ID, pq.Array(job.FilePaths), pq.Array(job.DirectoryPaths), job.ProfileID,
		job.TotalFiles, job.Status, job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}

	for _, part := range chunk(items, maxBatchRows) {
		if err := insertJobItemsChunk(ctx, tx, job.ID, part); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit create-job transaction: %w", err)
	}
	return nil
}

func insertJobItemsChunk(ctx context.Context, tx *sql.Tx, jobID string, items []JobItem) error {
	if len(items) == 0 {
		return nil
	}
	args := make([]any, 0, len(items)*3)
	values := ""
	for i, it := range items {
		if i > 0 {
			values += ", "
		}
		base := i * 3
		values += fmt.Sprintf("($%d, $%d, $%d)", base+1, base+2, base+3)
		args = append(args, jobID, it.FilePath, ItemPending)
	}
	query := `INSERT INTO job_items (job_id, file_path, status) VALUES ` + values
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to insert job items: %w", err)
	}
	return nil
}

// GetJob returns a job and its items, or (nil, nil, nil) if not found.
func (s *PostgresStore) GetJob(ctx context.Context, id string) (*Job, []JobItem, error) {
	job, err := s.getJobRow(ctx, id)
	if err != nil || job == nil {
		return job, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, job_id, file_path, status, worker_id, file_size_bytes, error_message,
		       started_at, completed_at, lease_expires_at
		FROM job_items WHERE job_id = $1 ORDER BY id ASC`, id)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list job items for %s: %w", id, err)
	}
	defer rows.Close()

	var items []JobItem
	for rows.Next() {
		it, err := scanJobItem(rows)
		if err != nil {
			return nil, nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	return job, items, nil
}

func (s *PostgresStore) getJobRow(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, file_paths, directory_paths, profile_id, total_files, completed_files,
		       failed_files, completed_size_bytes, status, worker_id, created_at, started_at, completed_at
		FROM jobs WHERE id = $1`, id)
	return scanOptionalJob(row)
}

// ListJobs returns jobs ordered by created_at desc (section 6).
func (s *PostgresStore) ListJobs(ctx context.Context, limit int) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_paths, directory_paths, profile_id, total_files, completed_files,
		       failed_files, completed_size_bytes, status, worker_id, created_at, started_at, completed_at
		FROM jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJobRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job row: %w", err)
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// PendingOrRunningJobs returns jobs a worker should consider claiming from,
// ordered by created_at ascending (section 4.E step 2).
func (s *PostgresStore) PendingOrRunningJobs(ctx context.Context) ([]Job, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_paths, directory_paths, profile_id, total_files, completed_files,
		       failed_files, completed_size_bytes, status, worker_id, created_at, started_at, completed_at
		FROM jobs WHERE status IN ('pending','running') ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending/running jobs: %w", err)
	}
	defer rows.Close()

	var out []Job
	for rows.Next() {
		j, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// UpdateJobStatus transitions a job's status, stamping started_at/completed_at
// as appropriate (section 3 lifecycle).
func (s *PostgresStore) UpdateJobStatus(ctx context.Context, id string, status JobStatus, now time.Time) error {
	var query string
	var args []any
	switch status {
	case JobRunning:
		query = `UPDATE jobs SET status = $2, started_at = COALESCE(started_at, $3) WHERE id = $1`
		args = []any{id, status, now}
	case JobCompleted, JobFailed, JobCancelled:
		query = `UPDATE jobs SET status = $2, completed_at = $3 WHERE id = $1`
		args = []any{id, status, now}
	default:
		query = `UPDATE jobs SET status = $2 WHERE id = $1`
		args = []any{id, status}
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to update job %s status to %s: %w", id, status, err)
	}
	return nil
}

// ClearCompleted deletes jobs in {completed, failed, cancelled} and
// cascade-deletes their items via the job_items FK (section 4.D).
func (s *PostgresStore) ClearCompleted(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM jobs WHERE status IN ('completed','failed','cancelled')`)
	if err != nil {
		return 0, fmt.Errorf("failed to clear completed jobs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleared jobs: %w", err)
	}
	return n, nil
}

// ClaimPendingItems is the critical section of section 4.A/4.E/5: it
// atomically selects up to limit pending items for jobID, ordered by id
// ascending, locking rows with FOR UPDATE SKIP LOCKED so concurrent workers
// never claim the same row, then promotes them to running with a lease.
func (s *PostgresStore) ClaimPendingItems(ctx context.Context, jobID, workerID string, limit int, leaseDuration time.Duration) ([]JobItem, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(ctx, `
		SELECT id FROM job_items
		WHERE job_id = $1 AND status = 'pending'
		ORDER BY id ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED`, jobID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to select claimable items: %w", err)
	}

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan claimable item id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(ids) == 0 {
		return nil, tx.Commit()
	}

	now := time.Now()
	leaseExpires := now.Add(leaseDuration)
	_, err = tx.ExecContext(ctx, `
		UPDATE job_items SET status = 'running', worker_id = $2, started_at = $3, lease_expires_at = $4
		WHERE id = ANY($1)`, pq.Array(ids), workerID, now, leaseExpires)
	if err != nil {
		return nil, fmt.Errorf("failed to promote claimed items: %w", err)
	}

	claimedRows, err := tx.QueryContext(ctx, `
		SELECT id, job_id, file_path, status, worker_id, file_size_bytes, error_message,
		       started_at, completed_at, lease_expires_at
		FROM job_items WHERE id = ANY($1) ORDER BY id ASC`, pq.Array(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to re-read claimed items: %w", err)
	}
	var claimed []JobItem
	for claimedRows.Next() {
		it, err := scanJobItem(claimedRows)
		if err != nil {
			claimedRows.Close()
			return nil, err
		}
		claimed = append(claimed, it)
	}
	claimErr := claimedRows.Err()
	claimedRows.Close()
	if claimErr != nil {
		return nil, claimErr
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit claim transaction: %w", err)
	}
	return claimed, nil
}

// RenewLease extends the lease on items a worker is still actively
// processing, preventing ReapExpiredLeases from releasing them mid-flight.
func (s *PostgresStore) RenewLease(ctx context.Context, itemIDs []int64, workerID string, leaseDuration time.Duration) error {
	if len(itemIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE job_items SET lease_expires_at = $3
		WHERE id = ANY($1) AND worker_id = $2 AND status = 'running'`,
		pq.Array(itemIDs), workerID, time.Now().Add(leaseDuration))
	if err != nil {
		return fmt.Errorf("failed to renew item leases: %w", err)
	}
	return nil
}

// ReapExpiredLeases implements the heartbeat-lease recovery supplementing
// section 9 open question 1: items left running by a crashed worker whose
// lease has expired are released back to pending so another worker can
// claim them.
func (s *PostgresStore) ReapExpiredLeases(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE job_items SET status = 'pending', worker_id = '', started_at = NULL, lease_expires_at = NULL
		WHERE status = 'running' AND lease_expires_at < $1`, time.Now())
	if err != nil {
		return 0, fmt.Errorf("failed to reap expired leases: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count reaped leases: %w", err)
	}
	return n, nil
}

// CompleteItem implements section 4.A: set the item's terminal status and
// incrementally bump the owning job's aggregate counters in the same
// transaction. Incremental update is required; re-aggregating per item does
// not scale.
func (s *PostgresStore) CompleteItem(ctx context.Context, jobID string, path string, success bool, sizeBytes int64, errMsg string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin complete-item transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now()
	status := ItemFailed
	if success {
		status = ItemCompleted
	}
	res, err := tx.ExecContext(ctx, `
		UPDATE job_items SET status = $3, completed_at = $4, file_size_bytes = $5, error_message = $6
		WHERE job_id = $1 AND file_path = $2 AND status = 'running'`,
		jobID, path, status, now, sizeBytes, errMsg)
	if err != nil {
		return fmt.Errorf("failed to complete item %s: %w", path, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to count completed item update: %w", err)
	}
	if n == 0 {
		// Internal invariant violation (section 7): item was not running.
		// Log and skip rather than crash the worker; nothing to commit.
		log.Printf("catalog: complete-item skipped for %s in job %s: item is not running", path, jobID)
		return nil
	}

	if success {
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET completed_files = completed_files + 1, completed_size_bytes = completed_size_bytes + $2
			WHERE id = $1`, jobID, sizeBytes)
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE jobs SET failed_files = failed_files + 1 WHERE id = $1`, jobID)
	}
	if err != nil {
		return fmt.Errorf("failed to update job counters for %s: %w", jobID, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit complete-item transaction: %w", err)
	}
	return nil
}

// RemainingItems reports how many items for jobID are still pending or
// running, used by the worker pool to decide whether a job is finished
// (section 4.E step 8).
func (s *PostgresStore) RemainingItems(ctx context.Context, jobID string) (pending int64, running int64, err error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'running')
		FROM job_items WHERE job_id = $1`, jobID)
	if err := row.Scan(&pending, &running); err != nil {
		return 0, 0, fmt.Errorf("failed to count remaining items for job %s: %w", jobID, err)
	}
	return pending, running, nil
}

// ReleaseRunningItems demotes a job's running items back to pending. Used
// only when release_claims_on_pause is enabled (section 9 open question 2).
func (s *PostgresStore) ReleaseRunningItems(ctx context.Context, jobID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE job_items SET status = 'pending', worker_id = '', started_at = NULL, lease_expires_at = NULL
		WHERE job_id = $1 AND status = 'running'`, jobID)
	if err != nil {
		return fmt.Errorf("failed to release running items for job %s: %w", jobID, err)
	}
	return nil
}

func scanJobItem(r rowScanner) (JobItem, error) {
	var it JobItem
	var workerID sql.NullString
	var errMsg sql.NullString
	var startedAt, completedAt, leaseExpiresAt sql.NullTime

	err := r.Scan(&it.ID, &it.JobID, &it.FilePath, &it.Status, &workerID, &it.FileSizeBytes,
		&errMsg, &startedAt, &completedAt, &leaseExpiresAt)
	if err != nil {
		return JobItem{}, fmt.Errorf("failed to scan job item: %w", err)
	}
	it.WorkerID = workerID.String
	it.ErrorMessage = errMsg.String
	if startedAt.Valid {
		t := startedAt.Time
		it.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		it.CompletedAt = &t
	}
	if leaseExpiresAt.Valid {
		t := leaseExpiresAt.Time
		it.LeaseExpiresAt = &t
	}
	return it, nil
}

func scanOptionalJob(row *sql.Row) (*Job, error) {
	j, err := scanJobRow(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return &j, nil
}

func scanJobRow(r rowScanner) (Job, error) {
	var j Job
	var startedAt, completedAt sql.NullTime
	var workerID sql.NullString

	err := r.Scan(&j.ID, pq.Array(&j.FilePaths), pq.Array(&j.DirectoryPaths), &j.ProfileID,
		&j.TotalFiles, &j.CompletedFiles, &j.FailedFiles, &j.CompletedSizeBytes, &j.Status,
		&workerID, &j.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		return Job{}, err
	}
	j.WorkerID = workerID.String
	if startedAt.Valid {
		t := startedAt.Time
		j.StartedAt = &t
	}
	if completedAt.Valid {
		t := completedAt.Time
		j.CompletedAt = &t
	}
	return j, nil
}
