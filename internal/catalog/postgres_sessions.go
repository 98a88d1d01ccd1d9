package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// CreateIndexSession inserts a new IndexSession in the running state.
// Callers are expected to have already verified no other session is
// pending/running (section 4.B: AlreadyRunning).
func (s *PostgresStore) CreateIndexSession(ctx context.Context, rootPath string) (IndexSession, error) {
	session := IndexSession{
		ID:        uuid.NewString(),
		RootPath:  rootPath,
		Status:    SessionRunning,
		StartedAt: time.Now(),
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO index_sessions (id, root_path, status, total_files, processed_files, current_path, started_at, error_message)
		VALUES ($1, $2, $3, 0, 0, '', $4, '')`,
		session.ID, session.RootPath, session.Status, session.StartedAt)
	if err != nil {
		return IndexSession{}, fmt.Errorf("failed to create index session: %w", err)
	}
	return session, nil
}

// UpdateIndexSession persists the current progress/status of a session.
func (s *PostgresStore) UpdateIndexSession(ctx context.Context, session IndexSession) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE index_sessions SET
			status = $2, total_files = $3, processed_files = $4, current_path = $5,
			completed_at = $6, error_message = $7
		WHERE id = $1`,
		session.ID, session.Status, session.TotalFiles, session.ProcessedFiles,
		session.CurrentPath, session.CompletedAt, session.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to update index session %s: %w", session.ID, err)
	}
	return nil
}

// GetRunningIndexSession implements the "only one session may be running"
// invariant check used by StartIndex (section 4.B).
func (s *PostgresStore) GetRunningIndexSession(ctx context.Context) (*IndexSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, root_path, status, total_files, processed_files, current_path, started_at, completed_at, error_message
		FROM index_sessions WHERE status IN ('pending','running') ORDER BY started_at DESC LIMIT 1`)
	return scanOptionalSession(row)
}

// GetIndexSession looks up a session by id.
func (s *PostgresStore) GetIndexSession(ctx context.Context, id string) (*IndexSession, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, root_path, status, total_files, processed_files, current_path, started_at, completed_at, error_message
		FROM index_sessions WHERE id = $1`, id)
	return scanOptionalSession(row)
}

func scanOptionalSession(row *sql.Row) (*IndexSession, error) {
	var session IndexSession
	var completedAt sql.NullTime
	err := row.Scan(&session.ID, &session.RootPath, &session.Status, &session.TotalFiles,
		&session.ProcessedFiles, &session.CurrentPath, &session.StartedAt, &completedAt, &session.ErrorMessage)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan index session: %w", err)
	}
	if completedAt.Valid {
		t := completedAt.Time
		session.CompletedAt = &t
	}
	return &session, nil
}
