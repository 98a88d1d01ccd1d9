package catalog

import (
	"context"
	"database/sql"
	"fmt"
)

// GetProfile looks up a Profile by id.
func (s *PostgresStore) GetProfile(ctx context.Context, id string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, priority, is_default, worker_count, max_concurrent_files, worker_poll_interval_ms
		FROM profiles WHERE id = $1`, id)
	return scanOptionalProfile(row)
}

// GetProfileByName looks up a Profile by its classification name (section 4.C).
func (s *PostgresStore) GetProfileByName(ctx context.Context, name string) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, priority, is_default, worker_count, max_concurrent_files, worker_poll_interval_ms
		FROM profiles WHERE name = $1`, name)
	return scanOptionalProfile(row)
}

// GetDefaultProfile returns the profile flagged is_default, used as the
// Profile Selector's fallback (section 4.C).
func (s *PostgresStore) GetDefaultProfile(ctx context.Context) (*Profile, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, priority, is_default, worker_count, max_concurrent_files, worker_poll_interval_ms
		FROM profiles WHERE is_default = TRUE LIMIT 1`)
	p, err := scanOptionalProfile(row)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("no default profile seeded")
	}
	return p, nil
}

// ListProfiles returns every seeded profile, ordered by priority descending.
func (s *PostgresStore) ListProfiles(ctx context.Context) ([]Profile, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, priority, is_default, worker_count, max_concurrent_files, worker_poll_interval_ms
		FROM profiles ORDER BY priority DESC, name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	defer rows.Close()

	var out []Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func scanOptionalProfile(row *sql.Row) (*Profile, error) {
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan profile: %w", err)
	}
	return &p, nil
}

func scanProfile(r rowScanner) (Profile, error) {
	var p Profile
	var pollMS int64
	err := r.Scan(&p.ID, &p.Name, &p.Priority, &p.IsDefault, &p.WorkerCount, &p.MaxConcurrentFiles, &pollMS)
	if err != nil {
		return Profile{}, err
	}
	p.WorkerPollInterval = msToDuration(pollMS)
	return p, nil
}
