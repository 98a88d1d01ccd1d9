package catalog

import (
	"context"
	"fmt"
	"time"
)

// ValidateDirectoryCacheStatus implements section 4.F: a directory is fully
// cached only if every descendant file, to maxDepth levels below dirPath, is
// cached. The recursive CTE tracks depth explicitly so the traversal can be
// bounded (the configurable rollup_max_depth, default 20, guards against
// pathological directory nesting).
func (s *PostgresStore) ValidateDirectoryCacheStatus(ctx context.Context, dirPath string, maxDepth int) (DirectoryValidation, error) {
	row := s.db.QueryRowContext(ctx, `
		WITH RECURSIVE descendants AS (
			SELECT path, parent_path, is_directory, cached, 1 AS depth
			FROM entries WHERE parent_path = $1
			UNION ALL
			SELECT e.path, e.parent_path, e.is_directory, e.cached, d.depth + 1
			FROM entries e
			JOIN descendants d ON e.parent_path = d.path
			WHERE d.depth < $2
		)
		SELECT
			COUNT(*) FILTER (WHERE is_directory = FALSE),
			COUNT(*) FILTER (WHERE is_directory = FALSE AND cached = TRUE),
			COUNT(*) FILTER (WHERE is_directory = TRUE),
			COUNT(*) FILTER (WHERE is_directory = TRUE AND cached = TRUE)
		FROM descendants`, dirPath, maxDepth)

	var v DirectoryValidation
	if err := row.Scan(&v.TotalFiles, &v.CachedFiles, &v.Subdirs, &v.CachedSubdirs); err != nil {
		return DirectoryValidation{}, fmt.Errorf("failed to validate directory cache status for %s: %w", dirPath, err)
	}
	v.ShouldBeCached = v.TotalFiles > 0 && v.CachedFiles == v.TotalFiles && v.CachedSubdirs == v.Subdirs
	return v, nil
}

// UpdateDirectoryCacheIfValid re-validates dirPath and persists the result
// onto its entries row, implementing the opportunistic on-read
// validate-and-demote behavior of section 4.F: a directory previously
// marked cached that no longer qualifies (a descendant was evicted or
// rewritten) is demoted, never silently left stale.
func (s *PostgresStore) UpdateDirectoryCacheIfValid(ctx context.Context, dirPath string, maxDepth int) (DirectoryValidation, bool, error) {
	v, err := s.ValidateDirectoryCacheStatus(ctx, dirPath, maxDepth)
	if err != nil {
		return DirectoryValidation{}, false, err
	}

	var cachedAt any
	if v.ShouldBeCached {
		cachedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE entries SET cached = $2, cached_at = CASE WHEN $2 THEN $3 ELSE NULL END,
			cache_job_id = CASE WHEN $2 THEN cache_job_id ELSE NULL END
		WHERE path = $1 AND is_directory = TRUE`, dirPath, v.ShouldBeCached, cachedAt)
	if err != nil {
		return DirectoryValidation{}, false, fmt.Errorf("failed to persist directory cache status for %s: %w", dirPath, err)
	}
	return v, v.ShouldBeCached, nil
}

// DirectorySize implements section 4.A's cached size roll-up: recompute the
// recursive total only when the cached ComputedSize in the directory's
// metadata is missing or older than ttl, otherwise return the cached value.
func (s *PostgresStore) DirectorySize(ctx context.Context, dirPath string, ttl time.Duration) (ComputedSize, error) {
	entry, err := s.GetEntry(ctx, dirPath)
	if err != nil {
		return ComputedSize{}, err
	}
	if entry == nil {
		return ComputedSize{}, fmt.Errorf("directory %s not found in catalog", dirPath)
	}
	if entry.Metadata.ComputedSize != nil && !entry.Metadata.ComputedSize.Stale(ttl) {
		return *entry.Metadata.ComputedSize, nil
	}

	row := s.db.QueryRowContext(ctx, `
		WITH RECURSIVE descendants AS (
			SELECT path, is_directory, size FROM entries WHERE parent_path = $1
			UNION ALL
			SELECT e.path, e.is_directory, e.size
			FROM entries e
			JOIN descendants d ON e.parent_path = d.path
		)
		SELECT
			COALESCE(SUM(size) FILTER (WHERE is_directory = FALSE), 0),
			COUNT(*) FILTER (WHERE is_directory = FALSE),
			COUNT(*) FILTER (WHERE is_directory = TRUE)
		FROM descendants`, dirPath)

	var cs ComputedSize
	if err := row.Scan(&cs.TotalBytes, &cs.FileCount, &cs.DirCount); err != nil {
		return ComputedSize{}, fmt.Errorf("failed to compute directory size for %s: %w", dirPath, err)
	}
	cs.CalculatedAt = time.Now()

	entry.Metadata.ComputedSize = &cs
	blob, err := entry.Metadata.MarshalBlob()
	if err != nil {
		return ComputedSize{}, err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE entries SET metadata = $2 WHERE path = $1`, dirPath, string(blob)); err != nil {
		return ComputedSize{}, fmt.Errorf("failed to persist computed size for %s: %w", dirPath, err)
	}
	return cs, nil
}
