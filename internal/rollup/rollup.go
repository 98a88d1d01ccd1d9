// Package rollup implements the Directory Roll-up (component F of the
// design specification): keeping a directory's cached flag consistent with
// the cache state of its descendants, both opportunistically on read and on
// explicit request.
package rollup

import (
	"context"
	"time"

	"github.com/teamcache/tcmanager/internal/catalog"
)

// Roller triggers directory cache-status validation the two ways section
// 4.F requires: opportunistically when listing a directory, and explicitly
// on operator request.
type Roller struct {
	store    catalog.Store
	maxDepth int
}

// New constructs a Roller bounded to maxDepth descendant levels (the
// configurable rollup_max_depth, default 20, supplementing open question 3).
func New(store catalog.Store, maxDepth int) *Roller {
	return &Roller{store: store, maxDepth: maxDepth}
}

// ListChildren returns parentPath's direct children. If parentPath is
// itself marked cached, it is opportunistically re-validated in the
// background; a directory that no longer qualifies is demoted
// asynchronously rather than blocking the read (section 4.F trigger 1).
func (r *Roller) ListChildren(ctx context.Context, parentPath string) ([]catalog.Entry, error) {
	children, err := r.store.FindChildren(ctx, parentPath)
	if err != nil {
		return nil, err
	}

	if entry, err := r.store.GetEntry(ctx, parentPath); err == nil && entry != nil && entry.IsDirectory && entry.Cached {
		go func() {
			bgCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_, _, _ = r.store.UpdateDirectoryCacheIfValid(bgCtx, parentPath, r.maxDepth)
		}()
	}

	return children, nil
}

// Validate implements the explicit ValidateDirectoryCache external
// operation (section 6): re-validate dirPath and persist the result,
// returning the validation stats and whether the directory is now marked
// cached.
func (r *Roller) Validate(ctx context.Context, dirPath string) (catalog.DirectoryValidation, bool, error) {
	return r.store.UpdateDirectoryCacheIfValid(ctx, dirPath, r.maxDepth)
}

// Size returns dirPath's recursive size roll-up, using the Catalog Store's
// freshness-windowed cache (section 4.A).
func (r *Roller) Size(ctx context.Context, dirPath string, ttl time.Duration) (catalog.ComputedSize, error) {
	return r.store.DirectorySize(ctx, dirPath, ttl)
}
