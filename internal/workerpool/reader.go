package workerpool

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"
)

// warmPrefixBytes bounds the read-to-warm action (section 4.E step 6): for
// files larger than this, reading the prefix is sufficient to force the
// cached filesystem to materialize the content; for smaller files the
// entire file is read.
const warmPrefixBytes = 4 * 1024 * 1024

// warmRead opens path and reads a bounded prefix, forcing the underlying
// cached filesystem to materialize the file's content. It returns the
// file's full size on success. The read is bounded by timeout; timing out
// counts as a read failure (section 5: per-file read timeout, default 10s).
func warmRead(ctx context.Context, path string, timeout time.Duration) (int64, error) {
	readCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		size int64
		err  error
	}
	done := make(chan result, 1)

	go func() {
		f, err := os.Open(path)
		if err != nil {
			done <- result{err: fmt.Errorf("failed to open %s: %w", path, err)}
			return
		}
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			done <- result{err: fmt.Errorf("failed to stat %s: %w", path, err)}
			return
		}

		if _, err := io.CopyN(io.Discard, f, warmPrefixBytes); err != nil && err != io.EOF {
			done <- result{err: fmt.Errorf("failed to read %s: %w", path, err)}
			return
		}

		done <- result{size: info.Size()}
	}()

	select {
	case r := <-done:
		return r.size, r.err
	case <-readCtx.Done():
		return 0, fmt.Errorf("read timeout for %s: %w", path, readCtx.Err())
	}
}
