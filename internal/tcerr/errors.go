// Package tcerr defines the validation error taxonomy exposed across the
// external contract in section 6/7 of the design specification. Validation
// errors are surfaced to the caller verbatim and never change engine state.
package tcerr

import "errors"

var (
	// ErrPathDenied is returned when a path-taking operation is given a
	// path outside the configured allow-list roots.
	ErrPathDenied = errors.New("path denied: outside allowed roots")

	// ErrNoWork is returned by CreateCacheJob when the requested file/
	// directory selection expands to zero files.
	ErrNoWork = errors.New("no work: selection contains zero files")

	// ErrProfileNotFound is returned when a Job is requested against a
	// profile id/name that does not exist.
	ErrProfileNotFound = errors.New("profile not found")

	// ErrJobNotFound is returned when an operation references an unknown job id.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when a job lifecycle operation is
	// requested from a status it cannot legally be applied to.
	ErrInvalidTransition = errors.New("invalid job status transition")

	// ErrAlreadyRunning is returned by StartIndex when a session is already
	// pending or running.
	ErrAlreadyRunning = errors.New("index session already running")

	// ErrNotRunning is returned by StopIndex when there is no active session.
	ErrNotRunning = errors.New("no index session running")

	// ErrNotADirectory is returned by DirectorySize when given a file path.
	ErrNotADirectory = errors.New("not a directory")
)
