package batch

import "errors"

// Per-job failures. They never escape Wait; they are rendered into the
// job's terminal event.
var (
	ErrInvalidOutputDir = errors.New("invalid output directory")
	ErrToolNotFound     = errors.New("yt-dlp not found")
	ErrSpawn            = errors.New("failed to start yt-dlp")
	ErrToolFailed       = errors.New("yt-dlp failed")
	ErrCancelled        = errors.New("download cancelled")
)

// Call-level errors returned by Start before any job runs. See also
// ErrFolderLocked.
var (
	ErrInvalidConcurrency = errors.New("concurrency must be between 1 and 10")
	ErrBatchRunning       = errors.New("a batch is already running")
)
