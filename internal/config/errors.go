package config

import "errors"

// Configuration validation errors, returned by Validate so callers can use
// errors.Is.
var (
	ErrNoSeed              = errors.New("no seed URL specified")
	ErrNoOutput            = errors.New("no output directory specified")
	ErrInvalidMaxPages     = errors.New("invalid max_pages: must be at least 1")
	ErrInvalidMaxDepth     = errors.New("invalid max_depth: must be non-negative")
	ErrInvalidConcurrency  = errors.New("invalid max_concurrent_requests: must be at least 1")
	ErrInvalidDelay        = errors.New("invalid delay: must be non-negative")
	ErrInvalidTimeout      = errors.New("invalid timeout: must be positive")
	ErrInvalidRetries      = errors.New("invalid max_retries: must be non-negative")
	ErrUnknownReportFormat = errors.New("unknown report format")
)
