package types

import "errors"

// Validation errors rejected at submission time. They never become jobs.
var (
	ErrInvalidTemperature = errors.New("temperature must be between 0 and 1")
	ErrInvalidChunking    = errors.New("chunk_seconds must be greater than overlap_seconds and overlap_seconds must be non-negative")
	ErrInvalidGPUMode     = errors.New("use_gpu must be one of on, off, auto")
)
