package config

import "errors"

// Configuration validation errors returned by CrawlConfig.Validate.
// Package-level sentinels so callers can branch with errors.Is.
var (
	// ErrInvalidMode is returned when the traversal mode is not one of
	// "next", "prev", or "free".
	ErrInvalidMode = errors.New(`invalid mode: must be "next", "prev", or "free"`)

	// ErrEmptyNamingPattern is returned when no naming pattern is set.
	// Without a pattern there is no way to compute save paths.
	ErrEmptyNamingPattern = errors.New("invalid naming pattern: must not be empty")

	// ErrEmptySaveDir is returned when no save directory is set.
	ErrEmptySaveDir = errors.New("invalid save directory: must not be empty")

	// ErrNegativeResolution is returned when a minimum dimension is
	// negative. Use 0 to disable the resolution filter.
	ErrNegativeResolution = errors.New("invalid minimum resolution: must be non-negative")

	// ErrNegativeDelay is returned when a delay lower bound is
	// negative. Use 0 for no delay.
	ErrNegativeDelay = errors.New("invalid delay: must be non-negative")

	// ErrInvalidConcurrency is returned when the download pool size is
	// not positive.
	ErrInvalidConcurrency = errors.New("invalid concurrency: must be positive")

	// ErrInvalidRetryBudget is returned when a retry budget is out of
	// range. Page-fetch retries may be 0; image downloads need at
	// least one attempt.
	ErrInvalidRetryBudget = errors.New("invalid retry budget")
)
