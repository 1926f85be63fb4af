package util

import "errors"

// Sentinel errors for package util.
// These errors can be checked with errors.Is() for specific error handling.
var (
	// File and directory errors
	ErrExpectedFile = errors.New("expected file, got directory")

	// Archive errors
	ErrDuplicateEntry  = errors.New("entry name appears more than once")
	ErrInvalidEntry    = errors.New("invalid entry name")
	ErrDirectoryLength = errors.New("central directory disagrees with archive reader")

	// Comparison errors
	ErrEntryMissing    = errors.New("file missing from archive")
	ErrUnexpectedEntry = errors.New("archive entry has no source file")
	ErrContentMismatch = errors.New("archive entry differs from source file")

	// Bucketing errors
	ErrInvalidBucketCount = errors.New("bucket count must be positive")
)
