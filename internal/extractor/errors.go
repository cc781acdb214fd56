package extractor

import "scd-extractor/internal/archive"

// Re-exported so callers can test failures without importing archive.
var (
	ErrMalformedArchive    = archive.ErrMalformedArchive
	ErrInconsistentArchive = archive.ErrInconsistentArchive
)
