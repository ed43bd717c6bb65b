package cli

import "errors"

// CLI-specific sentinel errors.
// These are validation/usage errors that don't belong to domain packages.

var (
	// ErrUnsupportedFormat indicates a video file has an unsupported extension.
	ErrUnsupportedFormat = errors.New("unsupported video format")

	// ErrInvalidDuration indicates a duration string could not be parsed.
	ErrInvalidDuration = errors.New("invalid duration format")

	// ErrFileNotFound indicates the specified input file does not exist.
	ErrFileNotFound = errors.New("file not found")

	// ErrJobNotFound indicates no job record exists for the given ID.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotResumable indicates a job's status cannot be resumed.
	ErrJobNotResumable = errors.New("job is not resumable")
)
