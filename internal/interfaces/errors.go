package interfaces

import (
	"errors"
)

var (
	// ErrNotFound is returned when a job or runner id does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateHash is returned by CreateJob when a job with the same
	// job_hash already exists. Callers re-read by hash and fall into the
	// cache path.
	ErrDuplicateHash = errors.New("job hash already exists")
)
